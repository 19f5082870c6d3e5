package printing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
)

// PDFStorage stores generated documents
type PDFStorage interface {
	Store(ctx context.Context, req *StoreRequest) (*StoreResult, error)
	// Get opens a stored PDF by the relative path returned from Store
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
	CleanupOlderThan(ctx context.Context, age time.Duration) (int, error)
	// GetURL returns the agent URL serving path
	GetURL(path string) string
}

// StoreRequest contains the parameters for storing a PDF
type StoreRequest struct {
	TenantID   string
	Kind       string
	DocumentID string
	PDFData    []byte
}

// StoreResult contains the result of storing a PDF
type StoreResult struct {
	// Path is relative to the storage root: {tenant}/{kind}/{document}.pdf
	Path string
	URL  string
	// DirectURL is a time-limited link straight to object storage, when available
	DirectURL string
	Size      int64
}

// ObjectPath builds the relative path of a document. Regenerating a document
// overwrites its previous PDF.
func (r *StoreRequest) ObjectPath() (string, error) {
	if r == nil {
		return "", NewRenderError(ErrCodeStorageFailed, "store request is nil", nil)
	}
	if r.TenantID == "" {
		return "", NewRenderError(ErrCodeStorageFailed, "tenant ID is required", nil)
	}
	if r.DocumentID == "" {
		return "", NewRenderError(ErrCodeStorageFailed, "document ID is required", nil)
	}
	if len(r.PDFData) == 0 {
		return "", NewRenderError(ErrCodeStorageFailed, "PDF data is empty", nil)
	}
	kind := r.Kind
	if kind == "" {
		kind = "document"
	}
	return path.Join(safeSegment(r.TenantID), safeSegment(kind), safeSegment(r.DocumentID)+".pdf"), nil
}

// TenantPrefix is the leading path segment of every document stored for tenantID
func TenantPrefix(tenantID string) string {
	return safeSegment(tenantID) + "/"
}

// safeSegment replaces everything outside [A-Za-z0-9._-] and refuses dot-only names
func safeSegment(s string) string {
	out := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, s)
	if strings.Trim(out, ".") == "" {
		return strings.Repeat("_", len(out))
	}
	return out
}

// FileSystemStorageConfig contains configuration for file system storage
type FileSystemStorageConfig struct {
	BasePath string
	// BaseURL is the URL prefix the agent serves documents under
	BaseURL string
	Logger  *zap.Logger
}

// FileSystemStorage stores PDFs on the local file system
type FileSystemStorage struct {
	config *FileSystemStorageConfig
	logger *zap.Logger
}

// NewFileSystemStorage creates a new file system based PDF storage
func NewFileSystemStorage(config *FileSystemStorageConfig) (*FileSystemStorage, error) {
	if config == nil {
		config = &FileSystemStorageConfig{}
	}
	if config.BasePath == "" {
		config.BasePath = "data/documents"
	}
	if config.BaseURL == "" {
		config.BaseURL = "/api/v1/documents/files"
	}
	if err := os.MkdirAll(config.BasePath, 0o755); err != nil {
		return nil, NewRenderError(ErrCodeStorageFailed,
			fmt.Sprintf("failed to create storage directory: %s", config.BasePath), err)
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSystemStorage{config: config, logger: logger}, nil
}

// Store writes the PDF atomically through a temp file in the target directory
func (s *FileSystemStorage) Store(ctx context.Context, req *StoreRequest) (*StoreResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewRenderError(ErrCodeStorageFailed, "operation cancelled", err)
	}
	rel, err := req.ObjectPath()
	if err != nil {
		return nil, err
	}
	full := filepath.Join(s.config.BasePath, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, NewRenderError(ErrCodeStorageFailed, "failed to create directory", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".pdf-*")
	if err != nil {
		return nil, NewRenderError(ErrCodeStorageFailed, "failed to create temp file", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(req.PDFData); err != nil {
		tmp.Close()
		return nil, NewRenderError(ErrCodeStorageFailed, "failed to write PDF file", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, NewRenderError(ErrCodeStorageFailed, "failed to write PDF file", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return nil, NewRenderError(ErrCodeStorageFailed, "failed to move PDF into place", err)
	}

	url := s.GetURL(rel)
	s.logger.Info("PDF stored",
		zap.String("path", full),
		zap.Int("size", len(req.PDFData)),
		zap.String("url", url))
	return &StoreResult{Path: rel, URL: url, Size: int64(len(req.PDFData))}, nil
}

// resolve maps a relative path onto the base directory, refusing escapes
func (s *FileSystemStorage) resolve(rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if rel == "" || filepath.IsAbs(clean) || containsDotDot(rel) {
		s.logger.Warn("blocked potentially malicious path", zap.String("path", rel))
		return "", NewRenderError(ErrCodeStorageFailed, "invalid path", nil)
	}
	absBase, err := filepath.Abs(s.config.BasePath)
	if err != nil {
		return "", NewRenderError(ErrCodeStorageFailed, "failed to resolve base path", err)
	}
	absPath, err := filepath.Abs(filepath.Join(s.config.BasePath, clean))
	if err != nil {
		return "", NewRenderError(ErrCodeStorageFailed, "failed to resolve file path", err)
	}
	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		s.logger.Warn("path escape attempt blocked", zap.String("path", rel), zap.String("abs", absPath))
		return "", NewRenderError(ErrCodeStorageFailed, "invalid path", nil)
	}
	return absPath, nil
}

// Get opens a stored PDF
func (s *FileSystemStorage) Get(ctx context.Context, rel string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewRenderError(ErrCodeStorageFailed, "operation cancelled", err)
	}
	full, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, NewRenderError(ErrCodeNotFound, "PDF not found", err)
		}
		return nil, NewRenderError(ErrCodeStorageFailed, "failed to open PDF file", err)
	}
	return f, nil
}

// Delete removes a stored PDF; a missing file is not an error
func (s *FileSystemStorage) Delete(ctx context.Context, rel string) error {
	if err := ctx.Err(); err != nil {
		return NewRenderError(ErrCodeStorageFailed, "operation cancelled", err)
	}
	full, err := s.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return NewRenderError(ErrCodeStorageFailed, "failed to delete PDF file", err)
	}
	s.logger.Info("PDF deleted", zap.String("path", rel))
	return nil
}

// CleanupOlderThan removes PDFs not rewritten within age
func (s *FileSystemStorage) CleanupOlderThan(ctx context.Context, age time.Duration) (int, error) {
	cutoff := time.Now().Add(-age)
	deleted := 0
	err := filepath.WalkDir(s.config.BasePath, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(p) != ".pdf" {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) && os.Remove(p) == nil {
			deleted++
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return deleted, NewRenderError(ErrCodeStorageFailed, "cleanup walk failed", err)
	}
	s.logger.Info("PDF cleanup completed", zap.Int("deleted", deleted), zap.Duration("age", age))
	return deleted, nil
}

// GetURL returns the agent URL serving rel
func (s *FileSystemStorage) GetURL(rel string) string {
	return joinURL(s.config.BaseURL, rel)
}

func joinURL(base, rel string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(filepath.ToSlash(path.Clean(rel)), "/")
}

// containsDotDot checks the raw path for ".." components
func containsDotDot(p string) bool {
	parts := strings.FieldsFunc(p, func(r rune) bool {
		return r == '/' || r == '\\' || r == filepath.Separator
	})
	return slices.Contains(parts, "..")
}

var _ PDFStorage = (*FileSystemStorage)(nil)
