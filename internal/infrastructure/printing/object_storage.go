package printing

import (
	"context"
	"errors"
	"io"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/infrastructure/storage"
)

// ObjectStore is the object storage surface PDFs are kept in
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	DeleteObject(ctx context.Context, key string) error
	DeleteOlderThan(ctx context.Context, prefix string, cutoff time.Time) (int, error)
	GenerateDownloadURL(ctx context.Context, key string, expiresIn time.Duration) (string, time.Time, error)
}

// ObjectPDFStorage keeps PDFs in object storage under a key prefix
type ObjectPDFStorage struct {
	store   ObjectStore
	prefix  string
	baseURL string
	logger  *zap.Logger
}

// NewObjectPDFStorage creates a PDFStorage over store. Objects are keyed
// {prefix}/{tenant}/{kind}/{document}.pdf.
func NewObjectPDFStorage(store ObjectStore, prefix, baseURL string, logger *zap.Logger) *ObjectPDFStorage {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "documents"
	}
	if baseURL == "" {
		baseURL = "/api/v1/documents/files"
	}
	return &ObjectPDFStorage{store: store, prefix: prefix, baseURL: baseURL, logger: logger}
}

func (s *ObjectPDFStorage) key(rel string) (string, error) {
	if rel == "" || containsDotDot(rel) || path.IsAbs(rel) {
		return "", NewRenderError(ErrCodeStorageFailed, "invalid path", nil)
	}
	return path.Join(s.prefix, path.Clean(rel)), nil
}

// Store uploads the PDF and presigns a direct download link
func (s *ObjectPDFStorage) Store(ctx context.Context, req *StoreRequest) (*StoreResult, error) {
	rel, err := req.ObjectPath()
	if err != nil {
		return nil, err
	}
	key, _ := s.key(rel)
	if err := s.store.Upload(ctx, key, req.PDFData, "application/pdf"); err != nil {
		return nil, NewRenderError(ErrCodeStorageFailed, "failed to upload PDF", err)
	}

	res := &StoreResult{Path: rel, URL: s.GetURL(rel), Size: int64(len(req.PDFData))}
	if direct, _, err := s.store.GenerateDownloadURL(ctx, key, 0); err == nil {
		res.DirectURL = direct
	} else {
		s.logger.Warn("Failed to presign PDF download", zap.String("key", key), zap.Error(err))
	}
	s.logger.Info("PDF uploaded", zap.String("key", key), zap.Int("size", len(req.PDFData)))
	return res, nil
}

// Get downloads a stored PDF
func (s *ObjectPDFStorage) Get(ctx context.Context, rel string) (io.ReadCloser, error) {
	key, err := s.key(rel)
	if err != nil {
		return nil, err
	}
	rc, err := s.store.Download(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, NewRenderError(ErrCodeNotFound, "PDF not found", err)
		}
		return nil, NewRenderError(ErrCodeStorageFailed, "failed to download PDF", err)
	}
	return rc, nil
}

// Delete removes a stored PDF
func (s *ObjectPDFStorage) Delete(ctx context.Context, rel string) error {
	key, err := s.key(rel)
	if err != nil {
		return err
	}
	if err := s.store.DeleteObject(ctx, key); err != nil {
		return NewRenderError(ErrCodeStorageFailed, "failed to delete PDF", err)
	}
	return nil
}

// CleanupOlderThan removes PDFs under the prefix not rewritten within age
func (s *ObjectPDFStorage) CleanupOlderThan(ctx context.Context, age time.Duration) (int, error) {
	n, err := s.store.DeleteOlderThan(ctx, s.prefix+"/", time.Now().Add(-age))
	if err != nil {
		return n, NewRenderError(ErrCodeStorageFailed, "cleanup failed", err)
	}
	s.logger.Info("PDF cleanup completed", zap.Int("deleted", n), zap.Duration("age", age))
	return n, nil
}

// GetURL returns the agent URL serving rel
func (s *ObjectPDFStorage) GetURL(rel string) string {
	return joinURL(s.baseURL, rel)
}

var _ PDFStorage = (*ObjectPDFStorage)(nil)
