package localstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/shared"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrQuotaExceeded is returned by a slot whose storage ceiling was hit.
// Callers match it with errors.Is and fall back to compaction.
var ErrQuotaExceeded = shared.ErrQuotaExceeded

// Slot is a durable single-key location holding the whole serialized snapshot.
// Load returns nil data and no error when nothing has been saved yet.
type Slot interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// Archiver keeps a copy of snapshot bytes beside the slot, where later saves
// do not reach it, and returns where the copy went.
type Archiver interface {
	Archive(ctx context.Context, data []byte) (string, error)
}

func archive(ctx context.Context, slot Slot, data []byte) (string, error) {
	a, ok := slot.(Archiver)
	if !ok {
		return "", fmt.Errorf("%T cannot archive snapshots", slot)
	}
	return a.Archive(ctx, data)
}

func archiveSuffix(now time.Time) string {
	return ".corrupt-" + now.UTC().Format("20060102T150405")
}

// MemorySlot keeps the snapshot in memory. Used in tests and for throwaway agents.
type MemorySlot struct {
	mu       sync.Mutex
	data     []byte
	saves    int
	archived [][]byte
}

// NewMemorySlot creates an empty in-memory slot
func NewMemorySlot() *MemorySlot {
	return &MemorySlot{}
}

// Load implements Slot
func (s *MemorySlot) Load(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil, nil
	}
	return append([]byte(nil), s.data...), nil
}

// Save implements Slot
func (s *MemorySlot) Save(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append([]byte(nil), data...)
	s.saves++
	return nil
}

// Archive implements Archiver
func (s *MemorySlot) Archive(_ context.Context, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.archived = append(s.archived, append([]byte(nil), data...))
	return fmt.Sprintf("memory#%d", len(s.archived)), nil
}

// Archived returns the copies kept by Archive
func (s *MemorySlot) Archived() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.archived...)
}

// Saves returns how many times the slot was written
func (s *MemorySlot) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// FileSlot stores the snapshot in a file, replacing it atomically on every save.
type FileSlot struct {
	path string
}

// NewFileSlot creates a file slot at path. The directory is created on first save.
func NewFileSlot(path string) *FileSlot {
	return &FileSlot{path: path}
}

// Load implements Slot
func (s *FileSlot) Load(context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}
	return data, nil
}

// Save implements Slot
func (s *FileSlot) Save(_ context.Context, data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return fileError(err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fileError(err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fileError(err)
	}
	if err := tmp.Close(); err != nil {
		return fileError(err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fileError(err)
	}
	return nil
}

// Archive implements Archiver, writing next to the snapshot file
func (s *FileSlot) Archive(_ context.Context, data []byte) (string, error) {
	path := s.path + archiveSuffix(time.Now())
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to archive snapshot file: %w", err)
	}
	return path, nil
}

func fileError(err error) error {
	if errors.Is(err, syscall.ENOSPC) {
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	}
	return fmt.Errorf("failed to write snapshot file: %w", err)
}

// snapshotRow is the single-row table behind GormSlot
type snapshotRow struct {
	Key       string `gorm:"column:slot_key;primaryKey;size:128"`
	Data      []byte
	UpdatedAt time.Time
}

// TableName implements gorm's tabler
func (snapshotRow) TableName() string {
	return "agent_snapshots"
}

// GormSlot stores the snapshot in one row of a SQL table, keyed by slot name.
type GormSlot struct {
	db  *gorm.DB
	key string
}

// NewGormSlot creates the snapshot table if needed and returns a slot bound to key
func NewGormSlot(db *gorm.DB, key string) (*GormSlot, error) {
	if err := db.AutoMigrate(&snapshotRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate snapshot table: %w", err)
	}
	return &GormSlot{db: db, key: key}, nil
}

// Load implements Slot
func (s *GormSlot) Load(ctx context.Context) ([]byte, error) {
	var row snapshotRow
	err := s.db.WithContext(ctx).Where("slot_key = ?", s.key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot row: %w", err)
	}
	return row.Data, nil
}

// Save implements Slot
func (s *GormSlot) Save(ctx context.Context, data []byte) error {
	row := snapshotRow{Key: s.key, Data: data, UpdatedAt: time.Now()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slot_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&row).Error
	if err == nil {
		return nil
	}
	if isDiskFull(err) {
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	}
	return fmt.Errorf("failed to save snapshot row: %w", err)
}

// Archive implements Archiver, storing the bytes in a row of their own
func (s *GormSlot) Archive(ctx context.Context, data []byte) (string, error) {
	row := snapshotRow{Key: s.key + archiveSuffix(time.Now()), Data: data, UpdatedAt: time.Now()}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("failed to archive snapshot row: %w", err)
	}
	return row.Key, nil
}

// isDiskFull recognizes SQLite's SQLITE_FULL and Postgres' disk_full (53100)
func isDiskFull(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database or disk is full") ||
		strings.Contains(msg, "SQLSTATE 53100") ||
		strings.Contains(msg, "could not extend file")
}

// RedisSlot stores the snapshot under a single Redis key.
type RedisSlot struct {
	client redis.UniversalClient
	key    string
}

// NewRedisSlot creates a slot over an existing client
func NewRedisSlot(client redis.UniversalClient, key string) *RedisSlot {
	return &RedisSlot{client: client, key: key}
}

// Load implements Slot
func (s *RedisSlot) Load(ctx context.Context) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot from redis: %w", err)
	}
	return data, nil
}

// Save implements Slot
func (s *RedisSlot) Save(ctx context.Context, data []byte) error {
	err := s.client.Set(ctx, s.key, data, 0).Err()
	if err == nil {
		return nil
	}
	if isRedisOOM(err) {
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	}
	return fmt.Errorf("failed to save snapshot to redis: %w", err)
}

// Archive implements Archiver under a sibling key
func (s *RedisSlot) Archive(ctx context.Context, data []byte) (string, error) {
	key := s.key + archiveSuffix(time.Now())
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return "", fmt.Errorf("failed to archive snapshot in redis: %w", err)
	}
	return key, nil
}

// isRedisOOM recognizes the error Redis returns when maxmemory is reached
func isRedisOOM(err error) bool {
	return strings.HasPrefix(err.Error(), "OOM ")
}

// LimitedSlot rejects snapshots larger than a byte ceiling, reproducing the
// quota behavior of small key-value stores regardless of the backend.
type LimitedSlot struct {
	Slot
	maxBytes int64
}

var (
	_ Archiver = (*MemorySlot)(nil)
	_ Archiver = (*FileSlot)(nil)
	_ Archiver = (*GormSlot)(nil)
	_ Archiver = (*RedisSlot)(nil)
	_ Archiver = (*LimitedSlot)(nil)
)

// NewLimitedSlot wraps slot with a ceiling. maxBytes <= 0 returns slot unchanged.
func NewLimitedSlot(slot Slot, maxBytes int64) Slot {
	if maxBytes <= 0 {
		return slot
	}
	return &LimitedSlot{Slot: slot, maxBytes: maxBytes}
}

// Save implements Slot
func (s *LimitedSlot) Save(ctx context.Context, data []byte) error {
	if int64(len(data)) > s.maxBytes {
		return fmt.Errorf("%w: snapshot is %d bytes, limit is %d", ErrQuotaExceeded, len(data), s.maxBytes)
	}
	return s.Slot.Save(ctx, data)
}

// Archive implements Archiver when the wrapped slot does. Archived copies do
// not count against the ceiling.
func (s *LimitedSlot) Archive(ctx context.Context, data []byte) (string, error) {
	return archive(ctx, s.Slot, data)
}
