package localstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestMemorySlot(t *testing.T) {
	ctx := context.Background()
	slot := NewMemorySlot()

	data, err := slot.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, data)

	payload := []byte(`{"version":1}`)
	require.NoError(t, slot.Save(ctx, payload))
	payload[0] = 'X'

	data, err = slot.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"version":1}`, string(data))
	assert.Equal(t, 1, slot.Saves())
}

func TestFileSlot(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "snapshot.json")
	slot := NewFileSlot(path)

	data, err := slot.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, slot.Save(ctx, []byte("first")))
	require.NoError(t, slot.Save(ctx, []byte("second")))

	data, err = slot.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")

	location, err := slot.Archive(ctx, []byte("broken"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(location, path+".corrupt-"))
	kept, err := os.ReadFile(location)
	require.NoError(t, err)
	assert.Equal(t, "broken", string(kept))

	data, err = slot.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "slot.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func TestGormSlot(t *testing.T) {
	ctx := context.Background()
	db := newSQLiteDB(t)

	slot, err := NewGormSlot(db, "agency:snapshot")
	require.NoError(t, err)

	data, err := slot.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, slot.Save(ctx, []byte("v1")))
	require.NoError(t, slot.Save(ctx, []byte("v2")))

	data, err = slot.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))

	var count int64
	require.NoError(t, db.Model(&snapshotRow{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	location, err := slot.Archive(ctx, []byte("broken"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(location, "agency:snapshot.corrupt-"))
	data, err = slot.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))

	other, err := NewGormSlot(db, "other")
	require.NoError(t, err)
	data, err = other.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestRedisSlot(t *testing.T) {
	addr := os.Getenv("AGENCY_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("AGENCY_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	key := "agency:test:" + t.Name()
	defer client.Del(ctx, key)

	slot := NewRedisSlot(client, key)
	data, err := slot.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, slot.Save(ctx, []byte("payload")))
	data, err = slot.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestLimitedSlot(t *testing.T) {
	ctx := context.Background()
	inner := NewMemorySlot()

	assert.Same(t, inner, NewLimitedSlot(inner, 0))

	slot := NewLimitedSlot(inner, 4)
	require.NoError(t, slot.Save(ctx, []byte("1234")))

	err := slot.Save(ctx, []byte("12345"))
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, 1, inner.Saves())

	data, err := slot.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1234", string(data))

	_, err = slot.(Archiver).Archive(ctx, []byte("larger than the ceiling"))
	require.NoError(t, err)
	assert.Len(t, inner.Archived(), 1)
}

func TestQuotaErrorDetection(t *testing.T) {
	assert.True(t, isRedisOOM(errors.New("OOM command not allowed when used memory > 'maxmemory'.")))
	assert.False(t, isRedisOOM(errors.New("connection refused")))

	assert.True(t, isDiskFull(errors.New("database or disk is full")))
	assert.True(t, isDiskFull(errors.New("ERROR: could not extend file (SQLSTATE 53100)")))
	assert.False(t, isDiskFull(errors.New("UNIQUE constraint failed")))
}
