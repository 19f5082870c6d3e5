package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationList remembers sessions closed before their token expired
type RevocationList interface {
	// Revoke closes the session jti for ttl, normally the token's remaining lifetime
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// RedisRevocationList shares closed sessions with every agent using the same
// redis, so a logout survives restarts.
type RedisRevocationList struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisRevocationList creates a revocation list on client
func NewRedisRevocationList(client redis.UniversalClient) *RedisRevocationList {
	return &RedisRevocationList{client: client, prefix: "agency:session:revoked:"}
}

// Revoke implements RevocationList
func (l *RedisRevocationList) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := l.client.SetEx(ctx, l.prefix+jti, time.Now().UTC().Format(time.RFC3339), ttl).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// IsRevoked implements RevocationList
func (l *RedisRevocationList) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := l.client.Exists(ctx, l.prefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("check session revocation: %w", err)
	}
	return n > 0, nil
}

// MemoryRevocationList keeps closed sessions of a single agent process
type MemoryRevocationList struct {
	mu    sync.Mutex
	until map[string]time.Time
	now   func() time.Time
}

// NewMemoryRevocationList creates an empty in-process list
func NewMemoryRevocationList() *MemoryRevocationList {
	return &MemoryRevocationList{until: make(map[string]time.Time), now: time.Now}
}

// Revoke implements RevocationList. Expired entries are dropped on the way.
func (l *MemoryRevocationList) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for id, t := range l.until {
		if !now.Before(t) {
			delete(l.until, id)
		}
	}
	l.until[jti] = now.Add(ttl)
	return nil
}

// IsRevoked implements RevocationList
func (l *MemoryRevocationList) IsRevoked(_ context.Context, jti string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.until[jti]
	return ok && l.now().Before(t), nil
}

// Len returns the number of sessions still revoked
func (l *MemoryRevocationList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	n := 0
	for _, t := range l.until {
		if now.Before(t) {
			n++
		}
	}
	return n
}

var (
	_ RevocationList = (*RedisRevocationList)(nil)
	_ RevocationList = (*MemoryRevocationList)(nil)
)
