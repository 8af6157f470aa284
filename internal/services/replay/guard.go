package replay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"egiro-gateway/pkg/errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Guard records issued identifiers for a retention window and reports
// whether a value is new.
type Guard interface {
	Reserve(ctx context.Context, kind, value string) (bool, error)
}

// RedisClient interface for Redis operations
type RedisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisGuard shares issued identifiers across gateway replicas.
type RedisGuard struct {
	redis     RedisClient
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewRedisGuard creates a guard keyed under keyPrefix.
func NewRedisGuard(rdb RedisClient, keyPrefix string, ttl time.Duration, logger *zap.Logger) *RedisGuard {
	return &RedisGuard{
		redis:     rdb,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		logger:    logger,
	}
}

func (g *RedisGuard) buildKey(kind, value string) string {
	return fmt.Sprintf("%s:issued:%s:%s", g.keyPrefix, kind, value)
}

// Reserve sets the key only if it does not exist yet.
func (g *RedisGuard) Reserve(ctx context.Context, kind, value string) (bool, error) {
	ok, err := g.redis.SetNX(ctx, g.buildKey(kind, value), 1, g.ttl).Result()
	if err != nil {
		return false, errors.WrapDomainError(err, errors.KindInternal, errors.CodeInternal, "identifier reservation failed", "redis error")
	}
	if !ok {
		g.logger.Warn("identifier already issued", zap.String("kind", kind))
	}
	return ok, nil
}

// MemoryGuard is a process-local Guard for single-replica deployments.
type MemoryGuard struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]time.Time
	sweeps  int
}

// NewMemoryGuard creates an in-memory guard.
func NewMemoryGuard(ttl time.Duration) *MemoryGuard {
	return &MemoryGuard{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]time.Time),
	}
}

func (g *MemoryGuard) Reserve(_ context.Context, kind, value string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.sweeps++
	if g.sweeps >= 1024 {
		g.sweeps = 0
		for k, exp := range g.entries {
			if !now.Before(exp) {
				delete(g.entries, k)
			}
		}
	}

	key := kind + ":" + value
	if exp, ok := g.entries[key]; ok && now.Before(exp) {
		return false, nil
	}
	g.entries[key] = now.Add(g.ttl)
	return true, nil
}

// Len returns the number of tracked entries, expired ones included.
func (g *MemoryGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

// ReservationRecorder counts reservation results.
type ReservationRecorder interface {
	RecordReservation(kind, result string)
}

type instrumentedGuard struct {
	guard    Guard
	recorder ReservationRecorder
}

// WithMetrics records the result of every reservation made through g.
func WithMetrics(g Guard, recorder ReservationRecorder) Guard {
	return &instrumentedGuard{guard: g, recorder: recorder}
}

func (g *instrumentedGuard) Reserve(ctx context.Context, kind, value string) (bool, error) {
	ok, err := g.guard.Reserve(ctx, kind, value)
	switch {
	case err != nil:
		g.recorder.RecordReservation(kind, "error")
	case ok:
		g.recorder.RecordReservation(kind, "reserved")
	default:
		g.recorder.RecordReservation(kind, "collision")
	}
	return ok, err
}
