package domain

import (
	"context"
	"time"
)

// StateCache mirrors reconciled character state into a shared cache so other
// processes can read it without talking to the reconciler directly.
type StateCache interface {
	SetState(ctx context.Context, st CharacterState) error
	GetState(ctx context.Context, id uint64) (CharacterState, error)
	GetStates(ctx context.Context, ids []uint64) (map[uint64]CharacterState, error)
}

// RateCache stores the latest native-to-display exchange rate.
type RateCache interface {
	SetRate(ctx context.Context, rate float64, ts time.Time) error
	GetRate(ctx context.Context) (float64, time.Time, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub fanout and durable streams for activity events
// and state-change notifications.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
