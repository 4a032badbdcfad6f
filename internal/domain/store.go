package domain

import (
	"context"
	"time"
)

// ActivityRecord is the flattened, persistable form of an ActivityEvent.
// Payload carries the kind-specific fields as JSON.
type ActivityRecord struct {
	Kind      ActivityKind
	Timestamp time.Time
	Subject   uint64
	Payload   []byte
}

// ActivityStore archives activity events durably. The reconciler never reads
// from it; it is a write-behind archive for history queries.
type ActivityStore interface {
	InsertBatch(ctx context.Context, records []ActivityRecord) error
	ListRecent(ctx context.Context, limit int) ([]ActivityRecord, error)
	ListBySubject(ctx context.Context, subject uint64, limit int) ([]ActivityRecord, error)
	GetLastTimestamp(ctx context.Context) (time.Time, error)
}
