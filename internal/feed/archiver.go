package feed

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Otaku-Wars/clashcore/internal/domain"
	"github.com/Otaku-Wars/clashcore/internal/platform/arena"
)

const (
	// archiveFlushInterval is how often the archiver drains the stream.
	archiveFlushInterval = 5 * time.Second

	// archiveBatchSize caps how many frames one flush reads.
	archiveBatchSize = 256

	// archiveLockKey serialises flushing across replicas.
	archiveLockKey = "activity-archive"

	// archiveLockTTL bounds how long a crashed holder blocks the others.
	archiveLockTTL = 30 * time.Second
)

// Archiver drains the durable activity stream into the Postgres archive.
// It is a write-behind consumer: losing it never affects live state, and the
// store's dedup constraint makes replays harmless.
type Archiver struct {
	bus    domain.SignalBus
	store  domain.ActivityStore
	locks  domain.LockManager
	logger *slog.Logger

	lastID string
}

// NewArchiver creates an Archiver. locks may be nil for single-replica
// deployments.
func NewArchiver(bus domain.SignalBus, store domain.ActivityStore, locks domain.LockManager, logger *slog.Logger) *Archiver {
	return &Archiver{
		bus:    bus,
		store:  store,
		locks:  locks,
		logger: logger.With(slog.String("component", "archiver")),
		lastID: "0",
	}
}

// Run flushes the stream on a fixed cadence until ctx is cancelled.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(archiveFlushInterval)
	defer ticker.Stop()

	a.logger.Info("archiver started")
	defer a.logger.Info("archiver stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.flush(ctx)
		}
	}
}

// flush reads one batch from the stream and archives it. When a lock manager
// is configured and another replica holds the lock, the flush is skipped;
// the frames stay in the stream for the holder.
func (a *Archiver) flush(ctx context.Context) {
	if a.locks != nil {
		unlock, err := a.locks.Acquire(ctx, archiveLockKey, archiveLockTTL)
		if err != nil {
			if !errors.Is(err, domain.ErrLockHeld) {
				a.logger.Warn("archive lock failed", slog.String("error", err.Error()))
			}
			return
		}
		defer unlock()
	}

	msgs, err := a.bus.StreamRead(ctx, StreamActivity, a.lastID, archiveBatchSize)
	if err != nil {
		a.logger.Warn("stream read failed", slog.String("error", err.Error()))
		return
	}
	if len(msgs) == 0 {
		return
	}

	records := make([]domain.ActivityRecord, 0, len(msgs))
	for _, msg := range msgs {
		ev, err := arena.ParseActivityEvent(msg.Payload)
		if err != nil {
			// Should not happen: only decoded frames reach the stream.
			a.logger.Warn("undecodable archived frame dropped",
				slog.String("stream_id", msg.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		records = append(records, domain.ActivityRecord{
			Kind:      ev.Kind(),
			Timestamp: ev.Time(),
			Subject:   ev.Subject(),
			Payload:   msg.Payload,
		})
	}

	if err := a.store.InsertBatch(ctx, records); err != nil {
		// lastID is not advanced; the batch is retried next flush and the
		// store's dedup constraint absorbs any partial insert.
		a.logger.Warn("archive insert failed",
			slog.Int("batch", len(records)),
			slog.String("error", err.Error()),
		)
		return
	}

	a.lastID = msgs[len(msgs)-1].ID
	a.logger.Debug("archived activity batch",
		slog.Int("batch", len(records)),
		slog.String("last_id", a.lastID),
	)
}
