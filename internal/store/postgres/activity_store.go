package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Otaku-Wars/clashcore/internal/domain"
)

// ActivityStore implements domain.ActivityStore using PostgreSQL.
type ActivityStore struct {
	pool *pgxpool.Pool
}

// NewActivityStore creates a new ActivityStore backed by the given connection
// pool.
func NewActivityStore(pool *pgxpool.Pool) *ActivityStore {
	return &ActivityStore{pool: pool}
}

const activitySelectCols = `kind, timestamp, subject, payload`

func scanActivityRows(rows pgx.Rows) ([]domain.ActivityRecord, error) {
	var records []domain.ActivityRecord
	for rows.Next() {
		var r domain.ActivityRecord
		if err := rows.Scan(&r.Kind, &r.Timestamp, &r.Subject, &r.Payload); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// InsertBatch inserts multiple activity records efficiently using pgx Batch.
// Duplicate records (same kind, timestamp, subject) are silently skipped via
// ON CONFLICT DO NOTHING, mirroring the in-memory feed's dedup key.
func (s *ActivityStore) InsertBatch(ctx context.Context, records []domain.ActivityRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO activity_events (kind, timestamp, subject, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (kind, timestamp, subject) DO NOTHING`

	for _, r := range records {
		batch.Queue(query, r.Kind, r.Timestamp, int64(r.Subject), r.Payload)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range records {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert activity batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListRecent returns the most recent activity records, newest first.
func (s *ActivityStore) ListRecent(ctx context.Context, limit int) ([]domain.ActivityRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+activitySelectCols+` FROM activity_events
		 ORDER BY timestamp DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent activity: %w", err)
	}
	defer rows.Close()

	records, err := scanActivityRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan recent activity: %w", err)
	}
	return records, nil
}

// ListBySubject returns the most recent activity records touching one
// character, newest first.
func (s *ActivityStore) ListBySubject(ctx context.Context, subject uint64, limit int) ([]domain.ActivityRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+activitySelectCols+` FROM activity_events
		 WHERE subject = $1
		 ORDER BY timestamp DESC LIMIT $2`, int64(subject), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list activity for subject %d: %w", subject, err)
	}
	defer rows.Close()

	records, err := scanActivityRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan activity for subject %d: %w", subject, err)
	}
	return records, nil
}

// GetLastTimestamp returns the most recent archived timestamp, or the zero
// time if the archive is empty.
func (s *ActivityStore) GetLastTimestamp(ctx context.Context) (time.Time, error) {
	var ts *time.Time
	err := s.pool.QueryRow(ctx,
		"SELECT MAX(timestamp) FROM activity_events").Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("postgres: get last activity timestamp: %w", err)
	}
	if ts == nil {
		return time.Time{}, nil
	}
	return *ts, nil
}

// Compile-time interface check.
var _ domain.ActivityStore = (*ActivityStore)(nil)
