package feed

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Otaku-Wars/clashcore/internal/domain"
	"github.com/Otaku-Wars/clashcore/internal/platform/arena"
	"github.com/Otaku-Wars/clashcore/internal/reconcile"
)

var testEpoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakePoker struct {
	poked  []uint64
	battle int
}

func (f *fakePoker) Poke(id uint64) { f.poked = append(f.poked, id) }
func (f *fakePoker) PokeBattle()    { f.battle++ }

// fakeBus is an in-memory domain.SignalBus.
type fakeBus struct {
	published []string
	stream    []domain.StreamMessage
	insertErr error
}

func (b *fakeBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.published = append(b.published, string(payload))
	return nil
}

func (b *fakeBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (b *fakeBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	id := time.Now().Format("150405.000000")
	b.stream = append(b.stream, domain.StreamMessage{ID: id, Payload: payload})
	return nil
}

func (b *fakeBus) StreamRead(ctx context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error) {
	var out []domain.StreamMessage
	for _, m := range b.stream {
		if m.ID > lastID || lastID == "0" {
			out = append(out, m)
		}
		if len(out) == count {
			break
		}
	}
	return out, nil
}

type fakeStore struct {
	inserted []domain.ActivityRecord
	err      error
}

func (s *fakeStore) InsertBatch(ctx context.Context, records []domain.ActivityRecord) error {
	if s.err != nil {
		return s.err
	}
	s.inserted = append(s.inserted, records...)
	return nil
}

func (s *fakeStore) ListRecent(ctx context.Context, limit int) ([]domain.ActivityRecord, error) {
	return s.inserted, nil
}

func (s *fakeStore) ListBySubject(ctx context.Context, subject uint64, limit int) ([]domain.ActivityRecord, error) {
	return nil, nil
}

func (s *fakeStore) GetLastTimestamp(ctx context.Context) (time.Time, error) {
	return time.Time{}, nil
}

func testLogger(t *testing.T) *slog.Logger {
	return slog.New(slog.NewTextHandler(testWriter{t}, nil))
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func tradeFrame(t *testing.T, ev domain.TradeEvent) []byte {
	raw, err := arena.EncodeActivityEvent(ev)
	require.NoError(t, err)
	return raw
}

func TestHandleEventFreshTrade(t *testing.T) {
	rec := reconcile.New(func() time.Time { return testEpoch }, 100)
	poker := &fakePoker{}
	bus := &fakeBus{}
	f := NewFeed(nil, rec, poker, bus, testLogger(t))

	ev := domain.TradeEvent{Trader: "0xabc", Character: 7, IsBuy: true, ShareAmount: 3, Timestamp: testEpoch}
	f.handleEvent(ev, tradeFrame(t, ev))

	assert.Equal(t, []uint64{7}, poker.poked)
	assert.Len(t, bus.published, 1)
	assert.Len(t, bus.stream, 1)
	assert.Len(t, rec.Activity(0), 1)
}

func TestHandleEventDuplicateDropped(t *testing.T) {
	rec := reconcile.New(func() time.Time { return testEpoch }, 100)
	poker := &fakePoker{}
	bus := &fakeBus{}
	f := NewFeed(nil, rec, poker, bus, testLogger(t))

	ev := domain.TradeEvent{Trader: "0xabc", Character: 7, IsBuy: true, ShareAmount: 3, Timestamp: testEpoch}
	raw := tradeFrame(t, ev)
	f.handleEvent(ev, raw)
	f.handleEvent(ev, raw)

	assert.Len(t, poker.poked, 1)
	assert.Len(t, bus.published, 1)
	assert.Len(t, rec.Activity(0), 1)
}

func TestHandleEventMatchEndPokesBothFighters(t *testing.T) {
	rec := reconcile.New(func() time.Time { return testEpoch }, 100)
	poker := &fakePoker{}
	f := NewFeed(nil, rec, poker, nil, testLogger(t))

	ev := domain.MatchEndEvent{MatchID: 4, Winner: 3, Loser: 9, Transferred: 1.2, Timestamp: testEpoch}
	raw, err := arena.EncodeActivityEvent(ev)
	require.NoError(t, err)
	f.handleEvent(ev, raw)

	assert.Equal(t, 1, poker.battle)
	assert.ElementsMatch(t, []uint64{3, 9}, poker.poked)
}

func TestArchiverFlush(t *testing.T) {
	bus := &fakeBus{}
	store := &fakeStore{}
	a := NewArchiver(bus, store, nil, testLogger(t))

	for i := 0; i < 3; i++ {
		ev := domain.TradeEvent{
			Trader: "0xabc", Character: uint64(i + 1), IsBuy: true, ShareAmount: 1,
			Timestamp: testEpoch.Add(time.Duration(i) * time.Second),
		}
		raw, err := arena.EncodeActivityEvent(ev)
		require.NoError(t, err)
		require.NoError(t, bus.StreamAppend(context.Background(), StreamActivity, raw))
	}

	a.flush(context.Background())

	require.Len(t, store.inserted, 3)
	assert.Equal(t, domain.ActivityTrade, store.inserted[0].Kind)
	assert.Equal(t, uint64(1), store.inserted[0].Subject)
	assert.Equal(t, bus.stream[2].ID, a.lastID)
}

func TestArchiverRetriesFailedBatch(t *testing.T) {
	bus := &fakeBus{}
	store := &fakeStore{err: errors.New("db down")}
	a := NewArchiver(bus, store, nil, testLogger(t))

	ev := domain.TradeEvent{Trader: "0xabc", Character: 1, IsBuy: true, ShareAmount: 1, Timestamp: testEpoch}
	raw, err := arena.EncodeActivityEvent(ev)
	require.NoError(t, err)
	require.NoError(t, bus.StreamAppend(context.Background(), StreamActivity, raw))

	a.flush(context.Background())
	assert.Equal(t, "0", a.lastID)

	// Store recovers; the same frame is archived on the next flush.
	store.err = nil
	a.flush(context.Background())
	require.Len(t, store.inserted, 1)
	assert.NotEqual(t, "0", a.lastID)
}
