package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Otaku-Wars/clashcore/internal/curve"
	"github.com/Otaku-Wars/clashcore/internal/domain"
	"github.com/Otaku-Wars/clashcore/internal/pricing"
	"github.com/Otaku-Wars/clashcore/internal/reconcile"
)

var testEpoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeArena struct {
	user domain.User
	err  error
}

func (f *fakeArena) User(ctx context.Context, address string) (domain.User, error) {
	return f.user, f.err
}

type fakeWatcher struct {
	watched []uint64
}

func (f *fakeWatcher) WatchBalance(address string, character uint64) {
	f.watched = append(f.watched, character)
}

func testLogger(t *testing.T) *slog.Logger {
	return slog.New(slog.NewTextHandler(testWriter{t}, nil))
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func newTestWorld(t *testing.T) *reconcile.Reconciler {
	rec := reconcile.New(func() time.Time { return testEpoch }, 100)
	err := rec.ApplyWorld(domain.WorldSnapshot{
		Seq: 1,
		Characters: []domain.Character{
			{ID: 1, Supply: 1000, Value: 500},
			{ID: 2, Supply: 0, Value: 0},
		},
		AsOf: testEpoch,
	})
	require.NoError(t, err)
	return rec
}

func TestUserValuesHoldingsThroughQuoter(t *testing.T) {
	rec := newTestWorld(t)
	quoter := pricing.NewQuoter(curve.DefaultParams(), 0.02, rec)
	arena := &fakeArena{user: domain.User{
		Address: "0xabc",
		Name:    "tester",
		Holdings: []domain.UserHolding{
			{Address: "0xabc", Character: 1, Balance: 40},
			{Address: "0xabc", Character: 2, Balance: 5},
		},
	}}
	watcher := &fakeWatcher{}

	svc := NewPortfolioService(arena, quoter, rec, watcher, testLogger(t))

	user, err := svc.User(context.Background(), "0xabc")
	require.NoError(t, err)
	require.Len(t, user.Holdings, 2)

	want, err := quoter.SellPrice(1, 40)
	require.NoError(t, err)
	// Sorted by value descending, so the liquid holding comes first.
	assert.Equal(t, uint64(1), user.Holdings[0].Character)
	assert.Equal(t, want, user.Holdings[0].Value)

	// Character 2 has zero supply; its holding cannot be liquidated.
	assert.Equal(t, uint64(2), user.Holdings[1].Character)
	assert.Zero(t, user.Holdings[1].Value)

	assert.ElementsMatch(t, []uint64{1, 2}, watcher.watched)
}

func TestUserPrefersChainBalance(t *testing.T) {
	rec := newTestWorld(t)
	rec.SetBalance("0xabc", 1, 75)
	quoter := pricing.NewQuoter(curve.DefaultParams(), 0.02, rec)
	arena := &fakeArena{user: domain.User{
		Address:  "0xabc",
		Holdings: []domain.UserHolding{{Address: "0xabc", Character: 1, Balance: 40}},
	}}

	svc := NewPortfolioService(arena, quoter, rec, nil, testLogger(t))

	user, err := svc.User(context.Background(), "0xabc")
	require.NoError(t, err)
	require.Len(t, user.Holdings, 1)
	assert.Equal(t, uint64(75), user.Holdings[0].Balance)

	want, err := quoter.SellPrice(1, 75)
	require.NoError(t, err)
	assert.Equal(t, want, user.Holdings[0].Value)
}

func TestQuoteSides(t *testing.T) {
	rec := newTestWorld(t)
	quoter := pricing.NewQuoter(curve.DefaultParams(), 0.02, rec)
	svc := NewPortfolioService(&fakeArena{}, quoter, rec, nil, testLogger(t))

	buy, err := svc.Quote(context.Background(), 1, domain.QuoteBuy, 10)
	require.NoError(t, err)
	assert.Greater(t, buy.PreFee, 0.0)
	assert.InEpsilon(t, buy.PreFee*1.02, buy.AfterFee, 1e-12)
	assert.Equal(t, testEpoch, buy.AsOf)

	sell, err := svc.Quote(context.Background(), 1, domain.QuoteSell, 10)
	require.NoError(t, err)
	assert.InEpsilon(t, sell.PreFee*0.98, sell.AfterFee, 1e-12)
	assert.Less(t, sell.PreFee, buy.PreFee)

	_, err = svc.Quote(context.Background(), 1, domain.QuoteSell, 5000)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientSupply)

	_, err = svc.Quote(context.Background(), 1, "short", 10)
	require.Error(t, err)
}
