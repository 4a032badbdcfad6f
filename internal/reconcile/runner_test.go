package reconcile

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Otaku-Wars/clashcore/internal/domain"
)

type fakeWorldFetcher struct {
	calls atomic.Int64
	seq   atomic.Uint64
}

func (f *fakeWorldFetcher) World(ctx context.Context) (domain.WorldSnapshot, error) {
	f.calls.Add(1)
	return domain.WorldSnapshot{
		Seq: f.seq.Add(1),
		Characters: []domain.Character{
			{ID: 1, Supply: 1000, Value: 500},
		},
		AsOf: time.Now(),
	}, nil
}

type fakeBattleFetcher struct {
	calls atomic.Int64
	seq   atomic.Uint64
}

func (f *fakeBattleFetcher) Battle(ctx context.Context) (domain.BattleState, error) {
	f.calls.Add(1)
	return domain.BattleState{
		Status: domain.BattleStatusPending,
		P1:     1,
		P2:     2,
		Seq:    f.seq.Add(1),
		AsOf:   time.Now(),
	}, nil
}

type fakeBalanceReader struct {
	calls   atomic.Int64
	balance uint64
}

func (f *fakeBalanceReader) SharesBalance(ctx context.Context, character uint64, address string) (uint64, error) {
	f.calls.Add(1)
	return f.balance, nil
}

func runnerLogger(t *testing.T) *slog.Logger {
	return slog.New(slog.NewTextHandler(runnerLogWriter{t}, nil))
}

type runnerLogWriter struct{ t *testing.T }

func (w runnerLogWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func TestRunnerPokeTriggersEarlyWorldPoll(t *testing.T) {
	rec := New(time.Now, 16)
	world := &fakeWorldFetcher{}

	r := NewRunner(rec, world, nil, nil, RunnerConfig{
		WorldInterval: time.Hour, // only pokes can trigger re-polls
	}, runnerLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Run(ctx) }()

	// The loop polls once immediately on start.
	require.Eventually(t, func() bool { return world.calls.Load() >= 1 },
		2*time.Second, 10*time.Millisecond)

	r.Poke(1)
	require.Eventually(t, func() bool { return world.calls.Load() >= 2 },
		2*time.Second, 10*time.Millisecond)

	st, ok := rec.CharacterState(1)
	require.True(t, ok)
	assert.Equal(t, uint64(1000), st.Supply)
}

func TestRunnerPokeBattleTriggersEarlyBattlePoll(t *testing.T) {
	rec := New(time.Now, 16)
	world := &fakeWorldFetcher{}
	battle := &fakeBattleFetcher{}

	r := NewRunner(rec, world, battle, nil, RunnerConfig{
		WorldInterval:  time.Hour,
		BattleInterval: time.Hour,
	}, runnerLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Run(ctx) }()

	require.Eventually(t, func() bool { return battle.calls.Load() >= 1 },
		2*time.Second, 10*time.Millisecond)

	r.PokeBattle()
	require.Eventually(t, func() bool { return battle.calls.Load() >= 2 },
		2*time.Second, 10*time.Millisecond)

	bs := rec.BattleState()
	assert.Equal(t, domain.BattleStatusPending, bs.Status)
	assert.True(t, bs.Assigned())
}

func TestRunnerWatchedBalanceIsPolled(t *testing.T) {
	rec := New(time.Now, 16)
	world := &fakeWorldFetcher{}
	chain := &fakeBalanceReader{balance: 42}

	r := NewRunner(rec, world, nil, chain, RunnerConfig{
		WorldInterval:   time.Hour,
		BalanceInterval: 20 * time.Millisecond,
		WatchTTL:        time.Minute,
	}, runnerLogger(t))

	r.WatchBalance("0xabc", 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Run(ctx) }()

	require.Eventually(t, func() bool {
		bal, _, ok := rec.Balance("0xabc", 1)
		return ok && bal == 42
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRunnerExpiredWatchIsDropped(t *testing.T) {
	rec := New(time.Now, 16)
	world := &fakeWorldFetcher{}
	chain := &fakeBalanceReader{balance: 7}

	r := NewRunner(rec, world, nil, chain, RunnerConfig{
		WorldInterval:   time.Hour,
		BalanceInterval: 20 * time.Millisecond,
		WatchTTL:        time.Nanosecond,
	}, runnerLogger(t))

	r.WatchBalance("0xabc", 1)
	time.Sleep(5 * time.Millisecond) // let the watch expire

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Run(ctx) }()

	// The expired watch is purged on the first sweep, so the chain is never
	// consulted for it.
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, chain.calls.Load())

	_, _, ok := rec.Balance("0xabc", 1)
	assert.False(t, ok)
}
