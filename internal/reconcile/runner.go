package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Otaku-Wars/clashcore/internal/domain"
)

// WorldFetcher polls the authoritative world snapshot.
type WorldFetcher interface {
	World(ctx context.Context) (domain.WorldSnapshot, error)
}

// BattleFetcher polls the arena battle state.
type BattleFetcher interface {
	Battle(ctx context.Context) (domain.BattleState, error)
}

// BalanceReader reads a holder's share balance from the chain.
type BalanceReader interface {
	SharesBalance(ctx context.Context, character uint64, address string) (uint64, error)
}

// RunnerConfig holds the poll cadence. Zero fields take the defaults observed
// in production: world 1s, battle 5s, balances 2s while watched.
type RunnerConfig struct {
	WorldInterval   time.Duration
	BattleInterval  time.Duration
	BalanceInterval time.Duration
	WatchTTL        time.Duration
}

func (c *RunnerConfig) defaults() {
	if c.WorldInterval <= 0 {
		c.WorldInterval = time.Second
	}
	if c.BattleInterval <= 0 {
		c.BattleInterval = 5 * time.Second
	}
	if c.BalanceInterval <= 0 {
		c.BalanceInterval = 2 * time.Second
	}
	if c.WatchTTL <= 0 {
		c.WatchTTL = 30 * time.Second
	}
}

// Runner drives the reconciler's poll loops. Each loop ticks on its interval
// independently of request completion: a slow response never delays the next
// request, and a late result is still sequence-validated when it lands.
type Runner struct {
	rec    *Reconciler
	world  WorldFetcher
	battle BattleFetcher
	chain  BalanceReader
	cfg    RunnerConfig
	logger *slog.Logger

	pokeCh       chan uint64
	battlePokeCh chan struct{}

	watchMu sync.Mutex
	watches map[balanceKey]time.Time // expiry per watched (address, character)
}

// NewRunner creates a Runner. battle and chain may be nil; the corresponding
// loops are skipped.
func NewRunner(rec *Reconciler, world WorldFetcher, battle BattleFetcher, chain BalanceReader, cfg RunnerConfig, logger *slog.Logger) *Runner {
	cfg.defaults()
	return &Runner{
		rec:          rec,
		world:        world,
		battle:       battle,
		chain:        chain,
		cfg:          cfg,
		logger:       logger.With(slog.String("component", "reconcile_runner")),
		pokeCh:       make(chan uint64, 64),
		battlePokeCh: make(chan struct{}, 1),
		watches:      make(map[balanceKey]time.Time),
	}
}

// Poke requests an early world re-poll because a pushed event touched the
// given character. The reconciler's OnCharacterTouched hook calls it.
func (r *Runner) Poke(characterID uint64) {
	select {
	case r.pokeCh <- characterID:
	default:
		// A re-poll is already queued; one poll refreshes every character.
	}
}

// PokeBattle requests an early battle re-poll because a pushed match event
// arrived.
func (r *Runner) PokeBattle() {
	select {
	case r.battlePokeCh <- struct{}{}:
	default:
	}
}

// WatchBalance marks (address, character) for periodic on-chain balance
// refresh. The watch expires after the configured TTL unless renewed, so
// balances are only polled while some consumer still cares.
func (r *Runner) WatchBalance(address string, character uint64) {
	r.watchMu.Lock()
	r.watches[balanceKey{address: address, character: character}] = time.Now().Add(r.cfg.WatchTTL)
	r.watchMu.Unlock()
}

// Run starts all poll loops and blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return r.worldLoop(ctx) })
	if r.battle != nil {
		g.Go(func() error { return r.battleLoop(ctx) })
	}
	if r.chain != nil {
		g.Go(func() error { return r.balanceLoop(ctx) })
	}
	return g.Wait()
}

func (r *Runner) worldLoop(ctx context.Context) error {
	r.pollWorld(ctx)

	ticker := time.NewTicker(r.cfg.WorldInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			go r.pollWorld(ctx)
		case id := <-r.pokeCh:
			r.logger.DebugContext(ctx, "early re-poll", slog.Uint64("character", id))
			go r.pollWorld(ctx)
		}
	}
}

func (r *Runner) pollWorld(ctx context.Context) {
	reqCtx, cancel := context.WithTimeout(ctx, 2*r.cfg.WorldInterval+time.Second)
	defer cancel()

	snap, err := r.world.World(reqCtx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.rec.SetSourceError(SourceWorld, err)
		r.logger.WarnContext(ctx, "world poll failed", slog.String("error", err.Error()))
		return
	}
	if err := r.rec.ApplyWorld(snap); err != nil {
		if errors.Is(err, domain.ErrStaleSnapshot) {
			r.logger.DebugContext(ctx, "world snapshot discarded",
				slog.Uint64("seq", snap.Seq),
				slog.Uint64("stale_drops", r.rec.StaleDrops()),
			)
		}
		return
	}
}

func (r *Runner) battleLoop(ctx context.Context) error {
	r.pollBattle(ctx)

	ticker := time.NewTicker(r.cfg.BattleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			go r.pollBattle(ctx)
		case <-r.battlePokeCh:
			go r.pollBattle(ctx)
		}
	}
}

func (r *Runner) pollBattle(ctx context.Context) {
	reqCtx, cancel := context.WithTimeout(ctx, 2*r.cfg.BattleInterval)
	defer cancel()

	bs, err := r.battle.Battle(reqCtx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.rec.SetSourceError(SourceBattle, err)
		r.logger.WarnContext(ctx, "battle poll failed", slog.String("error", err.Error()))
		return
	}
	_ = r.rec.ApplyBattle(bs)
}

func (r *Runner) balanceLoop(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.BalanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.refreshBalances(ctx)
		}
	}
}

func (r *Runner) refreshBalances(ctx context.Context) {
	now := time.Now()
	r.watchMu.Lock()
	keys := make([]balanceKey, 0, len(r.watches))
	for k, expiry := range r.watches {
		if now.After(expiry) {
			delete(r.watches, k)
			continue
		}
		keys = append(keys, k)
	}
	r.watchMu.Unlock()

	for _, k := range keys {
		reqCtx, cancel := context.WithTimeout(ctx, r.cfg.BalanceInterval)
		bal, err := r.chain.SharesBalance(reqCtx, k.character, k.address)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.rec.SetSourceError(SourceChain, err)
			r.logger.WarnContext(ctx, "balance read failed",
				slog.String("address", k.address),
				slog.Uint64("character", k.character),
				slog.String("error", err.Error()),
			)
			continue
		}
		r.rec.SetSourceOK(SourceChain)
		r.rec.SetBalance(k.address, k.character, bal)
	}
}
