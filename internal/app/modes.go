package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Otaku-Wars/clashcore/internal/domain"
	"github.com/Otaku-Wars/clashcore/internal/feed"
	"github.com/Otaku-Wars/clashcore/internal/reconcile"
	"github.com/Otaku-Wars/clashcore/internal/server"
	"github.com/Otaku-Wars/clashcore/internal/server/handler"
	"github.com/Otaku-Wars/clashcore/internal/server/ws"
	"github.com/Otaku-Wars/clashcore/internal/service"
)

// rateMirrorInterval is how often the fetched USD rate is mirrored into the
// shared cache for sibling processes.
const rateMirrorInterval = 30 * time.Second

// ServeMode runs the reconciler, the pollers, the push feed, the rates
// provider, and the HTTP/WS API server.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "entering serve mode")
	g, ctx := errgroup.WithContext(ctx)

	a.startCore(ctx, g, deps)
	a.startStateFanout(ctx, g, deps)
	a.startServer(ctx, g, deps)

	return g.Wait()
}

// MonitorMode runs the reconciler and feeds only, logging state changes. No
// server, no chain writes, no shared infrastructure.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "entering monitor mode")
	g, ctx := errgroup.WithContext(ctx)

	a.startCore(ctx, g, deps)

	g.Go(func() error {
		updates, cancel := deps.Reconciler.Subscribe(256)
		defer cancel()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case u, ok := <-updates:
				if !ok {
					return nil
				}
				a.logUpdate(ctx, deps, u.Kind, u.Character)
			}
		}
	})

	return g.Wait()
}

// ArchiveMode runs the feed and the durable activity archive.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "entering archive mode")
	g, ctx := errgroup.WithContext(ctx)

	a.startCore(ctx, g, deps)
	a.startArchiver(ctx, g, deps)

	return g.Wait()
}

// FullMode runs everything: serve plus the activity archive.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "entering full mode")
	g, ctx := errgroup.WithContext(ctx)

	a.startCore(ctx, g, deps)
	a.startStateFanout(ctx, g, deps)
	a.startServer(ctx, g, deps)
	a.startArchiver(ctx, g, deps)

	return g.Wait()
}

// startCore launches the goroutines every mode needs: the poll runner, the
// push feed, and the exchange-rate provider.
func (a *App) startCore(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	g.Go(func() error {
		return deps.Runner.Run(ctx)
	})

	f := feed.NewFeed(deps.FeedClient, deps.Reconciler, deps.Runner, deps.SignalBus, a.logger)
	g.Go(func() error {
		err := f.Run(ctx)
		if errors.Is(err, domain.ErrFeedRejected) {
			// The source is marked failed; polling still covers the state, so
			// losing the push channel does not take the process down.
			return nil
		}
		return err
	})

	if deps.Rates != nil {
		g.Go(func() error {
			return deps.Rates.Run(ctx)
		})

		if deps.RateCache != nil {
			g.Go(func() error {
				return a.mirrorRates(ctx, deps)
			})
		}
	}
}

// startStateFanout mirrors reconciled state into the shared cache and
// publishes change notifications on the signal bus.
func (a *App) startStateFanout(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.StateCache == nil && deps.SignalBus == nil {
		return
	}
	svc := service.NewStateService(deps.Reconciler, deps.StateCache, deps.SignalBus, a.logger)
	g.Go(func() error {
		return svc.Run(ctx)
	})
}

// startServer launches the HTTP/WS API when enabled in configuration.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "HTTP server disabled by configuration")
		return
	}

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:      a.cfg.Mode,
			StartedAt: time.Now().UTC(),
		})
		g.Go(func() error {
			err := hub.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	handlers := server.Handlers{
		Health:     handler.NewHealthHandler(deps.Reconciler, time.Now().UTC(), a.logger),
		Characters: handler.NewCharacterHandler(deps.Reconciler, deps.Portfolio, deps.Rates, a.logger),
		Battle:     handler.NewBattleHandler(deps.Reconciler, deps.Projector, a.logger),
		Users:      handler.NewUserHandler(deps.Portfolio, deps.Rates, a.logger),
		Activity:   handler.NewActivityHandler(deps.Reconciler, deps.ActivityStore, a.logger),
		Trades:     handler.NewTradeHandler(deps.Portfolio, deps.Writer, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startArchiver launches the write-behind activity archive flusher.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.SignalBus == nil || deps.ActivityStore == nil {
		a.logger.WarnContext(ctx, "archiver not started: missing bus or store")
		return
	}
	arch := feed.NewArchiver(deps.SignalBus, deps.ActivityStore, deps.LockManager, a.logger)
	g.Go(func() error {
		return arch.Run(ctx)
	})
}

// mirrorRates periodically copies the in-process USD rate into the shared
// cache so sibling processes can convert without their own provider.
func (a *App) mirrorRates(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(rateMirrorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			rate, asOf, ok := deps.Rates.Rate()
			if !ok {
				continue
			}
			if err := deps.RateCache.SetRate(ctx, rate, asOf); err != nil {
				a.logger.WarnContext(ctx, "rate cache write failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// logUpdate emits one structured line per reconciled change in monitor mode.
func (a *App) logUpdate(ctx context.Context, deps *Dependencies, kind reconcile.UpdateKind, characterID uint64) {
	switch kind {
	case reconcile.UpdateCharacter:
		if st, ok := deps.Reconciler.CharacterState(characterID); ok {
			a.logger.InfoContext(ctx, "character updated",
				slog.Uint64("character_id", st.ID),
				slog.Uint64("supply", st.Supply),
				slog.Float64("value", st.Value),
				slog.Float64("price", st.Price),
				slog.Uint64("seq", st.Seq),
			)
		}
	case reconcile.UpdateBattle:
		bs := deps.Reconciler.BattleState()
		a.logger.InfoContext(ctx, "battle updated",
			slog.String("status", string(bs.Status)),
			slog.Uint64("p1", bs.P1),
			slog.Uint64("p2", bs.P2),
			slog.Uint64("seq", bs.Seq),
		)
	case reconcile.UpdateActivity:
		a.logger.InfoContext(ctx, "activity recorded",
			slog.Uint64("character_id", characterID),
		)
	case reconcile.UpdateBalance:
		a.logger.InfoContext(ctx, "balance updated",
			slog.Uint64("character_id", characterID),
		)
	}
}
