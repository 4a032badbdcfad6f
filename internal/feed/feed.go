// Package feed bridges the arena push channel into the reconciler and the
// signal bus. Pushed frames are advisory: they populate the activity feed
// and trigger early re-polls, never direct state mutation.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Otaku-Wars/clashcore/internal/domain"
	"github.com/Otaku-Wars/clashcore/internal/platform/arena"
	"github.com/Otaku-Wars/clashcore/internal/reconcile"
)

// Pub/sub channel and stream fed with raw activity frames.
const (
	ChannelActivity = "activity"
	StreamActivity  = "activity"
)

// Poker triggers early re-polls of the authoritative sources.
type Poker interface {
	Poke(characterID uint64)
	PokeBattle()
}

// Feed consumes the push channel, records fresh events with the reconciler,
// pokes the relevant poll loop, and republishes raw frames on the signal bus
// for the WS hub and the archiver.
type Feed struct {
	client *arena.FeedClient
	rec    *reconcile.Reconciler
	poker  Poker
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewFeed creates a Feed. poker and bus may be nil; whatever is present gets
// fed.
func NewFeed(client *arena.FeedClient, rec *reconcile.Reconciler, poker Poker, bus domain.SignalBus, logger *slog.Logger) *Feed {
	return &Feed{
		client: client,
		rec:    rec,
		poker:  poker,
		bus:    bus,
		logger: logger.With(slog.String("component", "feed")),
	}
}

// Run connects the push channel and blocks until ctx is cancelled or the
// server rejects the session for good.
func (f *Feed) Run(ctx context.Context) error {
	fatalCh := make(chan error, 1)
	f.client.OnFatal(func(err error) {
		select {
		case fatalCh <- err:
		default:
		}
	})
	f.client.OnEvent(f.handleEvent)

	if err := f.client.Connect(ctx); err != nil {
		return fmt.Errorf("feed: %w", err)
	}
	f.logger.Info("push channel connected")
	defer f.client.Close()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-fatalCh:
		f.rec.SetSourceError(reconcile.SourceFeed, err)
		f.logger.Error("push channel rejected", slog.String("error", err.Error()))
		return err
	}
}

// handleEvent runs on the WS read goroutine for every decoded frame.
func (f *Feed) handleEvent(ev domain.ActivityEvent, raw []byte) {
	f.rec.SetSourceOK(reconcile.SourceFeed)

	// Duplicate deliveries stop here.
	if !f.rec.RecordEvent(ev) {
		return
	}

	if f.poker != nil {
		switch ev.Kind() {
		case domain.ActivityMatchPending, domain.ActivityMatchStart, domain.ActivityMatchEnd:
			f.poker.PokeBattle()
			if end, ok := ev.(domain.MatchEndEvent); ok {
				// A finished match moves value between both fighters.
				f.poker.Poke(end.Winner)
				f.poker.Poke(end.Loser)
			}
		default:
			f.poker.Poke(ev.Subject())
		}
	}

	if f.bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := f.bus.Publish(ctx, ChannelActivity, raw); err != nil {
			f.logger.Warn("publish activity frame failed", slog.String("error", err.Error()))
		}
		if err := f.bus.StreamAppend(ctx, StreamActivity, raw); err != nil {
			f.logger.Warn("append activity frame failed", slog.String("error", err.Error()))
		}
	}
}
