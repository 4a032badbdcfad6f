package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Otaku-Wars/clashcore/internal/domain"
	"github.com/Otaku-Wars/clashcore/internal/reconcile"
)

// Pub/sub channels used for state fanout.
const (
	ChannelState  = "state"
	ChannelBattle = "battle"
)

// StateService mirrors reconciled state into the shared cache and publishes
// change notifications on the signal bus, so sibling processes can follow
// the world without polling the backend themselves.
type StateService struct {
	rec    *reconcile.Reconciler
	cache  domain.StateCache
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewStateService creates a StateService. cache and bus may individually be
// nil when Redis is not configured; whatever is present gets fed.
func NewStateService(
	rec *reconcile.Reconciler,
	cache domain.StateCache,
	bus domain.SignalBus,
	logger *slog.Logger,
) *StateService {
	return &StateService{
		rec:    rec,
		cache:  cache,
		bus:    bus,
		logger: logger.With(slog.String("component", "state_service")),
	}
}

// Run consumes reconciler updates until ctx is cancelled.
func (s *StateService) Run(ctx context.Context) error {
	updates, cancel := s.rec.Subscribe(256)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			s.handle(ctx, u)
		}
	}
}

func (s *StateService) handle(ctx context.Context, u reconcile.Update) {
	switch u.Kind {
	case reconcile.UpdateCharacter:
		st, ok := s.rec.CharacterState(u.Character)
		if !ok {
			return
		}
		if s.cache != nil {
			if err := s.cache.SetState(ctx, st); err != nil {
				s.logger.WarnContext(ctx, "state cache write failed",
					slog.Uint64("character_id", st.ID),
					slog.String("error", err.Error()),
				)
			}
		}
		if s.bus != nil {
			evt, _ := json.Marshal(map[string]any{
				"event":        "character_update",
				"character_id": st.ID,
				"supply":       st.Supply,
				"value":        st.Value,
				"price":        st.Price,
				"seq":          st.Seq,
				"timestamp":    st.AsOf.Format(time.RFC3339Nano),
			})
			if err := s.bus.Publish(ctx, ChannelState, evt); err != nil {
				s.logger.WarnContext(ctx, "publish character update failed",
					slog.Uint64("character_id", st.ID),
					slog.String("error", err.Error()),
				)
			}
		}

	case reconcile.UpdateBattle:
		if s.bus == nil {
			return
		}
		bs := s.rec.BattleState()
		evt, _ := json.Marshal(map[string]any{
			"event":     "battle_update",
			"status":    bs.Status,
			"p1":        bs.P1,
			"p2":        bs.P2,
			"seq":       bs.Seq,
			"timestamp": bs.AsOf.Format(time.RFC3339Nano),
		})
		if err := s.bus.Publish(ctx, ChannelBattle, evt); err != nil {
			s.logger.WarnContext(ctx, "publish battle update failed",
				slog.String("error", err.Error()),
			)
		}
	}
}
