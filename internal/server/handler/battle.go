package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Otaku-Wars/clashcore/internal/domain"
	"github.com/Otaku-Wars/clashcore/internal/pricing"
	"github.com/Otaku-Wars/clashcore/internal/reconcile"
)

// BattleHandler serves the polled arena state and win/lose price projections.
type BattleHandler struct {
	rec       *reconcile.Reconciler
	projector *pricing.Projector
	logger    *slog.Logger
}

// NewBattleHandler creates a BattleHandler.
func NewBattleHandler(rec *reconcile.Reconciler, projector *pricing.Projector, logger *slog.Logger) *BattleHandler {
	return &BattleHandler{
		rec:       rec,
		projector: projector,
		logger:    logHandler(logger, "battle"),
	}
}

// Get returns the current arena state.
// GET /api/battle
func (h *BattleHandler) Get(w http.ResponseWriter, r *http.Request) {
	bs := h.rec.BattleState()

	resp := map[string]any{
		"status":   bs.Status,
		"p1":       bs.P1,
		"p2":       bs.P2,
		"assigned": bs.Assigned(),
		"seq":      bs.Seq,
	}
	if !bs.WillStartAt.IsZero() {
		resp["will_start_at"] = bs.WillStartAt.UTC().Format(time.RFC3339)
	}
	if bs.CurrentMatch != 0 {
		resp["current_match"] = bs.CurrentMatch
	}
	if lr := bs.LastResult; lr != nil {
		resp["last_result"] = map[string]any{
			"match_id":    lr.MatchID,
			"winner":      lr.Winner,
			"loser":       lr.Loser,
			"transferred": lr.Transferred,
			"ended_at":    lr.EndedAt.UTC().Format(time.RFC3339),
		}
	}
	if !bs.AsOf.IsZero() {
		resp["as_of"] = bs.AsOf.UTC().Format(time.RFC3339Nano)
	}

	writeJSON(w, http.StatusOK, resp)
}

// Projection returns the projected next-share prices for both fighters of the
// pending match under the win and lose scenarios. Before both fighters are
// assigned, the projection is all zeros.
// GET /api/battle/projection
func (h *BattleHandler) Projection(w http.ResponseWriter, r *http.Request) {
	bs := h.rec.BattleState()

	var a, b *domain.CharacterState
	if bs.P1 != 0 {
		if st, ok := h.rec.CharacterState(bs.P1); ok {
			a = &st
		}
	}
	if bs.P2 != 0 {
		if st, ok := h.rec.CharacterState(bs.P2); ok {
			b = &st
		}
	}

	proj := h.projector.ProjectOutcomes(a, b)

	writeJSON(w, http.StatusOK, map[string]any{
		"p1": bs.P1,
		"p2": bs.P2,
		"projection": map[string]any{
			"p1_win_price":  proj.AWinPrice,
			"p1_lose_price": proj.ALosePrice,
			"p2_win_price":  proj.BWinPrice,
			"p2_lose_price": proj.BLosePrice,
		},
		"transfer_rate": h.projector.TransferRate(),
	})
}
