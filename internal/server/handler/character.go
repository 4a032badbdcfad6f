package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/Otaku-Wars/clashcore/internal/domain"
	"github.com/Otaku-Wars/clashcore/internal/rates"
	"github.com/Otaku-Wars/clashcore/internal/reconcile"
	"github.com/Otaku-Wars/clashcore/internal/service"
)

// CharacterHandler serves reconciled character state and price quotes.
type CharacterHandler struct {
	rec       *reconcile.Reconciler
	portfolio *service.PortfolioService
	rates     *rates.Provider
	logger    *slog.Logger
}

// NewCharacterHandler creates a CharacterHandler. rates may be nil, in which
// case USD fields are omitted from responses.
func NewCharacterHandler(
	rec *reconcile.Reconciler,
	portfolio *service.PortfolioService,
	rates *rates.Provider,
	logger *slog.Logger,
) *CharacterHandler {
	return &CharacterHandler{
		rec:       rec,
		portfolio: portfolio,
		rates:     rates,
		logger:    logHandler(logger, "character"),
	}
}

// List returns every character's reconciled state, ordered by ID.
// GET /api/characters
func (h *CharacterHandler) List(w http.ResponseWriter, r *http.Request) {
	states := h.rec.CharacterStates()
	sort.Slice(states, func(i, j int) bool { return states[i].ID < states[j].ID })

	rate := h.usdRate()
	out := make([]map[string]any, 0, len(states))
	for _, st := range states {
		out = append(out, h.stateJSON(st, rate))
	}

	writeJSON(w, http.StatusOK, map[string]any{"characters": out})
}

// Get returns one character's reconciled state.
// GET /api/characters/{id}
func (h *CharacterHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := characterID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid character id")
		return
	}

	st, ok := h.rec.CharacterState(id)
	if !ok {
		writeError(w, http.StatusNotFound, "character not found")
		return
	}

	writeJSON(w, http.StatusOK, h.stateJSON(st, h.usdRate()))
}

// Quote prices a hypothetical buy or sell against current state.
// GET /api/characters/{id}/quote?side=buy|sell&amount=N
func (h *CharacterHandler) Quote(w http.ResponseWriter, r *http.Request) {
	id, err := characterID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid character id")
		return
	}

	q := r.URL.Query()
	side := domain.QuoteSide(q.Get("side"))
	amount, err := strconv.ParseUint(q.Get("amount"), 10, 64)
	if err != nil || amount == 0 {
		writeError(w, http.StatusBadRequest, "amount must be a positive integer")
		return
	}

	quote, err := h.portfolio.Quote(r.Context(), id, side, amount)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "character not found")
		return
	case errors.Is(err, domain.ErrInsufficientSupply):
		writeError(w, http.StatusUnprocessableEntity, "sell amount exceeds supply")
		return
	case err != nil:
		h.logger.Error("quote failed",
			slog.Uint64("character_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := map[string]any{
		"character_id": quote.Character,
		"side":         quote.Side,
		"amount":       quote.Amount,
		"pre_fee":      quote.PreFee,
		"after_fee":    quote.AfterFee,
		"as_of":        quote.AsOf.UTC().Format(time.RFC3339Nano),
	}
	if rate := h.usdRate(); rate > 0 {
		resp["after_fee_usd"] = quote.AfterFee * rate
	}
	writeJSON(w, http.StatusOK, resp)
}

// stateJSON renders a character state, attaching USD conversions when the
// exchange rate is known.
func (h *CharacterHandler) stateJSON(st domain.CharacterState, rate float64) map[string]any {
	out := map[string]any{
		"id":     st.ID,
		"supply": st.Supply,
		"value":  st.Value,
		"price":  st.Price,
		"seq":    st.Seq,
		"as_of":  st.AsOf.UTC().Format(time.RFC3339Nano),
	}
	if rate > 0 {
		out["price_usd"] = st.Price * rate
		out["value_usd"] = st.Value * rate
	}
	return out
}

func (h *CharacterHandler) usdRate() float64 {
	if h.rates == nil {
		return 0
	}
	rate, _, ok := h.rates.Rate()
	if !ok {
		return 0
	}
	return rate
}
