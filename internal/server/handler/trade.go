package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Otaku-Wars/clashcore/internal/chain"
	"github.com/Otaku-Wars/clashcore/internal/domain"
	"github.com/Otaku-Wars/clashcore/internal/service"
)

// TradeHandler submits share trades and stakes to the contract through the
// chain writer. Submission is fire-and-forget: the response carries an intent
// ID, and displayed state changes only when the authoritative sources report
// the new balances.
type TradeHandler struct {
	portfolio *service.PortfolioService
	writer    *chain.Writer
	logger    *slog.Logger
}

// NewTradeHandler creates a TradeHandler. writer may be nil when no wallet is
// configured, in which case all submissions are rejected.
func NewTradeHandler(portfolio *service.PortfolioService, writer *chain.Writer, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		portfolio: portfolio,
		writer:    writer,
		logger:    logHandler(logger, "trade"),
	}
}

type tradeRequest struct {
	CharacterID uint64  `json:"character_id"`
	Side        string  `json:"side"`
	Amount      uint64  `json:"amount"`
	MaxCost     float64 `json:"max_cost"` // buy only; 0 means quote-derived
}

type stakeRequest struct {
	CharacterID uint64 `json:"character_id"`
	Attribute   string `json:"attribute"`
	Amount      uint64 `json:"amount"`
	Unstake     bool   `json:"unstake"`
}

// Trade submits a buy or sell of character shares.
// POST /api/trade
func (h *TradeHandler) Trade(w http.ResponseWriter, r *http.Request) {
	if h.writer == nil {
		writeError(w, http.StatusServiceUnavailable, "trading disabled: no wallet configured")
		return
	}

	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Amount == 0 {
		writeError(w, http.StatusBadRequest, "amount must be a positive integer")
		return
	}

	side := domain.QuoteSide(req.Side)
	quote, err := h.portfolio.Quote(r.Context(), req.CharacterID, side, req.Amount)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "character not found")
		return
	case errors.Is(err, domain.ErrInsufficientSupply):
		writeError(w, http.StatusUnprocessableEntity, "sell amount exceeds supply")
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var intentID string
	switch side {
	case domain.QuoteBuy:
		maxCost := req.MaxCost
		if maxCost <= 0 {
			maxCost = quote.AfterFee
		}
		intentID, err = h.writer.BuyShares(r.Context(), req.CharacterID, req.Amount, maxCost)
	case domain.QuoteSell:
		intentID, err = h.writer.SellShares(r.Context(), req.CharacterID, req.Amount)
	}
	if err != nil {
		h.logger.Error("trade submission failed",
			slog.Uint64("character_id", req.CharacterID),
			slog.String("side", string(side)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "trade submission failed")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"intent_id":    intentID,
		"character_id": req.CharacterID,
		"side":         side,
		"amount":       req.Amount,
		"quoted":       quote.AfterFee,
	})
}

// Stake locks or releases shares behind a character's battle attribute.
// POST /api/stake
func (h *TradeHandler) Stake(w http.ResponseWriter, r *http.Request) {
	if h.writer == nil {
		writeError(w, http.StatusServiceUnavailable, "trading disabled: no wallet configured")
		return
	}

	var req stakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Amount == 0 {
		writeError(w, http.StatusBadRequest, "amount must be a positive integer")
		return
	}

	var (
		intentID string
		err      error
	)
	if req.Unstake {
		intentID, err = h.writer.Unstake(r.Context(), req.CharacterID, req.Attribute, req.Amount)
	} else {
		intentID, err = h.writer.Stake(r.Context(), req.CharacterID, req.Attribute, req.Amount)
	}
	if err != nil {
		h.logger.Error("stake submission failed",
			slog.Uint64("character_id", req.CharacterID),
			slog.String("attribute", req.Attribute),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"intent_id":    intentID,
		"character_id": req.CharacterID,
		"attribute":    req.Attribute,
		"amount":       req.Amount,
		"unstake":      req.Unstake,
	})
}
