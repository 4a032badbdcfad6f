package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Otaku-Wars/clashcore/internal/domain"
	"github.com/Otaku-Wars/clashcore/internal/rates"
	"github.com/Otaku-Wars/clashcore/internal/service"
)

// UserHandler serves user portfolios with live holding valuations.
type UserHandler struct {
	portfolio *service.PortfolioService
	rates     *rates.Provider
	logger    *slog.Logger
}

// NewUserHandler creates a UserHandler. rates may be nil.
func NewUserHandler(portfolio *service.PortfolioService, rates *rates.Provider, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		portfolio: portfolio,
		rates:     rates,
		logger:    logHandler(logger, "user"),
	}
}

// Get returns a user's profile and holdings valued at current sell prices.
// GET /api/users/{address}
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	if address == "" {
		writeError(w, http.StatusBadRequest, "missing address")
		return
	}

	user, err := h.portfolio.User(r.Context(), address)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		h.logger.Error("user lookup failed",
			slog.String("address", address),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "upstream user lookup failed")
		return
	}

	var rate float64
	if h.rates != nil {
		rate, _, _ = h.rates.Rate()
	}

	var total float64
	holdings := make([]map[string]any, 0, len(user.Holdings))
	for _, hd := range user.Holdings {
		total += hd.Value
		item := map[string]any{
			"character_id": hd.Character,
			"balance":      hd.Balance,
			"value":        hd.Value,
			"as_of":        hd.AsOf.UTC().Format(time.RFC3339Nano),
		}
		if rate > 0 {
			item["value_usd"] = hd.Value * rate
		}
		holdings = append(holdings, item)
	}

	resp := map[string]any{
		"address":     user.Address,
		"name":        user.Name,
		"holdings":    holdings,
		"total_value": total,
	}
	if rate > 0 {
		resp["total_value_usd"] = total * rate
	}

	writeJSON(w, http.StatusOK, resp)
}
