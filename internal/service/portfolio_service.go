// Package service hosts the coordination layer between the reconciled state,
// the pricing engine, and the external caches.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Otaku-Wars/clashcore/internal/domain"
	"github.com/Otaku-Wars/clashcore/internal/pricing"
	"github.com/Otaku-Wars/clashcore/internal/reconcile"
)

// UserFetcher reads a user record from the arena backend.
type UserFetcher interface {
	User(ctx context.Context, address string) (domain.User, error)
}

// BalanceWatcher registers addresses for periodic on-chain balance refresh.
type BalanceWatcher interface {
	WatchBalance(address string, character uint64)
}

// PortfolioService values a user's holdings. Share balances come from the
// REST record, upgraded to the on-chain reading when the reconciler has one;
// holding values are always derived through the quoter at read time.
type PortfolioService struct {
	arena   UserFetcher
	quoter  *pricing.Quoter
	rec     *reconcile.Reconciler
	watcher BalanceWatcher
	logger  *slog.Logger
}

// NewPortfolioService creates a PortfolioService. watcher may be nil when no
// chain reader is configured.
func NewPortfolioService(
	arena UserFetcher,
	quoter *pricing.Quoter,
	rec *reconcile.Reconciler,
	watcher BalanceWatcher,
	logger *slog.Logger,
) *PortfolioService {
	return &PortfolioService{
		arena:   arena,
		quoter:  quoter,
		rec:     rec,
		watcher: watcher,
		logger:  logger.With(slog.String("component", "portfolio")),
	}
}

// User returns the user's record with every holding valued at its current
// pre-fee sell price. Holdings the pricing engine cannot value (unknown
// character, balance above supply) are reported with a zero value rather
// than failing the whole portfolio.
func (s *PortfolioService) User(ctx context.Context, address string) (domain.User, error) {
	user, err := s.arena.User(ctx, address)
	if err != nil {
		return domain.User{}, fmt.Errorf("portfolio: fetch user %s: %w", address, err)
	}

	for i := range user.Holdings {
		h := &user.Holdings[i]

		// Prefer the on-chain balance when the reconciler has a fresh one,
		// and register the pair for continued refresh either way.
		if bal, asOf, ok := s.rec.Balance(address, h.Character); ok {
			h.Balance = bal
			h.AsOf = asOf
		}
		if s.watcher != nil {
			s.watcher.WatchBalance(address, h.Character)
		}

		h.Value = s.holdingValue(h.Character, h.Balance)
	}

	sort.Slice(user.Holdings, func(i, j int) bool {
		return user.Holdings[i].Value > user.Holdings[j].Value
	})

	return user, nil
}

// Quote prices a prospective buy or sell for one character, returning both
// the pre-fee and after-fee totals.
func (s *PortfolioService) Quote(ctx context.Context, characterID uint64, side domain.QuoteSide, amount uint64) (domain.Quote, error) {
	var pre, after float64
	var err error

	switch side {
	case domain.QuoteBuy:
		pre, err = s.quoter.BuyPrice(characterID, amount)
		if err == nil {
			after, err = s.quoter.BuyPriceAfterFee(characterID, amount)
		}
	case domain.QuoteSell:
		pre, err = s.quoter.SellPrice(characterID, amount)
		if err == nil {
			after, err = s.quoter.SellPriceAfterFee(characterID, amount)
		}
	default:
		return domain.Quote{}, fmt.Errorf("portfolio: unknown quote side %q", side)
	}
	if err != nil {
		return domain.Quote{}, fmt.Errorf("portfolio: quote %s %d of character %d: %w", side, amount, characterID, err)
	}

	q := domain.Quote{
		Character: characterID,
		Side:      side,
		Amount:    amount,
		PreFee:    pre,
		AfterFee:  after,
	}
	if st, ok := s.rec.CharacterState(characterID); ok {
		q.AsOf = st.AsOf
	}
	return q, nil
}

// holdingValue prices balance shares at the current pre-fee sell quote.
func (s *PortfolioService) holdingValue(characterID, balance uint64) float64 {
	if balance == 0 {
		return 0
	}
	value, err := s.quoter.SellPrice(characterID, balance)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, domain.ErrInsufficientSupply) {
			s.logger.Warn("holding valuation failed",
				slog.Uint64("character_id", characterID),
				slog.Uint64("balance", balance),
				slog.String("error", err.Error()))
		}
		return 0
	}
	return value
}
