package pricing

import (
	"fmt"

	"github.com/Otaku-Wars/clashcore/internal/curve"
	"github.com/Otaku-Wars/clashcore/internal/domain"
)

// StateSource supplies the current reconciled state for a character. The
// reconciler implements it; tests use a map-backed fake.
type StateSource interface {
	CharacterState(id uint64) (domain.CharacterState, bool)
}

// Quoter computes buy, sell, and hypothetical share prices from live state.
// It holds no mutable state beyond the scaling-factor memo; every quote is
// derived fresh from the state source, so a quote is only as current as the
// last applied snapshot.
type Quoter struct {
	params  curve.Params
	feeRate float64
	source  StateSource
	scaling *scalingCache
}

// NewQuoter creates a Quoter. feeRate is the fractional trade fee (0.02 for
// 2%), applied on top of buy costs and subtracted from sell proceeds.
func NewQuoter(params curve.Params, feeRate float64, source StateSource) *Quoter {
	return &Quoter{
		params:  params,
		feeRate: feeRate,
		source:  source,
		scaling: newScalingCache(params),
	}
}

// FeeRate returns the configured fractional trade fee.
func (q *Quoter) FeeRate() float64 { return q.feeRate }

// Params returns the curve constants the quoter prices against.
func (q *Quoter) Params() curve.Params { return q.params }

// Invalidate drops the cached scaling factor for a character. The reconciler
// calls it whenever a trade or match result touches the character.
func (q *Quoter) Invalidate(id uint64) { q.scaling.invalidate(id) }

// BuyPrice returns the pre-fee cost of buying amount shares at the
// character's current supply and value. amount 0 is exactly 0.
func (q *Quoter) BuyPrice(id, amount uint64) (float64, error) {
	st, ok := q.source.CharacterState(id)
	if !ok {
		return 0, fmt.Errorf("pricing: buy quote for character %d: %w", id, domain.ErrNotFound)
	}
	if amount == 0 {
		return 0, nil
	}
	factor, err := q.scaling.factor(id, st.Supply, st.Value)
	if err != nil {
		return 0, fmt.Errorf("pricing: buy quote for character %d: %w", id, err)
	}
	raw, err := curve.Evaluate(st.Supply, amount, q.params)
	if err != nil {
		return 0, fmt.Errorf("pricing: buy quote for character %d: %w", id, err)
	}
	return raw * factor, nil
}

// BuyPriceAfterFee returns the buy cost with the trade fee added.
func (q *Quoter) BuyPriceAfterFee(id, amount uint64) (float64, error) {
	pre, err := q.BuyPrice(id, amount)
	if err != nil {
		return 0, err
	}
	return pre * (1 + q.feeRate), nil
}

// SellPrice returns the pre-fee proceeds of selling amount shares. Requesting
// more shares than the current supply is rejected with ErrInsufficientSupply
// rather than clamped; a silently wrong number here misprices a real
// decision.
func (q *Quoter) SellPrice(id, amount uint64) (float64, error) {
	st, ok := q.source.CharacterState(id)
	if !ok {
		return 0, fmt.Errorf("pricing: sell quote for character %d: %w", id, domain.ErrNotFound)
	}
	if amount == 0 {
		return 0, nil
	}
	if amount > st.Supply {
		return 0, fmt.Errorf("pricing: sell %d of %d shares for character %d: %w",
			amount, st.Supply, id, domain.ErrInsufficientSupply)
	}
	factor, err := q.scaling.factor(id, st.Supply, st.Value)
	if err != nil {
		return 0, fmt.Errorf("pricing: sell quote for character %d: %w", id, err)
	}
	raw, err := curve.Evaluate(st.Supply-amount, amount, q.params)
	if err != nil {
		return 0, fmt.Errorf("pricing: sell quote for character %d: %w", id, err)
	}
	return raw * factor, nil
}

// SellPriceAfterFee returns the sell proceeds with the trade fee subtracted.
func (q *Quoter) SellPriceAfterFee(id, amount uint64) (float64, error) {
	pre, err := q.SellPrice(id, amount)
	if err != nil {
		return 0, err
	}
	return pre * (1 - q.feeRate), nil
}

// ImpliedPriceAtValue prices a sell of amount shares against an explicit
// hypothetical (supply, value) pair instead of live state. The battle
// projector uses it for win/lose scenarios, and the portfolio service for
// valuing holdings at a point other than now. The scaling memo is bypassed:
// hypothetical states must not pollute the live cache.
func (q *Quoter) ImpliedPriceAtValue(supply uint64, value float64, amount uint64) (float64, error) {
	if amount == 0 {
		return 0, nil
	}
	if amount > supply {
		return 0, fmt.Errorf("pricing: implied price for %d of %d shares: %w",
			amount, supply, domain.ErrInsufficientSupply)
	}
	canonical, err := curve.CumulativeValue(supply, q.params)
	if err != nil {
		return 0, fmt.Errorf("pricing: implied price: %w", err)
	}
	raw, err := curve.Evaluate(supply-amount, amount, q.params)
	if err != nil {
		return 0, fmt.Errorf("pricing: implied price: %w", err)
	}
	return raw * ResolveScalingFactor(value, canonical), nil
}
