// Package pricing composes the curve evaluator into buy/sell/projected share
// quotes, correcting the canonical curve output with a per-character scaling
// factor that accounts for match-driven market-cap transfers.
package pricing

import (
	"sync"

	"github.com/Otaku-Wars/clashcore/internal/curve"
)

// ResolveScalingFactor reconciles a character's observed market value with the
// value the canonical curve predicts at the same supply.
//
// canonicalValue == 0 is the bootstrap case (supply zero); the factor is
// exactly 1 so the first trade prices straight off the curve. observedValue
// == 0 with a positive canonical value means the character has been fully
// drained by match losses: the factor is 0 and every quote stays 0 until
// value is replenished.
func ResolveScalingFactor(observedValue, canonicalValue float64) float64 {
	if canonicalValue == 0 {
		return 1
	}
	return observedValue / canonicalValue
}

// scalingEntry caches the factor for one character at one (supply, value)
// point.
type scalingEntry struct {
	supply   uint64
	observed float64
	factor   float64
}

// scalingCache memoizes scaling factors per character. An entry is valid only
// while the character's supply and value are unchanged; any trade or match
// result invalidates it implicitly through the comparison, and Invalidate
// drops it eagerly.
type scalingCache struct {
	mu      sync.Mutex
	params  curve.Params
	entries map[uint64]scalingEntry
}

func newScalingCache(params curve.Params) *scalingCache {
	return &scalingCache{
		params:  params,
		entries: make(map[uint64]scalingEntry),
	}
}

// factor returns the scaling factor for the character, recomputing the
// canonical curve value only when supply or observed value moved.
func (c *scalingCache) factor(id, supply uint64, observed float64) (float64, error) {
	c.mu.Lock()
	if e, ok := c.entries[id]; ok && e.supply == supply && e.observed == observed {
		c.mu.Unlock()
		return e.factor, nil
	}
	c.mu.Unlock()

	canonical, err := curve.CumulativeValue(supply, c.params)
	if err != nil {
		return 0, err
	}
	f := ResolveScalingFactor(observed, canonical)

	c.mu.Lock()
	c.entries[id] = scalingEntry{supply: supply, observed: observed, factor: f}
	c.mu.Unlock()
	return f, nil
}

func (c *scalingCache) invalidate(id uint64) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
}
