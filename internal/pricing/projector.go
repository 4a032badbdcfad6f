package pricing

import (
	"github.com/Otaku-Wars/clashcore/internal/domain"
)

// Projector derives "if win" / "if lose" next-share prices for the two
// characters of a pending match. The winner of a match receives transferRate
// of the loser's market cap; the loser keeps (1 - transferRate) of its own.
type Projector struct {
	quoter       *Quoter
	transferRate float64
}

// NewProjector creates a Projector. transferRate is the fraction of market
// cap that changes hands per match (0.10 for 10%).
func NewProjector(q *Quoter, transferRate float64) *Projector {
	return &Projector{quoter: q, transferRate: transferRate}
}

// TransferRate returns the configured per-match transfer fraction.
func (p *Projector) TransferRate() float64 { return p.transferRate }

// ProjectOutcomes computes the four scenario prices for a matched pair. Until
// the match resolves to two real characters either argument may be nil; the
// projection is then all zeroes so the caller can render before assignment. A
// drained character (value 0) also projects to zero through the degenerate
// scaling factor rather than erroring.
func (p *Projector) ProjectOutcomes(a, b *domain.CharacterState) domain.OutcomeProjection {
	if a == nil || b == nil {
		return domain.OutcomeProjection{}
	}
	r := p.transferRate
	return domain.OutcomeProjection{
		AWinPrice:  p.scenarioPrice(a, a.Value+r*b.Value),
		ALosePrice: p.scenarioPrice(a, a.Value*(1-r)),
		BWinPrice:  p.scenarioPrice(b, b.Value+r*a.Value),
		BLosePrice: p.scenarioPrice(b, b.Value*(1-r)),
	}
}

// scenarioPrice prices the character's next single share at a hypothetical
// value. A character with no shares outstanding has no next-share sell price;
// that projects as zero, matching the unassigned-match policy.
func (p *Projector) scenarioPrice(st *domain.CharacterState, value float64) float64 {
	if st.Supply == 0 {
		return 0
	}
	price, err := p.quoter.ImpliedPriceAtValue(st.Supply, value, 1)
	if err != nil {
		return 0
	}
	return price
}
