package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Otaku-Wars/clashcore/internal/domain"
)

const testTransferRate = 0.10

func newTestProjector(src fakeSource) *Projector {
	return NewProjector(newTestQuoter(src), testTransferRate)
}

func TestProjector_UnassignedMatchIsNoOp(t *testing.T) {
	p := newTestProjector(fakeSource{})
	b := &domain.CharacterState{ID: 2, Supply: 100, Value: 50}

	assert.Equal(t, domain.OutcomeProjection{}, p.ProjectOutcomes(nil, b))
	assert.Equal(t, domain.OutcomeProjection{}, p.ProjectOutcomes(b, nil))
	assert.Equal(t, domain.OutcomeProjection{}, p.ProjectOutcomes(nil, nil))
}

func TestProjector_WinRaisesLoseLowers(t *testing.T) {
	a := &domain.CharacterState{ID: 1, Supply: 1000, Value: 500}
	b := &domain.CharacterState{ID: 2, Supply: 2000, Value: 800}
	src := fakeSource{1: *a, 2: *b}
	p := newTestProjector(src)

	proj := p.ProjectOutcomes(a, b)

	spotA, err := p.quoter.ImpliedPriceAtValue(a.Supply, a.Value, 1)
	require.NoError(t, err)
	spotB, err := p.quoter.ImpliedPriceAtValue(b.Supply, b.Value, 1)
	require.NoError(t, err)

	assert.Greater(t, proj.AWinPrice, spotA)
	assert.Less(t, proj.ALosePrice, spotA)
	assert.Greater(t, proj.BWinPrice, spotB)
	assert.Less(t, proj.BLosePrice, spotB)
}

func TestProjector_TransferRateArithmetic(t *testing.T) {
	a := &domain.CharacterState{ID: 1, Supply: 1000, Value: 500}
	b := &domain.CharacterState{ID: 2, Supply: 2000, Value: 800}
	p := newTestProjector(fakeSource{1: *a, 2: *b})

	proj := p.ProjectOutcomes(a, b)

	aWin, err := p.quoter.ImpliedPriceAtValue(a.Supply, a.Value+testTransferRate*b.Value, 1)
	require.NoError(t, err)
	assert.Equal(t, aWin, proj.AWinPrice)

	bLose, err := p.quoter.ImpliedPriceAtValue(b.Supply, b.Value*(1-testTransferRate), 1)
	require.NoError(t, err)
	assert.Equal(t, bLose, proj.BLosePrice)
}

func TestProjector_DrainedCharacter(t *testing.T) {
	a := &domain.CharacterState{ID: 1, Supply: 1000, Value: 0}
	b := &domain.CharacterState{ID: 2, Supply: 2000, Value: 800}
	p := newTestProjector(fakeSource{1: *a, 2: *b})

	proj := p.ProjectOutcomes(a, b)

	// A drained character still projects a positive win price (it would
	// receive a share of B's value) but a zero lose price.
	assert.Greater(t, proj.AWinPrice, 0.0)
	assert.Zero(t, proj.ALosePrice)
	assert.Greater(t, proj.BWinPrice, 0.0)
	assert.Greater(t, proj.BLosePrice, 0.0)
}

func TestProjector_ZeroSupplySide(t *testing.T) {
	a := &domain.CharacterState{ID: 1, Supply: 0, Value: 0}
	b := &domain.CharacterState{ID: 2, Supply: 2000, Value: 800}
	p := newTestProjector(fakeSource{1: *a, 2: *b})

	proj := p.ProjectOutcomes(a, b)

	assert.Zero(t, proj.AWinPrice)
	assert.Zero(t, proj.ALosePrice)
	assert.Greater(t, proj.BWinPrice, 0.0)
}
