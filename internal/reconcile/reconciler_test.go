package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Otaku-Wars/clashcore/internal/domain"
)

var testEpoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testEpoch }

func worldSnap(seq uint64, supply uint64, value float64) domain.WorldSnapshot {
	return domain.WorldSnapshot{
		Seq: seq,
		Characters: []domain.Character{
			{ID: 1, Supply: supply, Value: value, Price: value / 1000},
		},
		AsOf: testEpoch,
	}
}

func TestReconciler_StalenessRejection(t *testing.T) {
	// Two snapshots with sequences 3 and 5, delivered in both orders, must
	// both converge on sequence 5's payload.
	tests := []struct {
		name  string
		order []uint64
	}{
		{"in order", []uint64{3, 5}},
		{"reordered", []uint64{5, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(fixedClock, 10)
			snaps := map[uint64]domain.WorldSnapshot{
				3: worldSnap(3, 100, 50),
				5: worldSnap(5, 110, 60),
			}

			for _, seq := range tt.order {
				err := r.ApplyWorld(snaps[seq])
				if seq == 3 && tt.order[0] == 5 {
					require.ErrorIs(t, err, domain.ErrStaleSnapshot)
				} else {
					require.NoError(t, err)
				}
			}

			st, ok := r.CharacterState(1)
			require.True(t, ok)
			assert.Equal(t, uint64(110), st.Supply)
			assert.Equal(t, 60.0, st.Value)
			assert.Equal(t, uint64(5), st.Seq)
		})
	}
}

func TestReconciler_StaleDropCounted(t *testing.T) {
	r := New(fixedClock, 10)
	require.NoError(t, r.ApplyWorld(worldSnap(5, 110, 60)))
	require.ErrorIs(t, r.ApplyWorld(worldSnap(3, 100, 50)), domain.ErrStaleSnapshot)
	assert.Equal(t, uint64(1), r.StaleDrops())
}

func TestReconciler_AtomicTriple(t *testing.T) {
	// Supply, value, and price always come from the same snapshot.
	r := New(fixedClock, 10)
	require.NoError(t, r.ApplyWorld(worldSnap(1, 100, 50)))
	require.NoError(t, r.ApplyWorld(worldSnap(2, 200, 80)))

	st, ok := r.CharacterState(1)
	require.True(t, ok)
	assert.Equal(t, uint64(200), st.Supply)
	assert.Equal(t, 80.0, st.Value)
	assert.Equal(t, 80.0/1000, st.Price)
	assert.Equal(t, uint64(2), st.Seq)
}

func TestReconciler_EventDedup(t *testing.T) {
	r := New(fixedClock, 10)
	ev := domain.TradeEvent{
		Trader:      "0xabc",
		Character:   1,
		IsBuy:       true,
		ShareAmount: 3,
		Timestamp:   testEpoch,
	}

	assert.True(t, r.RecordEvent(ev))
	assert.False(t, r.RecordEvent(ev), "replayed event must be dropped")
	assert.Len(t, r.Activity(0), 1)
}

func TestReconciler_EventNeverOverwritesPolledState(t *testing.T) {
	r := New(fixedClock, 10)
	require.NoError(t, r.ApplyWorld(worldSnap(1, 100, 50)))

	r.RecordEvent(domain.TradeEvent{
		Trader:       "0xabc",
		Character:    1,
		IsBuy:        true,
		ShareAmount:  3,
		NewPrice:     999,
		NewMarketCap: 999,
		Timestamp:    testEpoch.Add(time.Second),
	})

	st, _ := r.CharacterState(1)
	assert.Equal(t, 50.0, st.Value, "pushed price fields must not touch polled state")
	assert.Equal(t, uint64(100), st.Supply)
}

func TestReconciler_TouchedCallbackFires(t *testing.T) {
	r := New(fixedClock, 10)
	var touched []uint64
	r.OnCharacterTouched(func(id uint64) { touched = append(touched, id) })

	r.RecordEvent(domain.TradeEvent{Character: 7, Timestamp: testEpoch})
	r.RecordEvent(domain.TradeEvent{Character: 7, Timestamp: testEpoch}) // duplicate

	assert.Equal(t, []uint64{7}, touched, "duplicates must not re-trigger re-polls")
}

func TestReconciler_SubscribeNotifies(t *testing.T) {
	r := New(fixedClock, 10)
	ch, cancel := r.Subscribe(8)
	defer cancel()

	require.NoError(t, r.ApplyWorld(worldSnap(1, 100, 50)))

	select {
	case u := <-ch:
		assert.Equal(t, UpdateCharacter, u.Kind)
		assert.Equal(t, uint64(1), u.Character)
	default:
		t.Fatal("expected an update notification")
	}
}

func TestReconciler_BattleSequence(t *testing.T) {
	r := New(fixedClock, 10)
	require.NoError(t, r.ApplyBattle(domain.BattleState{Status: domain.BattleStatusPending, P1: 1, P2: 2, Seq: 4}))
	require.ErrorIs(t, r.ApplyBattle(domain.BattleState{Status: domain.BattleStatusIdle, Seq: 2}), domain.ErrStaleSnapshot)

	bs := r.BattleState()
	assert.Equal(t, domain.BattleStatusPending, bs.Status)
	assert.True(t, bs.Assigned())
}

func TestReconciler_StatusFlags(t *testing.T) {
	r := New(fixedClock, 10)

	st := r.Status()
	assert.True(t, st.World.Loading, "world starts loading")

	r.SetSourceError(SourceWorld, assert.AnError)
	st = r.Status()
	assert.True(t, st.World.Err)
	assert.False(t, st.World.Loading)

	require.NoError(t, r.ApplyWorld(worldSnap(1, 100, 50)))
	st = r.Status()
	assert.False(t, st.World.Err, "successful poll clears the error flag")
}

func TestReconciler_Balances(t *testing.T) {
	r := New(fixedClock, 10)
	r.SetBalance("0xabc", 1, 42)

	bal, asOf, ok := r.Balance("0xabc", 1)
	require.True(t, ok)
	assert.Equal(t, uint64(42), bal)
	assert.Equal(t, testEpoch, asOf)

	_, _, ok = r.Balance("0xdef", 1)
	assert.False(t, ok)
}
