package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Otaku-Wars/clashcore/internal/domain"
)

func tradeAt(ts time.Time, character uint64) domain.TradeEvent {
	return domain.TradeEvent{Trader: "0xabc", Character: character, IsBuy: true, ShareAmount: 1, Timestamp: ts}
}

func TestActivityBuffer_SortedNewestFirst(t *testing.T) {
	b := NewActivityBuffer(10)
	t0 := testEpoch

	// Deliver out of order; display order follows event timestamps.
	require.True(t, b.Add(tradeAt(t0.Add(2*time.Second), 1)))
	require.True(t, b.Add(tradeAt(t0, 2)))
	require.True(t, b.Add(tradeAt(t0.Add(4*time.Second), 3)))
	require.True(t, b.Add(tradeAt(t0.Add(time.Second), 4)))

	events := b.Events(0)
	require.Len(t, events, 4)
	for i := 1; i < len(events); i++ {
		assert.False(t, events[i-1].Time().Before(events[i].Time()),
			"events[%d] older than events[%d]", i-1, i)
	}
	assert.Equal(t, uint64(3), events[0].Subject())
}

func TestActivityBuffer_Dedup(t *testing.T) {
	b := NewActivityBuffer(10)
	ev := tradeAt(testEpoch, 1)

	require.True(t, b.Add(ev))
	assert.False(t, b.Add(ev))
	assert.Equal(t, 1, b.Len())

	// Same timestamp and subject but different kind is a distinct event.
	assert.True(t, b.Add(domain.StakeEvent{Staker: "0xabc", Character: 1, Amount: 1, Timestamp: testEpoch}))
	assert.Equal(t, 2, b.Len())
}

func TestActivityBuffer_CapEvictsOldest(t *testing.T) {
	b := NewActivityBuffer(3)
	for i := 0; i < 5; i++ {
		require.True(t, b.Add(tradeAt(testEpoch.Add(time.Duration(i)*time.Second), uint64(i+1))))
	}

	events := b.Events(0)
	require.Len(t, events, 3)
	assert.Equal(t, uint64(5), events[0].Subject())
	assert.Equal(t, uint64(3), events[2].Subject())

	// An evicted event may legitimately reappear (it is no longer in the
	// dedup window).
	assert.True(t, b.Add(tradeAt(testEpoch, 1)))
}

func TestActivityBuffer_Limit(t *testing.T) {
	b := NewActivityBuffer(10)
	for i := 0; i < 5; i++ {
		b.Add(tradeAt(testEpoch.Add(time.Duration(i)*time.Second), uint64(i+1)))
	}
	assert.Len(t, b.Events(2), 2)
	assert.Len(t, b.Events(0), 5)
	assert.Len(t, b.Events(100), 5)
}
