package arena

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Otaku-Wars/clashcore/internal/domain"
)

func TestParseActivityEventTrade(t *testing.T) {
	raw := []byte(`{
		"type": "trade",
		"trader": "0xabc",
		"character": 7,
		"isBuy": true,
		"shareAmount": 25,
		"ethAmount": 0.5125,
		"prevPrice": 0.02,
		"newPrice": 0.021,
		"prevMarketCap": 20.0,
		"newMarketCap": 20.5125,
		"timestamp": 1756684800000
	}`)

	ev, err := ParseActivityEvent(raw)
	require.NoError(t, err)

	trade, ok := ev.(domain.TradeEvent)
	require.True(t, ok)
	assert.Equal(t, "0xabc", trade.Trader)
	assert.Equal(t, uint64(7), trade.Character)
	assert.True(t, trade.IsBuy)
	assert.Equal(t, uint64(25), trade.ShareAmount)
	assert.InDelta(t, 0.5125, trade.EthAmount, 1e-12)
	assert.Equal(t, domain.ActivityTrade, trade.Kind())
	assert.Equal(t, uint64(7), trade.Subject())
	assert.Equal(t, time.UnixMilli(1756684800000).UTC(), trade.Time())
}

func TestParseActivityEventMatchEnd(t *testing.T) {
	raw := []byte(`{
		"type": "match_end",
		"matchId": 42,
		"winner": 3,
		"loser": 9,
		"transferred": 1.25,
		"timestamp": 1756684860000
	}`)

	ev, err := ParseActivityEvent(raw)
	require.NoError(t, err)

	end, ok := ev.(domain.MatchEndEvent)
	require.True(t, ok)
	assert.Equal(t, uint64(42), end.MatchID)
	assert.Equal(t, uint64(3), end.Winner)
	assert.Equal(t, uint64(9), end.Loser)
	assert.InDelta(t, 1.25, end.Transferred, 1e-12)
}

func TestParseActivityEventStakeAndMatchPhases(t *testing.T) {
	frames := map[string]domain.ActivityKind{
		`{"type":"stake","staker":"0xdef","character":2,"amount":10,"attribute":"attack","timestamp":1}`: domain.ActivityStake,
		`{"type":"match_pending","p1":1,"p2":2,"willStartAt":5,"timestamp":1}`:                           domain.ActivityMatchPending,
		`{"type":"match_start","matchId":8,"p1":1,"p2":2,"timestamp":1}`:                                 domain.ActivityMatchStart,
	}

	for frame, want := range frames {
		ev, err := ParseActivityEvent([]byte(frame))
		require.NoError(t, err, frame)
		assert.Equal(t, want, ev.Kind(), frame)
	}
}

func TestParseActivityEventUnknownType(t *testing.T) {
	raw := []byte(`{"type": "airdrop", "timestamp": 1756684800000}`)

	_, err := ParseActivityEvent(raw)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnknownEvent)
}

func TestParseActivityEventMalformedJSON(t *testing.T) {
	_, err := ParseActivityEvent([]byte(`{"type": "trade",`))
	require.Error(t, err)
}

func TestEncodeActivityEventRoundTrip(t *testing.T) {
	ev := domain.StakeEvent{
		Staker:    "0xdef",
		Character: 2,
		Amount:    10,
		Attribute: "speed",
		Unstake:   true,
		Timestamp: time.UnixMilli(1756684800000).UTC(),
	}

	raw, err := EncodeActivityEvent(ev)
	require.NoError(t, err)

	back, err := ParseActivityEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, ev, back)
}

func TestWorldToDomain(t *testing.T) {
	w := APIWorld{
		Seq:       17,
		Timestamp: 1756684800000,
		Characters: []APICharacter{
			{ID: 1, Name: "ronin", Supply: 1000, Value: 500, Price: 0.0311, Wins: 4},
			{ID: 2, Name: "oracle", Supply: 0, Value: 0, Price: 0},
		},
	}

	snap := w.ToDomain()
	assert.Equal(t, uint64(17), snap.Seq)
	require.Len(t, snap.Characters, 2)
	assert.Equal(t, "ronin", snap.Characters[0].Name)
	assert.Equal(t, uint64(1000), snap.Characters[0].Supply)
	assert.Equal(t, 4, snap.Characters[0].Wins)
	assert.False(t, snap.AsOf.IsZero())
}

func TestBattleToDomain(t *testing.T) {
	b := APIBattle{
		Status:      "pending",
		P1:          3,
		P2:          9,
		WillStartAt: 1756684900000,
		Seq:         5,
		Timestamp:   1756684800000,
		LastResult:  &APIMatchResult{MatchID: 41, Winner: 9, Loser: 3, Transferred: 0.8, EndedAt: 1756684700000},
	}

	bs := b.ToDomain()
	assert.Equal(t, domain.BattleStatusPending, bs.Status)
	assert.True(t, bs.Assigned())
	require.NotNil(t, bs.LastResult)
	assert.Equal(t, uint64(41), bs.LastResult.MatchID)
}
