package domain

import "time"

// ActivityKind discriminates the activity event union.
type ActivityKind string

const (
	ActivityTrade        ActivityKind = "trade"
	ActivityStake        ActivityKind = "stake"
	ActivityMatchPending ActivityKind = "match_pending"
	ActivityMatchStart   ActivityKind = "match_start"
	ActivityMatchEnd     ActivityKind = "match_end"
)

// ActivityEvent is one discrete event from the push channel. Each kind carries
// only its own fields; decoding happens at the transport boundary and unknown
// kinds are rejected there.
type ActivityEvent interface {
	Kind() ActivityKind
	// Time is the event's own timestamp, which orders events for display.
	// Arrival order carries no guarantee.
	Time() time.Time
	// Subject is the primary character the event is about.
	Subject() uint64
}

// EventKey identifies an activity event for deduplication. Two events with the
// same kind, timestamp, and subject are the same event replayed.
type EventKey struct {
	Kind    ActivityKind
	TS      int64 // UnixNano
	Subject uint64
}

// KeyOf returns the deduplication key for an event.
func KeyOf(ev ActivityEvent) EventKey {
	return EventKey{Kind: ev.Kind(), TS: ev.Time().UnixNano(), Subject: ev.Subject()}
}

// TradeEvent is a completed buy or sell of character shares.
type TradeEvent struct {
	Trader        string
	Character     uint64
	IsBuy         bool
	ShareAmount   uint64
	EthAmount     float64
	PrevPrice     float64
	NewPrice      float64
	PrevMarketCap float64
	NewMarketCap  float64
	Timestamp     time.Time
}

func (e TradeEvent) Kind() ActivityKind { return ActivityTrade }
func (e TradeEvent) Time() time.Time    { return e.Timestamp }
func (e TradeEvent) Subject() uint64    { return e.Character }

// StakeEvent is a stake or unstake of shares onto a battle attribute.
type StakeEvent struct {
	Staker    string
	Character uint64
	Amount    uint64
	Attribute string
	Unstake   bool
	Timestamp time.Time
}

func (e StakeEvent) Kind() ActivityKind { return ActivityStake }
func (e StakeEvent) Time() time.Time    { return e.Timestamp }
func (e StakeEvent) Subject() uint64    { return e.Character }

// MatchPendingEvent announces the next match-up before it starts.
type MatchPendingEvent struct {
	P1          uint64
	P2          uint64
	WillStartAt time.Time
	Timestamp   time.Time
}

func (e MatchPendingEvent) Kind() ActivityKind { return ActivityMatchPending }
func (e MatchPendingEvent) Time() time.Time    { return e.Timestamp }
func (e MatchPendingEvent) Subject() uint64    { return e.P1 }

// MatchStartEvent marks the start of a match.
type MatchStartEvent struct {
	MatchID   uint64
	P1        uint64
	P2        uint64
	Timestamp time.Time
}

func (e MatchStartEvent) Kind() ActivityKind { return ActivityMatchStart }
func (e MatchStartEvent) Time() time.Time    { return e.Timestamp }
func (e MatchStartEvent) Subject() uint64    { return e.P1 }

// MatchEndEvent marks the end of a match and the market-cap transfer from
// loser to winner.
type MatchEndEvent struct {
	MatchID     uint64
	Winner      uint64
	Loser       uint64
	Transferred float64
	Timestamp   time.Time
}

func (e MatchEndEvent) Kind() ActivityKind { return ActivityMatchEnd }
func (e MatchEndEvent) Time() time.Time    { return e.Timestamp }
func (e MatchEndEvent) Subject() uint64    { return e.Winner }
