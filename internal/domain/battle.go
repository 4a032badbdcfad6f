package domain

import "time"

// BattleStatus represents the lifecycle state of the arena.
type BattleStatus string

const (
	BattleStatusIdle     BattleStatus = "idle"
	BattleStatusPending  BattleStatus = "pending"
	BattleStatusBattling BattleStatus = "battling"
)

// BattleState is the polled arena state. P1/P2 are zero until the server has
// assigned both fighters for the pending match.
type BattleState struct {
	Status       BattleStatus
	P1           uint64
	P2           uint64
	WillStartAt  time.Time
	CurrentMatch uint64
	LastResult   *MatchResult
	Seq          uint64
	AsOf         time.Time
}

// Assigned reports whether both fighters of the pending match are known.
func (b BattleState) Assigned() bool {
	return b.P1 != 0 && b.P2 != 0
}

// MatchResult records the outcome of a finished match.
type MatchResult struct {
	MatchID     uint64
	Winner      uint64
	Loser       uint64
	Transferred float64 // market cap moved from loser to winner, native units
	EndedAt     time.Time
}

// OutcomeProjection holds the projected next-share prices for the two fighters
// of a pending match under the win and lose scenarios. A projection computed
// before both fighters are assigned has all four prices equal to zero.
type OutcomeProjection struct {
	AWinPrice  float64
	ALosePrice float64
	BWinPrice  float64
	BLosePrice float64
}
