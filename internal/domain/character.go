package domain

import "time"

// Character represents a tradeable fighter. Supply and value come from the
// world snapshot; price is derived and kept consistent with them through the
// bonding curve (price == marginal cost of the next share).
type Character struct {
	ID     uint64
	Name   string
	Supply uint64  // total shares issued
	Value  float64 // market capitalization in native units
	Price  float64 // spot price in native units, derived

	// Battle attributes. Displayed by the UI, never used for pricing.
	Health  int
	Power   int
	Attack  int
	Defense int
	Speed   int

	Wins   int
	Losses int
}

// CharacterState is the reconciled (supply, value, price) triple for a single
// character. The three fields always originate from the same world snapshot;
// Seq identifies that snapshot and AsOf is the time it was applied.
type CharacterState struct {
	ID     uint64
	Supply uint64
	Value  float64
	Price  float64
	Seq    uint64
	AsOf   time.Time
}

// WorldSnapshot is one authoritative poll response: every character's state at
// a single server-side instant. Seq increases monotonically with server state;
// the reconciler discards snapshots whose Seq is not newer than the last
// applied one.
type WorldSnapshot struct {
	Seq        uint64
	Characters []Character
	AsOf       time.Time
}
