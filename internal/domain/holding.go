package domain

import "time"

// UserHolding is one user's position in one character. Balance is
// authoritative from on-chain reads or the REST API; Value is always derived
// through the price quoter at read time and never stored.
type UserHolding struct {
	Address   string
	Character uint64
	Balance   uint64
	Value     float64
	AsOf      time.Time
}

// User is the REST-side user record.
type User struct {
	Address  string
	Name     string
	Holdings []UserHolding
}

// QuoteSide distinguishes buy quotes from sell quotes.
type QuoteSide string

const (
	QuoteBuy  QuoteSide = "buy"
	QuoteSell QuoteSide = "sell"
)

// Quote is an ephemeral priced buy/sell request, valid only as of the state it
// was derived from. Prices are in native units; USD conversion happens at
// render time via the exchange-rate provider.
type Quote struct {
	Character uint64
	Side      QuoteSide
	Amount    uint64
	PreFee    float64
	AfterFee  float64
	AsOf      time.Time
}
