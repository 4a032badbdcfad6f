// Package arena talks to the character-battle backend: the polled REST API
// and the push activity channel. Wire types live here and convert to domain
// types at the boundary; nothing outside this package sees raw JSON.
package arena

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Otaku-Wars/clashcore/internal/domain"
)

// APICharacter is the REST shape of a character.
type APICharacter struct {
	ID      uint64  `json:"id"`
	Name    string  `json:"name"`
	Supply  uint64  `json:"supply"`
	Value   float64 `json:"value"`
	Price   float64 `json:"price"`
	Health  int     `json:"health"`
	Power   int     `json:"power"`
	Attack  int     `json:"attack"`
	Defense int     `json:"defense"`
	Speed   int     `json:"speed"`
	Wins    int     `json:"wins"`
	Losses  int     `json:"losses"`
}

// ToDomain converts the wire character to the domain entity.
func (c *APICharacter) ToDomain() domain.Character {
	return domain.Character{
		ID:      c.ID,
		Name:    c.Name,
		Supply:  c.Supply,
		Value:   c.Value,
		Price:   c.Price,
		Health:  c.Health,
		Power:   c.Power,
		Attack:  c.Attack,
		Defense: c.Defense,
		Speed:   c.Speed,
		Wins:    c.Wins,
		Losses:  c.Losses,
	}
}

// APIWorld is the polled world snapshot. Seq is the server's monotonic state
// sequence; every field in one response reflects the same instant.
type APIWorld struct {
	Seq        uint64         `json:"seq"`
	Timestamp  int64          `json:"timestamp"` // unix milliseconds
	Characters []APICharacter `json:"characters"`
}

// ToDomain converts the wire world snapshot.
func (w *APIWorld) ToDomain() domain.WorldSnapshot {
	chars := make([]domain.Character, 0, len(w.Characters))
	for i := range w.Characters {
		chars = append(chars, w.Characters[i].ToDomain())
	}
	return domain.WorldSnapshot{
		Seq:        w.Seq,
		Characters: chars,
		AsOf:       msToTime(w.Timestamp),
	}
}

// APIMatchResult is the wire shape of a finished match.
type APIMatchResult struct {
	MatchID     uint64  `json:"matchId"`
	Winner      uint64  `json:"winner"`
	Loser       uint64  `json:"loser"`
	Transferred float64 `json:"transferred"`
	EndedAt     int64   `json:"endedAt"`
}

// APIBattle is the polled arena state.
type APIBattle struct {
	Status       string          `json:"status"`
	P1           uint64          `json:"p1"`
	P2           uint64          `json:"p2"`
	WillStartAt  int64           `json:"willStartAt"`
	CurrentMatch uint64          `json:"currentMatch"`
	LastResult   *APIMatchResult `json:"lastMatchResult"`
	Seq          uint64          `json:"seq"`
	Timestamp    int64           `json:"timestamp"`
}

// ToDomain converts the wire battle state.
func (b *APIBattle) ToDomain() domain.BattleState {
	bs := domain.BattleState{
		Status:       domain.BattleStatus(b.Status),
		P1:           b.P1,
		P2:           b.P2,
		WillStartAt:  msToTime(b.WillStartAt),
		CurrentMatch: b.CurrentMatch,
		Seq:          b.Seq,
		AsOf:         msToTime(b.Timestamp),
	}
	if b.LastResult != nil {
		bs.LastResult = &domain.MatchResult{
			MatchID:     b.LastResult.MatchID,
			Winner:      b.LastResult.Winner,
			Loser:       b.LastResult.Loser,
			Transferred: b.LastResult.Transferred,
			EndedAt:     msToTime(b.LastResult.EndedAt),
		}
	}
	return bs
}

// APIHolding is one user position.
type APIHolding struct {
	Character uint64 `json:"character"`
	Balance   uint64 `json:"balance"`
}

// APIUser is the REST user record.
type APIUser struct {
	Address  string       `json:"address"`
	Name     string       `json:"name"`
	Holdings []APIHolding `json:"holdings"`
}

// ToDomain converts the wire user record. Holding values stay zero; value is
// always derived through the quoter, never taken from the wire.
func (u *APIUser) ToDomain() domain.User {
	holdings := make([]domain.UserHolding, 0, len(u.Holdings))
	for _, h := range u.Holdings {
		holdings = append(holdings, domain.UserHolding{
			Address:   u.Address,
			Character: h.Character,
			Balance:   h.Balance,
		})
	}
	return domain.User{Address: u.Address, Name: u.Name, Holdings: holdings}
}

// ---------------------------------------------------------------------------
// Push-channel activity events
// ---------------------------------------------------------------------------

// eventEnvelope carries the discriminator tag of a pushed frame.
type eventEnvelope struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
}

type tradeMessage struct {
	Trader        string  `json:"trader"`
	Character     uint64  `json:"character"`
	IsBuy         bool    `json:"isBuy"`
	ShareAmount   uint64  `json:"shareAmount"`
	EthAmount     float64 `json:"ethAmount"`
	PrevPrice     float64 `json:"prevPrice"`
	NewPrice      float64 `json:"newPrice"`
	PrevMarketCap float64 `json:"prevMarketCap"`
	NewMarketCap  float64 `json:"newMarketCap"`
	Timestamp     int64   `json:"timestamp"`
}

type stakeMessage struct {
	Staker    string `json:"staker"`
	Character uint64 `json:"character"`
	Amount    uint64 `json:"amount"`
	Attribute string `json:"attribute"`
	Unstake   bool   `json:"unstake"`
	Timestamp int64  `json:"timestamp"`
}

type matchPendingMessage struct {
	P1          uint64 `json:"p1"`
	P2          uint64 `json:"p2"`
	WillStartAt int64  `json:"willStartAt"`
	Timestamp   int64  `json:"timestamp"`
}

type matchStartMessage struct {
	MatchID   uint64 `json:"matchId"`
	P1        uint64 `json:"p1"`
	P2        uint64 `json:"p2"`
	Timestamp int64  `json:"timestamp"`
}

type matchEndMessage struct {
	MatchID     uint64  `json:"matchId"`
	Winner      uint64  `json:"winner"`
	Loser       uint64  `json:"loser"`
	Transferred float64 `json:"transferred"`
	Timestamp   int64   `json:"timestamp"`
}

// ParseActivityEvent decodes one pushed frame into its domain event. Frames
// with an unknown type tag fail with domain.ErrUnknownEvent; the feed drops
// and logs those instead of guessing.
func ParseActivityEvent(raw []byte) (domain.ActivityEvent, error) {
	var env eventEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("arena: decode event envelope: %w", err)
	}

	switch domain.ActivityKind(env.Type) {
	case domain.ActivityTrade:
		var m tradeMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("arena: decode trade event: %w", err)
		}
		return domain.TradeEvent{
			Trader:        m.Trader,
			Character:     m.Character,
			IsBuy:         m.IsBuy,
			ShareAmount:   m.ShareAmount,
			EthAmount:     m.EthAmount,
			PrevPrice:     m.PrevPrice,
			NewPrice:      m.NewPrice,
			PrevMarketCap: m.PrevMarketCap,
			NewMarketCap:  m.NewMarketCap,
			Timestamp:     msToTime(m.Timestamp),
		}, nil

	case domain.ActivityStake:
		var m stakeMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("arena: decode stake event: %w", err)
		}
		return domain.StakeEvent{
			Staker:    m.Staker,
			Character: m.Character,
			Amount:    m.Amount,
			Attribute: m.Attribute,
			Unstake:   m.Unstake,
			Timestamp: msToTime(m.Timestamp),
		}, nil

	case domain.ActivityMatchPending:
		var m matchPendingMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("arena: decode match pending event: %w", err)
		}
		return domain.MatchPendingEvent{
			P1:          m.P1,
			P2:          m.P2,
			WillStartAt: msToTime(m.WillStartAt),
			Timestamp:   msToTime(m.Timestamp),
		}, nil

	case domain.ActivityMatchStart:
		var m matchStartMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("arena: decode match start event: %w", err)
		}
		return domain.MatchStartEvent{
			MatchID:   m.MatchID,
			P1:        m.P1,
			P2:        m.P2,
			Timestamp: msToTime(m.Timestamp),
		}, nil

	case domain.ActivityMatchEnd:
		var m matchEndMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("arena: decode match end event: %w", err)
		}
		return domain.MatchEndEvent{
			MatchID:     m.MatchID,
			Winner:      m.Winner,
			Loser:       m.Loser,
			Transferred: m.Transferred,
			Timestamp:   msToTime(m.Timestamp),
		}, nil

	default:
		return nil, fmt.Errorf("arena: event type %q: %w", env.Type, domain.ErrUnknownEvent)
	}
}

// EncodeActivityEvent serializes a domain event back to its wire frame. The
// signal bus and WS hub re-publish events in the same shape they arrive in.
func EncodeActivityEvent(ev domain.ActivityEvent) ([]byte, error) {
	var payload any
	switch e := ev.(type) {
	case domain.TradeEvent:
		payload = struct {
			Type string `json:"type"`
			tradeMessage
		}{string(e.Kind()), tradeMessage{
			Trader: e.Trader, Character: e.Character, IsBuy: e.IsBuy,
			ShareAmount: e.ShareAmount, EthAmount: e.EthAmount,
			PrevPrice: e.PrevPrice, NewPrice: e.NewPrice,
			PrevMarketCap: e.PrevMarketCap, NewMarketCap: e.NewMarketCap,
			Timestamp: timeToMs(e.Timestamp),
		}}
	case domain.StakeEvent:
		payload = struct {
			Type string `json:"type"`
			stakeMessage
		}{string(e.Kind()), stakeMessage{
			Staker: e.Staker, Character: e.Character, Amount: e.Amount,
			Attribute: e.Attribute, Unstake: e.Unstake, Timestamp: timeToMs(e.Timestamp),
		}}
	case domain.MatchPendingEvent:
		payload = struct {
			Type string `json:"type"`
			matchPendingMessage
		}{string(e.Kind()), matchPendingMessage{
			P1: e.P1, P2: e.P2, WillStartAt: timeToMs(e.WillStartAt), Timestamp: timeToMs(e.Timestamp),
		}}
	case domain.MatchStartEvent:
		payload = struct {
			Type string `json:"type"`
			matchStartMessage
		}{string(e.Kind()), matchStartMessage{
			MatchID: e.MatchID, P1: e.P1, P2: e.P2, Timestamp: timeToMs(e.Timestamp),
		}}
	case domain.MatchEndEvent:
		payload = struct {
			Type string `json:"type"`
			matchEndMessage
		}{string(e.Kind()), matchEndMessage{
			MatchID: e.MatchID, Winner: e.Winner, Loser: e.Loser,
			Transferred: e.Transferred, Timestamp: timeToMs(e.Timestamp),
		}}
	default:
		return nil, fmt.Errorf("arena: encode event kind %q: %w", ev.Kind(), domain.ErrUnknownEvent)
	}
	return json.Marshal(payload)
}

func msToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func timeToMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
