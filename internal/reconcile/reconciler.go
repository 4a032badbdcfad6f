// Package reconcile merges the three live data sources (polled world/battle
// snapshots, the push activity feed, and on-chain balance reads) into one
// consistent, process-wide view. Polled snapshots are authoritative for
// (supply, value, price); pushed events only trigger early re-polls and feed
// the activity buffer; balances come from the chain while watched.
package reconcile

import (
	"sort"
	"sync"
	"time"

	"github.com/Otaku-Wars/clashcore/internal/domain"
)

// Clock supplies the current time. Injected so tests control staleness.
type Clock func() time.Time

// UpdateKind identifies what changed in an Update notification.
type UpdateKind string

const (
	UpdateCharacter UpdateKind = "character"
	UpdateBattle    UpdateKind = "battle"
	UpdateBalance   UpdateKind = "balance"
	UpdateActivity  UpdateKind = "activity"
)

// Update is pushed to subscribers whenever reconciled state changes.
// Character is zero for battle-wide updates.
type Update struct {
	Kind      UpdateKind
	Character uint64
}

// Source identifies one of the reconciler's upstream data sources.
type Source string

const (
	SourceWorld  Source = "world"
	SourceBattle Source = "battle"
	SourceChain  Source = "chain"
	SourceFeed   Source = "feed"
)

// SourceStatus is the consumer-visible health of one source. Err true means
// the last attempt failed and the held values are last-known, not fresh;
// values are never silently passed off as current.
type SourceStatus struct {
	Loading bool
	Err     bool
	LastErr string
	AsOf    time.Time
}

// Status aggregates per-source health flags.
type Status struct {
	World  SourceStatus
	Battle SourceStatus
	Chain  SourceStatus
	Feed   SourceStatus
}

type balanceKey struct {
	address   string
	character uint64
}

type balanceEntry struct {
	balance uint64
	asOf    time.Time
}

// TouchedFunc is invoked, outside the reconciler lock, when a pushed event
// names a character: the quoter drops its scaling memo and the poll runner
// schedules an early re-poll.
type TouchedFunc func(characterID uint64)

// Reconciler owns the reconciled state. All writes go through Apply* /
// Record* / SetBalance, each of which updates its keys atomically, so a
// reader never sees supply from one snapshot and value from another.
type Reconciler struct {
	now Clock

	mu         sync.RWMutex
	chars      map[uint64]domain.CharacterState
	battle     domain.BattleState
	worldSeq   uint64
	battleSeq  uint64
	staleDrops uint64
	balances   map[balanceKey]balanceEntry
	activity   *ActivityBuffer
	status     Status

	subMu   sync.Mutex
	subs    map[uint64]chan Update
	nextSub uint64

	touchMu sync.Mutex
	touched []TouchedFunc
}

// New creates a Reconciler with the given clock and activity buffer capacity.
func New(now Clock, activityCap int) *Reconciler {
	if now == nil {
		now = time.Now
	}
	return &Reconciler{
		now:      now,
		chars:    make(map[uint64]domain.CharacterState),
		balances: make(map[balanceKey]balanceEntry),
		activity: NewActivityBuffer(activityCap),
		subs:     make(map[uint64]chan Update),
		status: Status{
			World:  SourceStatus{Loading: true},
			Battle: SourceStatus{Loading: true},
		},
	}
}

// OnCharacterTouched registers a callback fired for every pushed event's
// subject character.
func (r *Reconciler) OnCharacterTouched(fn TouchedFunc) {
	r.touchMu.Lock()
	r.touched = append(r.touched, fn)
	r.touchMu.Unlock()
}

// ApplyWorld applies a polled world snapshot. Snapshots are compared by their
// server sequence, not arrival order: a response older than the last applied
// one is dropped with domain.ErrStaleSnapshot, which callers count and log
// but never surface to consumers.
func (r *Reconciler) ApplyWorld(snap domain.WorldSnapshot) error {
	r.mu.Lock()
	if snap.Seq <= r.worldSeq && r.worldSeq != 0 {
		r.staleDrops++
		r.mu.Unlock()
		return domain.ErrStaleSnapshot
	}
	r.worldSeq = snap.Seq

	asOf := snap.AsOf
	if asOf.IsZero() {
		asOf = r.now()
	}
	changed := make([]uint64, 0, len(snap.Characters))
	for _, c := range snap.Characters {
		next := domain.CharacterState{
			ID:     c.ID,
			Supply: c.Supply,
			Value:  c.Value,
			Price:  c.Price,
			Seq:    snap.Seq,
			AsOf:   asOf,
		}
		prev, ok := r.chars[c.ID]
		r.chars[c.ID] = next
		if !ok || prev.Supply != next.Supply || prev.Value != next.Value || prev.Price != next.Price {
			changed = append(changed, c.ID)
		}
	}
	r.status.World = SourceStatus{AsOf: asOf}
	r.mu.Unlock()

	for _, id := range changed {
		r.notify(Update{Kind: UpdateCharacter, Character: id})
	}
	return nil
}

// ApplyBattle applies a polled battle snapshot, with the same sequence
// ordering rule as ApplyWorld.
func (r *Reconciler) ApplyBattle(bs domain.BattleState) error {
	r.mu.Lock()
	if bs.Seq <= r.battleSeq && r.battleSeq != 0 {
		r.staleDrops++
		r.mu.Unlock()
		return domain.ErrStaleSnapshot
	}
	r.battleSeq = bs.Seq
	if bs.AsOf.IsZero() {
		bs.AsOf = r.now()
	}
	r.battle = bs
	r.status.Battle = SourceStatus{AsOf: bs.AsOf}
	r.mu.Unlock()

	r.notify(Update{Kind: UpdateBattle})
	return nil
}

// RecordEvent records a pushed activity event. Duplicates (same kind,
// timestamp, and subject, typically from a reconnect replay) are dropped and
// the method reports false. The event's price fields never overwrite polled
// state; the only state effect is the touched callback, which triggers an
// early re-poll for the subject.
func (r *Reconciler) RecordEvent(ev domain.ActivityEvent) bool {
	r.mu.Lock()
	added := r.activity.Add(ev)
	r.mu.Unlock()
	if !added {
		return false
	}

	r.touchMu.Lock()
	fns := make([]TouchedFunc, len(r.touched))
	copy(fns, r.touched)
	r.touchMu.Unlock()
	for _, fn := range fns {
		fn(ev.Subject())
	}

	r.notify(Update{Kind: UpdateActivity, Character: ev.Subject()})
	return true
}

// SetBalance records an on-chain balance read.
func (r *Reconciler) SetBalance(address string, character uint64, balance uint64) {
	key := balanceKey{address: address, character: character}
	r.mu.Lock()
	prev, ok := r.balances[key]
	r.balances[key] = balanceEntry{balance: balance, asOf: r.now()}
	r.mu.Unlock()

	if !ok || prev.balance != balance {
		r.notify(Update{Kind: UpdateBalance, Character: character})
	}
}

// CharacterState returns the reconciled triple for one character. It
// implements pricing.StateSource.
func (r *Reconciler) CharacterState(id uint64) (domain.CharacterState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.chars[id]
	return st, ok
}

// CharacterStates returns all reconciled characters ordered by id.
func (r *Reconciler) CharacterStates() []domain.CharacterState {
	r.mu.RLock()
	out := make([]domain.CharacterState, 0, len(r.chars))
	for _, st := range r.chars {
		out = append(out, st)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// BattleState returns the last applied battle snapshot.
func (r *Reconciler) BattleState() domain.BattleState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.battle
}

// Balance returns the last on-chain balance read for (address, character).
func (r *Reconciler) Balance(address string, character uint64) (uint64, time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.balances[balanceKey{address: address, character: character}]
	return e.balance, e.asOf, ok
}

// Activity returns up to limit recorded events, newest first by event
// timestamp (not arrival order).
func (r *Reconciler) Activity(limit int) []domain.ActivityEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activity.Events(limit)
}

// StaleDrops reports how many out-of-order snapshots have been discarded.
func (r *Reconciler) StaleDrops() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.staleDrops
}

// Status returns the per-source health flags.
func (r *Reconciler) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// SetSourceError marks a source as failed; held values become explicitly
// last-known rather than fresh.
func (r *Reconciler) SetSourceError(src Source, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.sourceStatus(src)
	st.Loading = false
	st.Err = true
	if err != nil {
		st.LastErr = err.Error()
	}
}

// SetSourceOK clears a source's error/loading flags.
func (r *Reconciler) SetSourceOK(src Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.sourceStatus(src)
	st.Loading = false
	st.Err = false
	st.LastErr = ""
	st.AsOf = r.now()
}

func (r *Reconciler) sourceStatus(src Source) *SourceStatus {
	switch src {
	case SourceWorld:
		return &r.status.World
	case SourceBattle:
		return &r.status.Battle
	case SourceChain:
		return &r.status.Chain
	default:
		return &r.status.Feed
	}
}

// Subscribe returns a channel of Update notifications and a cancel function.
// Slow subscribers lose notifications rather than blocking writers; the
// pull-based getters always have the latest state regardless.
func (r *Reconciler) Subscribe(buffer int) (<-chan Update, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Update, buffer)

	r.subMu.Lock()
	r.nextSub++
	id := r.nextSub
	r.subs[id] = ch
	r.subMu.Unlock()

	cancel := func() {
		r.subMu.Lock()
		if c, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(c)
		}
		r.subMu.Unlock()
	}
	return ch, cancel
}

func (r *Reconciler) notify(u Update) {
	r.subMu.Lock()
	for _, ch := range r.subs {
		select {
		case ch <- u:
		default:
		}
	}
	r.subMu.Unlock()
}
