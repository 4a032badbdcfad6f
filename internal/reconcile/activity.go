package reconcile

import (
	"sort"

	"github.com/Otaku-Wars/clashcore/internal/domain"
)

// ActivityBuffer is a capped, deduplicated buffer of pushed activity events.
// Events are keyed by (kind, timestamp, subject); a replayed event is dropped
// so reconnects never produce duplicate activity rows. Events are kept sorted
// newest-first by their own timestamp, since arrival order is unreliable.
type ActivityBuffer struct {
	max    int
	seen   map[domain.EventKey]struct{}
	events []domain.ActivityEvent
}

// DefaultActivityCap bounds the in-memory buffer; history beyond it lives in
// the activity archive.
const DefaultActivityCap = 500

// NewActivityBuffer creates a buffer holding at most max events.
func NewActivityBuffer(max int) *ActivityBuffer {
	if max <= 0 {
		max = DefaultActivityCap
	}
	return &ActivityBuffer{
		max:  max,
		seen: make(map[domain.EventKey]struct{}),
	}
}

// Add inserts an event in timestamp order and reports whether it was new.
func (b *ActivityBuffer) Add(ev domain.ActivityEvent) bool {
	key := domain.KeyOf(ev)
	if _, dup := b.seen[key]; dup {
		return false
	}
	b.seen[key] = struct{}{}

	// Insert keeping newest-first order. Pushed events usually arrive near
	// the head, so scan from the front.
	idx := sort.Search(len(b.events), func(i int) bool {
		return b.events[i].Time().Before(ev.Time())
	})
	b.events = append(b.events, nil)
	copy(b.events[idx+1:], b.events[idx:])
	b.events[idx] = ev

	if len(b.events) > b.max {
		oldest := b.events[len(b.events)-1]
		delete(b.seen, domain.KeyOf(oldest))
		b.events = b.events[:len(b.events)-1]
	}
	return true
}

// Events returns up to limit events, newest first. limit <= 0 returns all.
func (b *ActivityBuffer) Events(limit int) []domain.ActivityEvent {
	n := len(b.events)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.ActivityEvent, n)
	copy(out, b.events[:n])
	return out
}

// Len returns the number of buffered events.
func (b *ActivityBuffer) Len() int { return len(b.events) }
