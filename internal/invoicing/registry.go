package invoicing

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-billing/internal/billing"
)

// entry is one open billing session. mu serialises every operation on the
// session; submitting is the busy flag held while a submission is in flight.
type entry struct {
	mu         sync.Mutex
	id         string
	session    *billing.Session
	header     billing.Header
	partyName  string
	openedBy   string
	openedAt   time.Time
	touchedAt  time.Time
	submitting atomic.Bool
	closed     bool
}

// Registry holds open sessions in memory and expires idle ones.
type Registry struct {
	mu       sync.Mutex
	entries  map[string]*entry
	ttl      time.Duration
	now      func() time.Time
	onChange func(open int)
}

// NewRegistry builds a registry expiring sessions idle for longer than ttl.
// onChange, when set, receives the open session count after every change.
func NewRegistry(ttl time.Duration, onChange func(open int)) *Registry {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Registry{entries: map[string]*entry{}, ttl: ttl, now: time.Now, onChange: onChange}
}

func (r *Registry) add(e *entry) {
	r.mu.Lock()
	if e.id == "" {
		e.id = uuid.NewString()
	}
	now := r.now()
	e.openedAt, e.touchedAt = now, now
	r.entries[e.id] = e
	n := len(r.entries)
	r.mu.Unlock()
	r.notify(n)
}

// get returns the entry and marks it as used. Expired entries are dropped.
func (r *Registry) get(id string) (*entry, bool) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return nil, false
	}
	now := r.now()
	if r.expired(e, now) {
		delete(r.entries, id)
		n := len(r.entries)
		r.mu.Unlock()
		r.notify(n)
		return nil, false
	}
	e.touchedAt = now
	r.mu.Unlock()
	return e, true
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	if _, ok := r.entries[id]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.entries, id)
	n := len(r.entries)
	r.mu.Unlock()
	r.notify(n)
}

// Len reports the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep drops idle sessions and returns how many were removed. Sessions with
// a submission in flight are kept.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	now := r.now()
	removed := 0
	for id, e := range r.entries {
		if r.expired(e, now) {
			delete(r.entries, id)
			removed++
		}
	}
	n := len(r.entries)
	r.mu.Unlock()
	if removed > 0 {
		r.notify(n)
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// expired must be called with r.mu held.
func (r *Registry) expired(e *entry, now time.Time) bool {
	if e.submitting.Load() {
		return false
	}
	return now.Sub(e.touchedAt) > r.ttl
}

func (r *Registry) notify(n int) {
	if r.onChange != nil {
		r.onChange(n)
	}
}
