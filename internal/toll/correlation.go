package toll

import (
	"context"
	"sync"
	"time"

	"tollgrid/pkg/metrics"
)

// ExpireFunc is called for every tracked correlation whose response never
// arrived within the TTL.
type ExpireFunc func(correlationID, passID string)

type trackerEntry struct {
	passID   string
	deadline time.Time
}

// Tracker maps outstanding correlation ids to the pass id that originated
// the request. Entries are single-use: the first matching response consumes
// the entry, any later response finds nothing. Resolving an unknown id is a
// no-op, not an error: it may be a response for an already-consumed id, a
// response arriving after restart, or a foreign correlation overheard on a
// wildcard subscription.
//
// A TTL of zero disables expiry, matching the original behavior of keeping
// dangling correlations forever.
type Tracker struct {
	mu       sync.Mutex
	entries  map[string]trackerEntry
	name     string
	ttl      time.Duration
	onExpire ExpireFunc
}

func NewTracker(name string, ttl time.Duration, onExpire ExpireFunc) *Tracker {
	return &Tracker{
		entries:  make(map[string]trackerEntry),
		name:     name,
		ttl:      ttl,
		onExpire: onExpire,
	}
}

func (t *Tracker) Track(correlationID, passID string) {
	entry := trackerEntry{passID: passID}
	if t.ttl > 0 {
		entry.deadline = time.Now().Add(t.ttl)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[correlationID] = entry
}

// Resolve removes and returns the tracked pass id. At most one resolution
// per correlation id ever succeeds.
func (t *Tracker) Resolve(correlationID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[correlationID]
	if !ok {
		return "", false
	}
	delete(t.entries, correlationID)
	return entry.passID, true
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Start runs the expiry sweep until the context is canceled. With a zero
// TTL it returns immediately.
func (t *Tracker) Start(ctx context.Context) {
	if t.ttl <= 0 {
		return
	}

	interval := t.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.sweep(time.Now())
		case <-ctx.Done():
			return
		}
	}
}

func (t *Tracker) sweep(now time.Time) {
	type expired struct {
		correlationID string
		passID        string
	}

	t.mu.Lock()
	var dead []expired
	for id, entry := range t.entries {
		if !entry.deadline.IsZero() && now.After(entry.deadline) {
			dead = append(dead, expired{correlationID: id, passID: entry.passID})
			delete(t.entries, id)
		}
	}
	t.mu.Unlock()

	for _, e := range dead {
		metrics.CorrelationExpirationsTotal.WithLabelValues(t.name).Inc()
		if t.onExpire != nil {
			t.onExpire(e.correlationID, e.passID)
		}
	}
}
