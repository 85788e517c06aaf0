package remotestore

import (
	"sync"

	"github.com/trackmate/server/internal/shared/metrics"
)

// Verdict says what to do with an incoming change notification.
type Verdict string

const (
	VerdictDeliver    Verdict = "delivered"
	VerdictSuppressed Verdict = "suppressed"
	VerdictStale      Verdict = "stale"
)

// PushFilter decides whether an incoming change notification should be
// applied to live state. Notifications are suppressed while the user holds
// an edit lease or a mutation is in flight, and snapshots older than the
// last applied write are dropped as stale.
type PushFilter struct {
	mu          sync.Mutex
	editLease   bool
	inFlight    bool
	lastApplied int64

	metrics *metrics.Metrics
}

// NewPushFilter builds a filter. metrics may be nil.
func NewPushFilter(m *metrics.Metrics) *PushFilter {
	return &PushFilter{metrics: m}
}

// SetEditLease marks the user as actively editing. While held, remote pushes
// are suppressed so a refresh cannot yank fields out from under the user.
func (f *PushFilter) SetEditLease(held bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.editLease = held
}

// SetInFlight marks a local mutation as pending persistence.
func (f *PushFilter) SetInFlight(pending bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight = pending
}

// MarkApplied records the timestamp of the snapshot the client last applied,
// whether from its own write or a delivered push.
func (f *PushFilter) MarkApplied(lastUpdated int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if lastUpdated > f.lastApplied {
		f.lastApplied = lastUpdated
	}
}

// Judge classifies an incoming snapshot timestamp. Delivered snapshots are
// recorded as applied; the caller must actually apply them.
func (f *PushFilter) Judge(lastUpdated int64) Verdict {
	f.mu.Lock()
	defer f.mu.Unlock()

	verdict := VerdictDeliver
	switch {
	case f.editLease || f.inFlight:
		verdict = VerdictSuppressed
	case lastUpdated != 0 && lastUpdated <= f.lastApplied:
		verdict = VerdictStale
	default:
		if lastUpdated > f.lastApplied {
			f.lastApplied = lastUpdated
		}
	}

	if f.metrics != nil {
		f.metrics.NotificationsTotal.WithLabelValues(string(verdict)).Inc()
	}
	return verdict
}
