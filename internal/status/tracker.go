// Package status holds the sync status of the running process. The tracker
// is created and owned by the orchestrator; there is no package-level state.
package status

import (
	"sync"

	"github.com/dmitrijs2005/carekeeper/internal/models"
)

// Tracker is a mutex-guarded SyncStatus with change notification.
type Tracker struct {
	mu   sync.RWMutex
	st   models.SyncStatus
	subs map[int]chan models.SyncStatus
	next int
}

func NewTracker() *Tracker {
	return &Tracker{subs: make(map[int]chan models.SyncStatus)}
}

func (t *Tracker) Get() models.SyncStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.st
}

// Update replaces the status. A zero LastSyncTime keeps the previous one, so
// a failed run does not erase the time of the last good one. Update matches
// backup.ProgressFunc.
func (t *Tracker) Update(s models.SyncStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s.LastSyncTime.IsZero() {
		s.LastSyncTime = t.st.LastSyncTime
	}
	if s.Progress < 0 {
		s.Progress = 0
	}
	if s.Progress > 100 {
		s.Progress = 100
	}
	t.st = s

	for _, ch := range t.subs {
		// slow subscribers only ever see the latest value
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

// Subscribe returns a channel receiving every status change and a function
// that stops the subscription.
func (t *Tracker) Subscribe() (<-chan models.SyncStatus, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.next
	t.next++
	ch := make(chan models.SyncStatus, 1)
	t.subs[id] = ch

	return ch, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if _, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(ch)
		}
	}
}
