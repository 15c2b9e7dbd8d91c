package presence

import (
	"sort"
	"sync"
)

// Tracker maintains the set of users considered online. A user is marked
// online when they explicitly join a chat context, not merely on
// connecting; disconnect always forces them offline.
type Tracker struct {
	mu     sync.RWMutex
	online map[string]struct{}
}

func NewTracker() *Tracker {
	return &Tracker{
		online: make(map[string]struct{}),
	}
}

func (t *Tracker) MarkOnline(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.online[userID] = struct{}{}
}

func (t *Tracker) MarkOffline(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.online, userID)
}

// Snapshot returns a sorted copy of the online set at call time. The
// returned slice is owned by the caller and does not track later changes.
func (t *Tracker) Snapshot() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	users := make([]string, 0, len(t.online))
	for id := range t.online {
		users = append(users, id)
	}
	sort.Strings(users)
	return users
}
