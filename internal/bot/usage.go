package bot

import (
	"sync"
	"time"
)

// UsageTracker counts messages per user since start. It is not persisted.
type UsageTracker struct {
	mu    sync.Mutex
	users map[string]*UserUsage
}

// UserUsage is the activity of one user.
type UserUsage struct {
	Messages  int
	Commands  int
	FirstSeen time.Time
	LastSeen  time.Time
}

// NewUsageTracker creates an empty tracker.
func NewUsageTracker() *UsageTracker {
	return &UsageTracker{users: make(map[string]*UserUsage)}
}

// Record counts one message; command marks it as a bot command.
func (u *UsageTracker) Record(userID string, command bool, at time.Time) {
	u.mu.Lock()
	defer u.mu.Unlock()

	existing, ok := u.users[userID]
	if !ok {
		existing = &UserUsage{FirstSeen: at}
		u.users[userID] = existing
	}
	existing.Messages++
	if command {
		existing.Commands++
	}
	existing.LastSeen = at
}

// Get returns a copy of the user's usage.
func (u *UsageTracker) Get(userID string) (UserUsage, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	usage, ok := u.users[userID]
	if !ok {
		return UserUsage{}, false
	}
	return *usage, true
}

// ActiveUsers returns how many users have been seen.
func (u *UsageTracker) ActiveUsers() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.users)
}
