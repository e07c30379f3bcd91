package roles

import (
	"strings"
	"sync"
)

// Role is a capability tier. Higher values include the lower ones.
type Role int

const (
	Guest Role = iota
	Admin
	Owner
)

func (r Role) String() string {
	switch r {
	case Owner:
		return "owner"
	case Admin:
		return "admin"
	default:
		return "guest"
	}
}

// Parse maps a role name to a Role. The second result is false for unknown names.
func Parse(name string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "guest", "":
		return Guest, true
	case "admin":
		return Admin, true
	case "owner":
		return Owner, true
	default:
		return Guest, false
	}
}

// Meets reports whether r is at least min.
func (r Role) Meets(min Role) bool {
	return r >= min
}

// Normalize strips the protocol suffix ("@s.whatsapp.net") and the
// multi-device or group-creator sub-suffix (":12", "-1600000000").
func Normalize(id string) string {
	id = strings.TrimSpace(id)
	if i := strings.IndexByte(id, '@'); i >= 0 {
		id = id[:i]
	}
	if i := strings.IndexAny(id, ":-"); i >= 0 {
		id = id[:i]
	}
	return id
}

// Resolver maps participant identifiers to roles.
type Resolver struct {
	mu     sync.RWMutex
	owner  string
	admins map[string]struct{}
}

// NewResolver builds a resolver. The owner is always an admin too.
func NewResolver(owner string, admins []string) *Resolver {
	r := &Resolver{}
	r.Update(owner, admins)
	return r
}

// Update swaps the owner and admin set, e.g. after a config reload.
func (r *Resolver) Update(owner string, admins []string) {
	set := make(map[string]struct{}, len(admins))
	for _, a := range admins {
		if n := Normalize(a); n != "" {
			set[n] = struct{}{}
		}
	}

	r.mu.Lock()
	r.owner = Normalize(owner)
	r.admins = set
	r.mu.Unlock()
}

// Resolve returns the role of id. Unknown identifiers are guests.
func (r *Resolver) Resolve(id string) Role {
	n := Normalize(id)
	if n == "" {
		return Guest
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.owner != "" && n == r.owner {
		return Owner
	}
	if _, ok := r.admins[n]; ok {
		return Admin
	}
	return Guest
}

// Owner returns the normalized owner identifier.
func (r *Resolver) Owner() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.owner
}

// AdminCount returns the number of configured admins, owner included.
func (r *Resolver) AdminCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := len(r.admins)
	if _, listed := r.admins[r.owner]; r.owner != "" && !listed {
		n++
	}
	return n
}
