package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"menubot/internal/errorx"
	"menubot/internal/keylock"
	"menubot/internal/logger"
	"menubot/internal/menu"
	"menubot/internal/storage"
)

// DefaultTimeout is how long a session may idle before it snaps back to root.
const DefaultTimeout = 5 * time.Minute

// TransientChat routes free text to the chat responder instead of the menu.
const TransientChat = "chat"

var log = logger.Named("session")

// Session is one user's position in the menu.
type Session struct {
	UserID         string    `json:"userId"`
	CurrentNode    string    `json:"currentNode"`
	Breadcrumb     []string  `json:"breadcrumb"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	TransientMode  string    `json:"transientMode,omitempty"`
}

func (s Session) clone() Session {
	s.Breadcrumb = append([]string(nil), s.Breadcrumb...)
	return s
}

// Option configures a Manager.
type Option func(*Manager)

// WithTimeout overrides DefaultTimeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager owns every Session. Mutations of one user are serialized and
// written through to the store before they return. A failed write is
// reported but the in-memory state is kept.
type Manager struct {
	store   storage.Store
	catalog *menu.Catalog
	timeout time.Duration
	now     func() time.Time
	locks   *keylock.Locker

	mu       sync.RWMutex
	sessions map[string]Session
}

// NewManager creates an empty manager. Call Load to restore persisted sessions.
func NewManager(store storage.Store, catalog *menu.Catalog, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		catalog:  catalog,
		timeout:  DefaultTimeout,
		now:      time.Now,
		locks:    keylock.New(),
		sessions: make(map[string]Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Timeout returns the idle window.
func (m *Manager) Timeout() time.Duration { return m.timeout }

// Load rebuilds the in-memory table from the store. Sessions pointing at
// nodes that no longer exist are repaired to root.
func (m *Manager) Load(ctx context.Context) error {
	stored, err := storage.ListJSON[Session](ctx, m.store, storage.TableSessions, func(key string, err error) {
		log.Warnf("skipping undecodable session %q: %v", key, err)
	})
	if err != nil {
		return errorx.E(errorx.PersistenceFailure, "session.load", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for key, s := range stored {
		if s.UserID == "" {
			s.UserID = key
		}
		m.sessions[key] = m.repair(s)
	}
	log.Debugf("restored %d sessions", len(stored))
	return nil
}

// Count returns the number of known sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// GetOrCreate returns the user's session, creating and persisting a default
// one on first contact.
func (m *Manager) GetOrCreate(ctx context.Context, userID string) (Session, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()

	s, created := m.load(userID)
	if !created {
		return s.clone(), nil
	}
	return m.save(ctx, "session.create", s)
}

// CheckAndApplyTimeout resets the session to root when it has been idle
// longer than the timeout. It reports whether a reset happened. There is no
// background timer: a stale session stays stale until its user shows up.
func (m *Manager) CheckAndApplyTimeout(ctx context.Context, userID string) (bool, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()

	s, created := m.load(userID)
	if created {
		_, err := m.save(ctx, "session.create", s)
		return false, err
	}
	if m.now().Sub(s.LastActivityAt) <= m.timeout {
		return false, nil
	}

	s.CurrentNode = m.catalog.Root()
	s.Breadcrumb = nil
	s.TransientMode = ""
	s.LastActivityAt = m.now()
	_, err := m.save(ctx, "session.timeout", s)
	return true, err
}

// Peek returns the user's session without creating or resetting it.
func (m *Manager) Peek(userID string) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[userID]
	if !ok {
		return Session{}, false
	}
	return s.clone(), true
}

// NavigateTo moves the user to target if v may open it. The current node is
// pushed onto the breadcrumb unless target is the current node. Gate failures
// return a CapabilityDenied error and leave the session untouched; an unknown
// user stays unknown.
func (m *Manager) NavigateTo(ctx context.Context, userID, target string, v menu.Viewer) (Session, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()

	s, _ := m.load(userID)
	if err := m.catalog.CheckAccess(target, v); err != nil {
		return s.clone(), err
	}

	if target != s.CurrentNode {
		s.Breadcrumb = append(s.Breadcrumb, s.CurrentNode)
		s.CurrentNode = target
	}
	s.TransientMode = ""
	s.LastActivityAt = m.now()
	return m.save(ctx, "session.navigate", s)
}

// NavigateBack pops the breadcrumb, falling back to root when it is empty.
// Entries v may no longer open are popped and skipped.
func (m *Manager) NavigateBack(ctx context.Context, userID string, v menu.Viewer) (Session, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()

	s, _ := m.load(userID)
	s.CurrentNode = m.catalog.Root()
	for n := len(s.Breadcrumb); n > 0; n-- {
		prev := s.Breadcrumb[n-1]
		s.Breadcrumb = s.Breadcrumb[:n-1]
		if m.catalog.CheckAccess(prev, v) == nil {
			s.CurrentNode = prev
			break
		}
		log.Debugf("back for %s skips %s", userID, prev)
	}
	s.TransientMode = ""
	s.LastActivityAt = m.now()
	return m.save(ctx, "session.back", s)
}

// SetTransientMode tags the session (e.g. TransientChat); "" clears it.
func (m *Manager) SetTransientMode(ctx context.Context, userID, mode string) (Session, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()

	s, _ := m.load(userID)
	s.TransientMode = mode
	s.LastActivityAt = m.now()
	return m.save(ctx, "session.transient", s)
}

// Touch refreshes the activity timestamp without moving.
func (m *Manager) Touch(ctx context.Context, userID string) (Session, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()

	s, _ := m.load(userID)
	s.LastActivityAt = m.now()
	return m.save(ctx, "session.touch", s)
}

// load returns the stored session or a fresh default. Callers hold the user lock.
func (m *Manager) load(userID string) (Session, bool) {
	m.mu.RLock()
	s, ok := m.sessions[userID]
	m.mu.RUnlock()
	if ok {
		return s.clone(), false
	}
	return Session{
		UserID:         userID,
		CurrentNode:    m.catalog.Root(),
		LastActivityAt: m.now(),
	}, true
}

// save publishes s in memory and writes it through. Callers hold the user lock.
func (m *Manager) save(ctx context.Context, op string, s Session) (Session, error) {
	m.mu.Lock()
	m.sessions[s.UserID] = s.clone()
	m.mu.Unlock()

	if err := storage.PutJSON(ctx, m.store, storage.TableSessions, s.UserID, s); err != nil {
		perr := errorx.E(errorx.PersistenceFailure, op, fmt.Errorf("user %s: %w", s.UserID, err))
		errorx.Report(perr, "session write-through failed")
		return s.clone(), perr
	}
	return s.clone(), nil
}

func (m *Manager) repair(s Session) Session {
	if !m.catalog.Has(s.CurrentNode) {
		log.Warnf("session %s points at unknown node %q, resetting to root", s.UserID, s.CurrentNode)
		s.CurrentNode = m.catalog.Root()
		s.Breadcrumb = nil
		return s
	}
	kept := s.Breadcrumb[:0]
	for _, key := range s.Breadcrumb {
		if m.catalog.Has(key) {
			kept = append(kept, key)
		}
	}
	s.Breadcrumb = kept
	return s
}
