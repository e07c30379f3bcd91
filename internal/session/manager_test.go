package session

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"menubot/internal/errorx"
	"menubot/internal/menu"
	"menubot/internal/roles"
	"menubot/internal/storage"
)

type flagMap map[string]bool

func (f flagMap) Enabled(name string) bool { return f["masterSwitch"] && f[name] }

var allOn = flagMap{
	"masterSwitch": true, "creativeHub": true, "gamesArena": true,
	"utilityCenter": true, "analyticsPanel": true, "funZone": true,
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestManager(t *testing.T, store storage.Store) (*Manager, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewManager(store, menu.Default(), WithClock(clock.Now)), clock
}

func TestGetOrCreateDefaults(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	m, _ := newTestManager(t, store)

	s, err := m.GetOrCreate(ctx, "u1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if s.CurrentNode != "main" || len(s.Breadcrumb) != 0 || s.TransientMode != "" {
		t.Errorf("unexpected default session: %+v", s)
	}

	var stored Session
	if found, _ := storage.GetJSON(ctx, store, storage.TableSessions, "u1", &stored); !found {
		t.Error("new sessions must be persisted")
	}
}

func TestNavigateAndBack(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, storage.NewMemory())
	admin := menu.Viewer{Role: roles.Admin, Flags: allOn}

	if _, err := m.NavigateTo(ctx, "u1", "games", admin); err != nil {
		t.Fatalf("NavigateTo games: %v", err)
	}
	s, err := m.NavigateTo(ctx, "u1", "admin", admin)
	if err != nil {
		t.Fatalf("NavigateTo admin: %v", err)
	}
	if s.CurrentNode != "admin" || len(s.Breadcrumb) != 2 {
		t.Fatalf("after two hops: %+v", s)
	}

	// No-op navigation does not push.
	s, _ = m.NavigateTo(ctx, "u1", "admin", admin)
	if len(s.Breadcrumb) != 2 {
		t.Errorf("navigating to the current node pushed: %+v", s.Breadcrumb)
	}

	s, _ = m.NavigateBack(ctx, "u1", admin)
	if s.CurrentNode != "games" {
		t.Errorf("back -> %q, want games", s.CurrentNode)
	}
	s, _ = m.NavigateBack(ctx, "u1", admin)
	if s.CurrentNode != "main" {
		t.Errorf("back -> %q, want main", s.CurrentNode)
	}
}

func TestBackOnEmptyBreadcrumbStaysAtRoot(t *testing.T) {
	m, _ := newTestManager(t, storage.NewMemory())

	for i := 0; i < 3; i++ {
		s, err := m.NavigateBack(context.Background(), "u1", menu.Viewer{})
		if err != nil {
			t.Fatalf("NavigateBack: %v", err)
		}
		if s.CurrentNode != "main" || len(s.Breadcrumb) != 0 {
			t.Errorf("back #%d: %+v", i+1, s)
		}
	}
}

func TestBackSkipsEntriesTheViewerCanNoLongerOpen(t *testing.T) {
	ctx := context.Background()
	admin := menu.Viewer{Role: roles.Admin, Flags: allOn}

	tests := []struct {
		name   string
		viewer menu.Viewer
		want   string
		depth  int
	}{
		{"still allowed", admin, "admin", 2},
		{"demoted", menu.Viewer{Role: roles.Guest, Flags: allOn}, "games", 1},
		{"flag turned off", menu.Viewer{Role: roles.Guest, Flags: flagMap{"masterSwitch": true, "funZone": true}}, "main", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestManager(t, storage.NewMemory())
			for _, target := range []string{"games", "admin", "fun"} {
				if _, err := m.NavigateTo(ctx, "u1", target, admin); err != nil {
					t.Fatalf("NavigateTo %s: %v", target, err)
				}
			}

			s, err := m.NavigateBack(ctx, "u1", tt.viewer)
			if err != nil {
				t.Fatalf("NavigateBack: %v", err)
			}
			if s.CurrentNode != tt.want || len(s.Breadcrumb) != tt.depth {
				t.Errorf("back -> %s %v, want %s at depth %d", s.CurrentNode, s.Breadcrumb, tt.want, tt.depth)
			}
		})
	}
}

func TestNavigateDeniedLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	m, clock := newTestManager(t, storage.NewMemory())
	guest := menu.Viewer{Role: roles.Guest, Flags: allOn}

	before, _ := m.NavigateTo(ctx, "u1", "games", guest)
	clock.Advance(time.Minute)

	after, err := m.NavigateTo(ctx, "u1", "admin", guest)
	if !errors.Is(err, errorx.ErrCapabilityDenied) {
		t.Fatalf("expected capability denied, got %v", err)
	}
	if after.CurrentNode != "games" || len(after.Breadcrumb) != len(before.Breadcrumb) {
		t.Errorf("denied navigation changed state: %+v", after)
	}
	if !after.LastActivityAt.Equal(before.LastActivityAt) {
		t.Error("denied navigation must not mutate the session")
	}

	flags := flagMap{"masterSwitch": true, "gamesArena": false}
	if _, err := m.NavigateTo(ctx, "u2", "games", menu.Viewer{Role: roles.Owner, Flags: flags}); !errors.Is(err, errorx.ErrCapabilityDenied) {
		t.Errorf("disabled flag should deny even the owner, got %v", err)
	}
}

func TestIdleTimeoutResetsToRoot(t *testing.T) {
	ctx := context.Background()
	m, clock := newTestManager(t, storage.NewMemory())
	owner := menu.Viewer{Role: roles.Owner, Flags: allOn}

	m.NavigateTo(ctx, "u1", "admin", owner)
	m.SetTransientMode(ctx, "u1", TransientChat)

	clock.Advance(DefaultTimeout)
	if reset, _ := m.CheckAndApplyTimeout(ctx, "u1"); reset {
		t.Fatal("exactly the timeout is not idle yet")
	}

	clock.Advance(time.Second)
	reset, err := m.CheckAndApplyTimeout(ctx, "u1")
	if err != nil || !reset {
		t.Fatalf("expected reset, got %v %v", reset, err)
	}

	s, _ := m.GetOrCreate(ctx, "u1")
	if s.CurrentNode != "main" || len(s.Breadcrumb) != 0 || s.TransientMode != "" {
		t.Errorf("after timeout: %+v", s)
	}
}

func TestTimeoutOnUnknownUserDoesNotReset(t *testing.T) {
	m, _ := newTestManager(t, storage.NewMemory())
	if reset, _ := m.CheckAndApplyTimeout(context.Background(), "new"); reset {
		t.Error("a brand new session is never stale")
	}
	if m.Count() != 1 {
		t.Errorf("Count() = %d, want 1", m.Count())
	}
}

func TestTimeoutResetRefreshesActivity(t *testing.T) {
	ctx := context.Background()
	m, clock := newTestManager(t, storage.NewMemory())
	m.NavigateTo(ctx, "u1", "games", menu.Viewer{Flags: allOn})

	clock.Advance(time.Hour)
	if reset, _ := m.CheckAndApplyTimeout(ctx, "u1"); !reset {
		t.Fatal("expected a reset")
	}
	s, _ := m.Peek("u1")
	if !s.LastActivityAt.Equal(clock.Now()) {
		t.Errorf("LastActivityAt = %s, want %s", s.LastActivityAt, clock.Now())
	}

	clock.Advance(time.Second)
	if reset, _ := m.CheckAndApplyTimeout(ctx, "u1"); reset {
		t.Error("a session that was just reset must not reset again")
	}
}

func TestPeekDoesNotCreate(t *testing.T) {
	m, _ := newTestManager(t, storage.NewMemory())
	if _, ok := m.Peek("u1"); ok {
		t.Error("Peek found a session that was never created")
	}
	if m.Count() != 0 {
		t.Errorf("Count() = %d after Peek", m.Count())
	}
}

func TestDeniedNavigationDoesNotCreateSession(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	m, _ := newTestManager(t, store)

	_, err := m.NavigateTo(ctx, "u1", "admin", menu.Viewer{Role: roles.Guest, Flags: allOn})
	if !errors.Is(err, errorx.ErrCapabilityDenied) {
		t.Fatalf("expected capability denied, got %v", err)
	}
	if _, ok := m.Peek("u1"); ok {
		t.Error("denied navigation created a session")
	}
	var stored Session
	if found, _ := storage.GetJSON(ctx, store, storage.TableSessions, "u1", &stored); found {
		t.Error("denied navigation wrote a session")
	}
}

func TestLoadRestoresAndRepairs(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	m, _ := newTestManager(t, store)
	m.NavigateTo(ctx, "u1", "fun", menu.Viewer{Flags: allOn})

	storage.PutJSON(ctx, store, storage.TableSessions, "u2", Session{UserID: "u2", CurrentNode: "removed", Breadcrumb: []string{"main"}})
	storage.PutJSON(ctx, store, storage.TableSessions, "u3", Session{UserID: "u3", CurrentNode: "games", Breadcrumb: []string{"main", "gone"}})

	restored, _ := newTestManager(t, store)
	if err := restored.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if s, _ := restored.GetOrCreate(ctx, "u1"); s.CurrentNode != "fun" {
		t.Errorf("u1 not restored: %+v", s)
	}
	if s, _ := restored.GetOrCreate(ctx, "u2"); s.CurrentNode != "main" || len(s.Breadcrumb) != 0 {
		t.Errorf("u2 not repaired: %+v", s)
	}
	if s, _ := restored.GetOrCreate(ctx, "u3"); len(s.Breadcrumb) != 1 || s.Breadcrumb[0] != "main" {
		t.Errorf("u3 breadcrumb not filtered: %+v", s)
	}
}

func TestPersistenceFailureKeepsMemoryState(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	m, _ := newTestManager(t, store)
	store.FailPuts = errors.New("disk full")

	s, err := m.NavigateTo(ctx, "u1", "help", menu.Viewer{Flags: allOn})
	if !errors.Is(err, errorx.ErrPersistenceFailure) {
		t.Fatalf("expected persistence failure, got %v", err)
	}
	if s.CurrentNode != "help" {
		t.Errorf("in-memory state should move on: %+v", s)
	}
	if got, _ := m.GetOrCreate(ctx, "u1"); got.CurrentNode != "help" {
		t.Errorf("GetOrCreate = %+v", got)
	}
}

func TestCurrentNodeAlwaysValid(t *testing.T) {
	ctx := context.Background()
	catalog := menu.Default()
	m, clock := newTestManager(t, storage.NewMemory())
	rng := rand.New(rand.NewSource(7))
	keys := append(catalog.Keys(), "ghost", "")
	viewers := []menu.Viewer{
		{Role: roles.Guest, Flags: allOn},
		{Role: roles.Admin, Flags: allOn},
		{Role: roles.Owner, Flags: flagMap{}},
	}

	for i := 0; i < 2000; i++ {
		var s Session
		switch rng.Intn(4) {
		case 0:
			s, _ = m.NavigateBack(ctx, "u1", viewers[rng.Intn(len(viewers))])
		case 1:
			clock.Advance(time.Duration(rng.Intn(400)) * time.Second)
			m.CheckAndApplyTimeout(ctx, "u1")
			s, _ = m.GetOrCreate(ctx, "u1")
		default:
			s, _ = m.NavigateTo(ctx, "u1", keys[rng.Intn(len(keys))], viewers[rng.Intn(len(viewers))])
		}
		if !catalog.Has(s.CurrentNode) {
			t.Fatalf("step %d: current node %q is not in the catalog", i, s.CurrentNode)
		}
		for j := 1; j < len(s.Breadcrumb); j++ {
			if s.Breadcrumb[j] == s.Breadcrumb[j-1] {
				t.Fatalf("step %d: repeated entry in %v", i, s.Breadcrumb)
			}
		}
		if n := len(s.Breadcrumb); n > 0 && s.Breadcrumb[n-1] == s.CurrentNode {
			t.Fatalf("step %d: breadcrumb top %q equals the current node", i, s.CurrentNode)
		}
	}
}

func TestConcurrentNavigationIsSerialized(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, storage.NewMemory())
	v := menu.Viewer{Role: roles.Owner, Flags: allOn}
	targets := []string{"games", "fun", "help", "admin"}

	results := make([]Session, 100)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := m.NavigateTo(ctx, "u1", targets[i%len(targets)], v)
			if err != nil {
				t.Errorf("NavigateTo: %v", err)
			}
			results[i] = s
		}(i)
	}
	wg.Wait()

	final, _ := m.GetOrCreate(ctx, "u1")

	// Every push adds exactly one entry, and a no-op returns the state of the
	// push before it. Group the results by depth and replay the chain.
	byDepth := make(map[int]Session)
	for _, s := range results {
		depth := len(s.Breadcrumb)
		if prev, ok := byDepth[depth]; ok {
			if prev.CurrentNode != s.CurrentNode {
				t.Fatalf("two pushes landed at depth %d: %s and %s", depth, prev.CurrentNode, s.CurrentNode)
			}
			continue
		}
		byDepth[depth] = s
	}

	pushes := len(byDepth)
	if len(final.Breadcrumb) != pushes {
		t.Fatalf("breadcrumb depth %d, effective pushes %d", len(final.Breadcrumb), pushes)
	}
	for depth := 1; depth <= pushes; depth++ {
		s, ok := byDepth[depth]
		if !ok {
			t.Fatalf("no result at depth %d", depth)
		}
		if final.Breadcrumb[depth-1] != prevNode(byDepth, depth-1, m.catalog.Root()) {
			t.Errorf("breadcrumb[%d] = %s, want %s", depth-1, final.Breadcrumb[depth-1], prevNode(byDepth, depth-1, m.catalog.Root()))
		}
		if depth == pushes && s.CurrentNode != final.CurrentNode {
			t.Errorf("current = %s, last push went to %s", final.CurrentNode, s.CurrentNode)
		}
	}
}

func prevNode(byDepth map[int]Session, depth int, root string) string {
	if depth == 0 {
		return root
	}
	return byDepth[depth].CurrentNode
}
