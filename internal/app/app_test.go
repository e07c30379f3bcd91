package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"menubot/internal/config"
	"menubot/internal/features"
	"menubot/internal/outbound"
	"menubot/internal/roles"
	"menubot/internal/storage"
	"menubot/internal/tracker"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `roles:
  owner: "owner"
  admins: ["admin1"]
features:
  funzone: false
backup:
  schedule: ""
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	// Keep the watcher out of unit tests.
	cfg.ConfigPath = ""
	return cfg
}

func TestInitAppliesConfig(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	storage.PutJSON(ctx, store, storage.TableReactionCounters, "room_9", tracker.Counter{
		MessageKey: "room_9", ID: "SC-0001", Count: 4,
	})

	a := New(testConfig(t), store)
	if err := a.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}

	if a.Flags().Raw(features.FunZone) {
		t.Error("funZone should come from the features section, case-insensitively")
	}
	if !a.Flags().Raw(features.StockCount) {
		t.Error("unlisted flags keep their defaults")
	}
	if rec, ok := a.Tracker().Get("room_9"); !ok || rec.Count != 4 {
		t.Errorf("restored counter = %+v, %v", rec, ok)
	}
	if a.Sessions().Timeout() != 5*time.Minute {
		t.Errorf("timeout = %s", a.Sessions().Timeout())
	}

	first := a.dispatcher
	if err := a.Init(ctx); err != nil || a.dispatcher != first {
		t.Error("second Init should be a no-op")
	}
}

func TestInitRejectsMissingCatalog(t *testing.T) {
	cfg := testConfig(t)
	cfg.Menu.Catalog = filepath.Join(t.TempDir(), "missing.yaml")

	if err := New(cfg, storage.NewMemory()).Init(context.Background()); err == nil {
		t.Error("expected an error for a missing catalog file")
	}
}

func TestApplyConfigUpdatesRoles(t *testing.T) {
	a := New(testConfig(t), storage.NewMemory())
	if err := a.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	next := testConfig(t)
	next.Roles.Owner = "new-owner"
	next.Roles.Admins = nil
	a.applyConfig(next)

	if got := a.roles.Resolve("new-owner"); got != roles.Owner {
		t.Errorf("new owner role = %s", got)
	}
	if got := a.roles.Resolve("admin1"); got != roles.Guest {
		t.Errorf("removed admin role = %s", got)
	}
}

func TestRunConsole(t *testing.T) {
	a := New(testConfig(t), storage.NewMemory())

	in := strings.NewReader(".menu\nnew stock count today\n/react 2\n/quit\n")
	var out bytes.Buffer
	if err := a.RunConsole(context.Background(), in, &out, "room", "owner", true); err != nil {
		t.Fatalf("RunConsole: %v", err)
	}

	if !strings.Contains(out.String(), "MAIN MENU") {
		t.Errorf("menu missing from output:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "STOCK SIGNAL DETECTED") {
		t.Errorf("detection alert missing from output:\n%s", out.String())
	}
	if rec, ok := a.Tracker().Get("room_2"); !ok || rec.Count != 1 {
		t.Errorf("counter = %+v, %v", rec, ok)
	}
	if a.outbound != nil {
		t.Error("RunConsole should stop the outbound queue on return")
	}
}

type deadlineTransport struct {
	mu        sync.Mutex
	remaining []time.Duration
}

func (d *deadlineTransport) SendText(ctx context.Context, _, _ string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		d.remaining = append(d.remaining, time.Until(deadline))
	}
	return nil
}

func (d *deadlineTransport) SendReaction(context.Context, string, string, string) error {
	return nil
}

func TestStopTakesFinalSnapshot(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Backup.Schedule = "0 0 */6 * * *"
	cfg.Backup.Dir = filepath.Join(t.TempDir(), "backups")

	a := New(cfg, storage.NewMemory())
	if err := a.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	a.startBackground(ctx, &deadlineTransport{})
	if err := a.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	entries, err := os.ReadDir(cfg.Backup.Dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("snapshots after stop = %v, %v", entries, err)
	}

	if err := a.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if entries, _ := os.ReadDir(cfg.Backup.Dir); len(entries) != 1 {
		t.Errorf("second Stop took another snapshot: %d", len(entries))
	}
}

func TestStopWithoutScheduleSkipsSnapshot(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Backup.Dir = filepath.Join(t.TempDir(), "backups")

	a := New(cfg, storage.NewMemory())
	if err := a.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	a.startBackground(ctx, &deadlineTransport{})
	a.Stop()

	if _, err := os.Stat(cfg.Backup.Dir); !os.IsNotExist(err) {
		t.Errorf("backup dir should not exist without a schedule: %v", err)
	}
}

func TestSendTimeoutFromConfig(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Send.Timeout = 5 * time.Second

	a := New(cfg, storage.NewMemory())
	if err := a.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	transport := &deadlineTransport{}
	a.startBackground(ctx, transport)
	if err := a.outbound.Schedule(outbound.Text("room", "hi", 0, 0)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	a.Stop()

	transport.mu.Lock()
	defer transport.mu.Unlock()
	if len(transport.remaining) != 1 {
		t.Fatalf("sends = %d", len(transport.remaining))
	}
	if left := transport.remaining[0]; left <= 0 || left > 5*time.Second {
		t.Errorf("send deadline %s away, want within 5s", left)
	}
}
