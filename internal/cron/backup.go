package cron

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"menubot/internal/storage"
)

// BackupJobName is the name the snapshot job is registered under.
const BackupJobName = "backup"

// BackupJob snapshots every table of store into dir and keeps the newest
// keep snapshots. keep <= 0 keeps everything.
func BackupJob(store storage.Store, dir string, keep int) JobFunc {
	return func(ctx context.Context) error {
		path, err := storage.Snapshot(ctx, store, storage.Tables, dir, time.Now())
		if err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
		log.Infof("💾 snapshot written to %s", path)

		if removed, err := PruneSnapshots(dir, keep); err != nil {
			log.Warnf("prune snapshots: %v", err)
		} else if removed > 0 {
			log.Debugf("pruned %d old snapshots", removed)
		}
		return nil
	}
}

// PruneSnapshots deletes all but the newest keep snapshot directories.
func PruneSnapshots(dir string, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	type snap struct {
		name string
		mod  time.Time
	}
	var snaps []snap
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		snaps = append(snaps, snap{e.Name(), info.ModTime()})
	}
	if len(snaps) <= keep {
		return 0, nil
	}

	sort.Slice(snaps, func(i, j int) bool {
		if !snaps[i].mod.Equal(snaps[j].mod) {
			return snaps[i].mod.After(snaps[j].mod)
		}
		return snaps[i].name > snaps[j].name
	})

	removed := 0
	for _, s := range snaps[keep:] {
		if err := os.RemoveAll(filepath.Join(dir, s.name)); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
