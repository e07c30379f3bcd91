package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Snapshot writes every table in tables to <baseDir>/<timestamp>/<table>.json
// as a key → record object and returns the directory it created.
func Snapshot(ctx context.Context, s Store, tables []string, baseDir string, now time.Time) (string, error) {
	stamp := strings.NewReplacer(":", "-", ".", "-").Replace(now.UTC().Format(time.RFC3339Nano))
	dir := filepath.Join(baseDir, stamp)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	for _, table := range tables {
		records, err := s.ListAll(ctx, table)
		if err != nil {
			return dir, fmt.Errorf("list %s: %w", table, err)
		}

		doc := make(map[string]json.RawMessage, len(records))
		for _, rec := range records {
			if json.Valid(rec.Data) {
				doc[rec.Key] = rec.Data
			} else {
				quoted, _ := json.Marshal(string(rec.Data))
				doc[rec.Key] = quoted
			}
		}

		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return dir, fmt.Errorf("encode %s: %w", table, err)
		}
		if err := os.WriteFile(filepath.Join(dir, table+".json"), data, 0644); err != nil {
			return dir, fmt.Errorf("write %s: %w", table, err)
		}
	}

	return dir, nil
}
