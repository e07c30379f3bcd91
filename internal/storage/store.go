package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Table names used by the bot.
const (
	TableSessions         = "sessions"
	TableReactionCounters = "reactionCounters"
	TableFeatureFlags     = "featureFlags"
)

// Tables lists every table that snapshots archive.
var Tables = []string{TableSessions, TableReactionCounters, TableFeatureFlags}

// Record is one stored value.
type Record struct {
	Key       string
	Data      []byte
	UpdatedAt time.Time
}

// Store is an opaque durable key-value store partitioned into tables.
type Store interface {
	// Get returns the record data, or found=false when absent.
	Get(ctx context.Context, table, key string) (data []byte, found bool, err error)
	// Put inserts or replaces a record.
	Put(ctx context.Context, table, key string, data []byte) error
	// ListAll returns every record of a table ordered by key.
	ListAll(ctx context.Context, table string) ([]Record, error)
}

// GetJSON decodes the record at table/key into dst.
func GetJSON(ctx context.Context, s Store, table, key string, dst any) (bool, error) {
	data, found, err := s.Get(ctx, table, key)
	if err != nil || !found {
		return found, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return true, fmt.Errorf("decode %s/%s: %w", table, key, err)
	}
	return true, nil
}

// PutJSON encodes v and stores it at table/key.
func PutJSON(ctx context.Context, s Store, table, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", table, key, err)
	}
	return s.Put(ctx, table, key, data)
}

// ListJSON decodes every record of table. Records that fail to decode are
// reported through skip and left out.
func ListJSON[T any](ctx context.Context, s Store, table string, skip func(key string, err error)) (map[string]T, error) {
	records, err := s.ListAll(ctx, table)
	if err != nil {
		return nil, err
	}

	out := make(map[string]T, len(records))
	for _, rec := range records {
		var v T
		if err := json.Unmarshal(rec.Data, &v); err != nil {
			if skip != nil {
				skip(rec.Key, err)
			}
			continue
		}
		out[rec.Key] = v
	}
	return out, nil
}
