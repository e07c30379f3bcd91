package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Store. It does not survive restarts; tests and the
// console command use it. FailPuts makes every Put return the given error.
type Memory struct {
	mu       sync.RWMutex
	tables   map[string]map[string]Record
	FailPuts error
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{tables: make(map[string]map[string]Record)}
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, table, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.tables[table][key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), rec.Data...), true, nil
}

// Put implements Store.
func (m *Memory) Put(_ context.Context, table, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailPuts != nil {
		return m.FailPuts
	}
	if m.tables[table] == nil {
		m.tables[table] = make(map[string]Record)
	}
	m.tables[table][key] = Record{
		Key:       key,
		Data:      append([]byte(nil), data...),
		UpdatedAt: time.Now().UTC(),
	}
	return nil
}

// ListAll implements Store.
func (m *Memory) ListAll(_ context.Context, table string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]Record, 0, len(m.tables[table]))
	for _, rec := range m.tables[table] {
		rec.Data = append([]byte(nil), rec.Data...)
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
	return records, nil
}
