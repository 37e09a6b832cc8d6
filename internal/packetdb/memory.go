package packetdb

import (
	"bytes"
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/dmitrijs2005/bulletinkeeper/internal/common"
	"github.com/dmitrijs2005/bulletinkeeper/internal/packet"
)

// MemoryDatabase keeps records in a map. Visiting order is sorted by
// status, account and local id so results are stable.
type MemoryDatabase struct {
	mu      sync.RWMutex
	records map[packet.DatabaseKey][]byte
}

func NewMemoryDatabase() *MemoryDatabase {
	return &MemoryDatabase{records: make(map[packet.DatabaseKey][]byte)}
}

func (m *MemoryDatabase) WriteRecord(ctx context.Context, key packet.DatabaseKey, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = bytes.Clone(data)
	return nil
}

func (m *MemoryDatabase) ReadRecord(ctx context.Context, key packet.DatabaseKey) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.records[key]
	if !ok {
		return nil, common.ErrNotFound
	}
	return bytes.Clone(data), nil
}

func (m *MemoryDatabase) HasRecord(ctx context.Context, key packet.DatabaseKey) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.records[key]
	return ok, nil
}

func (m *MemoryDatabase) DeleteRecord(ctx context.Context, key packet.DatabaseKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}

func (m *MemoryDatabase) DeleteAllRecords(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[packet.DatabaseKey][]byte)
	return nil
}

func (m *MemoryDatabase) VisitAllRecords(ctx context.Context, fn func(key packet.DatabaseKey) error) error {
	return m.visit(ctx, func(packet.DatabaseKey) bool { return true }, fn)
}

func (m *MemoryDatabase) VisitAccountRecords(ctx context.Context, accountID string, fn func(key packet.DatabaseKey) error) error {
	return m.visit(ctx, func(k packet.DatabaseKey) bool { return k.UID.AccountID == accountID }, fn)
}

// visit snapshots the keys first so fn may write to the database.
func (m *MemoryDatabase) visit(ctx context.Context, match func(packet.DatabaseKey) bool, fn func(packet.DatabaseKey) error) error {
	m.mu.RLock()
	keys := make([]packet.DatabaseKey, 0, len(m.records))
	for k := range m.records {
		if match(k) {
			keys = append(keys, k)
		}
	}
	m.mu.RUnlock()

	slices.SortFunc(keys, CompareKeys)

	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(k); err != nil {
			return err
		}
	}
	return nil
}

// CompareKeys orders keys by status, account and local id.
func CompareKeys(a, b packet.DatabaseKey) int {
	if c := strings.Compare(string(a.Status), string(b.Status)); c != 0 {
		return c
	}
	if c := strings.Compare(a.UID.AccountID, b.UID.AccountID); c != 0 {
		return c
	}
	return strings.Compare(a.UID.LocalID, b.UID.LocalID)
}
