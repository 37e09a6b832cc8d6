package staging

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/bulletinkeeper/internal/transfer"
)

type memoryEntry struct {
	data    []byte
	expires time.Time
}

// Memory keeps uploads in process memory.
type Memory struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[Key]memoryEntry
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, now: time.Now, entries: map[Key]memoryEntry{}}
}

func (m *Memory) Load(_ context.Context, key Key) (*transfer.Partial, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, key)
		return nil, nil
	}
	return decode(e.data)
}

func (m *Memory) Save(_ context.Context, key Key, p *transfer.Partial) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{data: encode(p), expires: m.now().Add(m.ttl)}
	return nil
}

func (m *Memory) Delete(_ context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *Memory) Close() error { return nil }
