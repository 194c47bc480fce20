package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/marwant/zizh/internal/recording"
)

// Memory is an in-process Engine, used for previews, tests and the
// "memory" storage backend.
type Memory struct {
	mu      sync.RWMutex
	records map[uuid.UUID]recording.Recording
	closed  bool
}

func NewMemory() *Memory {
	return &Memory{records: make(map[uuid.UUID]recording.Recording)}
}

func (m *Memory) Insert(ctx context.Context, rec recording.Recording) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.records[rec.ID] = rec
	return nil
}

func (m *Memory) Delete(ctx context.Context, rec recording.Recording) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if _, ok := m.records[rec.ID]; !ok {
		return ErrNotFound
	}
	delete(m.records, rec.ID)
	return nil
}

func (m *Memory) FetchAll(ctx context.Context, order Sort) ([]recording.Recording, error) {
	return m.Fetch(ctx, Everything, order)
}

func (m *Memory) Fetch(ctx context.Context, match Predicate, order Sort) ([]recording.Recording, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	out := make([]recording.Recording, 0, len(m.records))
	for _, rec := range m.records {
		if match == nil || match(rec) {
			out = append(out, rec)
		}
	}
	order.Apply(out)
	return out, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
