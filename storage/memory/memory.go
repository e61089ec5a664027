// Package memory is the in-memory storage collaborator used in tests and
// single-process devnets.
package memory

import (
	"context"
	"sync"

	"github.com/finlabs/ffg/types"
)

// Store is an in-memory implementation of storage.Store.
type Store struct {
	mu       sync.RWMutex
	byHeight map[types.Height]*types.MarkFinalizedRequest
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{byHeight: make(map[types.Height]*types.MarkFinalizedRequest)}
}

func (m *Store) MarkFinalized(ctx context.Context, req *types.MarkFinalizedRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.byHeight[req.BlockHeight]; ok && existing.CorrelationID == req.CorrelationID {
		return nil // idempotent redelivery
	}
	stored := *req
	m.byHeight[req.BlockHeight] = &stored
	return nil
}

func (m *Store) Finalized(ctx context.Context, height types.Height) (*types.MarkFinalizedRequest, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.byHeight[height]
	if !ok {
		return nil, false, nil
	}
	out := *req
	return &out, true, nil
}

// Requests returns a copy of all recorded notices, for test assertions.
func (m *Store) Requests() []*types.MarkFinalizedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*types.MarkFinalizedRequest, 0, len(m.byHeight))
	for _, req := range m.byHeight {
		cp := *req
		out = append(out, &cp)
	}
	return out
}

func (m *Store) Close() error { return nil }
