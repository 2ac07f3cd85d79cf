// README: In-memory join request store.
package join

import (
	"context"
	"sort"
	"sync"

	"github.com/oxymore-tech/liane-sub002/internal/types"
)

type MemoryStore struct {
	mu       sync.Mutex
	requests map[types.ID]*Request
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{requests: make(map[types.ID]*Request)}
}

func (m *MemoryStore) Insert(_ context.Context, r *Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.requests[r.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id types.ID) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) Delete(_ context.Context, id types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[id]; !ok {
		return ErrNotFound
	}
	delete(m.requests, id)
	return nil
}

func (m *MemoryStore) ListByTrip(_ context.Context, tripID types.ID) ([]*Request, error) {
	return m.filter(func(r *Request) bool { return r.TripID == tripID }), nil
}

func (m *MemoryStore) ListByRequester(_ context.Context, userID types.ID) ([]*Request, error) {
	return m.filter(func(r *Request) bool { return r.Requester == userID }), nil
}

func (m *MemoryStore) filter(keep func(*Request) bool) []*Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Request
	for _, r := range m.requests {
		if keep(r) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
