// README: In-memory tracking store.
package tracking

import (
	"context"
	"sort"
	"sync"

	"github.com/oxymore-tech/liane-sub002/internal/types"
)

type MemoryStore struct {
	mu    sync.Mutex
	trips map[types.ID]map[types.ID]MemberLocation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{trips: make(map[types.ID]map[types.ID]MemberLocation)}
}

func (m *MemoryStore) SetMember(_ context.Context, tripID types.ID, loc MemberLocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	members, ok := m.trips[tripID]
	if !ok {
		members = make(map[types.ID]MemberLocation)
		m.trips[tripID] = members
	}
	members[loc.UserID] = loc
	return nil
}

func (m *MemoryStore) GetMember(_ context.Context, tripID, userID types.ID) (*MemberLocation, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	loc, ok := m.trips[tripID][userID]
	if !ok {
		return nil, false, nil
	}
	return &loc, true, nil
}

func (m *MemoryStore) ListMembers(_ context.Context, tripID types.ID) ([]MemberLocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MemberLocation, 0, len(m.trips[tripID]))
	for _, loc := range m.trips[tripID] {
		out = append(out, loc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *MemoryStore) RemoveMember(_ context.Context, tripID, userID types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.trips[tripID], userID)
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, tripID types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.trips, tripID)
	return nil
}
