// README: In-memory trip store; same CAS semantics as the Postgres store.
package trip

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oxymore-tech/liane-sub002/internal/types"
)

// MemoryStore keeps trips in a map. It exists so the whole core can run and
// race-test without external services; the conditional-update contract is
// identical to PGStore.
type MemoryStore struct {
	mu      sync.Mutex
	trips   map[types.ID]*Trip
	changes []ChangeRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{trips: make(map[types.ID]*Trip)}
}

func (m *MemoryStore) Insert(_ context.Context, t *Trip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trips[t.ID] = t.Clone()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id types.ID) (*Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

func (m *MemoryStore) UpdateIf(_ context.Context, id types.ID, expectState State, expectVersion int, next *Trip) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.trips[id]
	if !ok {
		return false, ErrNotFound
	}
	if cur.State != expectState || cur.Version != expectVersion {
		return false, nil
	}
	m.trips[id] = next.Clone()
	return true, nil
}

func (m *MemoryStore) ListNotStartedBefore(_ context.Context, cutoff time.Time, limit int) ([]*Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Trip
	for _, t := range m.trips {
		if t.State == StateNotStarted && t.DepartureTime.Before(cutoff) {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DepartureTime.Before(out[j].DepartureTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) AppendChange(_ context.Context, rec *ChangeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = int64(len(m.changes) + 1)
	m.changes = append(m.changes, *rec)
	return nil
}

// Changes returns a copy of the change log, for tests.
func (m *MemoryStore) Changes() []ChangeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ChangeRecord(nil), m.changes...)
}
