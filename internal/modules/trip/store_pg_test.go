// README: PostgreSQL store integration tests; run only when LIANE_TEST_DB_DSN points at a migrated database.
package trip

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oxymore-tech/liane-sub002/internal/types"
)

func newPGStore(t *testing.T) *PGStore {
	t.Helper()
	dsn := os.Getenv("LIANE_TEST_DB_DSN")
	if dsn == "" {
		t.Skip("LIANE_TEST_DB_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		t.Skipf("database unreachable: %v", err)
	}
	t.Cleanup(pool.Close)
	return NewPGStore(pool)
}

func pgTestTrip(departure time.Time) *Trip {
	return &Trip{
		ID:            types.ID(uuid.NewString()),
		CreatedBy:     "driver",
		CreatedAt:     time.Now().UTC().Truncate(time.Millisecond),
		DepartureTime: departure,
		WayPoints: []WayPoint{
			{RallyingPoint: RallyingPoint{ID: "a", Label: "A"}, Eta: departure},
			{RallyingPoint: RallyingPoint{ID: "c", Label: "C"}, Eta: departure.Add(30 * time.Minute)},
		},
		Members: []Member{{UserID: "driver", From: "a", To: "c", SeatCount: 3}},
		Driver:  Driver{UserID: "driver", CanDrive: true},
		State:   StateNotStarted,
		Version: 1,
	}
}

func TestPGStoreRoundTrip(t *testing.T) {
	store := newPGStore(t)
	ctx := context.Background()

	in := pgTestTrip(time.Now().UTC().Add(time.Hour).Truncate(time.Millisecond))
	if err := store.Insert(ctx, in); err != nil {
		t.Fatalf("insert: %v", err)
	}

	out, err := store.Get(ctx, in.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if out.State != in.State || out.Version != in.Version || len(out.WayPoints) != 2 {
		t.Fatalf("round trip mismatch: %+v", out)
	}

	if _, err := store.Get(ctx, types.ID(uuid.NewString())); err != ErrNotFound {
		t.Fatalf("unknown id: %v, want ErrNotFound", err)
	}
}

func TestPGStoreUpdateIfIsConditional(t *testing.T) {
	store := newPGStore(t)
	ctx := context.Background()

	in := pgTestTrip(time.Now().UTC().Add(time.Hour).Truncate(time.Millisecond))
	if err := store.Insert(ctx, in); err != nil {
		t.Fatalf("insert: %v", err)
	}

	next := in.Clone()
	next.State = StateStarted
	next.Version++

	ok, err := store.UpdateIf(ctx, in.ID, StateNotStarted, in.Version, next)
	if err != nil || !ok {
		t.Fatalf("update: ok=%v err=%v", ok, err)
	}

	// the same precondition must not match twice
	ok, err = store.UpdateIf(ctx, in.ID, StateNotStarted, in.Version, next)
	if err != nil {
		t.Fatalf("stale update: %v", err)
	}
	if ok {
		t.Fatal("stale precondition matched")
	}

	out, err := store.Get(ctx, in.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if out.State != StateStarted || out.Version != in.Version+1 {
		t.Fatalf("state = %s version = %d", out.State, out.Version)
	}
}

func TestPGStoreListsOverdueTrips(t *testing.T) {
	store := newPGStore(t)
	ctx := context.Background()

	past := pgTestTrip(time.Now().UTC().Add(-2 * time.Hour).Truncate(time.Millisecond))
	if err := store.Insert(ctx, past); err != nil {
		t.Fatalf("insert: %v", err)
	}

	out, err := store.ListNotStartedBefore(ctx, time.Now().UTC().Add(-time.Hour), 1000)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	found := false
	for _, tr := range out {
		if tr.ID == past.ID {
			found = true
		}
		if tr.State != StateNotStarted {
			t.Fatalf("listed trip in state %s", tr.State)
		}
	}
	if !found {
		t.Fatal("overdue trip not listed")
	}
}
