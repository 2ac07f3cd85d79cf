// README: Trip lifecycle tests (state machine, roster, sweep).
package trip

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/oxymore-tech/liane-sub002/internal/routing"
	"github.com/oxymore-tech/liane-sub002/internal/types"
)

var (
	mende  = RallyingPoint{ID: "mende", Label: "Mende", Location: types.Point{Lat: 44.518, Lng: 3.501}}
	florac = RallyingPoint{ID: "florac", Label: "Florac", Location: types.Point{Lat: 44.324, Lng: 3.593}}
)

// TestCanTransition verifies the state machine transition table.
func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to State
		want     bool
	}{
		// happy path
		{StateNotStarted, StateStarted, true},
		{StateStarted, StateFinished, true},
		{StateFinished, StateArchived, true},
		// cancels
		{StateNotStarted, StateCanceled, true},
		{StateStarted, StateCanceled, true},
		{StateFinished, StateCanceled, false},
		// terminal states have no outgoing transitions
		{StateArchived, StateStarted, false},
		{StateCanceled, StateNotStarted, false},
		{StateCanceled, StateStarted, false},
		// skipping states
		{StateNotStarted, StateFinished, false},
		{StateNotStarted, StateArchived, false},
		{StateStarted, StateArchived, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func newTestService(store Store) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(store, routing.NewFixedSpeedProvider(0), DefaultConfig(), logger)
}

func mustCreateTrip(t *testing.T, svc *Service, driver types.ID, departure time.Time) *Trip {
	t.Helper()
	tr, err := svc.Create(context.Background(), CreateCommand{
		CreatedBy:     driver,
		From:          mende,
		To:            florac,
		DepartureTime: departure,
		SeatCount:     3,
		CanDrive:      true,
	})
	if err != nil {
		t.Fatalf("create trip: %v", err)
	}
	return tr
}

func TestCreateValidatesSegmentAndSeats(t *testing.T) {
	svc := newTestService(NewMemoryStore())
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateCommand{
		CreatedBy: "driver", From: mende, To: mende,
		DepartureTime: time.Now().Add(time.Hour), SeatCount: 3,
	})
	if !errors.Is(err, ErrDegenerateSegment) {
		t.Fatalf("same from/to: %v, want ErrDegenerateSegment", err)
	}

	_, err = svc.Create(ctx, CreateCommand{
		CreatedBy: "driver", From: mende, To: florac,
		DepartureTime: time.Now().Add(time.Hour), SeatCount: 0,
	})
	if !errors.Is(err, ErrNoSeats) {
		t.Fatalf("zero seats: %v, want ErrNoSeats", err)
	}
}

func TestLifecycleHappyPath(t *testing.T) {
	store := NewMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()

	tr := mustCreateTrip(t, svc, "driver", time.Now().Add(time.Hour))
	if tr.State != StateNotStarted {
		t.Fatalf("new trip state = %s", tr.State)
	}
	if len(tr.WayPoints) != 2 || tr.WayPoints[1].Duration == 0 {
		t.Fatalf("expected 2 routed waypoints, got %+v", tr.WayPoints)
	}

	for _, step := range []struct {
		name string
		to   State
		run  func() (*Trip, error)
	}{
		{"start", StateStarted, func() (*Trip, error) { return svc.Start(ctx, tr.ID, "driver") }},
		{"finish", StateFinished, func() (*Trip, error) { return svc.Finish(ctx, tr.ID, "driver") }},
		{"archive", StateArchived, func() (*Trip, error) { return svc.Archive(ctx, tr.ID) }},
	} {
		got, err := step.run()
		if err != nil {
			t.Fatalf("%s: %v", step.name, err)
		}
		if got.State != step.to {
			t.Fatalf("%s: state = %s, want %s", step.name, got.State, step.to)
		}
	}

	changes := store.Changes()
	if len(changes) != 4 { // create + 3 transitions
		t.Fatalf("expected 4 change records, got %d", len(changes))
	}
	if changes[3].FromState != StateFinished || changes[3].ToState != StateArchived {
		t.Fatalf("last change = %+v", changes[3])
	}
}

func TestInvalidTransitionCarriesCurrentState(t *testing.T) {
	svc := newTestService(NewMemoryStore())
	ctx := context.Background()

	tr := mustCreateTrip(t, svc, "driver", time.Now().Add(time.Hour))
	if _, err := svc.Start(ctx, tr.ID, "driver"); err != nil {
		t.Fatalf("start: %v", err)
	}

	_, err := svc.Start(ctx, tr.ID, "driver")
	var ise *InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}
	if ise.Current != StateStarted || ise.Attempted != StateStarted {
		t.Fatalf("unexpected error payload: %+v", ise)
	}

	// the failed attempt must not have touched the document
	got, err := svc.Get(ctx, tr.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Version != tr.Version+1 {
		t.Fatalf("version moved on failed transition: %d", got.Version)
	}
}

func TestEffectiveStateLazyCancel(t *testing.T) {
	svc := newTestService(NewMemoryStore())
	departure := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	tr := mustCreateTrip(t, svc, "driver", departure)

	svc.WithClock(func() time.Time { return departure.Add(30 * time.Minute) })
	if got := svc.EffectiveState(tr); got != StateNotStarted {
		t.Fatalf("inside grace: %s", got)
	}

	svc.WithClock(func() time.Time { return departure.Add(2 * time.Hour) })
	if got := svc.EffectiveState(tr); got != StateCanceled {
		t.Fatalf("past grace: %s", got)
	}
	// reading never writes
	stored, err := svc.Get(context.Background(), tr.ID)
	if err != nil || stored.State != StateNotStarted {
		t.Fatalf("stored state changed: %v %s", err, stored.State)
	}
}

func TestSweepCancelsOverdueTrips(t *testing.T) {
	store := NewMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()
	departure := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	overdue := mustCreateTrip(t, svc, "d1", departure)
	fresh := mustCreateTrip(t, svc, "d2", departure.Add(3*time.Hour))
	started := mustCreateTrip(t, svc, "d3", departure)
	if _, err := svc.Start(ctx, started.ID, "d3"); err != nil {
		t.Fatalf("start: %v", err)
	}

	svc.WithClock(func() time.Time { return departure.Add(90 * time.Minute) })
	svc.SweepOverdue(ctx)

	for _, tc := range []struct {
		id   types.ID
		want State
	}{
		{overdue.ID, StateCanceled},
		{fresh.ID, StateNotStarted},
		{started.ID, StateStarted},
	} {
		got, err := svc.Get(ctx, tc.id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.State != tc.want {
			t.Fatalf("trip %s state = %s, want %s", tc.id, got.State, tc.want)
		}
	}
}

func TestAddMemberSeatAccounting(t *testing.T) {
	svc := newTestService(NewMemoryStore())
	ctx := context.Background()
	tr := mustCreateTrip(t, svc, "driver", time.Now().Add(time.Hour))

	for i, user := range []types.ID{"p1", "p2", "p3"} {
		err := svc.AddMember(ctx, tr.ID, Member{UserID: user, From: mende.ID, To: florac.ID, SeatCount: -1}, nil)
		if err != nil {
			t.Fatalf("add member %d: %v", i, err)
		}
	}
	err := svc.AddMember(ctx, tr.ID, Member{UserID: "p4", From: mende.ID, To: florac.ID, SeatCount: -1}, nil)
	if !errors.Is(err, ErrNoSeats) {
		t.Fatalf("expected ErrNoSeats, got %v", err)
	}

	// duplicate enrollment
	err = svc.AddMember(ctx, tr.ID, Member{UserID: "p1", From: mende.ID, To: florac.ID, SeatCount: -1}, nil)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate, got %v", err)
	}
}

func TestDriverLeaveCancelPolicy(t *testing.T) {
	svc := newTestService(NewMemoryStore())
	ctx := context.Background()
	tr := mustCreateTrip(t, svc, "driver", time.Now().Add(time.Hour))

	if err := svc.RemoveMember(ctx, tr.ID, "driver"); err != nil {
		t.Fatalf("remove driver: %v", err)
	}
	got, err := svc.Get(ctx, tr.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != StateCanceled {
		t.Fatalf("state = %s, want canceled", got.State)
	}
}

func TestDriverLeavePromotePolicy(t *testing.T) {
	store := NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := DefaultConfig()
	cfg.DriverLeavePolicy = LeavePromote
	svc := NewService(store, routing.NewFixedSpeedProvider(0), cfg, logger)
	ctx := context.Background()

	tr := mustCreateTrip(t, svc, "driver", time.Now().Add(time.Hour))
	// a second car owner rides along, offering capacity of their own
	err := svc.AddMember(ctx, tr.ID, Member{UserID: "codriver", From: mende.ID, To: florac.ID, SeatCount: 2}, nil)
	if err != nil {
		t.Fatalf("add codriver: %v", err)
	}

	if err := svc.RemoveMember(ctx, tr.ID, "driver"); err != nil {
		t.Fatalf("remove driver: %v", err)
	}
	got, err := svc.Get(ctx, tr.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != StateNotStarted {
		t.Fatalf("promote should keep the trip alive, state = %s", got.State)
	}
	if got.Driver.UserID != "codriver" {
		t.Fatalf("driver = %s, want codriver", got.Driver.UserID)
	}
	if got.MemberByUser("driver") != nil {
		t.Fatal("old driver still on roster")
	}
}
