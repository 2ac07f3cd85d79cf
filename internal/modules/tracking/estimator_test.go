// README: Estimator tests: admission window, delay projection, geolocation withholding.
package tracking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/oxymore-tech/liane-sub002/internal/modules/trip"
	"github.com/oxymore-tech/liane-sub002/internal/routing"
	"github.com/oxymore-tech/liane-sub002/internal/types"
)

var (
	ptA = trip.RallyingPoint{ID: "a", Label: "A", Location: types.Point{Lat: 0, Lng: 0}}
	ptC = trip.RallyingPoint{ID: "c", Label: "C", Location: types.Point{Lat: 0, Lng: 0.2}}
	mid = types.Point{Lat: 0, Lng: 0.1}
)

type fixture struct {
	trips     *trip.Service
	estimator *Estimator
	trip      *trip.Trip
	departure time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	trips := trip.NewService(trip.NewMemoryStore(), routing.NewFixedSpeedProvider(0), trip.DefaultConfig(), logger)

	departure := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	tr, err := trips.Create(context.Background(), trip.CreateCommand{
		CreatedBy:     "driver",
		From:          ptA,
		To:            ptC,
		DepartureTime: departure,
		SeatCount:     3,
		CanDrive:      true,
	})
	if err != nil {
		t.Fatalf("create trip: %v", err)
	}
	err = trips.AddMember(context.Background(), tr.ID, trip.Member{
		UserID: "bob", From: ptA.ID, To: ptC.ID, SeatCount: -1, GeolocationLevel: trip.GeolocationHidden,
	}, nil)
	if err != nil {
		t.Fatalf("add member: %v", err)
	}

	estimator := NewEstimator(trips, NewMemoryStore(), DefaultConfig(), logger)
	return &fixture{trips: trips, estimator: estimator, trip: tr, departure: departure}
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	if _, err := f.trips.Start(context.Background(), f.trip.ID, "driver"); err != nil {
		t.Fatalf("start trip: %v", err)
	}
}

func (f *fixture) at(offset time.Duration) func() time.Time {
	return func() time.Time { return f.departure.Add(offset) }
}

func TestPingRejectedLongBeforeDeparture(t *testing.T) {
	f := newFixture(t)
	f.estimator.WithClock(f.at(-2 * time.Hour))

	_, err := f.estimator.PushPing(context.Background(), f.trip.ID, Ping{UserID: "driver"})
	if !trip.IsInvalidState(err) {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}
	var ise *trip.InvalidStateError
	if errors.As(err, &ise) && ise.Current != trip.StateNotStarted {
		t.Fatalf("error state = %s", ise.Current)
	}
}

// A trip the sweep has not flipped yet still reads as Canceled once overdue,
// and must not keep taking samples.
func TestPingRejectedOnOverdueTrip(t *testing.T) {
	f := newFixture(t)
	f.estimator.WithClock(f.at(2 * time.Hour)) // past departure + not-started grace

	_, err := f.estimator.PushPing(context.Background(), f.trip.ID, Ping{
		UserID: "driver", Coordinate: &ptA.Location,
	})
	var ise *trip.InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}
	if ise.Current != trip.StateCanceled {
		t.Fatalf("error state = %s, want canceled", ise.Current)
	}
}

func TestPingAcceptedInPreDepartureGrace(t *testing.T) {
	f := newFixture(t)
	f.estimator.WithClock(f.at(-10 * time.Minute))

	loc, err := f.estimator.PushPing(context.Background(), f.trip.ID, Ping{
		UserID: "driver", Coordinate: &ptA.Location,
	})
	if err != nil {
		t.Fatalf("pre-departure ping: %v", err)
	}
	if loc.NextPoint != ptC.ID {
		t.Fatalf("next point = %s, want c", loc.NextPoint)
	}
}

func TestNonMemberRejected(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	if _, err := f.estimator.PushPing(context.Background(), f.trip.ID, Ping{UserID: "stranger"}); !errors.Is(err, trip.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// A driver halfway along the leg at (scheduled time + 180s) is 180s late.
func TestDelayProjection(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	stored, err := f.trips.Get(context.Background(), f.trip.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	legDur := stored.WayPoints[1].Eta.Sub(stored.WayPoints[0].Eta)
	scheduledAtMid := stored.WayPoints[0].Eta.Add(legDur / 2)
	sampleAt := scheduledAtMid.Add(180 * time.Second)
	f.estimator.WithClock(func() time.Time { return sampleAt })

	loc, err := f.estimator.PushPing(context.Background(), f.trip.ID, Ping{
		UserID: "driver", At: sampleAt, Coordinate: &mid,
	})
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	if diff := loc.Delay - 180*time.Second; diff < -time.Second || diff > time.Second {
		t.Fatalf("delay = %s, want ~180s", loc.Delay)
	}

	snap, err := f.estimator.GetSnapshot(context.Background(), f.trip.ID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Delay != loc.Delay {
		t.Fatalf("snapshot delay = %s, want driver's %s", snap.Delay, loc.Delay)
	}
}

func TestDeviceDelayUsedWithoutFix(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	f.estimator.WithClock(f.at(10 * time.Minute))

	loc, err := f.estimator.PushPing(context.Background(), f.trip.ID, Ping{
		UserID: "driver", Delay: 180 * time.Second,
	})
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	if loc.Delay != 180*time.Second {
		t.Fatalf("delay = %s, want 180s", loc.Delay)
	}
	if loc.IsMoving {
		t.Fatal("no fix must not count as moving")
	}
}

func TestHiddenMemberCoordinateWithheld(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	f.estimator.WithClock(f.at(10 * time.Minute))

	if _, err := f.estimator.PushPing(context.Background(), f.trip.ID, Ping{UserID: "driver", Coordinate: &mid}); err != nil {
		t.Fatalf("driver ping: %v", err)
	}
	if _, err := f.estimator.PushPing(context.Background(), f.trip.ID, Ping{UserID: "bob", Coordinate: &mid}); err != nil {
		t.Fatalf("bob ping: %v", err)
	}

	snap, err := f.estimator.GetSnapshot(context.Background(), f.trip.ID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Members) != 2 {
		t.Fatalf("members = %d", len(snap.Members))
	}
	for _, m := range snap.Members {
		switch m.UserID {
		case "driver":
			if m.Coordinate == nil {
				t.Fatal("shared coordinate withheld")
			}
		case "bob":
			if m.Coordinate != nil {
				t.Fatal("hidden coordinate leaked")
			}
		}
	}
}

func TestIsMovingThreshold(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	base := f.departure.Add(5 * time.Minute)
	p1 := types.Point{Lat: 0, Lng: 0.010}
	p2 := types.Point{Lat: 0, Lng: 0.012}  // ~222m further
	p3 := types.Point{Lat: 0, Lng: 0.0121} // ~11m further

	f.estimator.WithClock(func() time.Time { return base })
	if _, err := f.estimator.PushPing(context.Background(), f.trip.ID, Ping{UserID: "driver", At: base, Coordinate: &p1}); err != nil {
		t.Fatalf("ping 1: %v", err)
	}

	loc, err := f.estimator.PushPing(context.Background(), f.trip.ID, Ping{UserID: "driver", At: base.Add(time.Minute), Coordinate: &p2})
	if err != nil {
		t.Fatalf("ping 2: %v", err)
	}
	if !loc.IsMoving {
		t.Fatal("222m in a minute should count as moving")
	}

	loc, err = f.estimator.PushPing(context.Background(), f.trip.ID, Ping{UserID: "driver", At: base.Add(2 * time.Minute), Coordinate: &p3})
	if err != nil {
		t.Fatalf("ping 3: %v", err)
	}
	if loc.IsMoving {
		t.Fatal("11m in a minute should not count as moving")
	}
}

func TestLateSampleAfterFinishDropped(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	f.estimator.WithClock(f.at(30 * time.Minute))

	// store that races the trip's finish: the write lands, then the re-read
	// sees the finished trip
	racing := &finishOnSet{MemoryStore: NewMemoryStore(), trips: f.trips, tripID: f.trip.ID}
	f.estimator.store = racing

	_, err := f.estimator.PushPing(context.Background(), f.trip.ID, Ping{UserID: "driver", Coordinate: &mid})
	if !trip.IsInvalidState(err) {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}
	locs, err := racing.ListMembers(context.Background(), f.trip.ID)
	if err != nil || len(locs) != 0 {
		t.Fatalf("late sample lingered: %d (%v)", len(locs), err)
	}
}

type finishOnSet struct {
	*MemoryStore
	trips  *trip.Service
	tripID types.ID
	done   bool
}

func (s *finishOnSet) SetMember(ctx context.Context, tripID types.ID, loc MemberLocation) error {
	if err := s.MemoryStore.SetMember(ctx, tripID, loc); err != nil {
		return err
	}
	if !s.done {
		s.done = true
		if _, err := s.trips.Finish(ctx, s.tripID, "driver"); err != nil {
			return err
		}
	}
	return nil
}
