// README: Tracking estimator: accepts pings, projects them on the route, serves snapshots.
package tracking

import (
	"context"
	"log/slog"
	"time"

	"github.com/oxymore-tech/liane-sub002/internal/modules/event"
	"github.com/oxymore-tech/liane-sub002/internal/modules/trip"
	"github.com/oxymore-tech/liane-sub002/internal/observability"
	"github.com/oxymore-tech/liane-sub002/internal/routing"
	"github.com/oxymore-tech/liane-sub002/internal/types"
)

type Config struct {
	// PreDepartureGrace is how long before departure pings are already
	// accepted on a NotStarted trip.
	PreDepartureGrace time.Duration
	// MovingThresholdMeters is the minimum displacement between two samples
	// inside MovingWindow for a member to count as moving.
	MovingThresholdMeters float64
	MovingWindow          time.Duration
}

func DefaultConfig() Config {
	return Config{
		PreDepartureGrace:     15 * time.Minute,
		MovingThresholdMeters: 100,
		MovingWindow:          3 * time.Minute,
	}
}

type Estimator struct {
	trips  *trip.Service
	store  Store
	cfg    Config
	logger *slog.Logger
	clock  func() time.Time
}

func NewEstimator(trips *trip.Service, store Store, cfg Config, logger *slog.Logger) *Estimator {
	return &Estimator{trips: trips, store: store, cfg: cfg, logger: logger, clock: time.Now}
}

// WithClock overrides the time source, for tests.
func (e *Estimator) WithClock(clock func() time.Time) *Estimator {
	e.clock = clock
	return e
}

// PushPing validates and stores one sample. Pings are accepted on a Started
// trip, or on a NotStarted one inside the pre-departure grace; anything else
// is rejected with InvalidStateError. The trip state is re-read after the
// write so a sample racing the trip's finish does not linger in the store.
func (e *Estimator) PushPing(ctx context.Context, tripID types.ID, p Ping) (*MemberLocation, error) {
	t, err := e.trips.Get(ctx, tripID)
	if err != nil {
		return nil, err
	}
	member := t.MemberByUser(p.UserID)
	if member == nil {
		observability.PingsRejected.Inc()
		return nil, trip.ErrNotFound
	}
	if state, ok := e.acceptsPings(t); !ok {
		observability.PingsRejected.Inc()
		return nil, &trip.InvalidStateError{Current: state, Attempted: trip.StateStarted}
	}

	at := p.At
	if at.IsZero() {
		at = e.clock()
	}

	delay := p.Delay
	nextPoint := member.To
	if p.Coordinate != nil {
		delay, nextPoint = e.project(t, member, *p.Coordinate, at)
	}

	prev, hasPrev, err := e.store.GetMember(ctx, tripID, p.UserID)
	if err != nil {
		return nil, err
	}
	moving := p.Coordinate != nil
	if hasPrev && prev.Coordinate != nil && p.Coordinate != nil && at.Sub(prev.At) <= e.cfg.MovingWindow {
		moving = routing.HaversineMeters(*prev.Coordinate, *p.Coordinate) >= e.cfg.MovingThresholdMeters
	}

	loc := MemberLocation{
		UserID:     p.UserID,
		At:         at,
		Coordinate: p.Coordinate,
		Delay:      delay,
		IsMoving:   moving,
		NextPoint:  nextPoint,
	}
	if err := e.store.SetMember(ctx, tripID, loc); err != nil {
		return nil, err
	}

	// The trip may have reached a terminal state between our read and the
	// write; drop the sample rather than keep tracking a closed trip.
	t, err = e.trips.Get(ctx, tripID)
	if err == nil {
		if state, ok := e.acceptsPings(t); !ok {
			if cerr := e.store.RemoveMember(ctx, tripID, p.UserID); cerr != nil {
				e.logger.Warn("drop late sample failed", "trip", tripID, "user", p.UserID, "error", cerr)
			}
			observability.PingsRejected.Inc()
			return nil, &trip.InvalidStateError{Current: state, Attempted: trip.StateStarted}
		}
	}

	observability.PingsAccepted.Inc()
	return &loc, nil
}

// acceptsPings admits samples on a Started trip, or on a NotStarted one
// inside the pre-departure grace. The effective state is used so an overdue
// trip stops accepting samples as soon as it reads as Canceled, without
// waiting for the sweep.
func (e *Estimator) acceptsPings(t *trip.Trip) (trip.State, bool) {
	now := e.clock()
	state := e.trips.EffectiveStateAt(t, now)
	switch state {
	case trip.StateStarted:
		return state, true
	case trip.StateNotStarted:
		return state, !now.Before(t.DepartureTime.Add(-e.cfg.PreDepartureGrace))
	default:
		return state, false
	}
}

// project maps a coordinate onto the member's segment of the route and
// derives the delay against the published ETAs. The leg is chosen by the
// smallest detour excess (distance via the sample minus the leg's own
// crow-flight distance); the fraction along that leg gives the time the
// sample position was promised for.
func (e *Estimator) project(t *trip.Trip, member *trip.Member, pos types.Point, at time.Time) (time.Duration, types.ID) {
	start := t.WayPointIndex(member.From)
	end := t.WayPointIndex(member.To)
	if start < 0 || end < 0 || start >= end {
		start, end = 0, len(t.WayPoints)-1
	}

	bestExcess := -1.0
	var expected time.Time
	nextPoint := t.WayPoints[end].RallyingPoint.ID
	for i := start + 1; i <= end; i++ {
		a := t.WayPoints[i-1]
		b := t.WayPoints[i]
		da := routing.HaversineMeters(a.RallyingPoint.Location, pos)
		db := routing.HaversineMeters(pos, b.RallyingPoint.Location)
		dab := routing.HaversineMeters(a.RallyingPoint.Location, b.RallyingPoint.Location)
		excess := da + db - dab
		if bestExcess >= 0 && excess >= bestExcess {
			continue
		}
		bestExcess = excess
		frac := 0.0
		if da+db > 0 {
			frac = da / (da + db)
		}
		legDur := b.Eta.Sub(a.Eta)
		expected = a.Eta.Add(time.Duration(frac * float64(legDur)))
		nextPoint = b.RallyingPoint.ID
	}
	if bestExcess < 0 {
		return 0, nextPoint
	}
	return at.Sub(expected), nextPoint
}

// GetSnapshot returns the trip's tracking view. Members who chose the hidden
// geolocation level keep their delay visible but have the coordinate
// withheld.
func (e *Estimator) GetSnapshot(ctx context.Context, tripID types.ID) (*Snapshot, error) {
	t, err := e.trips.Get(ctx, tripID)
	if err != nil {
		return nil, err
	}
	locs, err := e.store.ListMembers(ctx, tripID)
	if err != nil {
		return nil, err
	}

	var delay time.Duration
	driverReported := false
	for i := range locs {
		m := t.MemberByUser(locs[i].UserID)
		if m != nil && m.GeolocationLevel == trip.GeolocationHidden {
			locs[i].Coordinate = nil
		}
		if locs[i].UserID == t.Driver.UserID {
			delay = locs[i].Delay
			driverReported = true
		} else if !driverReported && locs[i].Delay > delay {
			delay = locs[i].Delay
		}
	}

	return &Snapshot{TripID: tripID, At: e.clock(), Delay: delay, Members: locs}, nil
}

// OnEvent feeds the estimator from the bus: pings come in as MemberPing, and
// members leaving or canceling drop out of the snapshot.
func (e *Estimator) OnEvent(ctx context.Context, ev event.Event) error {
	switch ev := ev.(type) {
	case event.MemberPing:
		_, err := e.PushPing(ctx, ev.Trip, Ping{
			UserID:     ev.UserID,
			At:         ev.At,
			Coordinate: ev.Coordinate,
			Delay:      ev.Delay,
		})
		return err
	case event.MemberHasLeft:
		return e.store.RemoveMember(ctx, ev.Trip, ev.UserID)
	case event.MemberHasCanceled:
		t, err := e.trips.Get(ctx, ev.Trip)
		if err != nil {
			return err
		}
		if t.State == trip.StateCanceled {
			return e.store.Clear(ctx, ev.Trip)
		}
		return e.store.RemoveMember(ctx, ev.Trip, ev.UserID)
	default:
		return nil
	}
}
