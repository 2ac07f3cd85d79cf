// README: Join workflow: request, answer, automatic resolution and the rejection cascade.
package join

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/oxymore-tech/liane-sub002/internal/modules/event"
	"github.com/oxymore-tech/liane-sub002/internal/modules/match"
	"github.com/oxymore-tech/liane-sub002/internal/modules/trip"
	"github.com/oxymore-tech/liane-sub002/internal/types"
)

// ErrNotAllowed means the caller is not the trip's driver.
var ErrNotAllowed = errors.New("only the driver may answer a join request")

const (
	reasonDeclined     = "declined"
	reasonRouteChanged = "route_changed"
	reasonTripStarted  = "trip_started"
	reasonTripCanceled = "trip_canceled"
)

type Service struct {
	store  Store
	trips  *trip.Service
	engine *match.Engine
	bus    *event.Bus
	logger *slog.Logger
	clock  func() time.Time
}

func NewService(store Store, trips *trip.Service, engine *match.Engine, logger *slog.Logger) *Service {
	return &Service{store: store, trips: trips, engine: engine, logger: logger, clock: time.Now}
}

// SetBus wires the bus after construction; the bus itself needs this service
// as its resolver, so neither can be built first with the other in hand.
func (s *Service) SetBus(bus *event.Bus) { s.bus = bus }

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

type RequestCommand struct {
	TripID           types.ID
	Requester        types.ID
	From, To         trip.RallyingPoint
	SeatCount        int // seats asked for, positive
	TakeReturnTrip   bool
	Message          string
	GeolocationLevel trip.GeolocationLevel
}

// Request validates the ask against the trip's current route and state,
// stores it pending and puts JoinRequested on the bus. The bus may resolve
// it on the spot through the automatic-answer policy.
func (s *Service) Request(ctx context.Context, cmd RequestCommand) (*Request, error) {
	t, err := s.trips.Get(ctx, cmd.TripID)
	if err != nil {
		return nil, err
	}
	state := s.trips.EffectiveState(t)
	if !trip.AcceptsNewMembers(state) {
		return nil, &trip.InvalidStateError{Current: state, Attempted: state}
	}
	if t.MemberByUser(cmd.Requester) != nil {
		return nil, trip.ErrConflict
	}
	if cmd.SeatCount <= 0 || t.SeatsLeft() < cmd.SeatCount {
		return nil, trip.ErrNoSeats
	}
	if _, err := s.engine.ComputeMatch(ctx, t, cmd.From, cmd.To, false); err != nil {
		return nil, err
	}

	level := cmd.GeolocationLevel
	if level == "" {
		level = trip.GeolocationShared
	}
	r := &Request{
		ID:               types.ID(uuid.NewString()),
		TripID:           cmd.TripID,
		Requester:        cmd.Requester,
		From:             cmd.From,
		To:               cmd.To,
		SeatCount:        cmd.SeatCount,
		TakeReturnTrip:   cmd.TakeReturnTrip,
		Message:          cmd.Message,
		GeolocationLevel: level,
		CreatedAt:        s.clock(),
	}
	if err := s.store.Insert(ctx, r); err != nil {
		return nil, err
	}

	err = s.bus.Dispatch(ctx, event.JoinRequested{
		RequestID:      r.ID,
		Trip:           r.TripID,
		Requester:      r.Requester,
		From:           r.From.ID,
		To:             r.To.ID,
		SeatCount:      r.SeatCount,
		TakeReturnTrip: r.TakeReturnTrip,
		Message:        r.Message,
		RequestedAt:    r.CreatedAt,
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Answer lets the driver accept or decline a pending request and puts the
// outcome event on the bus. Accepting recomputes the match against the
// trip's route as it stands now; a request whose segment no longer fits is
// rejected and the caller gets ErrStaleMatch.
func (s *Service) Answer(ctx context.Context, requestID, by types.ID, accept bool) error {
	r, err := s.store.Get(ctx, requestID)
	if err != nil {
		return err
	}
	t, err := s.trips.Get(ctx, r.TripID)
	if err != nil {
		return err
	}
	if by != t.Driver.UserID {
		return ErrNotAllowed
	}

	var outcome event.Event
	if accept {
		outcome, err = s.accept(ctx, r, t)
	} else {
		outcome, err = s.decline(ctx, r, reasonDeclined)
	}
	if err != nil {
		return err
	}
	return s.bus.Dispatch(ctx, outcome)
}

// Resolve implements the bus's automatic-answer resolver: it applies the
// verdict and returns the outcome event for the bus to dispatch in place of
// the JoinRequested.
func (s *Service) Resolve(ctx context.Context, e event.JoinRequested, accept bool) (event.Event, error) {
	r, err := s.store.Get(ctx, e.RequestID)
	if err != nil {
		return nil, err
	}
	if !accept {
		return s.decline(ctx, r, reasonDeclined)
	}
	t, err := s.trips.Get(ctx, r.TripID)
	if err != nil {
		return nil, err
	}
	return s.accept(ctx, r, t)
}

func (s *Service) accept(ctx context.Context, r *Request, t *trip.Trip) (event.Event, error) {
	m, err := s.engine.ComputeMatch(ctx, t, r.From, r.To, true)
	if errors.Is(err, match.ErrIncompatibleRoute) {
		// Compatible at request time, not anymore: the route moved under us.
		if _, derr := s.decline(ctx, r, reasonRouteChanged); derr != nil {
			s.logger.Warn("stale request cleanup failed", "request", r.ID, "error", derr)
		}
		return nil, match.ErrStaleMatch
	}
	if err != nil {
		return nil, err
	}

	member := trip.Member{
		UserID:           r.Requester,
		From:             r.From.ID,
		To:               r.To.ID,
		SeatCount:        -r.SeatCount,
		GeolocationLevel: r.GeolocationLevel,
	}
	var newWayPoints []trip.WayPoint
	if c, ok := m.(match.Compatible); ok {
		newWayPoints = c.WayPoints
	}
	if err := s.trips.AddMember(ctx, t.ID, member, newWayPoints); err != nil {
		return nil, err
	}
	if err := s.store.Delete(ctx, r.ID); err != nil && !errors.Is(err, ErrNotFound) {
		s.logger.Warn("delete answered request failed", "request", r.ID, "error", err)
	}
	return event.MemberAccepted{
		Trip:           r.TripID,
		UserID:         r.Requester,
		From:           r.From.ID,
		To:             r.To.ID,
		SeatCount:      r.SeatCount,
		TakeReturnTrip: r.TakeReturnTrip,
	}, nil
}

func (s *Service) decline(ctx context.Context, r *Request, reason string) (event.Event, error) {
	if err := s.store.Delete(ctx, r.ID); err != nil {
		return nil, err
	}
	return event.MemberRejected{Trip: r.TripID, UserID: r.Requester, Reason: reason}, nil
}

func (s *Service) ListPending(ctx context.Context, tripID types.ID) ([]*Request, error) {
	return s.store.ListByTrip(ctx, tripID)
}

func (s *Service) ListMine(ctx context.Context, userID types.ID) ([]*Request, error) {
	return s.store.ListByRequester(ctx, userID)
}

// RejectAllPending drops every pending request of a trip and emits a
// MemberRejected per requester. Per-request failures are logged; the cascade
// keeps going.
func (s *Service) RejectAllPending(ctx context.Context, tripID types.ID, reason string) error {
	pending, err := s.store.ListByTrip(ctx, tripID)
	if err != nil {
		return err
	}
	for _, r := range pending {
		outcome, err := s.decline(ctx, r, reason)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				s.logger.Warn("reject pending request failed", "request", r.ID, "error", err)
			}
			continue
		}
		if err := s.bus.Dispatch(ctx, outcome); err != nil {
			s.logger.Warn("dispatch rejection failed", "request", r.ID, "error", err)
		}
	}
	return nil
}

// OnEvent runs the join-side cascades: a started or canceled trip sheds its
// pending requests, and an accepted member who asked for the return trip is
// enrolled on it best-effort.
func (s *Service) OnEvent(ctx context.Context, e event.Event) error {
	switch e := e.(type) {
	case event.MemberHasStarted:
		return s.RejectAllPending(ctx, e.Trip, reasonTripStarted)
	case event.MemberHasCanceled:
		t, err := s.trips.Get(ctx, e.Trip)
		if err != nil {
			return err
		}
		if t.State == trip.StateCanceled {
			return s.RejectAllPending(ctx, e.Trip, reasonTripCanceled)
		}
		return nil
	case event.MemberAccepted:
		if e.TakeReturnTrip {
			s.takeReturnTrip(ctx, e)
		}
		return nil
	default:
		return nil
	}
}

// takeReturnTrip mirrors the accepted segment onto the trip's return trip.
// It is best-effort: the outbound acceptance stands even when the return leg
// cannot take the member.
func (s *Service) takeReturnTrip(ctx context.Context, e event.MemberAccepted) {
	t, err := s.trips.Get(ctx, e.Trip)
	if err != nil || t.ReturnTrip == nil {
		return
	}
	ret, err := s.trips.Get(ctx, *t.ReturnTrip)
	if err != nil {
		s.logger.Warn("return trip unavailable", "trip", *t.ReturnTrip, "error", err)
		return
	}

	// Reversed segment: pickup at the outbound deposit and vice versa.
	var from, to trip.RallyingPoint
	if i := t.WayPointIndex(e.To); i >= 0 {
		from = t.WayPoints[i].RallyingPoint
	}
	if i := t.WayPointIndex(e.From); i >= 0 {
		to = t.WayPoints[i].RallyingPoint
	}

	m, err := s.engine.ComputeMatch(ctx, ret, from, to, true)
	if err != nil {
		s.logger.Info("return trip does not fit member", "trip", ret.ID, "user", e.UserID, "error", err)
		return
	}
	member := trip.Member{
		UserID:           e.UserID,
		From:             from.ID,
		To:               to.ID,
		SeatCount:        -e.SeatCount,
		GeolocationLevel: trip.GeolocationShared,
	}
	var newWayPoints []trip.WayPoint
	if c, ok := m.(match.Compatible); ok {
		newWayPoints = c.WayPoints
	}
	if err := s.trips.AddMember(ctx, ret.ID, member, newWayPoints); err != nil {
		s.logger.Warn("return trip enrollment failed", "trip", ret.ID, "user", e.UserID, "error", err)
	}
}
