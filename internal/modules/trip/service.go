// README: Trip lifecycle service: guarded transitions and roster mutations over the CAS store.
package trip

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/oxymore-tech/liane-sub002/internal/routing"
	"github.com/oxymore-tech/liane-sub002/internal/types"
)

// LeavePolicy decides what happens when the driver leaves a NotStarted trip.
type LeavePolicy string

const (
	// LeaveCancel cancels the trip when the driver leaves.
	LeaveCancel LeavePolicy = "cancel"
	// LeavePromote elects the first remaining member with CanDrive; falls
	// back to cancel when nobody can drive.
	LeavePromote LeavePolicy = "promote"
)

type Config struct {
	// NotStartedGrace is how long past departure a trip may stay NotStarted
	// before it is considered overdue.
	NotStartedGrace   time.Duration
	SweepInterval     time.Duration
	SweepBatch        int
	DriverLeavePolicy LeavePolicy
}

func DefaultConfig() Config {
	return Config{
		NotStartedGrace:   time.Hour,
		SweepInterval:     time.Minute,
		SweepBatch:        100,
		DriverLeavePolicy: LeaveCancel,
	}
}

type Service struct {
	store  Store
	routes routing.Provider
	cfg    Config
	logger *slog.Logger
	clock  func() time.Time
}

func NewService(store Store, routes routing.Provider, cfg Config, logger *slog.Logger) *Service {
	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = 100
	}
	return &Service{store: store, routes: routes, cfg: cfg, logger: logger, clock: time.Now}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

type CreateCommand struct {
	CreatedBy        types.ID
	From, To         RallyingPoint
	DepartureTime    time.Time
	SeatCount        int // positive: capacity offered by the driver
	CanDrive         bool
	GeolocationLevel GeolocationLevel
	ReturnTrip       *types.ID
}

// Create builds a two-waypoint trip from the creator's request. Leg duration
// and distance come from the route geometry provider.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Trip, error) {
	if cmd.From.ID == cmd.To.ID {
		return nil, ErrDegenerateSegment
	}
	if cmd.SeatCount <= 0 {
		return nil, ErrNoSeats
	}
	leg, err := s.routes.Route(ctx, []types.Point{cmd.From.Location, cmd.To.Location})
	if err != nil {
		return nil, err
	}

	now := s.clock()
	level := cmd.GeolocationLevel
	if level == "" {
		level = GeolocationShared
	}
	t := &Trip{
		ID:            types.ID(uuid.NewString()),
		CreatedBy:     cmd.CreatedBy,
		CreatedAt:     now,
		DepartureTime: cmd.DepartureTime,
		ReturnTrip:    cmd.ReturnTrip,
		WayPoints: []WayPoint{
			{RallyingPoint: cmd.From, Eta: cmd.DepartureTime},
			{RallyingPoint: cmd.To, Eta: cmd.DepartureTime.Add(leg.Duration), Duration: leg.Duration, Distance: leg.Distance},
		},
		Members: []Member{{
			UserID:           cmd.CreatedBy,
			From:             cmd.From.ID,
			To:               cmd.To.ID,
			SeatCount:        cmd.SeatCount,
			GeolocationLevel: level,
		}},
		Driver: Driver{UserID: cmd.CreatedBy, CanDrive: cmd.CanDrive},
		State:  StateNotStarted,
	}
	if err := s.store.Insert(ctx, t); err != nil {
		return nil, err
	}
	s.appendChange(ctx, t.ID, "", StateNotStarted, "owner", &cmd.CreatedBy)
	return t, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Trip, error) {
	return s.store.Get(ctx, id)
}

// EffectiveState computes the state a reader should act on without writing:
// a NotStarted trip past departure plus grace reads as Canceled even before
// the sweep has flipped it.
func (s *Service) EffectiveState(t *Trip) State {
	return s.EffectiveStateAt(t, s.clock())
}

// EffectiveStateAt is EffectiveState against an explicit instant, for callers
// that carry their own clock.
func (s *Service) EffectiveStateAt(t *Trip, now time.Time) State {
	if t.State == StateNotStarted && now.After(t.DepartureTime.Add(s.cfg.NotStartedGrace)) {
		return StateCanceled
	}
	return t.State
}

// AddMember enrolls a member, optionally replacing the route with the
// waypoint sequence a Compatible match produced. Route changes are only
// permitted while NotStarted; an exact join (no new waypoints) is also
// accepted on a Started trip.
func (s *Service) AddMember(ctx context.Context, tripID types.ID, m Member, newWayPoints []WayPoint) error {
	t, err := s.store.Get(ctx, tripID)
	if err != nil {
		return err
	}
	if !AcceptsNewMembers(t.State) || (len(newWayPoints) > 0 && t.State != StateNotStarted) {
		return &InvalidStateError{Current: t.State, Attempted: t.State}
	}
	if t.MemberByUser(m.UserID) != nil {
		return ErrConflict
	}
	if m.SeatCount < 0 && t.SeatsLeft()+m.SeatCount < 0 {
		return ErrNoSeats
	}

	next := t.Clone()
	if len(newWayPoints) > 0 {
		next.WayPoints = newWayPoints
	}
	if next.WayPointIndex(m.From) < 0 || next.WayPointIndex(m.To) < 0 {
		return ErrNotFound
	}
	next.Members = append(next.Members, m)
	next.Version++

	ok, err := s.store.UpdateIf(ctx, tripID, t.State, t.Version, next)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	return nil
}

// RemoveMember drops a member from a NotStarted trip. Removing the driver is
// the distinguished case: the configured policy either cancels the trip or
// promotes a member who can drive.
func (s *Service) RemoveMember(ctx context.Context, tripID, userID types.ID) error {
	t, err := s.store.Get(ctx, tripID)
	if err != nil {
		return err
	}
	if t.State != StateNotStarted {
		return &InvalidStateError{Current: t.State, Attempted: t.State}
	}
	if t.MemberByUser(userID) == nil {
		return ErrNotFound
	}

	if userID == t.Driver.UserID {
		return s.removeDriver(ctx, t, userID)
	}

	next := t.Clone()
	next.Members = removeMember(next.Members, userID)
	next.Version++

	ok, err := s.store.UpdateIf(ctx, tripID, t.State, t.Version, next)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	return nil
}

func (s *Service) removeDriver(ctx context.Context, t *Trip, userID types.ID) error {
	if s.cfg.DriverLeavePolicy == LeavePromote {
		for _, m := range t.Members {
			if m.UserID == userID || m.SeatCount <= 0 {
				continue
			}
			next := t.Clone()
			next.Members = removeMember(next.Members, userID)
			next.Driver = Driver{UserID: m.UserID, CanDrive: true}
			next.Version++
			ok, err := s.store.UpdateIf(ctx, t.ID, t.State, t.Version, next)
			if err != nil {
				return err
			}
			if !ok {
				return ErrConflict
			}
			return nil
		}
		// nobody to promote, fall through to cancel
	}
	return s.transition(ctx, t, StateCanceled, "driver", &userID)
}

// UpdateState applies a guarded transition. Any attempt from a state that
// does not permit it fails with InvalidStateError and leaves the trip
// untouched.
func (s *Service) UpdateState(ctx context.Context, tripID types.ID, to State, actorType string, actor *types.ID) (*Trip, error) {
	t, err := s.store.Get(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, t, to, actorType, actor); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, tripID)
}

func (s *Service) Start(ctx context.Context, tripID types.ID, by types.ID) (*Trip, error) {
	return s.UpdateState(ctx, tripID, StateStarted, "driver", &by)
}

func (s *Service) Cancel(ctx context.Context, tripID types.ID, by types.ID) (*Trip, error) {
	return s.UpdateState(ctx, tripID, StateCanceled, "member", &by)
}

// Finish is triggered by the first member reporting the trip done; it does
// not wait for the other members to confirm.
func (s *Service) Finish(ctx context.Context, tripID types.ID, by types.ID) (*Trip, error) {
	return s.UpdateState(ctx, tripID, StateFinished, "member", &by)
}

func (s *Service) Archive(ctx context.Context, tripID types.ID) (*Trip, error) {
	return s.UpdateState(ctx, tripID, StateArchived, "system", nil)
}

func (s *Service) transition(ctx context.Context, t *Trip, to State, actorType string, actor *types.ID) error {
	if !CanTransition(t.State, to) {
		return &InvalidStateError{Current: t.State, Attempted: to}
	}
	next := t.Clone()
	next.State = to
	next.Version++

	ok, err := s.store.UpdateIf(ctx, t.ID, t.State, t.Version, next)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	s.appendChange(ctx, t.ID, t.State, to, actorType, actor)
	return nil
}

func (s *Service) appendChange(ctx context.Context, tripID types.ID, from, to State, actorType string, actor *types.ID) {
	rec := &ChangeRecord{
		TripID:    tripID,
		FromState: from,
		ToState:   to,
		ActorType: actorType,
		ActorID:   actor,
		CreatedAt: s.clock(),
	}
	if err := s.store.AppendChange(ctx, rec); err != nil {
		s.logger.Warn("append change record failed", "trip", tripID, "error", err)
	}
}

func removeMember(members []Member, userID types.ID) []Member {
	out := members[:0]
	for _, m := range members {
		if m.UserID != userID {
			out = append(out, m)
		}
	}
	return out
}
