// README: Trip document, waypoints, members and state definitions.
package trip

import (
	"time"

	"github.com/oxymore-tech/liane-sub002/internal/types"
)

type State string

const (
	StateNotStarted State = "not_started"
	StateStarted    State = "started"
	StateFinished   State = "finished"
	StateArchived   State = "archived"
	StateCanceled   State = "canceled"
)

// AllowedTransitions represents the trip state flow as code.
// Archived and Canceled are terminal.
var AllowedTransitions = map[State][]State{
	StateNotStarted: {StateStarted, StateCanceled},
	StateStarted:    {StateFinished, StateCanceled},
	StateFinished:   {StateArchived},
}

func CanTransition(from, to State) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a trip in this state may never be mutated again.
func IsTerminal(s State) bool {
	return s == StateArchived || s == StateCanceled
}

// AcceptsNewMembers reports whether the trip roster is still open. A started
// trip has a frozen route, so only exact (no-insertion) joins remain valid;
// route-changing joins require NotStarted.
func AcceptsNewMembers(s State) bool {
	return s == StateNotStarted || s == StateStarted
}

type GeolocationLevel string

const (
	GeolocationShared GeolocationLevel = "shared"
	GeolocationHidden GeolocationLevel = "hidden"
)

// RallyingPoint is a named pickup/drop-off location.
type RallyingPoint struct {
	ID       types.ID    `json:"id"`
	Label    string      `json:"label"`
	Location types.Point `json:"location"`
}

// WayPoint binds a rallying point to a scheduled ETA within a trip's route.
// Duration and Distance describe the leg from the previous waypoint; both
// are zero on the first waypoint.
type WayPoint struct {
	RallyingPoint RallyingPoint `json:"rallying_point"`
	Eta           time.Time     `json:"eta"`
	Duration      time.Duration `json:"duration"`
	Distance      float64       `json:"distance"`
}

// Member is a user enrolled on a trip. SeatCount is signed: positive means
// capacity offered (driver), negative means seats requested (passenger).
type Member struct {
	UserID           types.ID         `json:"user_id"`
	From             types.ID         `json:"from"`
	To               types.ID         `json:"to"`
	SeatCount        int              `json:"seat_count"`
	GeolocationLevel GeolocationLevel `json:"geolocation_level"`
	Feedback         *string          `json:"feedback,omitempty"`
}

type Driver struct {
	UserID   types.ID `json:"user_id"`
	CanDrive bool     `json:"can_drive"`
}

// Trip is the aggregate document. Version guards every conditional write.
type Trip struct {
	ID            types.ID   `json:"id"`
	CreatedBy     types.ID   `json:"created_by"`
	CreatedAt     time.Time  `json:"created_at"`
	DepartureTime time.Time  `json:"departure_time"`
	ReturnTrip    *types.ID  `json:"return_trip,omitempty"`
	WayPoints     []WayPoint `json:"way_points"`
	Members       []Member   `json:"members"`
	Driver        Driver     `json:"driver"`
	State         State      `json:"state"`
	Version       int        `json:"version"`
}

// WayPointIndex returns the position of the rallying point on the route,
// or -1 if it is not a waypoint.
func (t *Trip) WayPointIndex(rallyingPoint types.ID) int {
	for i, wp := range t.WayPoints {
		if wp.RallyingPoint.ID == rallyingPoint {
			return i
		}
	}
	return -1
}

// MemberByUser returns the member entry for the user, or nil.
func (t *Trip) MemberByUser(userID types.ID) *Member {
	for i := range t.Members {
		if t.Members[i].UserID == userID {
			return &t.Members[i]
		}
	}
	return nil
}

// SeatsLeft is the signed seat balance: driver capacity plus all passenger
// requests. A passenger needing n seats fits while SeatsLeft >= n.
func (t *Trip) SeatsLeft() int {
	total := 0
	for _, m := range t.Members {
		total += m.SeatCount
	}
	return total
}

// Clone returns a deep copy so callers can mutate candidates without
// touching the stored document.
func (t *Trip) Clone() *Trip {
	cp := *t
	cp.WayPoints = append([]WayPoint(nil), t.WayPoints...)
	cp.Members = append([]Member(nil), t.Members...)
	if t.ReturnTrip != nil {
		rt := *t.ReturnTrip
		cp.ReturnTrip = &rt
	}
	for i, m := range t.Members {
		if m.Feedback != nil {
			fb := *m.Feedback
			cp.Members[i].Feedback = &fb
		}
	}
	return &cp
}

// ChangeRecord is an append-only log entry written on every state change.
type ChangeRecord struct {
	ID        int64     `json:"id"`
	TripID    types.ID  `json:"trip_id"`
	FromState State     `json:"from_state"`
	ToState   State     `json:"to_state"`
	ActorType string    `json:"actor_type"`
	ActorID   *types.ID `json:"actor_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
