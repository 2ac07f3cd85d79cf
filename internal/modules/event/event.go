// README: Closed union of trip events; everything that moves between modules goes through here.
package event

import (
	"time"

	"github.com/oxymore-tech/liane-sub002/internal/types"
)

// Event is a closed union: the set of variants below is the whole protocol.
// Listeners type-switch on the concrete types; adding a variant means
// revisiting every listener, which is the point.
type Event interface {
	kind() string
	TripID() types.ID
}

// JoinRequested is emitted when a user asks to join a trip. It is the only
// event the bus may intercept: an automatic-answer policy can resolve it
// before any listener sees it.
type JoinRequested struct {
	RequestID      types.ID
	Trip           types.ID
	Requester      types.ID
	From           types.ID
	To             types.ID
	SeatCount      int
	TakeReturnTrip bool
	Message        string
	RequestedAt    time.Time
}

// MemberAccepted is emitted once the join has been applied to the trip
// roster; by the time listeners run, the member is on the trip.
type MemberAccepted struct {
	Trip           types.ID
	UserID         types.ID
	From           types.ID
	To             types.ID
	SeatCount      int
	TakeReturnTrip bool
}

type MemberRejected struct {
	Trip   types.ID
	UserID types.ID
	Reason string
}

// MemberHasStarted is emitted when the driver starts the trip. Listeners use
// it to open tracking and to reject the joins still pending.
type MemberHasStarted struct {
	Trip   types.ID
	UserID types.ID
}

type MemberHasLeft struct {
	Trip   types.ID
	UserID types.ID
}

type MemberHasCanceled struct {
	Trip   types.ID
	UserID types.ID
}

// MemberPing carries one geolocation sample. Coordinate is nil when the
// device could not produce a fix; Delay then carries the device's own
// estimate instead of a projected one.
type MemberPing struct {
	Trip       types.ID
	UserID     types.ID
	At         time.Time
	Coordinate *types.Point
	Delay      time.Duration
}

func (JoinRequested) kind() string     { return "join_requested" }
func (MemberAccepted) kind() string    { return "member_accepted" }
func (MemberRejected) kind() string    { return "member_rejected" }
func (MemberHasStarted) kind() string  { return "member_has_started" }
func (MemberHasLeft) kind() string     { return "member_has_left" }
func (MemberHasCanceled) kind() string { return "member_has_canceled" }
func (MemberPing) kind() string        { return "member_ping" }

func (e JoinRequested) TripID() types.ID     { return e.Trip }
func (e MemberAccepted) TripID() types.ID    { return e.Trip }
func (e MemberRejected) TripID() types.ID    { return e.Trip }
func (e MemberHasStarted) TripID() types.ID  { return e.Trip }
func (e MemberHasLeft) TripID() types.ID     { return e.Trip }
func (e MemberHasCanceled) TripID() types.ID { return e.Trip }
func (e MemberPing) TripID() types.ID        { return e.Trip }
