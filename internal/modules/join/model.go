// README: Pending join requests: a request lives from JoinRequested until answered or cascaded away.
package join

import (
	"errors"
	"time"

	"github.com/oxymore-tech/liane-sub002/internal/modules/trip"
	"github.com/oxymore-tech/liane-sub002/internal/types"
)

var ErrNotFound = errors.New("join request not found")

// Request is a pending ask to join a trip. From/To carry the full rallying
// points as captured at request time, so the match can be recomputed at
// answer time without a referential lookup.
type Request struct {
	ID             types.ID           `json:"id"`
	TripID         types.ID           `json:"tripId"`
	Requester      types.ID           `json:"requester"`
	From           trip.RallyingPoint `json:"from"`
	To             trip.RallyingPoint `json:"to"`
	SeatCount      int                `json:"seatCount"`
	TakeReturnTrip bool               `json:"takeReturnTrip"`
	Message        string             `json:"message,omitempty"`
	// GeolocationLevel is what the requester is willing to share once on
	// board; it becomes the member's level on acceptance.
	GeolocationLevel trip.GeolocationLevel `json:"geolocationLevel,omitempty"`
	CreatedAt        time.Time             `json:"createdAt"`
}
