// README: Tracking types: pings in, member locations and trip snapshots out.
package tracking

import (
	"time"

	"github.com/oxymore-tech/liane-sub002/internal/types"
)

// Ping is one raw geolocation sample from a member's device. Coordinate is
// nil when the device has no fix; Delay then carries the device's own
// estimate.
type Ping struct {
	UserID     types.ID      `json:"userId"`
	At         time.Time     `json:"at"`
	Coordinate *types.Point  `json:"coordinate,omitempty"`
	Delay      time.Duration `json:"delay"`
}

// MemberLocation is the last accepted sample for a member, enriched with the
// projection onto the route.
type MemberLocation struct {
	UserID     types.ID     `json:"userId"`
	At         time.Time    `json:"at"`
	Coordinate *types.Point `json:"coordinate,omitempty"`
	// Delay is how far behind (positive) or ahead (negative) of the
	// published ETAs the member runs.
	Delay    time.Duration `json:"delay"`
	IsMoving bool          `json:"isMoving"`
	// NextPoint is the rallying point the member is currently headed to.
	NextPoint types.ID `json:"nextPoint,omitempty"`
}

// Snapshot is the tracking view of a trip at a point in time. Coordinates of
// members who chose the hidden geolocation level are withheld before the
// snapshot leaves the estimator.
type Snapshot struct {
	TripID types.ID  `json:"tripId"`
	At     time.Time `json:"at"`
	// Delay is the trip-level estimate, taken from the driver when the
	// driver reports, otherwise the worst member delay.
	Delay   time.Duration    `json:"delay"`
	Members []MemberLocation `json:"members"`
}
