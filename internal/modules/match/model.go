// README: Match result sum type: a candidate segment fits a route exactly or with a detour.
package match

import (
	"errors"
	"time"

	"github.com/oxymore-tech/liane-sub002/internal/modules/trip"
	"github.com/oxymore-tech/liane-sub002/internal/types"
)

var (
	// ErrIncompatibleRoute means the candidate could not be fitted within
	// the configured detour ceilings.
	ErrIncompatibleRoute = errors.New("candidate segment incompatible with route")
	// ErrStaleMatch means a previously computed match no longer reflects
	// the trip's current route; callers must recompute.
	ErrStaleMatch = errors.New("stored match is stale")
)

// Match is a closed union: Exact or Compatible. It is transient and never
// persisted; readers recompute it against the trip's current route.
type Match interface {
	isMatch()
}

// Exact means pickup and deposit already are waypoints of the route, in
// order; no new leg is inserted.
type Exact struct {
	Pickup  types.ID
	Deposit types.ID
}

// Compatible means the segment fits after inserting new waypoints; Delta
// quantifies the detour imposed on the existing route and WayPoints is the
// resulting full sequence.
type Compatible struct {
	Delta     Delta
	WayPoints []trip.WayPoint
}

func (Exact) isMatch()      {}
func (Compatible) isMatch() {}

// Delta is the extra time/distance a Compatible match costs the driver,
// split by which insertion caused it.
type Delta struct {
	Total         time.Duration
	TotalMeters   float64
	Pickup        time.Duration
	PickupMeters  float64
	Deposit       time.Duration
	DepositMeters float64
}
