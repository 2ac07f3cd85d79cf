// README: Route geometry provider abstraction consumed by the match engine and tracking.
package routing

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/oxymore-tech/liane-sub002/internal/types"
)

// Route describes the driving route through an ordered list of points.
type Route struct {
	Geometry []types.Point
	Duration time.Duration
	Distance float64 // meters
}

// Provider answers travel duration/distance queries between ordered points.
// Implementations must bound the call with the context deadline; a timeout
// is a retryable failure, never a silent success.
type Provider interface {
	Route(ctx context.Context, points []types.Point) (Route, error)
}

var ErrNoRoute = errors.New("no route between points")

const earthRadiusM = 6371000.0

// HaversineMeters returns the great-circle distance in meters between two
// points specified in decimal degrees.
func HaversineMeters(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusM * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

func secondsToDuration(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}
