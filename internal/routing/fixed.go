package routing

import (
	"context"

	"github.com/oxymore-tech/liane-sub002/internal/types"
)

// FixedSpeedProvider derives routes from great-circle distance at a constant
// speed. It needs no network and is fully deterministic, which makes it the
// default for local runs and tests.
type FixedSpeedProvider struct {
	SpeedMps float64
}

func NewFixedSpeedProvider(speedMps float64) *FixedSpeedProvider {
	if speedMps <= 0 {
		speedMps = 8.0 // ~28.8 km/h city speed
	}
	return &FixedSpeedProvider{SpeedMps: speedMps}
}

func (f *FixedSpeedProvider) Route(_ context.Context, points []types.Point) (Route, error) {
	if len(points) < 2 {
		return Route{}, ErrNoRoute
	}
	var out Route
	out.Geometry = append(out.Geometry, points...)
	for i := 1; i < len(points); i++ {
		d := HaversineMeters(points[i-1], points[i])
		out.Distance += d
	}
	out.Duration = secondsToDuration(out.Distance / f.SpeedMps)
	return out, nil
}
