package routing

import (
	"context"
	"fmt"
	"time"

	"googlemaps.github.io/maps"

	"github.com/oxymore-tech/liane-sub002/internal/types"
)

// GoogleProvider resolves routes through the Google Maps Directions API.
type GoogleProvider struct {
	client  *maps.Client
	timeout time.Duration
}

// NewGoogleProvider creates a provider with the given API key.
func NewGoogleProvider(apiKey string) (*GoogleProvider, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &GoogleProvider{client: client, timeout: 5 * time.Second}, nil
}

func (p *GoogleProvider) Route(ctx context.Context, points []types.Point) (Route, error) {
	if len(points) < 2 {
		return Route{}, ErrNoRoute
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req := &maps.DirectionsRequest{
		Origin:      latLng(points[0]),
		Destination: latLng(points[len(points)-1]),
		Mode:        maps.TravelModeDriving,
	}
	for _, wp := range points[1 : len(points)-1] {
		req.Waypoints = append(req.Waypoints, latLng(wp))
	}

	routes, _, err := p.client.Directions(ctx, req)
	if err != nil {
		return Route{}, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return Route{}, ErrNoRoute
	}

	var out Route
	for _, leg := range routes[0].Legs {
		out.Duration += leg.Duration
		out.Distance += float64(leg.Distance.Meters)
		for _, step := range leg.Steps {
			out.Geometry = append(out.Geometry,
				types.Point{Lat: step.StartLocation.Lat, Lng: step.StartLocation.Lng})
		}
	}
	last := routes[0].Legs[len(routes[0].Legs)-1]
	out.Geometry = append(out.Geometry,
		types.Point{Lat: last.EndLocation.Lat, Lng: last.EndLocation.Lng})
	return out, nil
}

func latLng(p types.Point) string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)
}
