// Package geo holds the geocoding and distance-matrix adapters used to
// enrich listings with coordinates and to filter them by driving distance.
package geo

import (
	"context"
	"errors"

	models "github.com/phillip/volunteer-listings-go/models"
)

// ErrNoResult is returned when the provider has no match for an address.
var ErrNoResult = errors.New("geocode: no result")

// StatusOK marks a distance element the provider could route.
const StatusOK = "OK"

type Geocoder interface {
	Geocode(ctx context.Context, address string) (models.GeoPoint, error)
}

// Destination is a point to measure, tagged with the key of whatever it
// belongs to so results never depend on slice positions.
type Destination struct {
	Key   string
	Point models.GeoPoint
}

type DistanceResult struct {
	Key    string
	Status string
	Meters int
}

// Kilometers converts the routed distance for comparison with user input.
func (r DistanceResult) Kilometers() float64 {
	return float64(r.Meters) / 1000
}

type DistanceOracle interface {
	Distances(ctx context.Context, origin models.GeoPoint, dests []Destination) ([]DistanceResult, error)
}
