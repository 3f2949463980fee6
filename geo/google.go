package geo

import (
	"context"
	"fmt"
	"strconv"

	"googlemaps.github.io/maps"

	models "github.com/phillip/volunteer-listings-go/models"
)

// maxDestinations is the provider's per-request destination limit.
const maxDestinations = 25

// NewGoogleClient builds a maps client. baseURL is only set by tests.
func NewGoogleClient(apiKey, baseURL string) (*maps.Client, error) {
	opts := []maps.ClientOption{maps.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, maps.WithBaseURL(baseURL))
	}
	client, err := maps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("maps client: %w", err)
	}
	return client, nil
}

type GoogleGeocoder struct {
	client *maps.Client
}

func NewGoogleGeocoder(client *maps.Client) *GoogleGeocoder {
	return &GoogleGeocoder{client: client}
}

// Geocode returns the first result for address.
func (g *GoogleGeocoder) Geocode(ctx context.Context, address string) (models.GeoPoint, error) {
	results, err := g.client.Geocode(ctx, &maps.GeocodingRequest{Address: address})
	if err != nil {
		return models.GeoPoint{}, fmt.Errorf("geocode %q: %w", address, err)
	}
	if len(results) == 0 {
		return models.GeoPoint{}, ErrNoResult
	}
	loc := results[0].Geometry.Location
	return models.NewGeoPoint(loc.Lat, loc.Lng), nil
}

type GoogleDistanceOracle struct {
	client *maps.Client
	mode   maps.Mode
}

func NewGoogleDistanceOracle(client *maps.Client) *GoogleDistanceOracle {
	return &GoogleDistanceOracle{client: client, mode: maps.TravelModeDriving}
}

// Distances measures driving distance from origin to every destination.
// Destinations are sent in provider-sized batches; each result keeps the key
// of the destination it was computed for.
func (o *GoogleDistanceOracle) Distances(ctx context.Context, origin models.GeoPoint, dests []Destination) ([]DistanceResult, error) {
	results := make([]DistanceResult, 0, len(dests))
	for start := 0; start < len(dests); start += maxDestinations {
		end := start + maxDestinations
		if end > len(dests) {
			end = len(dests)
		}
		batch := dests[start:end]

		req := &maps.DistanceMatrixRequest{
			Origins:      []string{latLng(origin)},
			Destinations: make([]string, len(batch)),
			Mode:         o.mode,
		}
		for i, d := range batch {
			req.Destinations[i] = latLng(d.Point)
		}

		resp, err := o.client.DistanceMatrix(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("distance matrix: %w", err)
		}
		if len(resp.Rows) == 0 || len(resp.Rows[0].Elements) != len(batch) {
			return nil, fmt.Errorf("distance matrix: expected %d elements", len(batch))
		}
		for i, el := range resp.Rows[0].Elements {
			r := DistanceResult{Key: batch[i].Key}
			if el != nil {
				r.Status = el.Status
				r.Meters = el.Distance.Meters
			}
			results = append(results, r)
		}
	}
	return results, nil
}

func latLng(p models.GeoPoint) string {
	return strconv.FormatFloat(p.Lat(), 'f', -1, 64) + "," + strconv.FormatFloat(p.Lng(), 'f', -1, 64)
}
