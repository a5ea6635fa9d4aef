// Package geocode resolves normalised addresses to coordinates via
// Google, LocationIQ, or Nominatim, and filters out results too vague
// to place a marker on.
package geocode

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/snarg/scanmap/internal/config"
)

// Result is a successful provider lookup before acceptance filtering.
type Result struct {
	Lat       float64
	Lon       float64
	Address   string // provider-formatted address
	County    string // may be ""
	HasStreet bool   // street number or route present in the match
}

// Geocoder looks up one address. A nil Result with nil error means the
// provider found nothing.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*Result, error)
	Name() string
}

// New selects the provider from GEOCODING_PROVIDER.
func New(cfg *config.Config, log zerolog.Logger) (Geocoder, error) {
	switch strings.ToLower(cfg.GeocodingProvider) {
	case "google":
		if cfg.GoogleMapsAPIKey == "" {
			return nil, fmt.Errorf("GEOCODING_PROVIDER=google requires GOOGLE_MAPS_API_KEY")
		}
		return NewGoogle(cfg.GoogleMapsAPIKey, cfg.GeocodingCountry), nil
	case "locationiq":
		if cfg.LocationIQAPIKey == "" {
			return nil, fmt.Errorf("GEOCODING_PROVIDER=locationiq requires LOCATIONIQ_API_KEY")
		}
		return NewLocationIQ(cfg.LocationIQAPIKey, cfg.GeocodingCountry), nil
	case "nominatim", "":
		return NewNominatim(cfg.GeocodingCountry), nil
	default:
		return nil, fmt.Errorf("unknown GEOCODING_PROVIDER %q", cfg.GeocodingProvider)
	}
}

// bareCityRow matches formatted addresses of the shape
// "City, ST 12345, Country": a postcode centroid with no street.
var bareCityRow = regexp.MustCompile(`^[^,0-9]+,\s*[A-Za-z .]+\s+\d{4,5}(-\d{4})?,\s*[A-Za-z .]+$`)

// Accept decides whether a geocoded result is precise enough to use.
// Returns "" when accepted, else the rejection reason.
func Accept(r *Result, targetCounties []string) string {
	if r == nil {
		return "no result"
	}
	if !r.HasStreet {
		return "locality-only match"
	}
	if len(targetCounties) > 0 && !countyInSet(r.County, targetCounties) {
		return fmt.Sprintf("county %q outside target area", r.County)
	}
	if bareCityRow.MatchString(r.Address) {
		return "postcode centroid"
	}
	return ""
}

func countyInSet(county string, set []string) bool {
	c := normaliseCounty(county)
	if c == "" {
		return false
	}
	for _, want := range set {
		if normaliseCounty(want) == c {
			return true
		}
	}
	return false
}

func normaliseCounty(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.TrimSuffix(s, " county")
	return s
}
