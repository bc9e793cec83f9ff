package enrichment

import (
	"context"
	"errors"
	"strings"
)

// Unknown is written for every geolocation field that could not be determined
const Unknown = "Unknown"

// ErrLookupFailed marks any failed geolocation lookup: unreachable service,
// failure status or unusable body.
var ErrLookupFailed = errors.New("geolocation lookup failed")

// Geolocation is the raw answer of a provider. Empty fields mean "absent".
type Geolocation struct {
	Country  string
	City     string
	Location string // "lat,lon"
}

// GeolocationResolver maps an IP address to a location
type GeolocationResolver interface {
	Name() string
	Lookup(ctx context.Context, ip string) (*Geolocation, error)
}

// GeoFacets are the four geolocation fields of an access log record
type GeoFacets struct {
	Country   string
	City      string
	Latitude  string
	Longitude string
}

// UnknownFacets is the result of a failed or skipped lookup
func UnknownFacets() GeoFacets {
	return GeoFacets{Country: Unknown, City: Unknown, Latitude: Unknown, Longitude: Unknown}
}

// Facets flattens a lookup result. A nil result yields all Unknown.
func Facets(geo *Geolocation) GeoFacets {
	facets := UnknownFacets()
	if geo == nil {
		return facets
	}

	facets.Country = orUnknown(geo.Country)
	facets.City = orUnknown(geo.City)

	parts := strings.Split(geo.Location, ",")
	if len(parts) > 0 {
		facets.Latitude = orUnknown(parts[0])
	}
	if len(parts) > 1 {
		facets.Longitude = orUnknown(parts[1])
	}

	return facets
}

func orUnknown(value string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return Unknown
}
