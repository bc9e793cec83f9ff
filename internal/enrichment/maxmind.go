package enrichment

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/oschwald/geoip2-golang"
	"github.com/pterm/pterm"
)

// MaxMindResolver answers lookups from a local GeoLite2/GeoIP2 City database
type MaxMindResolver struct {
	reader *geoip2.Reader
	logger *pterm.Logger
}

// NewMaxMindResolver opens the City database at path
func NewMaxMindResolver(path string, logger *pterm.Logger) (*MaxMindResolver, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open GeoIP city database %s: %w", path, err)
	}

	logger.Debug("GeoIP city database opened",
		logger.Args("path", path, "type", reader.Metadata().DatabaseType))

	return &MaxMindResolver{reader: reader, logger: logger}, nil
}

// Name returns the provider identifier
func (r *MaxMindResolver) Name() string {
	return "maxmind"
}

// Lookup reads the City record for ip
func (r *MaxMindResolver) Lookup(ctx context.Context, ip string) (*Geolocation, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, fmt.Errorf("%w: invalid ip %q", ErrLookupFailed, ip)
	}

	record, err := r.reader.City(parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}

	geo := &Geolocation{
		Country: record.Country.IsoCode,
		City:    record.City.Names["en"],
	}
	if record.Location.Latitude != 0 || record.Location.Longitude != 0 {
		geo.Location = strconv.FormatFloat(record.Location.Latitude, 'f', 4, 64) + "," +
			strconv.FormatFloat(record.Location.Longitude, 'f', 4, 64)
	}

	return geo, nil
}

// Close releases the database
func (r *MaxMindResolver) Close() error {
	return r.reader.Close()
}
