package enrichment

import (
	"context"
	"time"

	"github.com/pterm/pterm"
)

// GeoEnricher turns a resolved client address into GeoFacets, absorbing every failure
type GeoEnricher struct {
	resolver GeolocationResolver
	timeout  time.Duration
	logger   *pterm.Logger
}

// NewGeoEnricher creates an enricher. A nil resolver disables geolocation.
func NewGeoEnricher(resolver GeolocationResolver, timeout time.Duration, logger *pterm.Logger) *GeoEnricher {
	return &GeoEnricher{
		resolver: resolver,
		timeout:  timeout,
		logger:   logger,
	}
}

// IsEnabled reports whether a provider is configured
func (e *GeoEnricher) IsEnabled() bool {
	return e != nil && e.resolver != nil
}

// Enrich looks ip up. Unresolved addresses are not sent to the provider.
func (e *GeoEnricher) Enrich(ctx context.Context, ip string) GeoFacets {
	if !e.IsEnabled() || ip == "" || ip == Unknown {
		return UnknownFacets()
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	geo, err := e.resolver.Lookup(ctx, ip)
	if err != nil {
		e.logger.Debug("Geolocation lookup failed",
			e.logger.Args("ip", ip, "provider", e.resolver.Name(), "error", err))
		return UnknownFacets()
	}

	return Facets(geo)
}
