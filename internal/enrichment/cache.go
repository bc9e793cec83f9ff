package enrichment

import (
	"context"
	"time"

	"accesslynx/internal/database/models"
	"accesslynx/internal/database/repositories"

	"github.com/pterm/pterm"
	"golang.org/x/sync/singleflight"
)

// CachedResolver wraps a provider with a persistent cache. Concurrent lookups
// for the same IP share one provider call. Failed lookups are never cached.
type CachedResolver struct {
	next   GeolocationResolver
	repo   repositories.GeoCacheRepository
	ttl    time.Duration
	group  singleflight.Group
	logger *pterm.Logger
}

// NewCachedResolver creates a caching resolver; ttl <= 0 keeps entries forever
func NewCachedResolver(next GeolocationResolver, repo repositories.GeoCacheRepository, ttl time.Duration, logger *pterm.Logger) *CachedResolver {
	return &CachedResolver{
		next:   next,
		repo:   repo,
		ttl:    ttl,
		logger: logger,
	}
}

// Name returns the wrapped provider name
func (r *CachedResolver) Name() string {
	return r.next.Name()
}

// Lookup serves from cache when fresh, otherwise asks the wrapped provider
func (r *CachedResolver) Lookup(ctx context.Context, ip string) (*Geolocation, error) {
	if entry, err := r.repo.Find(ip, r.notBefore()); err != nil {
		// Cache trouble must not hide the provider
		r.logger.Debug("Geo cache read failed, querying provider", r.logger.Args("ip", ip, "error", err))
	} else if entry != nil {
		return &Geolocation{Country: entry.Country, City: entry.City, Location: entry.Location}, nil
	}

	v, err, shared := r.group.Do(ip, func() (any, error) {
		geo, err := r.next.Lookup(ctx, ip)
		if err != nil {
			return nil, err
		}

		if err := r.repo.Upsert(&models.GeoCacheEntry{
			IP:       ip,
			Country:  geo.Country,
			City:     geo.City,
			Location: geo.Location,
			Source:   r.next.Name(),
		}); err != nil {
			r.logger.Debug("Failed to cache geolocation", r.logger.Args("ip", ip, "error", err))
		}
		return geo, nil
	})
	if err != nil {
		return nil, err
	}

	if shared {
		r.logger.Trace("Geolocation lookup shared with concurrent request", r.logger.Args("ip", ip))
	}

	geo := *v.(*Geolocation)
	return &geo, nil
}

func (r *CachedResolver) notBefore() time.Time {
	if r.ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(-r.ttl)
}
