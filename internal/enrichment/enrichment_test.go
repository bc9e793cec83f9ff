package enrichment

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"accesslynx/internal/database"
	"accesslynx/internal/database/repositories"

	"github.com/pterm/pterm"
)

type stubGeoResolver struct {
	geo   *Geolocation
	err   error
	calls atomic.Int32
	delay time.Duration
}

func (s *stubGeoResolver) Name() string { return "stub" }

func (s *stubGeoResolver) Lookup(ctx context.Context, ip string) (*Geolocation, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	geo := *s.geo
	return &geo, nil
}

func TestFacets(t *testing.T) {
	tests := []struct {
		name string
		geo  *Geolocation
		want GeoFacets
	}{
		{
			name: "nil lookup",
			geo:  nil,
			want: GeoFacets{Unknown, Unknown, Unknown, Unknown},
		},
		{
			name: "complete",
			geo:  &Geolocation{Country: "US", City: "Columbus", Location: "39.96,-83.00"},
			want: GeoFacets{"US", "Columbus", "39.96", "-83.00"},
		},
		{
			name: "missing loc",
			geo:  &Geolocation{Country: "US", City: "Columbus"},
			want: GeoFacets{"US", "Columbus", Unknown, Unknown},
		},
		{
			name: "single coordinate",
			geo:  &Geolocation{Country: "US", Location: "1.23"},
			want: GeoFacets{"US", Unknown, "1.23", Unknown},
		},
		{
			name: "extra parts ignored",
			geo:  &Geolocation{Location: "1.23,4.56,7.89"},
			want: GeoFacets{Unknown, Unknown, "1.23", "4.56"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Facets(tc.geo); got != tc.want {
				t.Errorf("Expected %+v, got %+v", tc.want, got)
			}
		})
	}
}

func TestIPInfoResolver(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ip":"203.0.113.5","country":"US","city":"Columbus","loc":"39.96,-83.00"}`))
	}))
	defer srv.Close()

	resolver := NewIPInfoResolver(srv.URL+"/", "secret", time.Second)
	geo, err := resolver.Lookup(context.Background(), "203.0.113.5")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}

	if gotPath != "/203.0.113.5/json" {
		t.Errorf("Expected path '/203.0.113.5/json', got '%s'", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Expected bearer token, got '%s'", gotAuth)
	}

	facets := Facets(geo)
	want := GeoFacets{"US", "Columbus", "39.96", "-83.00"}
	if facets != want {
		t.Errorf("Expected %+v, got %+v", want, facets)
	}
}

func TestIPInfoResolver_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"error":"rate limit"}`},
		{name: "malformed body", status: http.StatusOK, body: `not json`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewIPInfoResolver(srv.URL, "", time.Second).Lookup(context.Background(), "203.0.113.5")
			if !errors.Is(err, ErrLookupFailed) {
				t.Errorf("Expected ErrLookupFailed, got %v", err)
			}
		})
	}
}

func TestIPInfoResolver_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewIPInfoResolver(url, "", time.Second).Lookup(context.Background(), "203.0.113.5")
	if !errors.Is(err, ErrLookupFailed) {
		t.Errorf("Expected ErrLookupFailed, got %v", err)
	}
}

func TestGeoEnricher(t *testing.T) {
	logger := pterm.DefaultLogger.WithLevel(pterm.LogLevelTrace)

	t.Run("success", func(t *testing.T) {
		stub := &stubGeoResolver{geo: &Geolocation{Country: "US", City: "Columbus", Location: "39.96,-83.00"}}
		facets := NewGeoEnricher(stub, time.Second, logger).Enrich(context.Background(), "203.0.113.5")
		if facets.Country != "US" || facets.Longitude != "-83.00" {
			t.Errorf("Unexpected facets: %+v", facets)
		}
	})

	t.Run("failure collapses to unknown", func(t *testing.T) {
		stub := &stubGeoResolver{err: ErrLookupFailed}
		facets := NewGeoEnricher(stub, time.Second, logger).Enrich(context.Background(), "203.0.113.5")
		if facets != UnknownFacets() {
			t.Errorf("Expected all Unknown, got %+v", facets)
		}
	})

	t.Run("unknown address is not looked up", func(t *testing.T) {
		stub := &stubGeoResolver{geo: &Geolocation{Country: "US"}}
		facets := NewGeoEnricher(stub, time.Second, logger).Enrich(context.Background(), Unknown)
		if facets != UnknownFacets() {
			t.Errorf("Expected all Unknown, got %+v", facets)
		}
		if stub.calls.Load() != 0 {
			t.Errorf("Expected no lookups, got %d", stub.calls.Load())
		}
	})

	t.Run("disabled", func(t *testing.T) {
		enricher := NewGeoEnricher(nil, time.Second, logger)
		if enricher.IsEnabled() {
			t.Error("Expected enricher without resolver to be disabled")
		}
		if facets := enricher.Enrich(context.Background(), "203.0.113.5"); facets != UnknownFacets() {
			t.Errorf("Expected all Unknown, got %+v", facets)
		}
	})
}

func newCachedResolver(t *testing.T, next GeolocationResolver) *CachedResolver {
	t.Helper()
	logger := pterm.DefaultLogger.WithLevel(pterm.LogLevelTrace)

	db, err := database.NewConnection(&database.Config{Path: filepath.Join(t.TempDir(), "cache.db")}, logger)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close(db) })

	return NewCachedResolver(next, repositories.NewGeoCacheRepository(db, logger), time.Hour, logger)
}

func TestCachedResolver_HitAvoidsProvider(t *testing.T) {
	stub := &stubGeoResolver{geo: &Geolocation{Country: "US", City: "Columbus", Location: "39.96,-83.00"}}
	resolver := newCachedResolver(t, stub)

	for i := 0; i < 3; i++ {
		geo, err := resolver.Lookup(context.Background(), "203.0.113.5")
		if err != nil {
			t.Fatalf("Lookup %d failed: %v", i, err)
		}
		if geo.City != "Columbus" {
			t.Errorf("Expected city 'Columbus', got '%s'", geo.City)
		}
	}

	if calls := stub.calls.Load(); calls != 1 {
		t.Errorf("Expected 1 provider call, got %d", calls)
	}
}

func TestCachedResolver_FailuresNotCached(t *testing.T) {
	stub := &stubGeoResolver{err: ErrLookupFailed}
	resolver := newCachedResolver(t, stub)

	for i := 0; i < 2; i++ {
		if _, err := resolver.Lookup(context.Background(), "203.0.113.5"); !errors.Is(err, ErrLookupFailed) {
			t.Errorf("Expected ErrLookupFailed, got %v", err)
		}
	}

	if calls := stub.calls.Load(); calls != 2 {
		t.Errorf("Expected 2 provider calls, got %d", calls)
	}
}

func TestCachedResolver_ConcurrentLookupsShareCall(t *testing.T) {
	stub := &stubGeoResolver{
		geo:   &Geolocation{Country: "US"},
		delay: 100 * time.Millisecond,
	}
	resolver := newCachedResolver(t, stub)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := resolver.Lookup(context.Background(), "198.51.100.7"); err != nil {
				t.Errorf("Lookup failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if calls := stub.calls.Load(); calls >= 8 {
		t.Errorf("Expected concurrent lookups to be collapsed, got %d provider calls", calls)
	}
}
