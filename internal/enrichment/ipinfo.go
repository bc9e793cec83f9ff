package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// IPInfoResolver queries an ipinfo.io compatible HTTP service
type IPInfoResolver struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewIPInfoResolver creates a resolver bounded by the given per-call timeout
func NewIPInfoResolver(baseURL, token string, timeout time.Duration) *IPInfoResolver {
	return &IPInfoResolver{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

type ipInfoResponse struct {
	Country string `json:"country"`
	City    string `json:"city"`
	Loc     string `json:"loc"`
}

// Name returns the provider identifier
func (r *IPInfoResolver) Name() string {
	return "ipinfo"
}

// Lookup fetches <base>/<ip>/json
func (r *IPInfoResolver) Lookup(ctx context.Context, ip string) (*Geolocation, error) {
	endpoint := fmt.Sprintf("%s/%s/json", r.baseURL, url.PathEscape(ip))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	req.Header.Set("Accept", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrLookupFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}

	// A reachable service with an unusable body counts as a failed lookup
	var payload ipInfoResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: malformed body: %v", ErrLookupFailed, err)
	}

	return &Geolocation{
		Country:  payload.Country,
		City:     payload.City,
		Location: payload.Loc,
	}, nil
}
