package clientip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrLookupFailed is returned when the public IP service gives no usable answer
var ErrLookupFailed = errors.New("public ip lookup failed")

// PublicIPResolver discovers the public address of this host
type PublicIPResolver interface {
	PublicIP(ctx context.Context) (string, error)
}

// HTTPPublicIPResolver queries an httpbin-style endpoint returning {"origin": "<ip>"}
type HTTPPublicIPResolver struct {
	url    string
	client *http.Client
}

// NewHTTPPublicIPResolver creates a resolver with an explicit per-call timeout
func NewHTTPPublicIPResolver(url string, timeout time.Duration) *HTTPPublicIPResolver {
	return &HTTPPublicIPResolver{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type publicIPResponse struct {
	Origin string `json:"origin"`
}

// PublicIP returns the origin field of the service response
func (r *HTTPPublicIPResolver) PublicIP(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: status %d", ErrLookupFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}

	var payload publicIPResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("%w: malformed body: %v", ErrLookupFailed, err)
	}

	origin := strings.TrimSpace(payload.Origin)
	if origin == "" {
		return "", fmt.Errorf("%w: empty origin", ErrLookupFailed)
	}
	return origin, nil
}
