package clientip

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/pterm/pterm"
)

// Unknown marks an address that could not be resolved
const Unknown = "Unknown"

var loopbackLiterals = []string{"127.0.0.1", "::1"}

// Resolver determines the real client address of a request
type Resolver struct {
	forwardedHeader string
	privatePrefixes []string
	publicIP        PublicIPResolver
	logger          *pterm.Logger
}

// Config holds resolver settings
type Config struct {
	ForwardedHeader string
	PrivatePrefixes []string
}

// NewResolver creates a new client address resolver
func NewResolver(cfg *Config, publicIP PublicIPResolver, logger *pterm.Logger) *Resolver {
	header := cfg.ForwardedHeader
	if header == "" {
		header = "X-Forwarded-For"
	}
	return &Resolver{
		forwardedHeader: header,
		privatePrefixes: cfg.PrivatePrefixes,
		publicIP:        publicIP,
		logger:          logger,
	}
}

// Candidate picks the first forwarded entry, falling back to the transport peer.
// No private-range substitution happens here.
func (r *Resolver) Candidate(header http.Header, peer string) string {
	if forwarded := header.Get(r.forwardedHeader); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	return PeerHost(peer)
}

// Resolve returns the client address, or Unknown when every strategy fails
func (r *Resolver) Resolve(ctx context.Context, header http.Header, peer string) string {
	candidate := r.Candidate(header, peer)
	if candidate == "" {
		return Unknown
	}
	if !r.IsNonRoutable(candidate) {
		return candidate
	}

	if r.publicIP == nil {
		return Unknown
	}

	public, err := r.publicIP.PublicIP(ctx)
	if err != nil {
		r.logger.Debug("Public IP lookup failed", r.logger.Args("candidate", candidate, "error", err))
		return Unknown
	}

	r.logger.Trace("Replaced non-routable client address",
		r.logger.Args("candidate", candidate, "public_ip", public))
	return public
}

// IsNonRoutable reports whether addr is loopback or matches a private prefix
func (r *Resolver) IsNonRoutable(addr string) bool {
	for _, literal := range loopbackLiterals {
		if addr == literal {
			return true
		}
	}
	for _, prefix := range r.privatePrefixes {
		if prefix != "" && strings.HasPrefix(addr, prefix) {
			return true
		}
	}
	return false
}

// PeerHost strips the port from a transport address ("1.2.3.4:5678", "[::1]:80")
func PeerHost(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return strings.TrimSpace(remoteAddr)
}
