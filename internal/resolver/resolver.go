// Package resolver locates and fetches source documents and figures for
// papers. Given a paper identifier and landing page it produces an ordered
// list of candidate PDF URLs, downloads the first one that verifies as a
// real document, and extracts classified figure references from paper HTML.
//
// Network and parse failures are non-fatal throughout: candidate and figure
// extraction degrade to empty lists, and callers must treat zero figures or
// zero downloaded documents as a normal outcome.
package resolver

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Sentinel errors for document resolution.
var (
	// ErrNotDocument is returned when a payload does not carry the PDF signature.
	ErrNotDocument = errors.New("resolver: payload is not a PDF")
	// ErrTooSmall is returned when a payload is below the minimum byte threshold.
	ErrTooSmall = errors.New("resolver: payload below minimum size")
	// ErrTooLarge is returned when a payload exceeds the maximum allowed size.
	ErrTooLarge = errors.New("resolver: payload exceeds maximum size")
	// ErrFetchFailed is returned for network and HTTP-status failures.
	ErrFetchFailed = errors.New("resolver: fetch failed")
	// ErrExhausted is returned when every candidate URL has failed.
	ErrExhausted = errors.New("resolver: all candidates exhausted")
	// ErrSSRF is returned when a URL resolves to a private network address.
	ErrSSRF = errors.New("resolver: request to private network denied")
)

// Config holds resolver configuration.
type Config struct {
	// Timeout is the per-request timeout. Default: 30 seconds.
	Timeout time.Duration
	// MinPDFBytes is the minimum payload size for a download to count.
	// Default: 10KB; anything smaller is an error page, not a paper.
	MinPDFBytes int64
	// MaxPDFBytes caps the payload size. Default: 100MB.
	MaxPDFBytes int64
	// MaxFigures caps figures extracted per paper. Default: 6.
	MaxFigures int
	// UserAgent is the User-Agent header sent on outbound fetches.
	UserAgent string
	// AllowPrivateHosts disables SSRF private-IP checks. This MUST only be
	// set to true in test environments. Production code must never set this.
	AllowPrivateHosts bool
}

// Resolver fetches documents and figures over HTTP.
type Resolver struct {
	client            *http.Client
	minBytes          int64
	maxBytes          int64
	maxFigures        int
	userAgent         string
	allowPrivateHosts bool // For testing only; never enable in production.
}

// New creates a Resolver with the given configuration.
func New(cfg Config) *Resolver {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MinPDFBytes == 0 {
		cfg.MinPDFBytes = 10 * 1024
	}
	if cfg.MaxPDFBytes == 0 {
		cfg.MaxPDFBytes = 100 * 1024 * 1024
	}
	if cfg.MaxFigures == 0 {
		cfg.MaxFigures = 6
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Mozilla/5.0 (compatible; Helixir-ResearchPipeline/1.0; +https://helixir.io/bot)"
	}

	r := &Resolver{
		minBytes:          cfg.MinPDFBytes,
		maxBytes:          cfg.MaxPDFBytes,
		maxFigures:        cfg.MaxFigures,
		userAgent:         cfg.UserAgent,
		allowPrivateHosts: cfg.AllowPrivateHosts,
	}

	r.client = &http.Client{
		Timeout: cfg.Timeout,
		// Validate each redirect URL against private IP checks to prevent
		// SSRF via open redirects that land on internal network addresses.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("%w: too many redirects", ErrSSRF)
			}
			if !r.allowPrivateHosts {
				if err := validateURLNotPrivate(req.URL.String()); err != nil {
					return err
				}
			}
			return nil
		},
	}

	return r
}

// isPrivateIP returns true if the IP address is in a private, loopback, or
// otherwise non-routable range. Covers both IPv4 and IPv6 private ranges.
func isPrivateIP(ip net.IP) bool {
	privateRanges := []struct{ start, end net.IP }{
		{net.ParseIP("10.0.0.0"), net.ParseIP("10.255.255.255")},
		{net.ParseIP("172.16.0.0"), net.ParseIP("172.31.255.255")},
		{net.ParseIP("192.168.0.0"), net.ParseIP("192.168.255.255")},
		{net.ParseIP("169.254.0.0"), net.ParseIP("169.254.255.255")},
		// IPv6 Unique Local Addresses (fc00::/7).
		{net.ParseIP("fc00::"), net.ParseIP("fdff:ffff:ffff:ffff:ffff:ffff:ffff:ffff")},
		// IPv6 link-local (fe80::/10).
		{net.ParseIP("fe80::"), net.ParseIP("febf:ffff:ffff:ffff:ffff:ffff:ffff:ffff")},
	}
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	for _, r := range privateRanges {
		if bytesInRange(ip.To16(), r.start.To16(), r.end.To16()) {
			return true
		}
	}
	return false
}

func bytesInRange(ip, lo, hi []byte) bool {
	for i := range ip {
		if ip[i] < lo[i] {
			return false
		}
		if ip[i] > hi[i] {
			return false
		}
	}
	return true
}

// validateURLNotPrivate resolves the hostname and rejects private IPs.
func validateURLNotPrivate(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSSRF, err)
	}

	// Reject non-HTTP(S) schemes to prevent file://, gopher://, etc.
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
		// allowed
	default:
		return fmt.Errorf("%w: scheme %q is not allowed", ErrSSRF, parsed.Scheme)
	}

	host := parsed.Hostname()
	ips, err := net.LookupHost(host)
	if err != nil {
		return fmt.Errorf("%w: DNS lookup failed for %s: %w", ErrFetchFailed, host, err)
	}
	for _, ipStr := range ips {
		ip := net.ParseIP(ipStr)
		if ip != nil && isPrivateIP(ip) {
			return fmt.Errorf("%w: %s resolves to private address %s", ErrSSRF, host, ipStr)
		}
	}
	return nil
}

// fetch performs a guarded GET and returns the response. The caller owns
// the body.
func (r *Resolver) fetch(req *http.Request, accept string) (*http.Response, error) {
	if !r.allowPrivateHosts {
		if err := validateURLNotPrivate(req.URL.String()); err != nil {
			return nil, err
		}
	}
	req.Header.Set("User-Agent", r.userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: HTTP %d", ErrFetchFailed, resp.StatusCode)
	}
	return resp, nil
}
