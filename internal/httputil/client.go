// Package httputil builds the HTTP client shared by the feed check and the
// https payload source.
package httputil

import (
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/http/httpproxy"
)

// DefaultUserAgent identifies the updater to feed servers.
const DefaultUserAgent = "breeze-update/dev"

// ClientOptions configures NewClient.
type ClientOptions struct {
	// Timeout bounds a whole request including the body. Zero means no
	// deadline, which large payload downloads need; callers cancel via ctx.
	Timeout   time.Duration
	UserAgent string

	// Proxy settings. Empty fields fall back to the environment
	// (HTTP_PROXY, HTTPS_PROXY, NO_PROXY).
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// NewClient returns an *http.Client with proxy resolution and a default
// User-Agent header.
func NewClient(opts ClientOptions) *http.Client {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.Proxy = proxyFunc(opts)
	base.ResponseHeaderTimeout = 30 * time.Second

	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}

	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: &userAgentTransport{base: base, userAgent: ua},
	}
}

func proxyFunc(opts ClientOptions) func(*http.Request) (*url.URL, error) {
	cfg := httpproxy.FromEnvironment()
	if opts.HTTPProxy != "" {
		cfg.HTTPProxy = opts.HTTPProxy
	}
	if opts.HTTPSProxy != "" {
		cfg.HTTPSProxy = opts.HTTPSProxy
	}
	if opts.NoProxy != "" {
		cfg.NoProxy = opts.NoProxy
	}
	resolve := cfg.ProxyFunc()
	return func(req *http.Request) (*url.URL, error) {
		return resolve(req.URL)
	}
}

type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(clone)
}
