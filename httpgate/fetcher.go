// Package httpgate exposes gatekeeper to HTTP clients.
//
// Application traffic is served through gatekeeper with upstream server as network,
// client contexts receive messages over server-sent events.
package httpgate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/bool64/ctxd"
	"github.com/vearutop/swcache"
)

// hopHeaders are connection-level headers that are not forwarded.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// conditionalHeaders are validators of browser HTTP cache, gatekeeper needs full responses to store them.
var conditionalHeaders = []string{
	"If-Match",
	"If-None-Match",
	"If-Modified-Since",
	"If-Unmodified-Since",
	"If-Range",
}

// FetcherConfig controls Fetcher.
type FetcherConfig struct {
	// Origin is the public application origin, e.g. "http://localhost:8080/".
	Origin string

	// Upstream is the address of application server that serves origin requests,
	// origin itself is used when empty.
	Upstream string

	// Client performs requests, default client has 30s timeout.
	Client *http.Client

	// MaxBodySize limits response body, default 32MB.
	MaxBodySize int64

	// Logger collects messages with context.
	Logger ctxd.Logger
}

var _ swcache.Network = &Fetcher{}

// Fetcher is a network of gatekeeper backed by HTTP client.
type Fetcher struct {
	origin   *url.URL
	upstream *url.URL
	client   *http.Client
	config   FetcherConfig
	log      ctxd.Logger
}

// NewFetcher creates HTTP network.
func NewFetcher(cfg FetcherConfig) (*Fetcher, error) {
	o, err := url.Parse(cfg.Origin)
	if err != nil || o.Host == "" {
		return nil, fmt.Errorf("invalid origin: %q", cfg.Origin)
	}

	up := o

	if cfg.Upstream != "" {
		up, err = url.Parse(cfg.Upstream)
		if err != nil || up.Host == "" {
			return nil, fmt.Errorf("invalid upstream: %q", cfg.Upstream)
		}
	}

	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}

	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = 32 << 20
	}

	f := &Fetcher{
		origin:   o,
		upstream: up,
		client:   cfg.Client,
		config:   cfg,
		log:      cfg.Logger,
	}

	if f.log == nil {
		f.log = ctxd.NoOpLogger{}
	}

	return f, nil
}

func (f *Fetcher) sameOrigin(u *url.URL) bool {
	return u.Host == "" || (u.Scheme == f.origin.Scheme && strings.EqualFold(u.Host, f.origin.Host))
}

// Target maps public request URL to address that serves it.
func (f *Fetcher) Target(u *url.URL) *url.URL {
	t := *u

	if f.sameOrigin(u) {
		t.Scheme = f.upstream.Scheme
		t.Host = f.upstream.Host
	}

	t.Fragment = ""
	t.RawFragment = ""

	return &t
}

// Fetch performs unconditional request and reads whole response.
func (f *Fetcher) Fetch(ctx context.Context, req *http.Request) (*swcache.Response, error) {
	target := f.Target(req.URL)

	out, err := http.NewRequestWithContext(ctx, req.Method, target.String(), nil)
	if err != nil {
		return nil, err
	}

	out.Header = req.Header.Clone()
	if out.Header == nil {
		out.Header = http.Header{}
	}

	removeHopHeaders(out.Header)

	for _, k := range conditionalHeaders {
		out.Header.Del(k)
	}

	if swcache.Reload(ctx) {
		out.Header.Set("Cache-Control", "no-cache")
		out.Header.Set("Pragma", "no-cache")
	}

	resp, err := f.client.Do(out)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			f.log.Warn(ctx, "failed to close response body", "url", target.String(), "error", err)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodySize+1))
	if err != nil {
		return nil, ctxd.WrapError(ctx, err, "failed to read response body", "url", target.String())
	}

	if int64(len(body)) > f.config.MaxBodySize {
		return nil, ctxd.WrapError(ctx, errors.New("response body is too large"),
			"failed to read response body", "url", target.String(), "limit", f.config.MaxBodySize)
	}

	header := resp.Header.Clone()
	removeHopHeaders(header)

	return &swcache.Response{
		Status: resp.StatusCode,
		Header: header,
		Body:   body,
		Type:   f.responseType(req),
		URL:    req.URL.String(),
	}, nil
}

func (f *Fetcher) responseType(req *http.Request) swcache.ResponseType {
	if f.sameOrigin(req.URL) {
		return swcache.TypeBasic
	}

	if req.Header.Get("Sec-Fetch-Mode") == "no-cors" {
		return swcache.TypeOpaque
	}

	return swcache.TypeCORS
}

// Proxy returns handler that forwards requests untouched to their targets.
func (f *Fetcher) Proxy() http.Handler {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			t := f.Target(pr.In.URL)
			pr.Out.URL = t
			pr.Out.Host = t.Host
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			f.log.Warn(r.Context(), "pass-through request failed", "url", r.URL.String(), "error", err)
			http.Error(w, "upstream is unavailable", http.StatusBadGateway)
		},
	}
}

func removeHopHeaders(h http.Header) {
	for _, k := range h.Values("Connection") {
		for _, name := range strings.Split(k, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}

	for _, k := range hopHeaders {
		h.Del(k)
	}
}
