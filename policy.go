package swcache

import (
	"net/http"
	"net/url"
	"strings"
)

// ShouldIntercept decides whether gatekeeper participates in handling of request.
//
// Non-GET requests, requests to excluded hosts and hosts other than origin or allowed hosts pass through.
func (v Version) ShouldIntercept(req *http.Request) bool {
	if req.Method != http.MethodGet && req.Method != "" {
		return false
	}

	if req.URL == nil {
		return false
	}

	host := strings.ToLower(req.URL.Hostname())
	if host == "" {
		// Relative URL belongs to origin.
		return true
	}

	for _, h := range v.ExcludedHosts {
		if matchHost(host, h) {
			return false
		}
	}

	o := v.OriginURL()
	if req.URL.Scheme == o.Scheme && strings.EqualFold(req.URL.Host, o.Host) {
		return true
	}

	for _, h := range v.AllowedHosts {
		if strings.EqualFold(host, h) {
			return true
		}
	}

	return false
}

// matchHost checks if host equals pattern or is its subdomain.
func matchHost(host, pattern string) bool {
	pattern = strings.ToLower(strings.TrimPrefix(pattern, "."))

	return host == pattern || strings.HasSuffix(host, "."+pattern)
}

// SameOrigin checks if URL belongs to origin.
func (v Version) SameOrigin(u *url.URL) bool {
	o := v.OriginURL()

	return u.Host == "" || (u.Scheme == o.Scheme && strings.EqualFold(u.Host, o.Host))
}

// InScope checks if client address falls under application scope.
func (v Version) InScope(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}

	if !v.SameOrigin(u) {
		return false
	}

	p := u.Path
	if p == "" {
		p = "/"
	}

	return strings.HasPrefix(p, v.OriginURL().Path)
}

// IsNavigation detects page navigation (document) requests.
func IsNavigation(req *http.Request) bool {
	if d := req.Header.Get("Sec-Fetch-Dest"); d != "" {
		return d == "document" || d == "iframe"
	}

	if req.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}

	return (req.Method == http.MethodGet || req.Method == "") &&
		strings.Contains(req.Header.Get("Accept"), "text/html")
}

// ShouldStore decides whether network response of intercepted request can be written to cache.
func ShouldStore(resp *Response) bool {
	return resp != nil && resp.Status == http.StatusOK && resp.Type != TypeOpaque && resp.Type != TypeError
}

// ShouldRefresh decides whether cached response of a request needs a background refresh.
func ShouldRefresh(req *http.Request) bool {
	return IsNavigation(req)
}

// OfflineResponse is served to navigation requests when even offline document is not available.
func OfflineResponse() *Response {
	return &Response{
		Status: http.StatusServiceUnavailable,
		Header: http.Header{
			"Content-Type":  []string{"text/html; charset=utf-8"},
			"Cache-Control": []string{"no-store"},
		},
		Body: []byte("<!DOCTYPE html><html><head><title>Offline</title></head>" +
			"<body><h1>You are offline</h1><p>Please check your connection and try again.</p></body></html>"),
		Type: TypeBasic,
	}
}
