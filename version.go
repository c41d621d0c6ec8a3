package swcache

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// NotificationTemplate defines defaults of displayed push notifications.
type NotificationTemplate struct {
	Title       string `yaml:"title"`
	DefaultBody string `yaml:"defaultBody"`
	Icon        string `yaml:"icon"`
	Badge       string `yaml:"badge"`
	ActionIcon  string `yaml:"actionIcon"`
	Tag         string `yaml:"tag"`

	// URL is opened on notification click when payload does not define one, scope root by default.
	URL string `yaml:"url"`
}

// Version is an immutable configuration of a deployed gatekeeper.
//
// One Version value describes one cache generation for its lifetime.
type Version struct {
	// Name identifies cache generation.
	Name string `yaml:"name"`

	// Origin is the application origin with optional scope path, e.g. "https://budget.example.com/".
	Origin string `yaml:"origin"`

	// Manifest lists assets that must be cached on install,
	// relative paths are resolved against Origin.
	Manifest []string `yaml:"manifest"`

	// AllowedHosts lists cross-origin hosts served by the gatekeeper in addition to Origin host.
	AllowedHosts []string `yaml:"allowedHosts"`

	// ExcludedHosts lists hosts (and their subdomains) that are never intercepted.
	ExcludedHosts []string `yaml:"excludedHosts"`

	// OfflineDocument is served for navigation requests when network and cache fail.
	OfflineDocument string `yaml:"offlineDocument"`

	// SyncTag is a name of background sync that triggers data sync broadcast.
	SyncTag string `yaml:"syncTag"`

	// SyncGrace is a delay between sync request and sync completion broadcasts, default 1s.
	SyncGrace time.Duration `yaml:"syncGrace"`

	// UpdateSkipInterval is a minimal interval between on-demand manifest updates, zero disables limit.
	UpdateSkipInterval time.Duration `yaml:"updateSkipInterval"`

	// Notification configures push notifications.
	Notification NotificationTemplate `yaml:"notification"`

	origin *url.URL
}

// DefaultVersion returns configuration of budget calculator.
func DefaultVersion() Version {
	return Version{
		Name:   "budget-calculator-v2.1",
		Origin: "http://localhost:8080/",
		Manifest: []string{
			"/",
			"/index.html",
			"/manifest.json",
			"https://cdnjs.cloudflare.com/ajax/libs/Chart.js/3.9.1/chart.min.js",
		},
		AllowedHosts: []string{"cdnjs.cloudflare.com"},
		ExcludedHosts: []string{
			"google-analytics.com",
			"googletagmanager.com",
			"api.exchangerate-api.com",
		},
		OfflineDocument: "/index.html",
		SyncTag:         "budget-sync",
		SyncGrace:       time.Second,
		Notification: NotificationTemplate{
			Title:       "Budget Calculator",
			DefaultBody: "Don't forget to update your budget!",
			Icon:        "/icons/icon-192x192.png",
			Badge:       "/icons/icon-72x72.png",
			ActionIcon:  "/icons/icon-96x96.png",
			Tag:         "budget-reminder",
		},
	}
}

// Prepare validates configuration, fills defaults and returns ready to use Version.
func (v Version) Prepare() (Version, error) {
	if v.Name == "" {
		return v, errors.New("version name is required")
	}

	o, err := url.Parse(v.Origin)
	if err != nil {
		return v, fmt.Errorf("parse origin: %w", err)
	}

	if o.Scheme == "" || o.Host == "" {
		return v, fmt.Errorf("origin must be absolute URL: %q", v.Origin)
	}

	if o.Path == "" {
		o.Path = "/"
	}

	if !strings.HasSuffix(o.Path, "/") {
		o.Path += "/"
	}

	o.RawQuery = ""
	o.Fragment = ""
	v.origin = o
	v.Origin = o.String()

	if v.OfflineDocument == "" {
		v.OfflineDocument = "/index.html"
	}

	if v.SyncGrace == 0 {
		v.SyncGrace = time.Second
	}

	if v.Notification.URL == "" {
		v.Notification.URL = o.Path
	}

	for _, m := range v.Manifest {
		if _, err := v.Resolve(m); err != nil {
			return v, fmt.Errorf("manifest entry %q: %w", m, err)
		}
	}

	return v, nil
}

// OriginURL returns parsed origin with scope path.
func (v Version) OriginURL() *url.URL {
	if v.origin == nil {
		return &url.URL{Path: "/"}
	}

	u := *v.origin

	return &u
}

// Resolve makes absolute URL from a manifest entry or other reference.
func (v Version) Resolve(ref string) (*url.URL, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return nil, err
	}

	return v.OriginURL().ResolveReference(r), nil
}

// ManifestURLs returns absolute manifest URLs in manifest order.
func (v Version) ManifestURLs() ([]*url.URL, error) {
	res := make([]*url.URL, 0, len(v.Manifest))

	for _, m := range v.Manifest {
		u, err := v.Resolve(m)
		if err != nil {
			return nil, err
		}

		res = append(res, u)
	}

	return res, nil
}
