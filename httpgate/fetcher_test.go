package httpgate_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vearutop/swcache"
	"github.com/vearutop/swcache/httpgate"
)

func TestFetcher_Fetch(t *testing.T) {
	var seen http.Header

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Clone()

		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, r.URL.Path)
	}))
	defer upstream.Close()

	f, err := httpgate.NewFetcher(httpgate.FetcherConfig{
		Origin:   "http://app.test/",
		Upstream: upstream.URL,
	})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, "http://app.test/index.html#top", nil)
	require.NoError(t, err)
	req.Header.Set("Connection", "X-Trace")
	req.Header.Set("X-Trace", "1")
	req.Header.Set("Proxy-Authorization", "secret")
	req.Header.Set("Accept-Language", "en")

	resp, err := f.Fetch(swcache.WithReload(context.Background()), req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "/index.html", string(resp.Body))
	assert.Equal(t, swcache.TypeBasic, resp.Type)
	assert.Equal(t, "http://app.test/index.html#top", resp.URL)
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))

	assert.Equal(t, "no-cache", seen.Get("Cache-Control"))
	assert.Equal(t, "no-cache", seen.Get("Pragma"))
	assert.Equal(t, "en", seen.Get("Accept-Language"))
	assert.Empty(t, seen.Get("X-Trace"))
	assert.Empty(t, seen.Get("Proxy-Authorization"))

	// Regular fetch does not force revalidation.
	_, err = f.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, seen.Get("Cache-Control"))
}

func TestFetcher_Fetch_unconditional(t *testing.T) {
	var seen http.Header

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Clone()

		if r.Header.Get("If-None-Match") == `"e1"` || r.Header.Get("If-Modified-Since") != "" {
			w.WriteHeader(http.StatusNotModified)

			return
		}

		w.Header().Set("ETag", `"e1"`)
		_, _ = io.WriteString(w, "budget")
	}))
	defer upstream.Close()

	f, err := httpgate.NewFetcher(httpgate.FetcherConfig{
		Origin:   "http://app.test/",
		Upstream: upstream.URL,
	})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, "http://app.test/app.js", nil)
	require.NoError(t, err)
	req.Header.Set("If-None-Match", `"e1"`)
	req.Header.Set("If-Modified-Since", "Tue, 14 Nov 2023 22:13:20 GMT")
	req.Header.Set("If-Range", `"e1"`)

	resp, err := f.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "budget", string(resp.Body))
	assert.Equal(t, `"e1"`, resp.Header.Get("ETag"))

	assert.Empty(t, seen.Get("If-None-Match"))
	assert.Empty(t, seen.Get("If-Modified-Since"))
	assert.Empty(t, seen.Get("If-Range"))
	assert.Equal(t, `"e1"`, req.Header.Get("If-None-Match"), "incoming request is not modified")

	// Stored by gatekeeper and served without upstream.
	v := swcache.DefaultVersion()
	v.Name = "v1"
	v.Origin = "http://app.test/"

	st := swcache.NewMemoryStorage()
	g, err := swcache.New(swcache.Config{Version: v, Storage: st, Network: f})
	require.NoError(t, err)
	require.NoError(t, g.Install(context.Background()))

	_, _, err = g.Fetch(context.Background(), req)
	require.NoError(t, err)
	g.Wait()

	upstream.Close()

	resp, _, err = g.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "budget", string(resp.Body))
}

func TestFetcher_Fetch_crossOrigin(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "chart")
	}))
	defer upstream.Close()

	f, err := httpgate.NewFetcher(httpgate.FetcherConfig{Origin: "http://app.test/"})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, upstream.URL+"/chart.js", nil)
	require.NoError(t, err)

	resp, err := f.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, swcache.TypeCORS, resp.Type)
	assert.Equal(t, "chart", string(resp.Body))

	req.Header.Set("Sec-Fetch-Mode", "no-cors")

	resp, err = f.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, swcache.TypeOpaque, resp.Type)
}

func TestFetcher_Fetch_failures(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "too large body")
	}))

	f, err := httpgate.NewFetcher(httpgate.FetcherConfig{
		Origin:      "http://app.test/",
		Upstream:    upstream.URL,
		MaxBodySize: 4,
	})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, "http://app.test/", nil)
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), req)
	assert.Error(t, err)

	upstream.Close()

	_, err = f.Fetch(context.Background(), req)
	assert.Error(t, err)
}

func TestNewFetcher_invalid(t *testing.T) {
	_, err := httpgate.NewFetcher(httpgate.FetcherConfig{Origin: "/relative"})
	assert.Error(t, err)

	_, err = httpgate.NewFetcher(httpgate.FetcherConfig{Origin: "http://app.test/", Upstream: "::"})
	assert.Error(t, err)
}
