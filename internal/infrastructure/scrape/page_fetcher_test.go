package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricescout/backend/internal/domain"
)

const productPage = `<html><head><script type="application/ld+json">{"@type":"Product","name":"iPhone 15 Pro","offers":{"price":"4199","priceCurrency":"ILS"}}</script></head><body></body></html>`

func newShopServer(t *testing.T, robots string, robotsHits *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		robotsHits.Add(1)
		if robots == "" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(robots))
	})
	mux.HandleFunc("/item/1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pricescout-test/1.0", r.Header.Get("User-Agent"))
		w.Write([]byte(productPage))
	})
	mux.HandleFunc("/private/1", func(w http.ResponseWriter, r *http.Request) {
		t.Error("disallowed page was fetched")
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestPageFetcher_FetchPage(t *testing.T) {
	var hits atomic.Int32
	server := newShopServer(t, "User-agent: *\nDisallow: /private/\n", &hits)
	f := NewPageFetcher("pricescout-test/1.0", 5*time.Second)

	markup, err := f.FetchPage(context.Background(), server.URL+"/item/1")
	require.NoError(t, err)
	assert.Equal(t, productPage, markup)

	_, err = f.FetchPage(context.Background(), server.URL+"/private/1")
	assert.ErrorIs(t, err, domain.ErrPageDisallowed)

	assert.Equal(t, int32(1), hits.Load(), "robots.txt is fetched once per host")
	assert.Equal(t, 1, f.CachedHosts())
}

func TestPageFetcher_MissingRobotsAllowsAll(t *testing.T) {
	var hits atomic.Int32
	server := newShopServer(t, "", &hits)
	f := NewPageFetcher("pricescout-test/1.0", 5*time.Second)

	_, err := f.FetchPage(context.Background(), server.URL+"/item/1")
	require.NoError(t, err)
}

func TestPageFetcher_Errors(t *testing.T) {
	var hits atomic.Int32
	server := newShopServer(t, "User-agent: *\nAllow: /\n", &hits)
	f := NewPageFetcher("pricescout-test/1.0", 5*time.Second)

	tests := []struct {
		name string
		url  string
	}{
		{"non-200 status", server.URL + "/gone"},
		{"unsupported scheme", "ftp://shop.example/item"},
		{"no host", "/item/1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.FetchPage(context.Background(), tt.url)
			assert.Error(t, err)
			assert.NotErrorIs(t, err, domain.ErrPageDisallowed)
		})
	}
}

func TestPageFetcher_CancelledContextIsNotCached(t *testing.T) {
	var hits atomic.Int32
	server := newShopServer(t, "User-agent: *\nDisallow: /private/\n", &hits)
	f := NewPageFetcher("pricescout-test/1.0", 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.FetchPage(ctx, server.URL+"/item/1")
	assert.Error(t, err)
	assert.Equal(t, 0, f.CachedHosts())

	_, err = f.FetchPage(context.Background(), server.URL+"/private/1")
	assert.ErrorIs(t, err, domain.ErrPageDisallowed)
}
