package fetch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func robotsServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	hits := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			hits.Add(1)
			w.WriteHeader(status)
			_, _ = io.WriteString(w, body)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server, hits
}

func TestRobotsHandler_Allowed(t *testing.T) {
	body := "User-agent: *\nDisallow: /private/\n"
	server, hits := robotsServer(t, http.StatusOK, body)

	fetcher := NewFetcher(testClient(), testConfig(0), testLogger())
	rh := NewRobotsHandler(fetcher, "seo-audit-test", testLogger())

	public, _ := url.Parse(server.URL + "/docs/page")
	private, _ := url.Parse(server.URL + "/private/secret")

	assert.True(t, rh.Allowed(context.Background(), public))
	assert.False(t, rh.Allowed(context.Background(), private))
	assert.Equal(t, int32(1), hits.Load(), "robots.txt should be fetched once per host")
}

func TestRobotsHandler_MissingOrBrokenAllowsAll(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"not found", http.StatusNotFound},
		{"server error", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := robotsServer(t, tt.status, "User-agent: *\nDisallow: /\n")
			fetcher := NewFetcher(testClient(), testConfig(0), testLogger())
			rh := NewRobotsHandler(fetcher, "seo-audit-test", testLogger())

			target, _ := url.Parse(server.URL + "/anything")
			assert.True(t, rh.Allowed(context.Background(), target))
		})
	}
}

func TestRobotsHandler_UnreachableAllowsAll(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	target, _ := url.Parse(server.URL + "/page")
	server.Close()

	fetcher := NewFetcher(testClient(), testConfig(0), testLogger())
	rh := NewRobotsHandler(fetcher, "seo-audit-test", testLogger())
	assert.True(t, rh.Allowed(context.Background(), target))
}
