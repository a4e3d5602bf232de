// Package httpclient builds the shared HTTP clients used by probe adapters
// (the cover downloader has its own client) (§5: "HTTP probes use a 15 s client-wide
// default; health checks use a 60 s per-request override"). Transport is
// forced to negotiate HTTP/2 via golang.org/x/net/http2, matching how
// several platform APIs this supervisor talks to prefer h2.
package httpclient

import (
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// NewProbeClient returns the client adapters should use for Probe calls:
// a 15s overall timeout (§5).
func NewProbeClient() *http.Client {
	return &http.Client{
		Transport: newH2Transport(),
		Timeout:   15 * time.Second,
	}
}

// NewHealthCheckClient returns the client used for the cheap stream-URL
// health check in the §4.7 stability path: a 60s per-request override.
func NewHealthCheckClient() *http.Client {
	return &http.Client{
		Transport: newH2Transport(),
		Timeout:   60 * time.Second,
	}
}

func newH2Transport() *http.Transport {
	t := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	// Best-effort upgrade; probe adapters still function over HTTP/1.1 if a
	// given host doesn't negotiate h2.
	_ = http2.ConfigureTransport(t)
	return t
}
