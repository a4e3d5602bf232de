// Package adapters holds streamkeep's built-in adapters: a generic fallback
// download adapter (for URLs no site-specific adapter claims) and an
// IPFS-backed upload adapter.
// Concrete site adapters (youtube, twitch, ...) are out of scope (§1) —
// these exist only to exercise the DownloadAdapter/UploadAdapter contracts
// end to end.
package adapters

import (
	"context"
	"fmt"
	"net/http"

	"github.com/streamkeep/streamkeep/internal/plugin"
	"github.com/streamkeep/streamkeep/internal/plugin/httpclient"
)

// GenericName is the registry name the fallback adapter registers under.
const GenericName = "generic"

// GenericAdapter probes a URL by issuing a HEAD request and treating any
// 2xx response as "live"; it has no real recording capability. It exists so
// the scheduler and recording session always have a usable default path
// when a URL matches no site-specific regex, matching original_source's
// biliup/plugins/general.py role.
type GenericAdapter struct {
	url    string
	client *http.Client
	params plugin.StreamParams
}

func NewGeneric(url string) (plugin.DownloadAdapter, error) {
	return &GenericAdapter{url: url, client: httpclient.NewProbeClient()}, nil
}

func (g *GenericAdapter) Probe(ctx context.Context, isCheckOnly bool) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, g.url, nil)
	if err != nil {
		return false, &plugin.ProbeError{URL: g.url, Err: err}
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return false, &plugin.ProbeError{URL: g.url, Err: err}
	}
	defer resp.Body.Close()

	live := resp.StatusCode >= 200 && resp.StatusCode < 300
	if live && !isCheckOnly {
		g.params = plugin.StreamParams{PlayURL: g.url, Quality: "source"}
	}
	// A HEAD request carries no stream metadata, so this adapter has no
	// cheap way to learn live_start_time: LiveStartTime stays zero and the
	// §4.7 reuse path never triggers for it, falling back to a full
	// Probe(ctx, false) every iteration.
	return live, nil
}

func (g *GenericAdapter) Params() plugin.StreamParams { return g.params }

func (g *GenericAdapter) Record(ctx context.Context, segmentFn func(path string)) error {
	return &plugin.RecordError{URL: g.url, Err: fmt.Errorf("generic adapter has no recorder; configure a site-specific adapter for %s", g.url)}
}

func (g *GenericAdapter) InitChatCapture(ctx context.Context) error { return nil }

func (g *GenericAdapter) Close() error { return nil }
