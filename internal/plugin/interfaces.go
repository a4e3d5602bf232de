// Package plugin is C4: the registry that routes a URL to its download
// adapter and a streamer's merged config to its upload adapter. Adapters
// are registered explicitly on a Registry instance created by NewRegistry
// (cmd/streamkeep does this at startup) and looked up through it; the
// constructor-registry shape is grounded on pkg/storage/registry.go's
// RegisterBackend/CreateBackend pair in the teacher repo.
package plugin

import (
	"context"
	"time"
)

// ProbeError wraps any failure of Probe (§7): HTTP, parse, or upstream
// protocol failure. The current polling iteration logs it at WARN and
// moves on; the URL stays Idle.
type ProbeError struct {
	URL string
	Err error
}

func (e *ProbeError) Error() string { return "probe " + e.URL + ": " + e.Err.Error() }
func (e *ProbeError) Unwrap() error { return e.Err }

// RecordError wraps a recorder subprocess/library failure mid-session (§7).
type RecordError struct {
	URL string
	Err error
}

func (e *RecordError) Error() string { return "record " + e.URL + ": " + e.Err.Error() }
func (e *RecordError) Unwrap() error { return e.Err }

// UploadError wraps an upload adapter failure (§7).
type UploadError struct {
	Streamer string
	Err      error
}

func (e *UploadError) Error() string { return "upload " + e.Streamer + ": " + e.Err.Error() }
func (e *UploadError) Unwrap() error { return e.Err }

// StreamParams is what a successful Probe resolves: the concrete, playable
// stream URL and its quality/title/cover metadata (§4.7 "resolve stream").
type StreamParams struct {
	PlayURL        string
	Quality        string // "source" enables the stream-URL-stability reuse path, §4.7
	Title          string
	CoverURL       string
	LiveStartTime  time.Time
}

// DownloadAdapter is the per-site probing/recording implementation (§4.4).
// A download adapter instance is short-lived: the scheduler constructs one
// per probe, and the recording session constructs a fresh one for the
// actual recording.
type DownloadAdapter interface {
	// Probe checks liveness. isCheckOnly=true is a cheap poll: no full
	// stream resolution, but an adapter that can report LiveStartTime
	// cheaply should still update it in Params(), since the recording
	// session's §4.7 stream-URL-stability check relies on a cheap probe's
	// LiveStartTime to decide whether a previously-resolved URL is still
	// good. isCheckOnly=false resolves full StreamParams (PlayURL, Title,
	// CoverURL, Quality) for an imminent recording. Returns (false, nil) if
	// the stream is not live; returns a *ProbeError on network/parse
	// failure.
	Probe(ctx context.Context, isCheckOnly bool) (bool, error)

	// Params returns the StreamParams resolved by the most recent
	// successful Probe call. A cheap (isCheckOnly=true) probe may leave
	// PlayURL/Title/CoverURL at their previous values and only refresh
	// LiveStartTime; adapters with no cheap way to learn LiveStartTime may
	// leave it zero, which simply disables the reuse path for that adapter.
	Params() StreamParams

	// Record drives the recorder to completion; it returns when the
	// stream ends cleanly or on an unrecoverable error (a *RecordError).
	// segmentFn is invoked once per finished segment file, with the final
	// (non-.part) absolute path.
	Record(ctx context.Context, segmentFn func(path string)) error

	// InitChatCapture starts the adapter's chat/danmaku sidecar, if any.
	// A no-op default is acceptable; the recording session only calls this
	// when a streamer has chat capture enabled.
	InitChatCapture(ctx context.Context) error

	// Close releases adapter resources (network connections, subprocess
	// handles). Idempotent.
	Close() error
}

// BatchCapableAdapter is the optional batch-probing capability (§4.4): an
// adapter that can check many URLs in one round-trip instead of one probe
// task per URL.
type BatchCapableAdapter interface {
	DownloadAdapter
	// BatchProbe yields, via the callback, every URL in urls that is
	// currently live. Implementations may return early on a non-nil error;
	// the scheduler logs it and retries at the next timer tick (§4.5).
	BatchProbe(ctx context.Context, urls []string, yield func(url string)) error
}

// UploadAdapter publishes a set of files to a target video platform (§4.4).
type UploadAdapter interface {
	// Name is the platform identifier this adapter was registered under.
	Name() string
	// Upload publishes files and returns the subset the adapter considers
	// durably uploaded. A non-nil error is an *UploadError-worthy failure;
	// the caller decides retry policy (§7: UPLOAD retries only occur on
	// the next DOWNLOADED, never automatically inside Upload).
	Upload(ctx context.Context, files []FileInfo) ([]FileInfo, error)
}

// FileInfo pairs a recorded video with its optional chat sidecar, mirroring
// events.FileInfo without importing the events package (adapters should not
// depend on bus plumbing).
type FileInfo struct {
	VideoPath   string
	DanmakuPath string
}
