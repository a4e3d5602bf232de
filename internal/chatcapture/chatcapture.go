// Package chatcapture defines the pluggable chat/danmaku sidecar contract
// (§1: "out of scope — a pluggable sidecar with start/stop/save hooks").
// Only the contract is this repo's concern; wschat is one concrete,
// generically wired default implementation used when a streamer enables
// chat capture without naming a site-specific capturer.
package chatcapture

import "context"

// Capturer is the start/stop/save contract the recording session drives
// (§4.7 step 4, step 6, step 7).
type Capturer interface {
	// Start begins capturing chat for the given room/url context.
	Start(ctx context.Context, url string) error
	// Stop ends capture; safe to call even if Start was never called.
	Stop() error
	// Save persists captured chat to path (the `.xml` sibling of a
	// finished segment, §4.7 step 6) and returns whether anything was
	// written.
	Save(path string) (bool, error)
}

// NoopCapturer is used when a streamer has not enabled chat capture.
type NoopCapturer struct{}

func (NoopCapturer) Start(context.Context, string) error { return nil }
func (NoopCapturer) Stop() error                         { return nil }
func (NoopCapturer) Save(string) (bool, error)            { return false, nil }
