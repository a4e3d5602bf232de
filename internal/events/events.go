// Package events defines the event bus's stable IPC identifiers (§6) and
// the payload shapes carried by each kind.
package events

import "time"

// Kind is one of the five stable event names (§6).
type Kind string

const (
	PreDownload Kind = "pre_download"
	Download    Kind = "download"
	Downloaded  Kind = "downloaded"
	Upload      Kind = "upload"
	Uploaded    Kind = "uploaded"
)

// Pool identifies which named worker pool a handler runs on; the zero value
// means "run inline on the dispatcher goroutine" (§4.3).
type Pool string

const (
	NoPool Pool = ""
	Pool1  Pool = "pool1"
	Pool2  Pool = "pool2"
)

// PoolFor returns the static pool assignment for a kind (§4.3: PRE_DOWNLOAD,
// DOWNLOAD, DOWNLOADED -> pool1; UPLOAD -> pool2).
func PoolFor(k Kind) Pool {
	switch k {
	case PreDownload, Download, Downloaded:
		return Pool1
	case Upload, Uploaded:
		return Pool2
	default:
		return NoPool
	}
}

// Event is the envelope published on the bus.
type Event struct {
	Kind Kind
	Args interface{}
}

// PreDownloadArgs is PRE_DOWNLOAD's payload: a candidate URL just observed
// live.
type PreDownloadArgs struct {
	StreamerKey string
	URL         string
	StartTime   time.Time
}

// DownloadArgs is DOWNLOAD's payload.
type DownloadArgs struct {
	StreamerKey string
	URL         string
}

// StreamInfo is DOWNLOADED's payload (§4.7 step 8) and the input to UPLOAD.
type StreamInfo struct {
	StreamerKey   string
	URL           string
	Title         string
	StartTime     time.Time
	EndTime       time.Time
	CoverPath     string
	IsDownloadMode bool
	RecordingID   int64
	Files         []string
}

// DownloadedArgs is an alias kept distinct from StreamInfo so handler
// signatures read by intent even though the payload shape is identical.
type DownloadedArgs = StreamInfo

// UploadArgs is UPLOAD's payload.
type UploadArgs = StreamInfo

// UploadedArgs is UPLOADED's payload: the files an upload adapter accepted.
type UploadedArgs struct {
	StreamerKey string
	URL         string
	Files       []string
}

// FileInfo pairs a recorded video with its optional chat sidecar (§3 Upload
// job).
type FileInfo struct {
	VideoPath   string
	DanmakuPath string // empty if no sidecar
}
