// Package persistence is C11: a thin facade over the relational store
// (§4.11, §6). The spec treats the store as opaque beyond these operations;
// this package defines the interface and a postgres-backed implementation
// lives in persistence/postgres.
package persistence

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by the two lookup operations when no row matches.
var ErrNotFound = errors.New("persistence: not found")

// Recording is one row of the `recording` table (§6).
type Recording struct {
	ID          int64
	StreamerKey string
	URL         string
	Title       string
	StartTime   time.Time
	CoverPath   string
}

// Facade is the C11 contract. Implementations must be safe for concurrent
// use from multiple worker-pool goroutines and must have reads observe
// already-committed writes (§4.11).
type Facade interface {
	// AddRecording inserts a new recording row at session start (§4.7 step 2)
	// and returns its id.
	AddRecording(ctx context.Context, streamerKey, url string, startTime time.Time) (int64, error)

	// UpdateTitle sets a recording's title (§4.7 step 3).
	UpdateTitle(ctx context.Context, id int64, title string) error

	// UpdateCoverPath sets a recording's cover path (§4.7 step 8).
	UpdateCoverPath(ctx context.Context, id int64, path string) error

	// AppendFile records one finished segment's file name against a
	// recording, ordered by completion (§4.7 step 6, P3).
	AppendFile(ctx context.Context, id int64, fileName string) error

	// GetFiles returns a recording's segment file names in append order.
	GetFiles(ctx context.Context, id int64) ([]string, error)

	// GetLatestByStreamer returns the most recent recording for a streamer
	// key, used by the upload session's file-discovery scan (§4.8 step 3).
	GetLatestByStreamer(ctx context.Context, streamerKey string) (*Recording, error)

	// GetByFileName finds the recording that produced fileName, used to
	// recover stream_info when an UPLOAD handler sees a lost title
	// (§4.11).
	GetByFileName(ctx context.Context, fileName string) (*Recording, error)

	// GetConfigValue/SetConfigValue are the small persisted-configuration
	// k/v table (§4.11, §6).
	GetConfigValue(ctx context.Context, key string) (string, error)
	SetConfigValue(ctx context.Context, key, value string) error

	Close() error
}
