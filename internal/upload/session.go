// Package upload is C8: given a finished (or still-recording, per the
// delay/defer rule) stream, enumerate its on-disk segments, hand them to the
// platform's upload adapter, and run the postprocessor chain (§4.8).
// Grounded on the named-mutex-guarded critical-section shape used
// throughout spec.md's DESIGN NOTES and mirrored from C7's session
// structure; the directory-scan/pairing logic has no direct teacher
// analogue and is built from the spec's enumeration rules directly.
package upload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/streamkeep/streamkeep/internal/config"
	"github.com/streamkeep/streamkeep/internal/events"
	"github.com/streamkeep/streamkeep/internal/logging"
	"github.com/streamkeep/streamkeep/internal/namedlock"
	"github.com/streamkeep/streamkeep/internal/persistence"
	"github.com/streamkeep/streamkeep/internal/plugin"
	"github.com/streamkeep/streamkeep/internal/urlstate"
)

// videoExtensions are the recognized segment file extensions (§6 "Segment
// file on disk").
var videoExtensions = map[string]bool{".flv": true, ".ts": true, ".mp4": true, ".mkv": true}

// Session is C8.
type Session struct {
	log      *logging.Logger
	locks    *namedlock.Registry
	states   *urlstate.Table
	store    persistence.Facade
	registry *plugin.Registry
	inflight *InFlightStems
	workDir  string
}

// NewSession constructs an upload Session.
func NewSession(log *logging.Logger, locks *namedlock.Registry, states *urlstate.Table, store persistence.Facade, registry *plugin.Registry, inflight *InFlightStems, workDir string) *Session {
	return &Session{
		log:      log.WithComponent("upload"),
		locks:    locks,
		states:   states,
		store:    store,
		registry: registry,
		inflight: inflight,
		workDir:  workDir,
	}
}

// Run executes §4.8 steps 1-6 for one UPLOAD(stream_info) event. Errors at
// any step are logged, never returned, matching "an exception in any step
// is logged but does not leak out of the handler" (§4.8 error isolation).
func (s *Session) Run(ctx context.Context, info events.StreamInfo, streamer *config.Streamer) {
	if !s.beginUpload(info.URL) {
		return
	}
	defer s.endUpload(info.URL)

	if streamer.UploadDelay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(streamer.UploadDelay):
		}
		if s.states.Get(info.URL) == urlstate.Downloading && !streamer.ForceDownload {
			// A new recording took over; defer to the next DOWNLOADED.
			return
		}
	}

	job, err := s.enumerateJob(ctx, info.StreamerKey, streamer)
	if err != nil {
		s.log.Warnf("upload: enumerate job for %s: %v", info.StreamerKey, err)
		return
	}
	if len(job.Files) == 0 {
		return
	}

	stems := stemsOf(job.Files)
	s.markInFlight(stems)
	defer s.clearInFlight(stems)

	adapter, err := s.registry.NewUpload(streamer.UploadAdapterName, streamer.UploadSettings)
	if err != nil {
		s.log.Warnf("upload: construct adapter for %s: %v", streamer.Key, err)
		return
	}

	accepted, err := adapter.Upload(ctx, job.Files)
	if err != nil {
		s.log.Warnf("upload: %v", &plugin.UploadError{Streamer: streamer.Key, Err: err})
	}

	RunPostprocessorChain(ctx, s.log, streamer.Postprocessor, videoPaths(accepted), job.CoverPath)
}

func (s *Session) beginUpload(url string) bool {
	handle := s.locks.Acquire(namedlock.UploadCountKey(url))
	defer handle.Release()
	return s.states.TryBeginUpload(url)
}

func (s *Session) endUpload(url string) {
	handle := s.locks.Acquire(namedlock.UploadCountKey(url))
	defer handle.Release()
	s.states.EndUpload(url)
}

func (s *Session) markInFlight(stems []string) {
	handle := s.locks.Acquire(namedlock.UploadFilenameSet)
	defer handle.Release()
	s.inflight.Add(stems)
}

func (s *Session) clearInFlight(stems []string) {
	handle := s.locks.Acquire(namedlock.UploadFilenameSet)
	defer handle.Release()
	s.inflight.Remove(stems)
}

// job is one upload's enumerated file list plus its recording's cover, for
// the no-postprocessor delete-everything path (§4.8 step 5).
type job struct {
	Files     []plugin.FileInfo
	CoverPath string
}

// enumerateJob implements §4.8 step 3. It acquires the
// upload_file_list_<streamer_key> named mutex itself for its whole run.
func (s *Session) enumerateJob(ctx context.Context, streamerKey string, streamer *config.Streamer) (job, error) {
	handle := s.locks.Acquire(namedlock.UploadFileListKey(streamerKey))
	defer handle.Release()

	var coverPath string
	recordedStems := map[string]bool{}

	rec, err := s.store.GetLatestByStreamer(ctx, streamerKey)
	switch {
	case err == nil:
		coverPath = rec.CoverPath
		names, err := s.store.GetFiles(ctx, rec.ID)
		if err != nil {
			return job{}, fmt.Errorf("get recorded files: %w", err)
		}
		for _, n := range names {
			recordedStems[stemOf(filepath.Base(n))] = true
		}
	case err == persistence.ErrNotFound:
		// No prior recording for this streamer; enumeration falls back to
		// the filename-contains-streamer-key criterion only.
	default:
		return job{}, fmt.Errorf("lookup latest recording: %w", err)
	}

	entries, err := os.ReadDir(s.workDir)
	if err != nil {
		return job{}, fmt.Errorf("read working dir: %w", err)
	}

	type candidate struct {
		path    string
		modTime time.Time
	}
	var candidates []candidate

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		stem := stemOf(name)
		matches := strings.Contains(name, streamerKey) || recordedStems[stem]
		if !matches {
			continue
		}
		if s.inflight.Contains(stem) {
			continue
		}

		full := filepath.Join(s.workDir, name)
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.Size() <= streamer.FilteringThreshold {
			_ = os.Remove(full)
			continue
		}

		if strings.HasSuffix(name, ".part") {
			renamed := strings.TrimSuffix(full, ".part")
			if err := os.Rename(full, renamed); err != nil {
				s.log.Warnf("upload: rename %s: %v", full, err)
				continue
			}
			full = renamed
		}

		candidates = append(candidates, candidate{path: full, modTime: info.ModTime()})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].modTime.Before(candidates[j].modTime) })

	videos := make(map[string]string) // stem -> video path
	danmakus := make(map[string]string)
	var order []string
	for _, c := range candidates {
		ext := strings.ToLower(filepath.Ext(c.path))
		stem := stemOf(filepath.Base(c.path))
		if ext == ".xml" {
			danmakus[stem] = c.path
			continue
		}
		if videoExtensions[ext] {
			videos[stem] = c.path
			order = append(order, stem)
		}
	}

	files := make([]plugin.FileInfo, 0, len(order))
	for _, stem := range order {
		files = append(files, plugin.FileInfo{VideoPath: videos[stem], DanmakuPath: danmakus[stem]})
	}

	// Delete orphaned .xml files: chat captured without a matching video.
	for stem, path := range danmakus {
		if _, ok := videos[stem]; !ok {
			_ = os.Remove(path)
		}
	}

	return job{Files: files, CoverPath: coverPath}, nil
}

// stemOf strips a recognized video/chat extension (and a trailing ".part")
// from a file's base name.
func stemOf(name string) string {
	name = strings.TrimSuffix(name, ".part")
	ext := filepath.Ext(name)
	if ext == ".xml" || videoExtensions[ext] {
		return strings.TrimSuffix(name, ext)
	}
	return name
}

func stemsOf(files []plugin.FileInfo) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, stemOf(filepath.Base(f.VideoPath)))
	}
	return out
}

func videoPaths(files []plugin.FileInfo) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.VideoPath)
		if f.DanmakuPath != "" {
			out = append(out, f.DanmakuPath)
		}
	}
	return out
}
