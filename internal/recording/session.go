// Package recording is C7: given a live (streamer_key, url), probe, resolve,
// record, and segment a stream to disk, owning the recorder subprocess (or
// native-library callback) lifecycle end to end (§4.7). Grounded on the
// cooperative-task-plus-worker-goroutine shape used throughout the teacher
// repo (pkg/sync/sync_engine.go's per-file worker pattern, adapted here to
// one worker goroutine per finished segment, started daemonic per §4.7
// step 6).
package recording

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/streamkeep/streamkeep/internal/chatcapture"
	"github.com/streamkeep/streamkeep/internal/chatcapture/wschat"
	"github.com/streamkeep/streamkeep/internal/config"
	"github.com/streamkeep/streamkeep/internal/events"
	"github.com/streamkeep/streamkeep/internal/logging"
	"github.com/streamkeep/streamkeep/internal/persistence"
	"github.com/streamkeep/streamkeep/internal/plugin"
	"github.com/streamkeep/streamkeep/internal/plugin/httpclient"
)

// HookRunner executes a streamer's hook chain against a JSON-able payload
// (§6 hook chain ABI: "run" steps receive JSON on stdin for
// pre/downloaded/segment hooks). Defined here rather than imported from
// internal/upload to keep C7 independent of C8; internal/upload's
// RunJSONHooks implements the same contract.
type HookRunner func(ctx context.Context, hooks []config.Hook, payload interface{}) error

// Session is C7: one streamer/URL's probe-record-segment-close loop.
type Session struct {
	log           *logging.Logger
	registry      *plugin.Registry
	store         persistence.Facade
	workDir       string
	coverDir      string
	segmentHooks  HookRunner
	healthClient  *http.Client
}

// NewSession constructs a Session. segmentHooks may be nil if no hook
// runner is wired (segment_processor chains are then skipped).
func NewSession(log *logging.Logger, registry *plugin.Registry, store persistence.Facade, workDir, coverDir string, segmentHooks HookRunner) *Session {
	return &Session{
		log:          log.WithComponent("recording"),
		registry:     registry,
		store:        store,
		workDir:      workDir,
		coverDir:     coverDir,
		segmentHooks: segmentHooks,
		healthClient: httpclient.NewHealthCheckClient(),
	}
}

// Run drives the full session for one streamer/URL and returns the
// stream_info handed to DOWNLOADED once the session ends (§4.7 step 8).
// Run only returns on a permanent stream end or unrecoverable error; a
// transient recorder failure restarts the probe loop internally (step 7)
// unless the streamer is configured for one-shot download.
func (s *Session) Run(ctx context.Context, streamerKey string, streamer *config.Streamer, url string) (events.StreamInfo, error) {
	descriptor := s.registry.Route(url)
	startTime := time.Now()

	recordingID, err := s.store.AddRecording(ctx, streamerKey, url, startTime)
	if err != nil {
		return events.StreamInfo{}, fmt.Errorf("recording: persist session start: %w", err)
	}

	chat := s.buildChatCapturer(streamer)

	var wg sync.WaitGroup
	var lastTitle string
	var lastBaseName string
	var lastCoverURL string
	var prevParams plugin.StreamParams

	for {
		adapter, err := descriptor.New(url)
		if err != nil {
			s.log.Warnf("recording: build adapter for %s: %v", url, err)
			break
		}

		params, live, probeErr := s.resolve(ctx, adapter, prevParams)
		if probeErr != nil {
			s.log.Warnf("recording: probe %s: %v", url, probeErr)
			adapter.Close()
			break
		}
		if !live {
			adapter.Close()
			break
		}
		prevParams = params

		lastTitle = params.Title
		lastCoverURL = params.CoverURL
		if err := s.store.UpdateTitle(ctx, recordingID, params.Title); err != nil {
			s.log.Warnf("recording: update title: %v", err)
		}

		if streamer.ChatEndpoint != "" {
			if err := adapter.InitChatCapture(ctx); err != nil {
				s.log.Warnf("recording: init adapter chat capture: %v", err)
			}
			if err := chat.Start(ctx, url); err != nil {
				s.log.Warnf("recording: start chat capture: %v", err)
			}
		}

		baseName, err := buildFilenameBase(s.workDir, streamer, params.Title, time.Now())
		if err != nil {
			s.log.Warnf("recording: build filename: %v", err)
			adapter.Close()
			break
		}
		lastBaseName = baseName

		segmentFn := s.makeSegmentCallback(ctx, &wg, recordingID, streamer, chat)
		recordErr := runRecorder(ctx, s.log, streamer, adapter, baseName, s.workDir, segmentFn)
		adapter.Close()

		chat.Stop()

		if recordErr != nil {
			s.log.Warnf("recording: %v", recordErr)
		}

		if streamer.OneShotDownload || ctx.Err() != nil {
			break
		}
		// Transient failure or clean segment-boundary exit: loop back to
		// re-probe (§4.7 step 7). The scheduler's own polling continues to
		// gate liveness for every other URL; this inner loop exists so a
		// single Run call can ride out brief stream hiccups without
		// round-tripping through PRE_DOWNLOAD again.
	}

	endTime := time.Now()

	coverBase := lastBaseName
	if coverBase == "" {
		coverBase = baseNameOrFallback(streamerKey, startTime)
	}
	coverPath, err := downloadCover(ctx, s.coverDir, descriptor.Name, streamer, lastCoverURL, coverBase)
	if err != nil {
		s.log.Warnf("recording: download cover: %v", err)
	}
	if coverPath != "" {
		if err := s.store.UpdateCoverPath(ctx, recordingID, coverPath); err != nil {
			s.log.Warnf("recording: update cover path: %v", err)
		}
	}

	wg.Wait()

	files, err := s.store.GetFiles(ctx, recordingID)
	if err != nil {
		s.log.Warnf("recording: get files: %v", err)
	}

	return events.StreamInfo{
		StreamerKey:    streamerKey,
		URL:            url,
		Title:          lastTitle,
		StartTime:      startTime,
		EndTime:        endTime,
		CoverPath:      coverPath,
		IsDownloadMode: streamer.OneShotDownload,
		RecordingID:    recordingID,
		Files:          files,
	}, nil
}

// resolve implements §4.7's stream-URL-stability check. When the previous
// iteration resolved a "source"-quality URL, it first asks for a cheap
// (isCheckOnly) probe and compares the adapter's reported live_start_time
// against the previous one: if they match, the stream hasn't restarted and
// the existing PlayURL is reused after a cheap health check instead of
// paying for a full resolve. Any other case (no prior URL, non-source
// quality, restarted stream, or a failed health check) falls through to a
// full Probe(ctx, false).
func (s *Session) resolve(ctx context.Context, adapter plugin.DownloadAdapter, prev plugin.StreamParams) (plugin.StreamParams, bool, error) {
	if prev.PlayURL != "" && prev.Quality == "source" {
		live, err := adapter.Probe(ctx, true)
		if err != nil {
			return plugin.StreamParams{}, false, err
		}
		if !live {
			return plugin.StreamParams{}, false, nil
		}

		if current := adapter.Params(); !current.LiveStartTime.IsZero() && current.LiveStartTime.Equal(prev.LiveStartTime) {
			if s.healthy(ctx, prev.PlayURL) {
				return prev, true, nil
			}
			s.log.Warnf("recording: health check failed for reused URL %s, re-resolving", prev.PlayURL)
		}
	}

	live, err := adapter.Probe(ctx, false)
	if err != nil {
		return plugin.StreamParams{}, false, err
	}
	if !live {
		return plugin.StreamParams{}, false, nil
	}
	return adapter.Params(), true, nil
}

// healthy issues the cheap HEAD request §4.7 calls for before reusing a
// previously-resolved stream URL, using the 60s health-check client.
func (s *Session) healthy(ctx context.Context, playURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, playURL, nil)
	if err != nil {
		return false
	}
	resp, err := s.healthClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func baseNameOrFallback(streamerKey string, at time.Time) string {
	return fmt.Sprintf("%s_%d", streamerKey, at.Unix())
}

func (s *Session) buildChatCapturer(streamer *config.Streamer) chatcapture.Capturer {
	if streamer.ChatEndpoint == "" {
		return chatcapture.NoopCapturer{}
	}
	return wschat.New(streamer.ChatEndpoint, s.log)
}

// makeSegmentCallback returns the per-segment callback (§4.7 step 6): it is
// invoked synchronously by the recorder but does its work (persistence,
// chat save, hook chain) on a dedicated goroutine tracked by wg, so a slow
// hook never blocks the recorder from producing the next segment. When
// segment_processor_parallel is false, those goroutines take segMu, so at
// most one runs at a time, in the order they acquire the lock.
func (s *Session) makeSegmentCallback(ctx context.Context, wg *sync.WaitGroup, recordingID int64, streamer *config.Streamer, chat chatcapture.Capturer) func(string) {
	var segMu sync.Mutex
	return func(path string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !streamer.SegmentProcessorPar {
				segMu.Lock()
				defer segMu.Unlock()
			}
			s.onSegmentComplete(ctx, recordingID, streamer, chat, path)
		}()
	}
}

func (s *Session) onSegmentComplete(ctx context.Context, recordingID int64, streamer *config.Streamer, chat chatcapture.Capturer, path string) {
	if err := s.store.AppendFile(ctx, recordingID, path); err != nil {
		s.log.Warnf("recording: persist segment %s: %v", path, err)
	}

	if streamer.ChatEndpoint != "" {
		danmakuPath := chatSiblingPath(path)
		if wrote, err := chat.Save(danmakuPath); err != nil {
			s.log.Warnf("recording: save chat sidecar for %s: %v", path, err)
		} else if wrote {
			if err := s.store.AppendFile(ctx, recordingID, danmakuPath); err != nil {
				s.log.Warnf("recording: persist chat sidecar %s: %v", danmakuPath, err)
			}
		}
	}

	if len(streamer.SegmentProcessor) > 0 && s.segmentHooks != nil {
		payload := map[string]string{"streamer_key": streamer.Key, "file": path}
		if err := s.segmentHooks(ctx, streamer.SegmentProcessor, payload); err != nil {
			s.log.Warnf("recording: segment_processor hook for %s: %v", path, err)
		}
	}
}

func chatSiblingPath(videoPath string) string {
	for i := len(videoPath) - 1; i >= 0; i-- {
		if videoPath[i] == '.' {
			return videoPath[:i] + ".xml"
		}
	}
	return videoPath + ".xml"
}
