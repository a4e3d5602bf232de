package handlers

import (
	"context"
	"os"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamkeep/streamkeep/internal/config"
	"github.com/streamkeep/streamkeep/internal/eventbus"
	"github.com/streamkeep/streamkeep/internal/events"
	"github.com/streamkeep/streamkeep/internal/logging"
	"github.com/streamkeep/streamkeep/internal/namedlock"
	"github.com/streamkeep/streamkeep/internal/persistence"
	"github.com/streamkeep/streamkeep/internal/plugin"
	"github.com/streamkeep/streamkeep/internal/recording"
	"github.com/streamkeep/streamkeep/internal/upload"
	"github.com/streamkeep/streamkeep/internal/urlstate"
)

// fakeStore is a minimal in-memory persistence.Facade for handler tests.
type fakeStore struct {
	mu         sync.Mutex
	nextID     int64
	recordings map[int64]*persistence.Recording
	files      map[int64][]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{recordings: make(map[int64]*persistence.Recording), files: make(map[int64][]string)}
}

func (f *fakeStore) AddRecording(ctx context.Context, streamerKey, url string, startTime time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.recordings[f.nextID] = &persistence.Recording{ID: f.nextID, StreamerKey: streamerKey, URL: url, StartTime: startTime}
	return f.nextID, nil
}
func (f *fakeStore) UpdateTitle(ctx context.Context, id int64, title string) error { return nil }
func (f *fakeStore) UpdateCoverPath(ctx context.Context, id int64, path string) error { return nil }
func (f *fakeStore) AppendFile(ctx context.Context, id int64, fileName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[id] = append(f.files[id], fileName)
	return nil
}
func (f *fakeStore) GetFiles(ctx context.Context, id int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.files[id]...), nil
}
func (f *fakeStore) GetLatestByStreamer(ctx context.Context, streamerKey string) (*persistence.Recording, error) {
	return nil, persistence.ErrNotFound
}
func (f *fakeStore) GetByFileName(ctx context.Context, fileName string) (*persistence.Recording, error) {
	return nil, persistence.ErrNotFound
}
func (f *fakeStore) GetConfigValue(ctx context.Context, key string) (string, error) { return "", persistence.ErrNotFound }
func (f *fakeStore) SetConfigValue(ctx context.Context, key, value string) error    { return nil }
func (f *fakeStore) Close() error                                                   { return nil }

// oneShotAdapter reports live exactly once, emits one segment, then ends.
type oneShotAdapter struct {
	mu    sync.Mutex
	probed bool
}

func (a *oneShotAdapter) Probe(ctx context.Context, isCheckOnly bool) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.probed {
		return false, nil
	}
	a.probed = true
	return true, nil
}
func (a *oneShotAdapter) Params() plugin.StreamParams { return plugin.StreamParams{Title: "a stream"} }
func (a *oneShotAdapter) Record(ctx context.Context, segmentFn func(string)) error {
	segmentFn("alice_seg1.flv")
	return nil
}
func (a *oneShotAdapter) InitChatCapture(ctx context.Context) error { return nil }
func (a *oneShotAdapter) Close() error                              { return nil }

func newTestBus(t *testing.T) *eventbus.Bus {
	t.Helper()
	bus := eventbus.New(eventbus.Config{Pool1Size: 1, Pool2Size: 1}, logging.New(logging.DefaultConfig()))
	go bus.Run()
	t.Cleanup(bus.Shutdown)
	return bus
}

func TestHandlersFullChainFiresUploadForLiveStreamer(t *testing.T) {
	dir := t.TempDir()
	store := newFakeStore()

	registry := plugin.NewRegistry()
	adapter := &oneShotAdapter{}
	registry.RegisterGeneric(plugin.DownloadDescriptor{
		Name:     "generic",
		URLRegex: regexp.MustCompile(`.*`),
		New:      func(url string) (plugin.DownloadAdapter, error) { return adapter, nil },
	})

	var uploadCalls int
	var uploadMu sync.Mutex
	registry.RegisterUpload("fake", func(settings map[string]interface{}) (plugin.UploadAdapter, error) {
		return fakeUploadAdapterFunc(func(ctx context.Context, files []plugin.FileInfo) ([]plugin.FileInfo, error) {
			uploadMu.Lock()
			uploadCalls++
			uploadMu.Unlock()
			return files, nil
		}), nil
	})

	recSess := recording.NewSession(logging.New(logging.DefaultConfig()), registry, store, dir, dir, nil)
	upSess := upload.NewSession(logging.New(logging.DefaultConfig()), namedlock.New(), urlstate.New(), store, registry, upload.NewInFlightStems(), dir)

	require.NoError(t, os.WriteFile(dir+"/alice_seg1.flv", []byte("segment-bytes"), 0o644))

	streamer := &config.Streamer{Key: "alice", UploadAdapterName: "fake"}
	states := urlstate.New()

	bus := newTestBus(t)
	Register(bus, Deps{
		Log:           logging.New(logging.DefaultConfig()),
		States:        states,
		RecordingSess: recSess,
		UploadSess:    upSess,
		StreamerFor: func(key string) (*config.Streamer, bool) {
			if key == "alice" {
				return streamer, true
			}
			return nil, false
		},
	})

	bus.Publish(events.Event{Kind: events.PreDownload, Args: events.PreDownloadArgs{StreamerKey: "alice", URL: "https://example.com/alice", StartTime: time.Now()}})

	require.Eventually(t, func() bool {
		uploadMu.Lock()
		defer uploadMu.Unlock()
		return uploadCalls == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, urlstate.Idle, states.Get("https://example.com/alice"))
}

func TestHandlePreDownloadSkipsWhenAlreadyDownloading(t *testing.T) {
	states := urlstate.New()
	states.Set("https://example.com/alice", urlstate.Downloading)

	streamer := &config.Streamer{Key: "alice"}
	deps := Deps{
		Log:    logging.New(logging.DefaultConfig()),
		States: states,
		StreamerFor: func(key string) (*config.Streamer, bool) {
			return streamer, true
		},
	}

	follow, err := handlePreDownload(deps, deps.Log, events.Event{
		Kind: events.PreDownload,
		Args: events.PreDownloadArgs{StreamerKey: "alice", URL: "https://example.com/alice", StartTime: time.Now()},
	})

	require.NoError(t, err)
	assert.Nil(t, follow)
}

// fakeUploadAdapterFunc adapts a function literal to plugin.UploadAdapter.
type fakeUploadAdapterFunc func(ctx context.Context, files []plugin.FileInfo) ([]plugin.FileInfo, error)

func (f fakeUploadAdapterFunc) Name() string { return "fake" }
func (f fakeUploadAdapterFunc) Upload(ctx context.Context, files []plugin.FileInfo) ([]plugin.FileInfo, error) {
	return f(ctx, files)
}
