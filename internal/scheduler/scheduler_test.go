package scheduler

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamkeep/streamkeep/internal/events"
	"github.com/streamkeep/streamkeep/internal/eventbus"
	"github.com/streamkeep/streamkeep/internal/logging"
	"github.com/streamkeep/streamkeep/internal/namedlock"
	"github.com/streamkeep/streamkeep/internal/plugin"
	"github.com/streamkeep/streamkeep/internal/urlstate"
)

type fakeAdapter struct {
	url  string
	live bool
}

func (f *fakeAdapter) Probe(ctx context.Context, isCheckOnly bool) (bool, error) { return f.live, nil }
func (f *fakeAdapter) Params() plugin.StreamParams                              { return plugin.StreamParams{} }
func (f *fakeAdapter) Record(ctx context.Context, segmentFn func(string)) error { return nil }
func (f *fakeAdapter) InitChatCapture(ctx context.Context) error                { return nil }
func (f *fakeAdapter) Close() error                                             { return nil }

func newTestBus(t *testing.T) (*eventbus.Bus, *sync.Mutex, *[]events.Event) {
	t.Helper()
	log := logging.New(logging.DefaultConfig())
	bus := eventbus.New(eventbus.Config{Pool1Size: 1, Pool2Size: 1}, log)

	var mu sync.Mutex
	var seen []events.Event
	record := func(e events.Event) ([]events.Event, error) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e)
		return nil, nil
	}
	bus.Register(events.PreDownload, events.NoPool, record)
	bus.Register(events.Upload, events.NoPool, record)
	go bus.Run()
	t.Cleanup(bus.Shutdown)
	return bus, &mu, &seen
}

func TestSchedulerIndividualPublishesPreDownloadWhenLive(t *testing.T) {
	bus, mu, seen := newTestBus(t)

	registry := plugin.NewRegistry()
	registry.RegisterGeneric(plugin.DownloadDescriptor{
		Name: "generic",
		New: func(url string) (plugin.DownloadAdapter, error) {
			return &fakeAdapter{url: url, live: true}, nil
		},
	})

	sched := New(bus, registry, namedlock.New(), urlstate.New(), logging.New(logging.DefaultConfig()), Config{
		EventLoopInterval: 20 * time.Millisecond,
		BatchInterval:     time.Hour,
	})
	sched.Add("streamer-a", "https://example/live")
	t.Cleanup(sched.Shutdown)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range *seen {
			if e.Kind == events.PreDownload {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestSchedulerSkipsDownloadingURLWithoutThrottle(t *testing.T) {
	bus, _, _ := newTestBus(t)

	registry := plugin.NewRegistry()
	probes := make(chan struct{}, 100)
	registry.RegisterGeneric(plugin.DownloadDescriptor{
		Name: "generic",
		New: func(url string) (plugin.DownloadAdapter, error) {
			probes <- struct{}{}
			return &fakeAdapter{url: url, live: false}, nil
		},
	})

	states := urlstate.New()
	states.Set("https://example/downloading", urlstate.Downloading)

	sched := New(bus, registry, namedlock.New(), states, logging.New(logging.DefaultConfig()), Config{
		EventLoopInterval: time.Hour, // would block forever if the skip didn't avoid sleeping
		BatchInterval:     time.Hour,
	})
	sched.Add("streamer-a", "https://example/downloading")
	sched.Add("streamer-a", "https://example/idle")
	t.Cleanup(sched.Shutdown)

	select {
	case <-probes:
	case <-time.After(time.Second):
		t.Fatal("expected the idle URL to be probed promptly despite the long event-loop interval")
	}
}

func TestSchedulerDeleteCancelsEmptyGroup(t *testing.T) {
	bus, _, _ := newTestBus(t)
	registry := plugin.NewRegistry()
	registry.RegisterGeneric(plugin.DownloadDescriptor{
		Name: "generic",
		New: func(url string) (plugin.DownloadAdapter, error) {
			return &fakeAdapter{url: url, live: false}, nil
		},
	})

	sched := New(bus, registry, namedlock.New(), urlstate.New(), logging.New(logging.DefaultConfig()), Config{})
	sched.Add("streamer-a", "https://example/only")

	sched.mu.Lock()
	g := sched.groups["generic"]
	sched.mu.Unlock()
	require.NotNil(t, g)

	sched.Delete("https://example/only")

	select {
	case <-g.done:
	case <-time.After(time.Second):
		t.Fatal("expected group task to exit after its last URL was deleted")
	}

	sched.mu.Lock()
	_, stillExists := sched.groups["generic"]
	sched.mu.Unlock()
	assert.False(t, stillExists)
}

func TestSchedulerRoutesByAdapterRegex(t *testing.T) {
	bus, _, _ := newTestBus(t)
	registry := plugin.NewRegistry()
	registry.RegisterDownload(plugin.DownloadDescriptor{
		Name:     "site-a",
		URLRegex: regexp.MustCompile(`site-a\.example`),
		New: func(url string) (plugin.DownloadAdapter, error) {
			return &fakeAdapter{url: url}, nil
		},
	})
	registry.RegisterGeneric(plugin.DownloadDescriptor{
		Name: "generic",
		New: func(url string) (plugin.DownloadAdapter, error) {
			return &fakeAdapter{url: url}, nil
		},
	})

	sched := New(bus, registry, namedlock.New(), urlstate.New(), logging.New(logging.DefaultConfig()), Config{})
	sched.Add("streamer-a", "https://site-a.example/room")
	sched.Add("streamer-b", "https://other.example/room")
	t.Cleanup(sched.Shutdown)

	sched.mu.Lock()
	defer sched.mu.Unlock()
	assert.Contains(t, sched.groups, "site-a")
	assert.Contains(t, sched.groups, "generic")
}
