// Package scheduler is C5: the URL watcher. For every adapter group it
// keeps exactly one long-running cooperative task alive, rebuilding groups
// on config add/delete (§4.5). Grounded on the cancel-context task pattern
// used throughout the teacher repo (e.g. pkg/sync/file_watcher.go,
// pkg/announce/pubsub/realtime.go): one context.CancelFunc per background
// loop, a done channel the owner can wait on for clean shutdown.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/streamkeep/streamkeep/internal/events"
	"github.com/streamkeep/streamkeep/internal/eventbus"
	"github.com/streamkeep/streamkeep/internal/logging"
	"github.com/streamkeep/streamkeep/internal/namedlock"
	"github.com/streamkeep/streamkeep/internal/plugin"
	"github.com/streamkeep/streamkeep/internal/urlstate"
)

// Defaults per §4.5/§5.
const (
	DefaultEventLoopInterval = 10 * time.Second
	DefaultBatchInterval     = 30 * time.Second
)

// Config holds the scheduler's own tunables; streamer/hook configuration
// lives in internal/config and is threaded through via Add.
type Config struct {
	EventLoopInterval time.Duration
	BatchInterval     time.Duration
}

func (c *Config) applyDefaults() {
	if c.EventLoopInterval <= 0 {
		c.EventLoopInterval = DefaultEventLoopInterval
	}
	if c.BatchInterval <= 0 {
		c.BatchInterval = DefaultBatchInterval
	}
}

// group is one adapter's watcher task: the URL list it round-robins or
// batch-probes, and the cancellation handle for its goroutine.
type group struct {
	descriptor plugin.DownloadDescriptor
	urls       []string
	rrIndex    int
	cancel     context.CancelFunc
	done       chan struct{}
}

// Scheduler is C5.
type Scheduler struct {
	mu       sync.Mutex
	log      *logging.Logger
	bus      *eventbus.Bus
	registry *plugin.Registry
	locks    *namedlock.Registry
	states   *urlstate.Table
	cfg      Config

	groups      map[string]*group // adapter descriptor name -> group
	urlStreamer map[string]string // url -> streamer key
	urlAdapter  map[string]string // url -> adapter descriptor name
}

// New constructs a Scheduler. It does not start any tasks until Add is
// called for the first URL of each adapter group.
func New(bus *eventbus.Bus, registry *plugin.Registry, locks *namedlock.Registry, states *urlstate.Table, log *logging.Logger, cfg Config) *Scheduler {
	cfg.applyDefaults()
	return &Scheduler{
		log:         log.WithComponent("scheduler"),
		bus:         bus,
		registry:    registry,
		locks:       locks,
		states:      states,
		cfg:         cfg,
		groups:      make(map[string]*group),
		urlStreamer: make(map[string]string),
		urlAdapter:  make(map[string]string),
	}
}

// Add appends a URL to its adapter's group, creating the group and its task
// if this is the first URL for that adapter (§4.5).
func (s *Scheduler) Add(streamerKey, url string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	descriptor := s.registry.Route(url)
	s.urlStreamer[url] = streamerKey
	s.urlAdapter[url] = descriptor.Name

	g, ok := s.groups[descriptor.Name]
	if !ok {
		g = &group{descriptor: descriptor}
		s.groups[descriptor.Name] = g
		s.startGroupLocked(g)
	}
	g.urls = append(g.urls, url)
}

// Delete removes a URL from its adapter's group; if the group becomes
// empty, its task is cancelled (§4.5).
func (s *Scheduler) Delete(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	adapterName, ok := s.urlAdapter[url]
	if !ok {
		return
	}
	delete(s.urlStreamer, url)
	delete(s.urlAdapter, url)

	g, ok := s.groups[adapterName]
	if !ok {
		return
	}
	g.urls = removeString(g.urls, url)
	if len(g.urls) == 0 {
		g.cancel()
		delete(s.groups, adapterName)
	}
}

func removeString(list []string, target string) []string {
	out := list[:0]
	for _, v := range list {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}

// Shutdown cancels every group task and waits for them to exit.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	groups := make([]*group, 0, len(s.groups))
	for _, g := range s.groups {
		groups = append(groups, g)
	}
	s.mu.Unlock()

	for _, g := range groups {
		g.cancel()
		<-g.done
	}
}

func (s *Scheduler) startGroupLocked(g *group) {
	ctx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel
	g.done = make(chan struct{})

	if g.descriptor.IsBatchCapable() {
		go s.runBatch(ctx, g)
	} else {
		go s.runIndividual(ctx, g)
	}
}

// streamerKeyFor looks up the streamer key owning url, used by both task
// shapes when publishing events.
func (s *Scheduler) streamerKeyFor(url string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.urlStreamer[url]
	return key, ok
}

// nextURL returns the URL at a group's round-robin cursor, advances the
// cursor by one, and reports len(urls)-1 as the number of other URLs. It
// reads under s.mu, since the slice may be mutated by concurrent Add/Delete
// calls.
func (s *Scheduler) nextURL(g *group) (string, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(g.urls) == 0 {
		return "", 0, false
	}
	if g.rrIndex >= len(g.urls) {
		g.rrIndex = 0
	}
	url := g.urls[g.rrIndex]
	remaining := len(g.urls) - 1
	g.rrIndex++
	return url, remaining, true
}

// runIndividual is the individual task shape (§4.5): round-robin over the
// adapter's URL list, probing one URL per step.
func (s *Scheduler) runIndividual(ctx context.Context, g *group) {
	defer close(g.done)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		url, remaining, ok := s.nextURL(g)
		if !ok {
			if !sleepOrDone(ctx, s.cfg.EventLoopInterval) {
				return
			}
			continue
		}

		skippedDownloading := s.processIndividualURL(ctx, g.descriptor, url)

		if skippedDownloading && remaining > 0 {
			continue
		}
		if !sleepOrDone(ctx, s.cfg.EventLoopInterval) {
			return
		}
	}
}

// processIndividualURL runs one round-robin step and reports whether the
// URL was skipped because it is currently Downloading.
func (s *Scheduler) processIndividualURL(ctx context.Context, descriptor plugin.DownloadDescriptor, url string) bool {
	if s.states.Get(url) == urlstate.Downloading {
		return true
	}

	streamerKey, ok := s.streamerKeyFor(url)
	if !ok {
		return false
	}

	s.bus.Publish(events.Event{Kind: events.Upload, Args: events.UploadArgs{StreamerKey: streamerKey, URL: url}})

	adapter, err := descriptor.New(url)
	if err != nil {
		s.log.Warnf("scheduler: build probe adapter for %s: %v", url, err)
		return false
	}
	defer adapter.Close()

	live, err := adapter.Probe(ctx, true)
	if err != nil {
		s.log.Warnf("scheduler: probe %s: %v", url, err)
		return false
	}
	if !live {
		return false
	}

	handle := s.locks.Acquire(namedlock.UploadFileListKey(streamerKey))
	s.bus.Publish(events.Event{Kind: events.PreDownload, Args: events.PreDownloadArgs{
		StreamerKey: streamerKey,
		URL:         url,
		StartTime:   time.Now(),
	}})
	handle.Release()
	return false
}

// runBatch is the batch task shape (§4.5): every BatchInterval, invoke the
// adapter's BatchProbe once for the whole group.
func (s *Scheduler) runBatch(ctx context.Context, g *group) {
	defer close(g.done)

	ticker := time.NewTicker(s.cfg.BatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runBatchIteration(ctx, g)
		}
	}
}

func (s *Scheduler) runBatchIteration(ctx context.Context, g *group) {
	s.mu.Lock()
	urls := make([]string, len(g.urls))
	copy(urls, g.urls)
	s.mu.Unlock()
	if len(urls) == 0 {
		return
	}

	adapter, err := g.descriptor.NewBatch(urls)
	if err != nil {
		s.log.Warnf("scheduler: build batch adapter for %s: %v", g.descriptor.Name, err)
		return
	}
	defer adapter.Close()

	err = adapter.BatchProbe(ctx, urls, func(liveURL string) {
		streamerKey, ok := s.streamerKeyFor(liveURL)
		if !ok {
			return
		}
		s.bus.Publish(events.Event{Kind: events.PreDownload, Args: events.PreDownloadArgs{
			StreamerKey: streamerKey,
			URL:         liveURL,
			StartTime:   time.Now(),
		}})
	})
	if err != nil {
		s.log.Warnf("scheduler: batch probe %s: %v", g.descriptor.Name, err)
	}
}

// sleepOrDone sleeps d unless ctx is cancelled first, reporting whether it
// completed the full sleep.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
