// Package eventbus implements C3: typed events, a per-kind handler chain,
// dispatch into named worker pools, and error isolation. Grounded on the
// registration-order, pool-tagged-handler pattern of
// pkg/announce/pubsub/realtime.go (subscription table + dedicated dispatch
// goroutine) in the teacher repo, adapted from pubsub topics to the fixed
// event kinds of §6.
package eventbus

import (
	"github.com/streamkeep/streamkeep/internal/events"
	"github.com/streamkeep/streamkeep/internal/logging"
	"github.com/streamkeep/streamkeep/internal/workers"
)

// Handler processes one event and optionally yields follow-up events
// (§4.3, DESIGN NOTES: "Handlers that yield follow-up events"). A handler
// that returns an error has that error logged and swallowed at the bus
// boundary; it never reaches the dispatcher or pool goroutine's top level.
type Handler func(events.Event) ([]events.Event, error)

type registration struct {
	handler Handler
	pool    events.Pool
}

// Bus is the process-wide event dispatcher. Construct one with New, call
// Register for every handler, then start Run on its own goroutine.
type Bus struct {
	log      *logging.Logger
	ingress  *unboundedQueue
	handlers map[events.Kind][]registration
	pools    map[events.Pool]*workers.Pool
	stopped  chan struct{}
}

// Config sizes the named worker pools (§4.3: pool1 default 5, pool2 default 3).
type Config struct {
	Pool1Size int
	Pool2Size int
}

func New(cfg Config, log *logging.Logger) *Bus {
	if log == nil {
		log = logging.Global()
	}
	if cfg.Pool1Size <= 0 {
		cfg.Pool1Size = 5
	}
	if cfg.Pool2Size <= 0 {
		cfg.Pool2Size = 3
	}
	return &Bus{
		log:     log.WithComponent("eventbus"),
		ingress: newUnboundedQueue(),
		handlers: make(map[events.Kind][]registration),
		pools: map[events.Pool]*workers.Pool{
			events.Pool1: workers.NewPool("pool1", cfg.Pool1Size),
			events.Pool2: workers.NewPool("pool2", cfg.Pool2Size),
		},
		stopped: make(chan struct{}),
	}
}

// Register adds a handler for kind. pool is events.NoPool to run the
// handler inline on the dispatcher goroutine, or events.Pool1/events.Pool2
// to submit it to that named pool. Handlers for a kind run in registration
// order (§4.3).
func (b *Bus) Register(kind events.Kind, pool events.Pool, h Handler) {
	b.handlers[kind] = append(b.handlers[kind], registration{handler: h, pool: pool})
}

// Publish enqueues an event. It never blocks (§4.3).
func (b *Bus) Publish(e events.Event) {
	b.ingress.Push(e)
}

// Run drains the ingress queue serially until Shutdown is called. Run is
// meant to be started on its own goroutine by the caller (typically the
// process entrypoint).
func (b *Bus) Run() {
	for {
		e, ok := b.ingress.Pop()
		if !ok {
			close(b.stopped)
			return
		}
		b.dispatch(e)
	}
}

func (b *Bus) dispatch(e events.Event) {
	for _, reg := range b.handlers[e.Kind] {
		reg := reg
		if reg.pool == events.NoPool {
			b.invoke(reg.handler, e)
			continue
		}
		pool, ok := b.pools[reg.pool]
		if !ok {
			b.log.Errorf("handler for %s registered against unknown pool %q", e.Kind, reg.pool)
			continue
		}
		pool.Submit(func() { b.invoke(reg.handler, e) })
	}
}

// invoke runs a single handler with panic/error isolation (§7: "never do
// they propagate into the dispatcher or the pool's worker thread's top
// level") and republishes any follow-up events.
func (b *Bus) invoke(h Handler, e events.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Errorf("handler for %s panicked: %v", e.Kind, r)
		}
	}()

	follow, err := h(e)
	if err != nil {
		b.log.Warnf("handler for %s failed: %v", e.Kind, err)
	}
	for _, f := range follow {
		b.Publish(f)
	}
}

// Shutdown closes the ingress queue (no further Publish is processed, though
// already-enqueued events still drain through Run), waits for Run to exit,
// then shuts down both pools, draining in-flight handlers (§4.3).
func (b *Bus) Shutdown() {
	b.ingress.Close()
	<-b.stopped
	for _, p := range b.pools {
		p.Shutdown()
	}
}
