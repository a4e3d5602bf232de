// Command streamkeep is the process entrypoint: it loads config, wires C1
// through C11 together, and runs until a hot-reload restart or a terminal
// signal. Grounded on the teacher's cmd/noisefs-security/main.go shape:
// flag parsing, config load, component construction, signal-driven
// shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/streamkeep/streamkeep/internal/config"
	"github.com/streamkeep/streamkeep/internal/eventbus"
	"github.com/streamkeep/streamkeep/internal/handlers"
	"github.com/streamkeep/streamkeep/internal/logging"
	"github.com/streamkeep/streamkeep/internal/namedlock"
	"github.com/streamkeep/streamkeep/internal/persistence/postgres"
	"github.com/streamkeep/streamkeep/internal/persistence/searchindex"
	"github.com/streamkeep/streamkeep/internal/plugin"
	"github.com/streamkeep/streamkeep/internal/plugin/adapters"
	"github.com/streamkeep/streamkeep/internal/recording"
	"github.com/streamkeep/streamkeep/internal/reload"
	"github.com/streamkeep/streamkeep/internal/scheduler"
	"github.com/streamkeep/streamkeep/internal/upload"
	"github.com/streamkeep/streamkeep/internal/urlstate"
)

func main() {
	configPath := flag.String("config", "streamkeep.json", "path to the configuration file")
	sourceDir := flag.String("watch-source", ".", "directory tree watched for hot-reload")
	flag.Parse()

	if err := run(*configPath, *sourceDir); err != nil {
		fmt.Fprintln(os.Stderr, "streamkeep:", err)
		os.Exit(1)
	}
}

func run(configPath, sourceDir string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logging.InfoLevel
	}
	format := logging.TextFormat
	if cfg.Logging.Format == "json" {
		format = logging.JSONFormat
	}
	log := logging.New(&logging.Config{Level: level, Format: format, Output: os.Stdout})
	logging.SetGlobal(log)

	dsn, err := config.ResolveDSN(cfg.Persistence.DSN)
	if err != nil {
		return fmt.Errorf("resolve persistence dsn: %w", err)
	}

	store, err := postgres.Open(context.Background(), &postgres.Config{DSN: dsn, MigrationsPath: cfg.Persistence.MigrationsPath})
	if err != nil {
		return fmt.Errorf("open persistence: %w", err)
	}
	defer store.Close()

	index, err := searchindex.Open(cfg.SearchIndexPath)
	if err != nil {
		return fmt.Errorf("open search index: %w", err)
	}
	defer index.Close()

	registry := plugin.NewRegistry()
	registry.RegisterGeneric(plugin.DownloadDescriptor{Name: adapters.GenericName, New: adapters.NewGeneric})
	registry.RegisterUpload(adapters.IPFSUploadName, adapters.NewIPFSUpload)

	locks := namedlock.New()
	states := urlstate.New()
	inflight := upload.NewInFlightStems()

	bus := eventbus.New(eventbus.Config{Pool1Size: cfg.WorkerPools.Pool1Size, Pool2Size: cfg.WorkerPools.Pool2Size}, log)

	segmentHooks := func(ctx context.Context, hooks []config.Hook, payload interface{}) error {
		return upload.RunJSONHooks(ctx, log, hooks, payload)
	}
	recordingSess := recording.NewSession(log, registry, store, cfg.WorkingDir, cfg.CoverDir, segmentHooks)
	uploadSess := upload.NewSession(log, locks, states, store, registry, inflight, cfg.WorkingDir)

	var cfgMu sync.RWMutex
	streamerFor := func(key string) (*config.Streamer, bool) {
		cfgMu.RLock()
		defer cfgMu.RUnlock()
		s, ok := cfg.Streamers[key]
		return s, ok
	}

	handlers.Register(bus, handlers.Deps{
		Log:           log,
		States:        states,
		RecordingSess: recordingSess,
		UploadSess:    uploadSess,
		StreamerFor:   streamerFor,
		Index:         index,
	})

	sched := scheduler.New(bus, registry, locks, states, log, scheduler.Config{
		EventLoopInterval: cfg.EventLoop.PollInterval,
		BatchInterval:     cfg.EventLoop.BatchInterval,
	})

	cfgMu.RLock()
	for key, s := range cfg.Streamers {
		for _, u := range s.URL {
			sched.Add(key, u)
		}
	}
	cfgMu.RUnlock()

	go bus.Run()

	coordinator, err := reload.New(log, configPath, []string{sourceDir}, cfg.WorkingDir)
	if err != nil {
		log.Warnf("hot-reload coordinator disabled: %v", err)
	} else {
		coordinator.Start(cfg.EventLoop.CheckSourceCode, func() {
			sched.Shutdown()
			bus.Shutdown()
		})
	}

	waitForSignal(log)

	log.Infof("shutting down")
	sched.Shutdown()
	bus.Shutdown()
	if coordinator != nil {
		coordinator.Stop()
	}
	return nil
}

func waitForSignal(log *logging.Logger) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	log.Infof("received signal %s", s)
}

