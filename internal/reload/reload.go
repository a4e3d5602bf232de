// Package reload is C9: the hot-reload coordinator (§4.9). It watches the
// loaded source tree and the configuration file for changes via fsnotify,
// and once a change is observed, polls the working directory every
// check_sourcecode interval until no recording-sentinel file remains, then
// terminates the process. Grounded on fsnotify as the pack's
// filesystem-change-detection dependency (SPEC_FULL.md domain stack); the
// quiescence poll itself is a plain ticker loop, mirroring ptimer's
// cooperative-repeating-task shape without reusing its fire-and-forget Timer
// type (this loop needs to call os.Exit from inside the tick, which ptimer's
// signature has no hook for).
package reload

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/streamkeep/streamkeep/internal/logging"
)

// ExitCodeRestart is the sentinel exit code a surrounding process
// supervisor watches for to decide to re-exec the program (§4.9).
const ExitCodeRestart = 42

// recordingSentinelExts are the extensions that mark "a recording is in
// progress" (P6, §4.9).
var recordingSentinelExts = map[string]bool{
	".mp4": true, ".flv": true, ".3gp": true, ".webm": true, ".mkv": true, ".ts": true, ".part": true,
}

// Exiter abstracts process termination so tests can observe the decision
// without actually calling os.Exit.
type Exiter func(code int)

// Coordinator is C9.
type Coordinator struct {
	log     *logging.Logger
	watcher *fsnotify.Watcher
	workDir string
	exit    Exiter
	inContainer bool

	mu      sync.Mutex
	pending bool

	done chan struct{}
}

// New constructs a Coordinator watching configPath and every file under
// sourceDirs (non-recursive duplicates are harmless; fsnotify.Add is
// idempotent per path). workDir is polled for the quiescence check.
func New(log *logging.Logger, configPath string, sourceDirs []string, workDir string) (*Coordinator, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(configPath); err != nil {
		watcher.Close()
		return nil, err
	}
	for _, dir := range sourceDirs {
		if err := addTree(watcher, dir); err != nil {
			watcher.Close()
			return nil, err
		}
	}

	return &Coordinator{
		log:         log.WithComponent("reload"),
		watcher:     watcher,
		workDir:     workDir,
		exit:        os.Exit,
		inContainer: isContainerMode(),
		done:        make(chan struct{}),
	}, nil
}

// addTree registers every directory under root with the watcher (fsnotify
// does not watch recursively on its own).
func addTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}

// isContainerMode detects a containerized environment (§4.9: "/.dockerenv
// or a docker substring in /proc/self/cgroup").
func isContainerMode() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	data, err := os.ReadFile("/proc/self/cgroup")
	if err != nil {
		return false
	}
	return strings.Contains(string(data), "docker")
}

// Start launches the watch-events goroutine and the check_sourcecode
// quiescence poller. shutdown is invoked once, just before the process
// exits, to let the caller cancel its owned tasks (the scheduler, the web
// layer) cleanly first.
func (c *Coordinator) Start(checkInterval time.Duration, shutdown func()) {
	go c.watchEvents()
	c.startPoll(checkInterval, shutdown)
}

func (c *Coordinator) watchEvents() {
	for {
		select {
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				c.markPending()
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.log.Warnf("reload: watch error: %v", err)
		}
	}
}

func (c *Coordinator) markPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.pending {
		c.log.Infof("reload: source change observed, entering pending-restart mode")
	}
	c.pending = true
}

func (c *Coordinator) isPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// recordingInProgress reports whether workDir contains any file whose
// extension marks an active recording (P6).
func (c *Coordinator) recordingInProgress() bool {
	entries, err := os.ReadDir(c.workDir)
	if err != nil {
		c.log.Warnf("reload: scan working dir: %v", err)
		return true // fail closed: never terminate on an inconclusive scan
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if recordingSentinelExts[strings.ToLower(filepath.Ext(e.Name()))] {
			return true
		}
	}
	return false
}

// startPoll runs the §4.9 tick loop: on every tick, if a change is pending
// and the working directory is quiet, shut down and terminate the process.
func (c *Coordinator) startPoll(interval time.Duration, shutdown func()) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		defer close(c.done)
		for range ticker.C {
			if !c.isPending() {
				continue
			}
			if c.recordingInProgress() {
				continue
			}
			c.log.Infof("reload: working directory quiet, terminating for restart")
			shutdown()
			c.watcher.Close()
			if c.inContainer {
				c.exit(0)
			} else {
				c.exit(ExitCodeRestart)
			}
			return
		}
	}()
}

// Stop closes the underlying watcher; used by tests and by a graceful
// shutdown path that doesn't go through the exit(2) branch.
func (c *Coordinator) Stop() {
	c.watcher.Close()
}
