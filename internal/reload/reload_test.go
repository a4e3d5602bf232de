package reload

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamkeep/streamkeep/internal/logging"
)

func newTestCoordinator(t *testing.T, workDir string) (*Coordinator, chan int) {
	t.Helper()
	srcDir := t.TempDir()
	configPath := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte("{}"), 0o644))

	c, err := New(logging.New(logging.DefaultConfig()), configPath, []string{srcDir}, workDir)
	require.NoError(t, err)
	t.Cleanup(c.Stop)

	exitCodes := make(chan int, 1)
	c.exit = func(code int) { exitCodes <- code }
	c.inContainer = false

	return c, exitCodes
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestCoordinatorDoesNotExitWithoutPendingChange(t *testing.T) {
	dir := t.TempDir()
	c, exitCodes := newTestCoordinator(t, dir)

	c.startPoll(20*time.Millisecond, func() {})

	select {
	case code := <-exitCodes:
		t.Fatalf("unexpected exit with code %d", code)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCoordinatorWaitsForQuiescenceBeforeExiting(t *testing.T) {
	dir := t.TempDir()
	partFile := filepath.Join(dir, "alice_seg1.flv.part")
	touch(t, partFile)

	c, exitCodes := newTestCoordinator(t, dir)
	c.markPending()

	var shutdownCalled bool
	c.startPoll(20*time.Millisecond, func() { shutdownCalled = true })

	select {
	case code := <-exitCodes:
		t.Fatalf("exited with code %d while .part file still present", code)
	case <-time.After(80 * time.Millisecond):
	}
	assert.False(t, shutdownCalled)

	require.NoError(t, os.Remove(partFile))

	select {
	case code := <-exitCodes:
		assert.Equal(t, ExitCodeRestart, code)
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator never exited after the working directory went quiet")
	}
	assert.True(t, shutdownCalled)
}

func TestCoordinatorExitsWithZeroInContainerMode(t *testing.T) {
	dir := t.TempDir()
	c, exitCodes := newTestCoordinator(t, dir)
	c.inContainer = true
	c.markPending()

	c.startPoll(20*time.Millisecond, func() {})

	select {
	case code := <-exitCodes:
		assert.Equal(t, 0, code)
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator never exited")
	}
}

func TestRecordingInProgressDetectsEverySentinelExtension(t *testing.T) {
	dir := t.TempDir()
	c, _ := newTestCoordinator(t, dir)

	assert.False(t, c.recordingInProgress())

	for ext := range recordingSentinelExts {
		f := filepath.Join(dir, "seg"+ext)
		touch(t, f)
		assert.True(t, c.recordingInProgress(), "extension %s should be detected", ext)
		require.NoError(t, os.Remove(f))
	}
}

func TestMarkPendingOnWatchedFileWrite(t *testing.T) {
	dir := t.TempDir()
	c, _ := newTestCoordinator(t, dir)

	go c.watchEvents()
	require.NoError(t, c.watcher.Add(dir))

	touch(t, filepath.Join(dir, "new.go"))

	require.Eventually(t, c.isPending, time.Second, 10*time.Millisecond)
}
