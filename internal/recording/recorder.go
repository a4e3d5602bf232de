package recording

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/alessio/shellescape"

	"github.com/streamkeep/streamkeep/internal/config"
	"github.com/streamkeep/streamkeep/internal/logging"
	"github.com/streamkeep/streamkeep/internal/plugin"
)

// recorderTerminateGrace is the wait in the terminate-then-wait-then-kill shutdown sequence for
// recorder subprocesses (§5: "terminate() then a 5-second wait, then kill()
// on close"). Grounded on the exec.Command lifecycle pattern in
// util.go's Execute function in the Kethsar-ytarchive example repo, adapted
// from synchronous run-to-completion to a supervised/cancellable one since
// our sessions must be able to stop a recorder mid-stream.
const recorderTerminateGrace = 5 * time.Second

// runRecorder drives one (streamer_key, url) recording according to the
// streamer's configured RecorderMode (§4.7 step 5) and returns once the
// recorder exits, calling segmentFn once per finished segment.
func runRecorder(ctx context.Context, log *logging.Logger, s *config.Streamer, adapter plugin.DownloadAdapter, baseName, destDir string, segmentFn func(path string)) error {
	switch s.RecorderMode {
	case config.RecorderExternalSingle:
		return runExternalSingle(ctx, log, s, baseName, destDir, segmentFn)
	case config.RecorderExternalSegmented:
		return runExternalSegmented(ctx, log, s, baseName, destDir, segmentFn)
	case config.RecorderNative, "":
		return adapter.Record(ctx, segmentFn)
	default:
		return fmt.Errorf("recording: unknown recorder mode %q", s.RecorderMode)
	}
}

func ext(s *config.Streamer) string {
	if s.RecorderExt != "" {
		return s.RecorderExt
	}
	return "flv"
}

// expandCommand substitutes {url} and {output} in the operator-configured
// shell template.
func expandCommand(template, url, output string) string {
	r := strings.NewReplacer("{url}", url, "{output}", output)
	return r.Replace(template)
}

// startRecorderCmd launches the shell command and logs it shell-escaped for
// debuggability, mirroring Execute's LogDebug call in the ytarchive example.
func startRecorderCmd(log *logging.Logger, command string) (*exec.Cmd, error) {
	cmd := exec.Command("sh", "-c", command)
	log.Debugf("recording: launching recorder: %s", shellescape.QuoteCommand(cmd.Args))
	return cmd, nil
}

// waitWithGrace waits for cmd to exit, or on ctx cancellation sends a
// terminate signal, gives it recorderTerminateGrace to exit cleanly, then
// kills it (§5).
func waitWithGrace(ctx context.Context, cmd *exec.Cmd) error {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if cmd.Process != nil {
			_ = cmd.Process.Signal(os.Interrupt)
		}
		select {
		case err := <-done:
			return err
		case <-time.After(recorderTerminateGrace):
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
			return <-done
		}
	}
}

// runExternalSingle is the "external transcoder, single output" variant
// (§4.7 step 5): writes to "<output>.<ext>.part" and renames once on a
// clean exit.
func runExternalSingle(ctx context.Context, log *logging.Logger, s *config.Streamer, baseName, destDir string, segmentFn func(string)) error {
	output := filepath.Join(destDir, baseName)
	partPath := fmt.Sprintf("%s.%s.part", output, ext(s))
	finalPath := fmt.Sprintf("%s.%s", output, ext(s))

	cmd, err := startRecorderCmd(log, expandCommand(s.RecorderCommand, firstURL(s), partPath))
	if err != nil {
		return &plugin.RecordError{URL: firstURL(s), Err: err}
	}
	if err := cmd.Start(); err != nil {
		return &plugin.RecordError{URL: firstURL(s), Err: err}
	}

	waitErr := waitWithGrace(ctx, cmd)
	if waitErr != nil {
		return &plugin.RecordError{URL: firstURL(s), Err: waitErr}
	}

	if err := os.Rename(partPath, finalPath); err != nil {
		return &plugin.RecordError{URL: firstURL(s), Err: fmt.Errorf("rename segment: %w", err)}
	}
	segmentFn(finalPath)
	return nil
}

// runExternalSegmented is the "external transcoder, segmented output"
// variant (§4.7 step 5): the process emits one internal segment name per
// completed segment on stdout; each is renamed to "<base>.<ext>", with a
// numeric suffix added from the second segment on to avoid collisions.
func runExternalSegmented(ctx context.Context, log *logging.Logger, s *config.Streamer, baseName, destDir string, segmentFn func(string)) error {
	output := filepath.Join(destDir, baseName)

	cmd, err := startRecorderCmd(log, expandCommand(s.RecorderCommand, firstURL(s), output))
	if err != nil {
		return &plugin.RecordError{URL: firstURL(s), Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &plugin.RecordError{URL: firstURL(s), Err: err}
	}
	if err := cmd.Start(); err != nil {
		return &plugin.RecordError{URL: firstURL(s), Err: err}
	}

	segIndex := 0
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		internalName := strings.TrimSpace(scanner.Text())
		if internalName == "" {
			continue
		}
		finalPath := fmt.Sprintf("%s.%s", output, ext(s))
		if segIndex > 0 {
			finalPath = fmt.Sprintf("%s_%03d.%s", output, segIndex, ext(s))
		}
		if err := os.Rename(internalName, finalPath); err != nil {
			log.Warnf("recording: rename segment %s: %v", internalName, err)
			continue
		}
		segmentFn(finalPath)
		segIndex++
	}

	waitErr := waitWithGrace(ctx, cmd)
	if waitErr != nil {
		return &plugin.RecordError{URL: firstURL(s), Err: waitErr}
	}
	return nil
}
