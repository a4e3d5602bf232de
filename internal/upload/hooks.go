package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/streamkeep/streamkeep/internal/config"
	"github.com/streamkeep/streamkeep/internal/logging"
)

// RunJSONHooks executes a hook chain whose "run" steps receive a JSON
// payload on stdin (§6: preprocessor/segment_processor/downloaded_processor
// hooks). It satisfies recording.HookRunner. rm/mv steps are only
// meaningful against an explicit file list and are logged and skipped if
// they appear in one of these chains.
func RunJSONHooks(ctx context.Context, log *logging.Logger, hooks []config.Hook, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("upload: marshal hook payload: %w", err)
	}

	for _, h := range hooks {
		switch h.Kind {
		case config.HookRun:
			if err := runShell(ctx, h.Run, data); err != nil {
				log.Warnf("upload: hook %q: %v", h.Run, err)
			}
		default:
			log.Warnf("upload: hook kind %q has no effect outside the postprocessor chain", h.Kind)
		}
	}
	return nil
}

// RunPostprocessorChain executes §4.8 step 5: with no postprocessor
// configured, every returned file and the cover are deleted; otherwise each
// step runs in order regardless of a prior step's outcome.
func RunPostprocessorChain(ctx context.Context, log *logging.Logger, hooks []config.Hook, files []string, coverPath string) {
	if len(hooks) == 0 {
		deleteAll(log, append(append([]string{}, files...), coverPath))
		return
	}

	for _, h := range hooks {
		switch h.Kind {
		case config.HookRm:
			deleteAll(log, files)
		case config.HookMv:
			moveAll(log, h.Dest, files)
		case config.HookRun:
			payload := strings.Join(files, "\n")
			if err := runShell(ctx, h.Run, []byte(payload)); err != nil {
				log.Warnf("upload: postprocessor hook %q: %v", h.Run, err)
			}
		}
	}
}

func deleteAll(log *logging.Logger, paths []string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Warnf("upload: remove %s: %v", p, err)
		}
	}
}

func moveAll(log *logging.Logger, destDir string, paths []string) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		log.Warnf("upload: create %s: %v", destDir, err)
		return
	}
	for _, p := range paths {
		if p == "" {
			continue
		}
		dest := filepath.Join(destDir, filepath.Base(p))
		if err := os.Rename(p, dest); err != nil {
			log.Warnf("upload: move %s -> %s: %v", p, dest, err)
		}
	}
}

// runShell runs command with stdin piped in, matching the §6 hook-chain ABI
// ("run receives payload on stdin"). Exit code 0 is success; any other is
// returned for the caller to log and ignore per step.
func runShell(ctx context.Context, command string, stdin []byte) error {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Stdin = bytes.NewReader(stdin)
	return cmd.Run()
}
