package adapters

import (
	"context"
	"fmt"
	"os"

	shell "github.com/ipfs/go-ipfs-api"

	"github.com/streamkeep/streamkeep/internal/plugin"
)

// IPFSUploadName is the platform name this adapter registers under.
const IPFSUploadName = "ipfs"

// IPFSUploadAdapter publishes recorded files to an IPFS node: each video
// (and its chat sidecar, if present) is added and pinned, making the
// resulting CID the durable "uploaded" artifact for that target platform.
// Grounded on the Add/Pin calls in pkg/storage/backends/ipfs.go, adapted
// from NoiseFS's anonymized-block storage use to publishing plain files.
type IPFSUploadAdapter struct {
	shell *shell.Shell
}

// NewIPFSUpload constructs the adapter from a streamer's merged settings;
// settings["api_endpoint"] defaults to the local daemon's API address.
func NewIPFSUpload(settings map[string]interface{}) (plugin.UploadAdapter, error) {
	endpoint, _ := settings["api_endpoint"].(string)
	if endpoint == "" {
		endpoint = "localhost:5001"
	}
	return &IPFSUploadAdapter{shell: shell.NewShell(endpoint)}, nil
}

func (a *IPFSUploadAdapter) Name() string { return IPFSUploadName }

// Upload adds and pins each file in turn. A file whose video failed to add
// is dropped from the returned slice rather than aborting the whole batch,
// so a partial failure doesn't force a full re-upload of files that already
// succeeded (§7 UploadError retry policy operates on whatever this call
// does not return as done).
func (a *IPFSUploadAdapter) Upload(ctx context.Context, files []plugin.FileInfo) ([]plugin.FileInfo, error) {
	var uploaded []plugin.FileInfo
	var firstErr error

	for _, f := range files {
		cid, err := a.addFile(f.VideoPath)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("add %s: %w", f.VideoPath, err)
			}
			continue
		}
		if err := a.shell.Pin(cid); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("pin %s (%s): %w", f.VideoPath, cid, err)
			}
			continue
		}
		if f.DanmakuPath != "" {
			if dcid, err := a.addFile(f.DanmakuPath); err == nil {
				_ = a.shell.Pin(dcid)
			}
		}
		uploaded = append(uploaded, f)
	}

	if len(uploaded) == 0 && firstErr != nil {
		return nil, &plugin.UploadError{Streamer: "ipfs", Err: firstErr}
	}
	return uploaded, nil
}

func (a *IPFSUploadAdapter) addFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return a.shell.Add(f)
}
