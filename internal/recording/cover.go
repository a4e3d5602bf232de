package recording

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/image/webp"

	"github.com/streamkeep/streamkeep/internal/config"
)

// coverHTTPClient is a conservative, purpose-specific client distinct from
// the probe/health-check clients in plugin/httpclient: cover downloads are a
// one-shot best-effort fetch, not a polled liveness check.
var coverHTTPClient = &http.Client{Timeout: 30 * time.Second}

// downloadCover fetches coverURL and stores it at
// cover/<adapter>/<streamer_key>/<expanded_template>.<ext> (§4.7 step 8),
// converting WebP source images to JPEG since most upload targets and
// static-file servers have no native WebP thumbnail support (supplemented
// from original_source/biliup, see SPEC_FULL.md item 4). Returns the stored
// path, or "" with a nil error if coverURL is empty (cover capture is
// optional).
func downloadCover(ctx context.Context, coverDir, adapterName string, s *config.Streamer, coverURL string, baseName string) (string, error) {
	if coverURL == "" {
		return "", nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, coverURL, nil)
	if err != nil {
		return "", fmt.Errorf("recording: build cover request: %w", err)
	}
	resp, err := coverHTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("recording: fetch cover: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("recording: fetch cover: unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("recording: read cover body: %w", err)
	}

	destDir := filepath.Join(coverDir, adapterName, s.Key)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("recording: create cover dir: %w", err)
	}

	destPath := filepath.Join(destDir, baseName+".jpg")
	img, isWebP, err := decodeCoverImage(body, resp.Header.Get("Content-Type"), coverURL)
	if err != nil {
		// Not a format we can transcode; store the bytes verbatim under
		// their apparent extension instead of failing the whole session.
		destPath = filepath.Join(destDir, baseName+rawCoverExt(resp.Header.Get("Content-Type"), coverURL))
		if err := os.WriteFile(destPath, body, 0o644); err != nil {
			return "", fmt.Errorf("recording: write raw cover: %w", err)
		}
		return destPath, nil
	}
	if !isWebP {
		// Already a format browsers/upload targets accept (jpeg/png); keep
		// the bytes as-is rather than re-encoding.
		destPath = filepath.Join(destDir, baseName+rawCoverExt(resp.Header.Get("Content-Type"), coverURL))
		if err := os.WriteFile(destPath, body, 0o644); err != nil {
			return "", fmt.Errorf("recording: write cover: %w", err)
		}
		return destPath, nil
	}

	out, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("recording: create cover jpeg: %w", err)
	}
	defer out.Close()
	if err := jpeg.Encode(out, img, &jpeg.Options{Quality: 90}); err != nil {
		return "", fmt.Errorf("recording: encode cover jpeg: %w", err)
	}
	return destPath, nil
}

// decodeCoverImage decodes body as WebP if it looks like one; otherwise it
// reports isWebP=false so the caller stores the bytes unchanged.
func decodeCoverImage(body []byte, contentType, sourceURL string) (image.Image, bool, error) {
	if !looksLikeWebP(contentType, sourceURL) {
		return nil, false, nil
	}
	img, err := webp.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	return img, true, nil
}

func looksLikeWebP(contentType, sourceURL string) bool {
	return strings.Contains(contentType, "webp") || strings.HasSuffix(strings.ToLower(sourceURL), ".webp")
}

func rawCoverExt(contentType, sourceURL string) string {
	switch {
	case strings.Contains(contentType, "png"), strings.HasSuffix(strings.ToLower(sourceURL), ".png"):
		return ".png"
	case strings.Contains(contentType, "jpeg"), strings.Contains(contentType, "jpg"):
		return ".jpg"
	default:
		return ".jpg"
	}
}
