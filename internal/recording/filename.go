package recording

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/lestrrat-go/strftime"

	"github.com/streamkeep/streamkeep/internal/config"
)

// placeholder substitutions applied before strftime expansion (§4.7
// "Filename templating").
func expandPlaceholders(prefix, streamerKey, title, url string) string {
	r := strings.NewReplacer(
		"{streamer}", streamerKey,
		"{title}", title,
		"{url}", url,
	)
	return r.Replace(prefix)
}

// buildFilenameBase runs filename_prefix through placeholder expansion then
// strftime against at, sanitizing the result (§4.7). If the produced name
// collides with an existing file in dir (any extension), at is advanced by
// one second and the name regenerated until unique (P8 collision shift).
func buildFilenameBase(dir string, s *config.Streamer, title string, at time.Time) (string, error) {
	prefix := s.FilenamePrefix
	if prefix == "" {
		prefix = "{streamer}_%Y-%m-%d_%H-%M-%S"
	}

	for attempt := 0; attempt < 600; attempt++ {
		candidateTime := at.Add(time.Duration(attempt) * time.Second)
		expanded := expandPlaceholders(prefix, s.Key, title, firstURL(s))

		f, err := strftime.New(expanded)
		if err != nil {
			return "", fmt.Errorf("recording: compile filename template %q: %w", expanded, err)
		}
		name := config.SanitizeFilename(f.FormatString(candidateTime))

		if !anyFileWithStem(dir, name) {
			return name, nil
		}
	}
	return "", fmt.Errorf("recording: could not find a unique filename for prefix %q after 600 attempts", prefix)
}

func firstURL(s *config.Streamer) string {
	if len(s.URL) == 0 {
		return ""
	}
	return s.URL[0]
}

// anyFileWithStem reports whether dir contains any file whose name begins
// with stem (covers every extension variant: .flv, .mp4, .xml, .part, ...).
func anyFileWithStem(dir, stem string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), stem) {
			return true
		}
	}
	return false
}
