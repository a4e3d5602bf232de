// Package config loads and validates the streamkeep configuration file: the
// set of watched streamers (§3 of the spec), global scheduler/worker-pool
// tuning, and the persistence DSN. The shape follows
// pkg/infrastructure/config/config.go in the teacher repo: a single JSON
// document unmarshaled into a typed struct, with defaulting of zero values
// and loud-but-non-fatal handling of unknown fields.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/streamkeep/streamkeep/internal/logging"
)

// ConfigError marks a fatal startup misconfiguration (§7).
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return "config: " + e.Msg }

// HookKind tags one step of a hook chain (§6 hook-chain ABI).
type HookKind string

const (
	HookRun HookKind = "run"
	HookMv  HookKind = "mv"
	HookRm  HookKind = "rm"
)

// Hook is one step of a preprocessor/segment_processor/downloaded_processor/
// postprocessor chain. Exactly one of Run/Dest is meaningful, selected by Kind.
type Hook struct {
	Kind HookKind `json:"kind"`
	Run  string   `json:"run,omitempty"`  // shell line, for HookRun
	Dest string   `json:"dest,omitempty"` // destination dir, for HookMv
}

// UnmarshalJSON accepts both the compact bareword/object forms from the ABI
// ("rm", {"run": "..."}, {"mv": "dest"}) and the canonical {"kind":...} form,
// so configs written by hand stay terse.
func (h *Hook) UnmarshalJSON(data []byte) error {
	var bareword string
	if err := json.Unmarshal(data, &bareword); err == nil {
		if bareword != string(HookRm) {
			return fmt.Errorf("unknown bareword hook %q", bareword)
		}
		h.Kind = HookRm
		return nil
	}

	var obj map[string]string
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if run, ok := obj["run"]; ok {
		h.Kind = HookRun
		h.Run = run
		return nil
	}
	if dest, ok := obj["mv"]; ok {
		h.Kind = HookMv
		h.Dest = dest
		return nil
	}
	if kind, ok := obj["kind"]; ok {
		h.Kind = HookKind(kind)
		h.Run = obj["run"]
		h.Dest = obj["dest"]
		return nil
	}
	return fmt.Errorf("hook object has no recognized key: %v", obj)
}

// SegmentPolicy is the segmentation cut policy for one recording session
// (§4.7), parsed from the "segment" key. No recorder variant reads it:
// segment cuts are decided by the download adapter or the external
// recorder command, not by MaxDuration or MaxBytes.
type SegmentPolicy struct {
	MaxDuration time.Duration `json:"max_duration,omitempty"`
	MaxBytes    int64         `json:"max_bytes,omitempty"`
}

// DefaultMaxBytes is an 8 GiB size cap. Nothing applies it: a session with
// no SegmentPolicy set has no size cap.
const DefaultMaxBytes int64 = 8 << 30

// Streamer is one operator-configured watched source (§3 "Streamer
// configuration").
type Streamer struct {
	Key                 string   `json:"-"` // map key in Config.Streamers, not serialized per-entry
	URL                 []string `json:"url"`
	DisplayRemark       string   `json:"display_remark"`
	FilenamePrefix      string   `json:"filename_prefix,omitempty"`
	FormatHint          string   `json:"format_hint,omitempty"`
	UploadTemplateRef   string   `json:"upload_template_ref,omitempty"`

	// UploadAdapterName selects the registered upload platform (§4.4); its
	// settings are merged from UploadSettings into the adapter's
	// UploadFactory (§4.4: "constructed from the merged config for the
	// streamer key").
	UploadAdapterName string                 `json:"upload_adapter,omitempty"`
	UploadSettings    map[string]interface{} `json:"upload_settings,omitempty"`
	Preprocessor        []Hook   `json:"preprocessor,omitempty"`
	SegmentProcessor    []Hook   `json:"segment_processor,omitempty"`
	SegmentProcessorPar bool     `json:"segment_processor_parallel,omitempty"`
	DownloadedProcessor []Hook   `json:"downloaded_processor,omitempty"`
	// Postprocessor is nil for "no postprocessor" (delete on upload, §4.8
	// step 5) or a JSON array of Hooks; a bare "rm" element inside the array
	// is accepted by Hook.UnmarshalJSON. A bare string in place of the array
	// is not accepted and fails Load.
	Postprocessor []Hook `json:"postprocessor,omitempty"`

	Segment SegmentPolicy `json:"segment,omitempty"`

	// ForceDownload allows an UPLOAD to proceed concurrently with an active
	// Downloading state instead of deferring (§3 invariant; supplemented
	// from original_source/biliup's per-streamer force_download flag, see
	// SPEC_FULL.md item 1).
	ForceDownload bool `json:"force_download,omitempty"`

	// UploadDelay is the optional delay (§4.8 step 2) before the upload
	// session re-checks the URL state.
	UploadDelay time.Duration `json:"upload_delay,omitempty"`

	// FilteringThreshold drops candidate files at or below this size
	// (§4.8 step 3).
	FilteringThreshold int64 `json:"filtering_threshold,omitempty"`

	// RecorderMode selects which of the three §4.7 step 5 recorder variants
	// drives this streamer's sessions. Empty means RecorderNative (the
	// default: the download adapter's own Record method is the "external
	// library" callback contract).
	RecorderMode   RecorderMode `json:"recorder_mode,omitempty"`
	RecorderCommand string      `json:"recorder_command,omitempty"`
	RecorderExt    string       `json:"recorder_ext,omitempty"`

	// ChatEndpoint is the websocket relay URL chat capture connects to
	// (§4.7 step 4). Empty disables chat capture for this streamer.
	ChatEndpoint string `json:"chat_endpoint,omitempty"`

	// OneShotDownload, when true, ends the session after a single
	// recording instead of looping back to polling on a clean stream end
	// (§4.7 step 7, "one-shot download mode").
	OneShotDownload bool `json:"one_shot_download,omitempty"`
}

// RecorderMode picks one of the three recorder variants in §4.7 step 5.
type RecorderMode string

const (
	RecorderNative            RecorderMode = "native"
	RecorderExternalSingle    RecorderMode = "external_single"
	RecorderExternalSegmented RecorderMode = "external_segmented"
)

// EventLoop tunes the cooperative scheduler (§4.5, §5).
type EventLoop struct {
	PollInterval    time.Duration `json:"poll_interval"`
	BatchInterval   time.Duration `json:"batch_interval"`
	CheckSourceCode time.Duration `json:"check_sourcecode"`
}

func (e *EventLoop) applyDefaults() {
	if e.PollInterval <= 0 {
		e.PollInterval = 10 * time.Second
	}
	if e.BatchInterval <= 0 {
		e.BatchInterval = 30 * time.Second
	}
	if e.CheckSourceCode <= 0 {
		e.CheckSourceCode = 15 * time.Second
	}
}

// WorkerPools sizes the two fixed pools named in §4.3/§5.
type WorkerPools struct {
	Pool1Size int `json:"pool1_size"`
	Pool2Size int `json:"pool2_size"`
}

func (w *WorkerPools) applyDefaults() {
	if w.Pool1Size <= 0 {
		w.Pool1Size = 5
	}
	if w.Pool2Size <= 0 {
		w.Pool2Size = 3
	}
}

// Persistence configures the C11 facade's backing store.
type Persistence struct {
	DSN            string `json:"dsn"`
	MigrationsPath string `json:"migrations_path,omitempty"`
}

// Logging configures the process-wide logger.
type Logging struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// AdminAuth holds the at-rest hashed bearer token for the (out-of-scope)
// HTTP admin boundary; only the hash is this repo's concern (see
// SPEC_FULL.md DOMAIN STACK table).
type AdminAuth struct {
	TokenHash string `json:"token_hash,omitempty"`
}

// Config is the top-level document.
type Config struct {
	Streamers   map[string]*Streamer `json:"streamers"`
	EventLoop   EventLoop            `json:"event_loop"`
	WorkerPools WorkerPools          `json:"worker_pools"`
	Persistence Persistence          `json:"persistence"`
	Logging     Logging              `json:"logging"`
	Admin       AdminAuth            `json:"admin"`
	WorkingDir  string               `json:"working_dir"`
	CoverDir    string               `json:"cover_dir,omitempty"`

	// SearchIndexPath is where the C11 title/streamer search index lives on
	// disk (opened/created via persistence/searchindex.Open).
	SearchIndexPath string `json:"search_index_path,omitempty"`
}

// filenameSafe matches spec.md §4.7's allowed character class.
var filenameSafe = regexp.MustCompile(`[^-\w.%{}\[\]【】「」（）・°\s]`)

// SanitizeFilename strips characters outside the allowed class (P7: a fixed
// point under repeated application).
func SanitizeFilename(name string) string {
	return filenameSafe.ReplaceAllString(name, "")
}

// Load reads and validates a JSON config file, filling in streamer keys and
// defaults. It enforces the §3 invariant that every URL is unique across
// streamer keys.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Msg: fmt.Sprintf("reading %s: %v", path, err)}
	}

	// encoding/json ignores fields with no matching struct tag, so unknown
	// fields never fail the load. A second, strict decode reports the first
	// unknown field as a warning; it does not reject the config.
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, &ConfigError{Msg: fmt.Sprintf("parsing %s: %v", path, err)}
	}
	strict := json.NewDecoder(bytes.NewReader(data))
	strict.DisallowUnknownFields()
	if err := strict.Decode(new(Config)); err != nil {
		logging.Global().Warnf("config %s: ignoring unknown field: %v", path, err)
	}

	for key, s := range cfg.Streamers {
		s.Key = key
	}

	cfg.EventLoop.applyDefaults()
	cfg.WorkerPools.applyDefaults()
	if cfg.CoverDir == "" {
		cfg.CoverDir = "cover"
	}
	if cfg.WorkingDir == "" {
		cfg.WorkingDir = "."
	}
	if cfg.SearchIndexPath == "" {
		cfg.SearchIndexPath = "searchindex.bleve"
	}

	if err := cfg.validateUniqueURLs(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validateUniqueURLs() error {
	seen := make(map[string]string, len(c.Streamers))
	for key, s := range c.Streamers {
		for _, u := range s.URL {
			if owner, ok := seen[u]; ok {
				return &ConfigError{Msg: fmt.Sprintf("url %q is listed under both %q and %q", u, owner, key)}
			}
			seen[u] = key
		}
	}
	return nil
}

// URLIndex rebuilds the URL -> streamer-key mapping referenced throughout §3
// and §4.5. It is recomputed whenever the scheduler observes a config
// change (add/delete).
func (c *Config) URLIndex() map[string]string {
	idx := make(map[string]string)
	for key, s := range c.Streamers {
		for _, u := range s.URL {
			idx[u] = key
		}
	}
	return idx
}

// HashAdminToken bcrypt-hashes a plaintext admin token for storage in the
// config's AdminAuth / the persistence k/v table. The plaintext never
// reaches disk.
func HashAdminToken(plaintext string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing admin token: %w", err)
	}
	return string(h), nil
}

// VerifyAdminToken checks a plaintext token against a stored hash.
func VerifyAdminToken(hash, plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

func init() {
	// Ensure the global logger exists before any package-level var
	// depends on it during early init ordering in other packages.
	_ = logging.Global()
}
