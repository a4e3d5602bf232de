package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, `{
		"streamers": {
			"alice": {"url": ["https://example/ch/1"], "display_remark": "Alice"}
		}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "alice", cfg.Streamers["alice"].Key)
	assert.Equal(t, 5, cfg.WorkerPools.Pool1Size)
	assert.Equal(t, 3, cfg.WorkerPools.Pool2Size)
	assert.NotZero(t, cfg.EventLoop.PollInterval)
}

func TestLoadRejectsDuplicateURL(t *testing.T) {
	path := writeTempConfig(t, `{
		"streamers": {
			"alice": {"url": ["https://example/ch/1"]},
			"bob":   {"url": ["https://example/ch/1"]}
		}
	}`)

	_, err := Load(path)
	require.Error(t, err)
	var cerr *ConfigError
	assert.ErrorAs(t, err, &cerr)
}

func TestSanitizeFilenameIsFixedPoint(t *testing.T) {
	name := `alice<>:"/\|?*title{streamer}.flv`
	once := SanitizeFilename(name)
	twice := SanitizeFilename(once)
	assert.Equal(t, once, twice)
}

func TestHookUnmarshalForms(t *testing.T) {
	var chain []Hook
	require.NoError(t, json.Unmarshal([]byte(`["rm", {"run": "echo hi"}, {"mv": "./archive"}]`), &chain))
	require.Len(t, chain, 3)
	assert.Equal(t, HookRm, chain[0].Kind)
	assert.Equal(t, HookRun, chain[1].Kind)
	assert.Equal(t, "echo hi", chain[1].Run)
	assert.Equal(t, HookMv, chain[2].Kind)
	assert.Equal(t, "./archive", chain[2].Dest)
}

func TestAdminTokenRoundTrip(t *testing.T) {
	hash, err := HashAdminToken("s3cr3t")
	require.NoError(t, err)
	assert.True(t, VerifyAdminToken(hash, "s3cr3t"))
	assert.False(t, VerifyAdminToken(hash, "wrong"))
}
