package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesOverFileDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "citadel.yaml")
	content := []byte(`
allocator:
  roles:
    - role: ads
      weight: 2.5
  refuse_seconds: 10
master:
  slave_liveness_timeout: 30s
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2.5, cfg.Allocator.WeightFor("ads"))
	assert.Equal(t, 1.0, cfg.Allocator.WeightFor("other"))
	assert.Equal(t, 10.0, cfg.Allocator.RefuseSeconds)
}

func TestWhitelistAllowsEverythingWhenEmpty(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.Allocator.WhitelistAllows("any-host"))
}

func TestWhitelistRestrictsToListedHosts(t *testing.T) {
	cfg := Default()
	cfg.Allocator.Whitelist = []string{"host-a"}
	assert.True(t, cfg.Allocator.WhitelistAllows("host-a"))
	assert.False(t, cfg.Allocator.WhitelistAllows("host-b"))
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load("/nonexistent/path/citadel.yaml")
	assert.Error(t, err)
}
