package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefault_HasSaneValues(t *testing.T) {
	cfg := Default()
	require.Equal(t, "select_filter", cfg.Eviction)
	require.True(t, cfg.Swizzling)
	require.Greater(t, cfg.WarmupMinFixes, 0)
}

func TestLoad_OverridesDefaultsFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bufpool.yaml")
	yaml := `
buffer_pool_size_mib: 2048
eviction_policy: car
swizzling: false
select_filter:
  selector: random
  filter: gclock
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2048, cfg.BufferPoolSizeMiB)
	require.Equal(t, "car", cfg.Eviction)
	require.False(t, cfg.Swizzling)
	require.Equal(t, "random", cfg.SelectFilter.Selector)
	require.Equal(t, "gclock", cfg.SelectFilter.Filter)

	// Fields untouched by the file keep their defaults.
	require.Equal(t, 16, cfg.BatchSegmentSize)
}

func TestLoad_MissingFileErrors(t *testing.T) {
	_, err := Load("/nonexistent/path/bufpool.yaml")
	require.Error(t, err)
}
