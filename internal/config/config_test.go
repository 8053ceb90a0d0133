package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://www.104.com.tw/jobs/search/api/jobs", cfg.Source.SearchURL)
	assert.Equal(t, 30, cfg.Source.PageSize)
	assert.Equal(t, 100, cfg.Pipeline.BatchSize)
	assert.Equal(t, 8080, cfg.Dashboard.Port)
	assert.Equal(t, "@every 6h", cfg.Schedule.Spec)
	assert.False(t, cfg.Dedup.Enabled)
	assert.Equal(t, 15*time.Second, cfg.SourceTimeout())
	assert.Equal(t, 10*time.Second, cfg.BronzeQueryTimeout())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
source:
  pagesize: 20
bronze:
  uri: mongodb://localhost:27017
silver:
  dsn: postgres://localhost:5432/jobs
schedule:
  keywords:
    - golang
    - python
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Source.PageSize)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Bronze.URI)
	assert.Equal(t, []string{"golang", "python"}, cfg.Schedule.Keywords)
	// Unset keys keep their defaults.
	assert.Equal(t, 30, cfg.Source.MaxPages)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("JOBPIPE_PIPELINE_BATCH_SIZE", "50")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Pipeline.BatchSize)
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "pagesize over upstream cap",
			mutate: func(c *Config) { c.Source.PageSize = 31 },
			want:   "source.pagesize",
		},
		{
			name:   "zero max pages",
			mutate: func(c *Config) { c.Source.MaxPages = 0 },
			want:   "source.max_pages",
		},
		{
			name:   "zero batch size",
			mutate: func(c *Config) { c.Pipeline.BatchSize = 0 },
			want:   "pipeline.batch_size",
		},
		{
			name:   "dedup enabled without redis url",
			mutate: func(c *Config) { c.Dedup.Enabled = true },
			want:   "dedup.redis_url",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
