package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, ValidateConfig(cfg))
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"30d", 30 * 24 * time.Hour, false},
		{"12h", 12 * time.Hour, false},
		{"5m", 5 * time.Minute, false},
		{"1y", 365 * 24 * time.Hour, false},
		{"", 0, true},
		{"d", 0, true},
		{"30x", 0, true},
		{"xd", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestValidateConfigRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ConfigParam)
	}{
		{"bad format version", func(c *ConfigParam) { c.FormatVersion = "9.9.9" }},
		{"zero promotion threshold", func(c *ConfigParam) { c.Lifecycle.PromotionThreshold = 0 }},
		{"materialize below promotion", func(c *ConfigParam) { c.Lifecycle.MaterializeThreshold = 1 }},
		{"bad idle window", func(c *ConfigParam) { c.Lifecycle.IdleWindow = "soon" }},
		{"missing grace period", func(c *ConfigParam) { c.Lifecycle.StaleGracePeriod = "" }},
		{"zero max base tables", func(c *ConfigParam) { c.Governance.MaxBaseTables = 0 }},
		{"zero nesting depth", func(c *ConfigParam) { c.Governance.MaxNestingDepth = 0 }},
		{"zero hop radius", func(c *ConfigParam) { c.Planner.HopRadius = 0 }},
		{"unknown store driver", func(c *ConfigParam) { c.Store.Driver = "dynamo" }},
		{"postgres without host", func(c *ConfigParam) { c.Store.Driver = "postgres" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, ValidateConfig(cfg))
		})
	}
}

func TestLoadConfig(t *testing.T) {
	content := `
format_version = "0.1.0"

[lifecycle]
promotion_threshold = 5
materialize_threshold = 25
idle_window = "60d"
stale_grace_period = "7d"
require_compound_approval = true

[governance]
max_base_tables = 8
max_nesting_depth = 3
max_views_per_session = 4
max_total_views = 100

[planner]
hop_radius = 3
stats_cache_size = 256
stats_cache_ttl = "10m"

[store]
driver = "sqlite"
path = ":memory:"
`
	path := filepath.Join(t.TempDir(), "viewplansrv.conf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, int64(5), cfg.Lifecycle.PromotionThreshold)
	assert.Equal(t, 60*24*time.Hour, cfg.Lifecycle.GetIdleWindowOrDefault())
	assert.Equal(t, 3, cfg.Planner.HopRadius)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("")
	assert.Error(t, err)

	_, err = LoadConfig("/nonexistent/viewplansrv.conf")
	assert.Error(t, err)
}
