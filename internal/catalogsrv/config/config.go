// Package config holds configuration for the planner service. Values are
// loaded from a TOML file and validated before use; tests use DefaultConfig.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Version is the supported configuration file format version.
const Version = "0.1.0"

// LifecycleConfig holds thresholds and windows for view lifecycle
// transitions. The defaults come from the proof of concept and are expected
// to be tuned in production.
type LifecycleConfig struct {
	PromotionThreshold      int64  `toml:"promotion_threshold"`       // usage count for DRAFT -> PROMOTED
	MaterializeThreshold    int64  `toml:"materialize_threshold"`     // usage count for PROMOTED -> MATERIALIZED
	IdleWindow              string `toml:"idle_window"`               // unused views older than this are archived
	StaleGracePeriod        string `toml:"stale_grace_period"`        // STALE views unvalidated this long are archived
	RequireCompoundApproval bool   `toml:"require_compound_approval"` // layer-3 views need approval before promotion
}

// GetIdleWindow returns the idle window as time.Duration.
func (l *LifecycleConfig) GetIdleWindow() (time.Duration, error) {
	return ParseDuration(l.IdleWindow)
}

// GetIdleWindowOrDefault returns the idle window or panics on a bad value.
func (l *LifecycleConfig) GetIdleWindowOrDefault() time.Duration {
	d, err := l.GetIdleWindow()
	if err != nil {
		panic(fmt.Sprintf("invalid idle window: %v", err))
	}
	return d
}

// GetStaleGracePeriod returns the stale grace period as time.Duration.
func (l *LifecycleConfig) GetStaleGracePeriod() (time.Duration, error) {
	return ParseDuration(l.StaleGracePeriod)
}

// GetStaleGracePeriodOrDefault returns the stale grace period or panics on a
// bad value.
func (l *LifecycleConfig) GetStaleGracePeriodOrDefault() time.Duration {
	d, err := l.GetStaleGracePeriod()
	if err != nil {
		panic(fmt.Sprintf("invalid stale grace period: %v", err))
	}
	return d
}

// GovernanceConfig holds creation-time limits enforced by the lifecycle
// engine and re-checked by the store.
type GovernanceConfig struct {
	MaxBaseTables      int `toml:"max_base_tables"`       // base tables a single view may join
	MaxNestingDepth    int `toml:"max_nesting_depth"`     // longest path from a base table through views
	MaxViewsPerSession int `toml:"max_views_per_session"` // views one session may create
	MaxTotalViews      int `toml:"max_total_views"`       // non-archived views in the whole catalog
}

// PlannerConfig holds tuning parameters for Steiner planning and graph
// construction.
type PlannerConfig struct {
	HopRadius      int    `toml:"hop_radius"`       // graph restricted to this many hops around terminals
	StatsCacheSize int    `toml:"stats_cache_size"` // entries in the table statistics cache
	StatsCacheTTL  string `toml:"stats_cache_ttl"`  // how long cached table statistics stay fresh
}

// GetStatsCacheTTL returns the stats cache TTL as time.Duration.
func (p *PlannerConfig) GetStatsCacheTTL() (time.Duration, error) {
	return ParseDuration(p.StatsCacheTTL)
}

// GetStatsCacheTTLOrDefault returns the stats cache TTL or panics on a bad
// value.
func (p *PlannerConfig) GetStatsCacheTTLOrDefault() time.Duration {
	d, err := p.GetStatsCacheTTL()
	if err != nil {
		panic(fmt.Sprintf("invalid stats cache ttl: %v", err))
	}
	return d
}

// StoreConfig selects and configures the catalog store backend.
type StoreConfig struct {
	Driver string `toml:"driver"` // "sqlite" or "postgres"
	Path   string `toml:"path"`   // sqlite database path (":memory:" for tests)

	// Postgres connection parameters, used when driver is "postgres".
	DB struct {
		Host     string `toml:"host"`
		Port     int    `toml:"port"`
		DBName   string `toml:"dbname"`
		User     string `toml:"user"`
		Password string `toml:"password"`
		SSLMode  string `toml:"sslmode"`
	} `toml:"db"`
}

// DSN returns the postgres connection string.
func (s *StoreConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		s.DB.Host, s.DB.Port, s.DB.User, s.DB.Password, s.DB.DBName, s.DB.SSLMode)
}

// ConfigParam holds all configuration parameters for the planner service.
type ConfigParam struct {
	FormatVersion string `toml:"format_version"`

	Lifecycle  LifecycleConfig  `toml:"lifecycle"`
	Governance GovernanceConfig `toml:"governance"`
	Planner    PlannerConfig    `toml:"planner"`
	Store      StoreConfig      `toml:"store"`
}

// DefaultConfig returns a configuration populated with the POC defaults.
// Tests and embedded callers start from this and override as needed.
func DefaultConfig() *ConfigParam {
	return &ConfigParam{
		FormatVersion: Version,
		Lifecycle: LifecycleConfig{
			PromotionThreshold:      3,
			MaterializeThreshold:    20,
			IdleWindow:              "30d",
			StaleGracePeriod:        "14d",
			RequireCompoundApproval: true,
		},
		Governance: GovernanceConfig{
			MaxBaseTables:      10,
			MaxNestingDepth:    4,
			MaxViewsPerSession: 5,
			MaxTotalViews:      500,
		},
		Planner: PlannerConfig{
			HopRadius:      4,
			StatsCacheSize: 1024,
			StatsCacheTTL:  "5m",
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   ":memory:",
		},
	}
}

// ParseDuration parses a duration string in the format "<number><unit>"
// where unit is one of:
//   - y: years
//   - d: days
//   - h: hours
//   - m: minutes
func ParseDuration(input string) (time.Duration, error) {
	if len(input) < 2 {
		return 0, fmt.Errorf("invalid input format")
	}

	unit := input[len(input)-1:]
	valueStr := input[:len(input)-1]
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid number: %s", err)
	}

	var duration time.Duration
	switch unit {
	case "d":
		duration = time.Duration(value) * 24 * time.Hour
	case "h":
		duration = time.Duration(value) * time.Hour
	case "m":
		duration = time.Duration(value) * time.Minute
	case "y":
		// 1 year = 365 days for windowing purposes
		duration = time.Duration(value) * 365 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("unknown time unit: %s", unit)
	}

	return duration, nil
}

// ValidateConfig checks that all required configuration values are present
// and consistent.
func ValidateConfig(cfg *ConfigParam) error {
	if err := validateFormatVersion(cfg); err != nil {
		return err
	}
	if err := validateLifecycleConfig(cfg); err != nil {
		return err
	}
	if err := validateGovernanceConfig(cfg); err != nil {
		return err
	}
	if err := validatePlannerConfig(cfg); err != nil {
		return err
	}
	if err := validateStoreConfig(cfg); err != nil {
		return err
	}
	return nil
}

func validateFormatVersion(cfg *ConfigParam) error {
	if cfg.FormatVersion != Version {
		return fmt.Errorf("unsupported config file format version: %s", cfg.FormatVersion)
	}
	return nil
}

func validateLifecycleConfig(cfg *ConfigParam) error {
	if cfg.Lifecycle.PromotionThreshold <= 0 {
		return fmt.Errorf("lifecycle.promotion_threshold must be positive")
	}
	if cfg.Lifecycle.MaterializeThreshold < cfg.Lifecycle.PromotionThreshold {
		return fmt.Errorf("lifecycle.materialize_threshold must be >= promotion_threshold")
	}
	if cfg.Lifecycle.IdleWindow == "" {
		return fmt.Errorf("lifecycle.idle_window is required")
	}
	if _, err := ParseDuration(cfg.Lifecycle.IdleWindow); err != nil {
		return fmt.Errorf("invalid lifecycle.idle_window: %v", err)
	}
	if cfg.Lifecycle.StaleGracePeriod == "" {
		return fmt.Errorf("lifecycle.stale_grace_period is required")
	}
	if _, err := ParseDuration(cfg.Lifecycle.StaleGracePeriod); err != nil {
		return fmt.Errorf("invalid lifecycle.stale_grace_period: %v", err)
	}
	return nil
}

func validateGovernanceConfig(cfg *ConfigParam) error {
	if cfg.Governance.MaxBaseTables <= 0 {
		return fmt.Errorf("governance.max_base_tables must be positive")
	}
	if cfg.Governance.MaxNestingDepth <= 0 {
		return fmt.Errorf("governance.max_nesting_depth must be positive")
	}
	if cfg.Governance.MaxViewsPerSession <= 0 {
		return fmt.Errorf("governance.max_views_per_session must be positive")
	}
	if cfg.Governance.MaxTotalViews <= 0 {
		return fmt.Errorf("governance.max_total_views must be positive")
	}
	return nil
}

func validatePlannerConfig(cfg *ConfigParam) error {
	if cfg.Planner.HopRadius <= 0 {
		return fmt.Errorf("planner.hop_radius must be positive")
	}
	if cfg.Planner.StatsCacheSize <= 0 {
		return fmt.Errorf("planner.stats_cache_size must be positive")
	}
	if cfg.Planner.StatsCacheTTL == "" {
		return fmt.Errorf("planner.stats_cache_ttl is required")
	}
	if _, err := ParseDuration(cfg.Planner.StatsCacheTTL); err != nil {
		return fmt.Errorf("invalid planner.stats_cache_ttl: %v", err)
	}
	return nil
}

func validateStoreConfig(cfg *ConfigParam) error {
	switch cfg.Store.Driver {
	case "sqlite":
		if cfg.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite driver")
		}
	case "postgres":
		if cfg.Store.DB.Host == "" {
			return fmt.Errorf("store.db.host is required for the postgres driver")
		}
		if cfg.Store.DB.Port <= 0 {
			return fmt.Errorf("store.db.port must be positive")
		}
		if cfg.Store.DB.DBName == "" {
			return fmt.Errorf("store.db.dbname is required")
		}
		if cfg.Store.DB.User == "" {
			return fmt.Errorf("store.db.user is required")
		}
		if cfg.Store.DB.SSLMode == "" {
			return fmt.Errorf("store.db.sslmode is required")
		}
	default:
		return fmt.Errorf("unknown store driver: %s", cfg.Store.Driver)
	}
	return nil
}

// LoadConfig loads and validates configuration from a TOML file.
func LoadConfig(filename string) (*ConfigParam, error) {
	if filename == "" {
		return nil, fmt.Errorf("config filename is required")
	}

	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	cfg := &ConfigParam{}
	if _, err := toml.Decode(string(content), cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}

	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %v", err)
	}

	return cfg, nil
}
