// Package config loads serpdiff settings from defaults, an optional YAML
// file, SERPDIFF_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/FranksOps/serpdiff/internal/fingerprint"
	"github.com/FranksOps/serpdiff/internal/serp"
	"github.com/FranksOps/serpdiff/pkg/proxy"
	"github.com/FranksOps/serpdiff/pkg/ratelimit"
	"github.com/FranksOps/serpdiff/pkg/useragent"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SERPDIFF_STORAGE_DSN.
const EnvPrefix = "SERPDIFF"

// Backends lists the accepted storage.backend values.
var Backends = []string{"json", "csv", "sqlite", "postgres"}

type Config struct {
	Provider ProviderConfig `mapstructure:"provider"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Collect  CollectConfig  `mapstructure:"collect"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
}

// ProviderConfig selects the search engine and how much of it to read.
type ProviderConfig struct {
	Engine          string          `mapstructure:"engine"`
	BaseURL         string          `mapstructure:"base_url"`
	ResultsPerQuery int             `mapstructure:"results_per_query"`
	MaxPages        int             `mapstructure:"max_pages"`
	PageOffsetStep  int             `mapstructure:"page_offset_step"`
	PreFetchDelay   ratelimit.Range `mapstructure:"pre_fetch_delay"`
	InterPageDelay  ratelimit.Range `mapstructure:"inter_page_delay"`
	RespectRobots   bool            `mapstructure:"respect_robots"`
}

// FetchConfig tunes the HTTP stack.
type FetchConfig struct {
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRedirects      int           `mapstructure:"max_redirects"`
	Fingerprint       string        `mapstructure:"fingerprint"`
	UserAgents        []string      `mapstructure:"user_agents"`
	UARotation        string        `mapstructure:"ua_rotation"`
	Proxies           []string      `mapstructure:"proxies"`
	ProxyFile         string        `mapstructure:"proxy_file"`
	Proxy             proxy.Config  `mapstructure:"proxy"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Jitter            float64       `mapstructure:"jitter"`
	CookieJar         bool          `mapstructure:"cookie_jar"`
}

type CollectConfig struct {
	Concurrency int  `mapstructure:"concurrency"`
	Resume      bool `mapstructure:"resume"`
}

// StorageConfig names where collected rankings go. DSN is a file path for
// json and csv, an SQLite DSN, or a Postgres connection string.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	DSN     string `mapstructure:"dsn"`
}

// MetricsConfig enables the Prometheus endpoint when Port is non-zero.
type MetricsConfig struct {
	Port int `mapstructure:"port"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// SetDefaults registers every key with its default so environment
// overrides are visible to Unmarshal.
func SetDefaults(v *viper.Viper) {
	ddg := serp.DuckDuckGo()

	v.SetDefault("provider.engine", ddg.Name)
	v.SetDefault("provider.base_url", "")
	v.SetDefault("provider.results_per_query", 10)
	v.SetDefault("provider.max_pages", 2)
	v.SetDefault("provider.page_offset_step", 0)
	v.SetDefault("provider.pre_fetch_delay.min", 10*time.Second)
	v.SetDefault("provider.pre_fetch_delay.max", 100*time.Second)
	v.SetDefault("provider.inter_page_delay.min", 5*time.Second)
	v.SetDefault("provider.inter_page_delay.max", 15*time.Second)
	v.SetDefault("provider.respect_robots", false)

	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.max_redirects", 5)
	v.SetDefault("fetch.fingerprint", string(fingerprint.ProfileChrome))
	v.SetDefault("fetch.user_agents", []string{})
	v.SetDefault("fetch.ua_rotation", string(useragent.RotateSequential))
	v.SetDefault("fetch.proxies", []string{})
	v.SetDefault("fetch.proxy_file", "")
	v.SetDefault("fetch.proxy.max_failures", 3)
	v.SetDefault("fetch.proxy.cooldown", 5*time.Minute)
	v.SetDefault("fetch.requests_per_second", 0.0)
	v.SetDefault("fetch.jitter", 0.0)
	v.SetDefault("fetch.cookie_jar", true)

	v.SetDefault("collect.concurrency", 1)
	v.SetDefault("collect.resume", false)

	v.SetDefault("storage.backend", "json")
	v.SetDefault("storage.dsn", "result.json")

	v.SetDefault("metrics.port", 0)

	v.SetDefault("log.level", "info")
}

// Load builds the configuration from v. If path is non-empty the YAML file
// at path is read first; a missing explicit file is an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, err := serp.LookupEngine(c.Provider.Engine); err != nil {
		return err
	}
	if c.Provider.ResultsPerQuery <= 0 {
		return fmt.Errorf("provider.results_per_query %d: %w", c.Provider.ResultsPerQuery, ErrInvalidLimit)
	}
	if c.Provider.MaxPages <= 0 {
		return fmt.Errorf("provider.max_pages %d: %w", c.Provider.MaxPages, ErrInvalidLimit)
	}
	if c.Provider.PageOffsetStep < 0 {
		return fmt.Errorf("provider.page_offset_step %d: %w", c.Provider.PageOffsetStep, ErrInvalidLimit)
	}
	if err := validRange("provider.pre_fetch_delay", c.Provider.PreFetchDelay); err != nil {
		return err
	}
	if err := validRange("provider.inter_page_delay", c.Provider.InterPageDelay); err != nil {
		return err
	}

	if _, err := fingerprint.ParseProfile(c.Fetch.Fingerprint); err != nil {
		return err
	}
	if _, err := useragent.ParseRotation(c.Fetch.UARotation); err != nil {
		return err
	}

	if c.Collect.Concurrency <= 0 {
		return fmt.Errorf("collect.concurrency %d: %w", c.Collect.Concurrency, ErrInvalidLimit)
	}

	if !isBackend(c.Storage.Backend) {
		return fmt.Errorf("%q (want one of %s): %w", c.Storage.Backend, strings.Join(Backends, ", "), ErrUnknownBackend)
	}
	if c.Storage.DSN == "" {
		return errors.New("storage.dsn is empty")
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

func validRange(key string, r ratelimit.Range) error {
	if r.Min < 0 || r.Max < 0 || r.Min > r.Max {
		return fmt.Errorf("%s %s..%s: %w", key, r.Min, r.Max, ErrInvalidDelay)
	}
	return nil
}

func isBackend(name string) bool {
	for _, b := range Backends {
		if b == name {
			return true
		}
	}
	return false
}

// SlogLevel parses the configured level (debug, info, warn, error).
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("%q: %w", l.Level, ErrInvalidLogLevel)
	}
	return level, nil
}

// ResolveEngine returns the provider preset with BaseURL and PageOffsetStep
// overrides applied.
func (p ProviderConfig) ResolveEngine() (serp.Engine, error) {
	e, err := serp.LookupEngine(p.Engine)
	if err != nil {
		return serp.Engine{}, err
	}
	if p.BaseURL != "" {
		e.BaseURL = p.BaseURL
	}
	if p.PageOffsetStep > 0 {
		e.PageOffsetStep = p.PageOffsetStep
	}
	return e, nil
}

// CollectorConfig converts the provider settings for serp.NewCollector.
// Robots is left for the caller to wire.
func (p ProviderConfig) CollectorConfig() (serp.CollectorConfig, error) {
	e, err := p.ResolveEngine()
	if err != nil {
		return serp.CollectorConfig{}, err
	}
	return serp.CollectorConfig{
		Engine:          e,
		ResultsPerQuery: p.ResultsPerQuery,
		MaxPages:        p.MaxPages,
		PreFetchDelay:   p.PreFetchDelay,
		InterPageDelay:  p.InterPageDelay,
	}, nil
}
