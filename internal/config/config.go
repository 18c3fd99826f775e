package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"gridwatch/internal/logger"
	"gridwatch/internal/upstream"
)

// EnvConfigPath names the environment variable holding the config file path.
const EnvConfigPath = "GRIDWATCH_CONFIG"

// Config is the on-disk configuration shape (YAML).
type Config struct {
	Env      string         `yaml:"env"`
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Relay    RelayConfig    `yaml:"relay"`
	Poll     PollConfig     `yaml:"poll"`
	Venues   []VenueConfig  `yaml:"venues"`
	Spreads  []SpreadConfig `yaml:"spreads"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type UpstreamConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type RelayConfig struct {
	Endpoints        []string      `yaml:"endpoints"`
	InitialDelay     time.Duration `yaml:"initial_delay"`
	MaxDelay         time.Duration `yaml:"max_delay"`
	AttemptsPerRelay int           `yaml:"attempts_per_relay"`
}

type PollConfig struct {
	Interval     time.Duration `yaml:"interval"`
	DefaultVenue string        `yaml:"default_venue"`
}

type VenueConfig struct {
	Name   string `yaml:"name"`
	RTPath string `yaml:"rt_path"`
	DAHub  string `yaml:"da_hub"`
}

type SpreadConfig struct {
	Name string `yaml:"name"`
	A    string `yaml:"a"`
	B    string `yaml:"b"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Default is a complete configuration matching the production dashboard.
func Default() *Config {
	return &Config{
		Env: "development",
		Server: ServerConfig{
			Port:           "8080",
			AllowedOrigins: []string{"*"},
		},
		Upstream: UpstreamConfig{
			BaseURL: upstream.DefaultBaseURL,
			Timeout: 30 * time.Second,
		},
		Relay: RelayConfig{
			Endpoints: []string{
				"https://api.allorigins.win/raw?url=",
				"https://corsproxy.io/?",
				"https://cors-anywhere.herokuapp.com/",
			},
			InitialDelay:     1 * time.Second,
			MaxDelay:         10 * time.Second,
			AttemptsPerRelay: 3,
		},
		Poll: PollConfig{
			Interval:     15 * time.Second,
			DefaultVenue: "Western Hub",
		},
		Venues: []VenueConfig{
			{Name: "Western Hub", RTPath: "wh", DAHub: "WESTERN HUB"},
			{Name: "AD Hub", RTPath: "ad", DAHub: "AEP-DAYTON HUB"},
		},
		Spreads: []SpreadConfig{
			{Name: "WH - AD Spread", A: "Western Hub", B: "AD Hub"},
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		fileCfg, err := LoadUnchecked(path)
		if err != nil {
			return nil, err
		}
		c = Merge(c, fileCfg)
	}
	if err := c.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadUnchecked parses path without defaults or validation.
// Useful for debugging/printing partial configs.
func LoadUnchecked(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &c, nil
}

// ApplyEnv overlays the supported environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("API_PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("API_ENV"); v != "" {
		c.Env = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		c.Log.File = v
	}
	if v := os.Getenv("UPSTREAM_BASE_URL"); v != "" {
		c.Upstream.BaseURL = v
	}
	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid POLL_INTERVAL %q: %w", v, err)
		}
		c.Poll.Interval = d
	}
	return nil
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if !strings.HasPrefix(c.Upstream.BaseURL, "http://") && !strings.HasPrefix(c.Upstream.BaseURL, "https://") {
		return fmt.Errorf("upstream.base_url must be an absolute http(s) URL, got %q", c.Upstream.BaseURL)
	}
	if len(c.Relay.Endpoints) == 0 {
		return errors.New("relay.endpoints must list at least one relay")
	}
	if c.Relay.AttemptsPerRelay < 1 {
		return errors.New("relay.attempts_per_relay must be at least 1")
	}
	if c.Relay.InitialDelay <= 0 || c.Relay.MaxDelay < c.Relay.InitialDelay {
		return errors.New("relay delays must satisfy 0 < initial_delay <= max_delay")
	}
	if c.Poll.Interval <= 0 {
		return errors.New("poll.interval must be positive")
	}
	if len(c.Venues) == 0 {
		return errors.New("at least one venue is required")
	}

	names := map[string]bool{}
	for i, v := range c.Venues {
		if v.Name == "" || v.RTPath == "" || v.DAHub == "" {
			return fmt.Errorf("venues[%d]: name, rt_path and da_hub are required", i)
		}
		if names[v.Name] {
			return fmt.Errorf("duplicate venue %q", v.Name)
		}
		names[v.Name] = true
	}
	venues := make(map[string]bool, len(names))
	for n := range names {
		venues[n] = true
	}
	for i, s := range c.Spreads {
		if s.Name == "" {
			return fmt.Errorf("spreads[%d]: name is required", i)
		}
		if names[s.Name] {
			return fmt.Errorf("duplicate venue %q", s.Name)
		}
		if !venues[s.A] || !venues[s.B] {
			return fmt.Errorf("spread %q must reference two configured venues", s.Name)
		}
		names[s.Name] = true
	}
	if c.Poll.DefaultVenue != "" && !names[c.Poll.DefaultVenue] {
		return fmt.Errorf("poll.default_venue %q is not a configured venue", c.Poll.DefaultVenue)
	}
	return nil
}

// Merge overlays non-zero fields from override onto base.
// Venue, spread, relay and origin lists replace the base list when non-empty.
func Merge(base, override *Config) *Config {
	out := *base
	if override == nil {
		return &out
	}
	if override.Env != "" {
		out.Env = override.Env
	}
	if override.Server.Port != "" {
		out.Server.Port = override.Server.Port
	}
	if len(override.Server.AllowedOrigins) > 0 {
		out.Server.AllowedOrigins = override.Server.AllowedOrigins
	}
	if override.Upstream.BaseURL != "" {
		out.Upstream.BaseURL = override.Upstream.BaseURL
	}
	if override.Upstream.Timeout != 0 {
		out.Upstream.Timeout = override.Upstream.Timeout
	}
	if len(override.Relay.Endpoints) > 0 {
		out.Relay.Endpoints = override.Relay.Endpoints
	}
	if override.Relay.InitialDelay != 0 {
		out.Relay.InitialDelay = override.Relay.InitialDelay
	}
	if override.Relay.MaxDelay != 0 {
		out.Relay.MaxDelay = override.Relay.MaxDelay
	}
	if override.Relay.AttemptsPerRelay != 0 {
		out.Relay.AttemptsPerRelay = override.Relay.AttemptsPerRelay
	}
	if override.Poll.Interval != 0 {
		out.Poll.Interval = override.Poll.Interval
	}
	if override.Poll.DefaultVenue != "" {
		out.Poll.DefaultVenue = override.Poll.DefaultVenue
	}
	if len(override.Venues) > 0 {
		out.Venues = override.Venues
	}
	if len(override.Spreads) > 0 {
		out.Spreads = override.Spreads
	}
	if override.Log.Level != "" {
		out.Log.Level = override.Log.Level
	}
	if override.Log.Format != "" {
		out.Log.Format = override.Log.Format
	}
	if override.Log.File != "" {
		out.Log.File = override.Log.File
	}
	return &out
}

// UpstreamVenues converts venue configuration for the upstream client.
func (c *Config) UpstreamVenues() ([]upstream.Venue, []upstream.Spread) {
	venues := make([]upstream.Venue, 0, len(c.Venues))
	for _, v := range c.Venues {
		venues = append(venues, upstream.Venue{Name: v.Name, RTPath: v.RTPath, DAHub: v.DAHub})
	}
	spreads := make([]upstream.Spread, 0, len(c.Spreads))
	for _, s := range c.Spreads {
		spreads = append(spreads, upstream.Spread{Name: s.Name, A: s.A, B: s.B})
	}
	return venues, spreads
}

// LoggerConfig converts log configuration for logger.New.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{Level: c.Log.Level, Format: c.Log.Format, File: c.Log.File}
}

// IsProduction reports whether Env is "production".
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
