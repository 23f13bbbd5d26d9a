// Package config handles layered YAML configuration with environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds all panel client configuration.
type Config struct {
	Server  Server    `yaml:"server"`
	Cache   Cache     `yaml:"cache"`
	Tickets Tickets   `yaml:"tickets"`
	Log     LogConfig `yaml:"log"`
	State   State     `yaml:"state"`
}

// Server holds the panel endpoint and credentials.
type Server struct {
	BaseURL       string        `yaml:"base_url"`
	SessionCookie string        `yaml:"session_cookie"` // Cookie name for the access token
	Session       string        `yaml:"session"`        // Access token value
	Timeout       time.Duration `yaml:"timeout"`        // Zero keeps the HTTP client default
}

// Cache holds fragment cache tuning.
type Cache struct {
	DefaultTTL  time.Duration            `yaml:"default_ttl"`
	TTL         map[string]time.Duration `yaml:"ttl"`          // Per-module overrides
	ForceReload []string                 `yaml:"force_reload"` // nil keeps the built-in set
	Background  Background               `yaml:"background"`
}

// Background names the module whose entry is dropped on a timer.
type Background struct {
	Module   string        `yaml:"module"`
	Interval time.Duration `yaml:"interval"` // Zero disables the timer
}

// Tickets holds local ticket storage settings.
type Tickets struct {
	DBPath  string `yaml:"db_path"`
	PerPage int    `yaml:"per_page"`
	User    string `yaml:"user"` // Email used for new tickets and replies
}

// LogConfig holds logger settings. An empty File disables logging.
type LogConfig struct {
	Level       string `yaml:"level"`
	File        string `yaml:"file"`
	Development bool   `yaml:"development"`
}

// State holds the preferences directory.
type State struct {
	Dir string `yaml:"dir"`
}

// PerPageChoices are the accepted ticket page sizes.
var PerPageChoices = []int{25, 50, 100}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Server: Server{
			BaseURL:       "http://localhost:8000",
			SessionCookie: "users_access_token",
		},
		Cache: Cache{
			DefaultTTL: 30 * time.Second,
			Background: Background{
				Module:   "profile",
				Interval: 2 * time.Minute,
			},
		},
		Tickets: Tickets{
			DBPath:  ".panel/tickets.db",
			PerPage: 25,
		},
		Log: LogConfig{
			Level: "info",
			File:  ".panel/logs/panel.log",
		},
		State: State{
			Dir: ".panel/state",
		},
	}
}

// DefaultPaths returns the config layers in increasing priority:
// the user config under home, then the project config.
func DefaultPaths(home string) []string {
	var paths []string
	if home != "" {
		paths = append(paths, filepath.Join(home, ".config", "panel", "config.yaml"))
	}
	return append(paths, ".panel/config.yaml")
}

// Load reads a single YAML config file at path and returns a Config.
// For merging multiple config sources, use LoadLayered instead.
// If the file does not exist, defaults are returned without error.
// If the file contains invalid YAML or unknown fields, an error is returned.
func Load(path string) (*Config, error) {
	return LoadLayered(path)
}

// LoadLayered loads config from multiple paths with increasing priority.
// Later paths override earlier ones. Missing files are skipped.
func LoadLayered(paths ...string) (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range paths {
		layer, err := loadLayer(path)
		if err != nil {
			return nil, err
		}
		if layer == nil {
			continue
		}
		cfg.merge(layer)
	}

	return &cfg, nil
}

// Validate checks that config values are usable.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.BaseURL)
	if c.Server.BaseURL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: server.base_url must be an http(s) URL, got %q", c.Server.BaseURL)
	}
	if c.Server.SessionCookie == "" {
		return errors.New("config: server.session_cookie cannot be empty")
	}
	if c.Server.Timeout < 0 {
		return fmt.Errorf("config: server.timeout must be non-negative, got %v", c.Server.Timeout)
	}
	if c.Cache.DefaultTTL <= 0 {
		return fmt.Errorf("config: cache.default_ttl must be positive, got %v", c.Cache.DefaultTTL)
	}
	ids := make([]string, 0, len(c.Cache.TTL))
	for id := range c.Cache.TTL {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if c.Cache.TTL[id] <= 0 {
			return fmt.Errorf("config: cache.ttl.%s must be positive, got %v", id, c.Cache.TTL[id])
		}
	}
	if c.Cache.Background.Interval < 0 {
		return fmt.Errorf("config: cache.background.interval must be non-negative, got %v", c.Cache.Background.Interval)
	}
	if c.Cache.Background.Interval > 0 && c.Cache.Background.Module == "" {
		return errors.New("config: cache.background.module cannot be empty when interval is set")
	}
	if !validPerPage(c.Tickets.PerPage) {
		return fmt.Errorf("config: tickets.per_page must be one of %v, got %d", PerPageChoices, c.Tickets.PerPage)
	}
	if c.Tickets.DBPath == "" {
		return errors.New("config: tickets.db_path cannot be empty")
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
		// valid
	default:
		return fmt.Errorf("config: log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	if c.State.Dir == "" {
		return errors.New("config: state.dir cannot be empty")
	}
	return nil
}

func validPerPage(n int) bool {
	for _, c := range PerPageChoices {
		if n == c {
			return true
		}
	}
	return false
}

// envOverrides lists the supported environment variables. Unset
// variables leave the zero value, which means "keep the file value".
type envOverrides struct {
	BaseURL    string        `env:"PANEL_BASE_URL"`
	Session    string        `env:"PANEL_SESSION"`
	Timeout    time.Duration `env:"PANEL_TIMEOUT"`
	DefaultTTL time.Duration `env:"PANEL_DEFAULT_TTL"`
	LogLevel   string        `env:"PANEL_LOG_LEVEL"`
	LogFile    string        `env:"PANEL_LOG_FILE"`
}

// ApplyEnv applies environment variable overrides to the config.
// Supported variables: PANEL_BASE_URL, PANEL_SESSION, PANEL_TIMEOUT,
// PANEL_DEFAULT_TTL, PANEL_LOG_LEVEL, PANEL_LOG_FILE.
func (c *Config) ApplyEnv() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("config: parsing environment: %w", err)
	}
	if o.BaseURL != "" {
		c.Server.BaseURL = o.BaseURL
	}
	if o.Session != "" {
		c.Server.Session = o.Session
	}
	if o.Timeout != 0 {
		c.Server.Timeout = o.Timeout
	}
	if o.DefaultTTL != 0 {
		c.Cache.DefaultTTL = o.DefaultTTL
	}
	if o.LogLevel != "" {
		c.Log.Level = o.LogLevel
	}
	if o.LogFile != "" {
		c.Log.File = o.LogFile
	}
	return nil
}

// rawConfig mirrors Config but uses pointers to distinguish set vs unset fields.
type rawConfig struct {
	Server  *rawServer  `yaml:"server"`
	Cache   *rawCache   `yaml:"cache"`
	Tickets *rawTickets `yaml:"tickets"`
	Log     *rawLog     `yaml:"log"`
	State   *rawState   `yaml:"state"`
}

type rawServer struct {
	BaseURL       *string        `yaml:"base_url"`
	SessionCookie *string        `yaml:"session_cookie"`
	Session       *string        `yaml:"session"`
	Timeout       *time.Duration `yaml:"timeout"`
}

type rawCache struct {
	DefaultTTL  *time.Duration           `yaml:"default_ttl"`
	TTL         map[string]time.Duration `yaml:"ttl"`
	ForceReload *[]string                `yaml:"force_reload"`
	Background  *rawBackground           `yaml:"background"`
}

type rawBackground struct {
	Module   *string        `yaml:"module"`
	Interval *time.Duration `yaml:"interval"`
}

type rawTickets struct {
	DBPath  *string `yaml:"db_path"`
	PerPage *int    `yaml:"per_page"`
	User    *string `yaml:"user"`
}

type rawLog struct {
	Level       *string `yaml:"level"`
	File        *string `yaml:"file"`
	Development *bool   `yaml:"development"`
}

type rawState struct {
	Dir *string `yaml:"dir"`
}

// loadLayer reads a single config file into a rawConfig for selective merging.
// Returns nil if the file does not exist. Rejects unknown fields.
func loadLayer(path string) (*rawConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if len(data) == 0 {
		return nil, nil
	}

	var raw rawConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		// Comment-only YAML files produce EOF with no decoded content.
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return &raw, nil
}

// merge applies non-nil fields from a rawConfig layer onto this Config.
// TTL maps merge per module; a force_reload list replaces the previous one.
func (c *Config) merge(layer *rawConfig) {
	if s := layer.Server; s != nil {
		setString(&c.Server.BaseURL, s.BaseURL)
		setString(&c.Server.SessionCookie, s.SessionCookie)
		setString(&c.Server.Session, s.Session)
		if s.Timeout != nil {
			c.Server.Timeout = *s.Timeout
		}
	}
	if cc := layer.Cache; cc != nil {
		if cc.DefaultTTL != nil {
			c.Cache.DefaultTTL = *cc.DefaultTTL
		}
		if len(cc.TTL) > 0 {
			if c.Cache.TTL == nil {
				c.Cache.TTL = make(map[string]time.Duration, len(cc.TTL))
			}
			for id, d := range cc.TTL {
				c.Cache.TTL[id] = d
			}
		}
		if cc.ForceReload != nil {
			c.Cache.ForceReload = append([]string{}, (*cc.ForceReload)...)
		}
		if b := cc.Background; b != nil {
			setString(&c.Cache.Background.Module, b.Module)
			if b.Interval != nil {
				c.Cache.Background.Interval = *b.Interval
			}
		}
	}
	if t := layer.Tickets; t != nil {
		setString(&c.Tickets.DBPath, t.DBPath)
		setString(&c.Tickets.User, t.User)
		if t.PerPage != nil {
			c.Tickets.PerPage = *t.PerPage
		}
	}
	if l := layer.Log; l != nil {
		setString(&c.Log.Level, l.Level)
		setString(&c.Log.File, l.File)
		if l.Development != nil {
			c.Log.Development = *l.Development
		}
	}
	if st := layer.State; st != nil {
		setString(&c.State.Dir, st.Dir)
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
