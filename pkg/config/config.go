package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-viewrender/pkg/host"
	"github.com/goliatone/go-viewrender/pkg/render"
	"github.com/goliatone/go-viewrender/pkg/render/template"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "VIEWRENDER_"

const (
	defaultLogLevel  = "info"
	defaultExtension = render.DefaultExtension
)

// Config holds the host settings and adapter settings for a renderer.
type Config struct {
	CacheRoot   string                      `yaml:"cache_root"`
	Debug       bool                        `yaml:"debug"`
	LogLevel    string                      `yaml:"log_level"`
	Extension   string                      `yaml:"extension"`
	ViewPaths   map[string]string           `yaml:"view_paths"`
	Loader      template.LoaderOptions      `yaml:"loader"`
	Environment template.EnvironmentOptions `yaml:"environment"`
}

// overlay lists the settings that environment variables may override.
type overlay struct {
	CacheRoot  string            `env:"CACHE_ROOT"`
	Debug      bool              `env:"DEBUG"`
	LogLevel   string            `env:"LOG_LEVEL"`
	Extension  string            `env:"EXTENSION"`
	ViewPaths  map[string]string `env:"VIEW_PATHS" envSeparator:"," envKeyValSeparator:":"`
	Autoescape string            `env:"AUTOESCAPE"`
	AutoReload *bool             `env:"AUTO_RELOAD"`
}

// Load reads path (optional), applies environment overrides, fills defaults
// and validates the result. Relative directories in the file are resolved
// against the file's directory.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.resolve(filepath.Dir(path))
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}
	return cfg, nil
}

func (c *Config) resolve(base string) {
	abs, err := filepath.Abs(base)
	if err == nil {
		base = abs
	}
	join := func(dir string) string {
		if dir == "" || filepath.IsAbs(dir) {
			return dir
		}
		return filepath.Join(base, dir)
	}

	c.CacheRoot = join(c.CacheRoot)
	for ns, dir := range c.ViewPaths {
		c.ViewPaths[ns] = join(dir)
	}
	if c.Loader.RootPath == "" {
		c.Loader.RootPath = base
	} else {
		c.Loader.RootPath = join(c.Loader.RootPath)
	}
}

func (c *Config) applyEnv() error {
	o := overlay{
		CacheRoot: c.CacheRoot,
		Debug:     c.Debug,
		LogLevel:  c.LogLevel,
		Extension: c.Extension,
		ViewPaths: c.ViewPaths,
	}
	if err := env.ParseWithOptions(&o, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("config: parse environment: %w", err)
	}

	c.CacheRoot = o.CacheRoot
	c.Debug = o.Debug
	c.LogLevel = o.LogLevel
	c.Extension = o.Extension
	c.ViewPaths = o.ViewPaths
	if o.Autoescape != "" {
		strategy, err := template.ParseAutoescape(o.Autoescape)
		if err != nil {
			return fmt.Errorf("config: %sAUTOESCAPE: %w", EnvPrefix, err)
		}
		c.Environment.Autoescape = &strategy
	}
	if o.AutoReload != nil {
		c.Environment.AutoReload = o.AutoReload
	}
	return nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = defaultLogLevel
	}
	if strings.TrimSpace(c.Extension) == "" {
		c.Extension = defaultExtension
	}
}

// Validate checks the configuration for missing or unknown values.
func (c *Config) Validate() error {
	if len(c.ViewPaths) == 0 {
		return errors.New("view_paths is required")
	}
	for _, ns := range c.Namespaces() {
		if strings.TrimSpace(ns) == "" {
			return errors.New("view_paths: namespace is required")
		}
		if strings.TrimSpace(c.ViewPaths[ns]) == "" {
			return fmt.Errorf("view_paths: directory for %q is required", ns)
		}
	}
	if !isValidLogLevel(c.LogLevel) {
		return fmt.Errorf("log_level must be one of: debug, info, warn, error")
	}
	return nil
}

// Namespaces returns the configured namespace ids in sorted order.
func (c *Config) Namespaces() []string {
	out := make([]string, 0, len(c.ViewPaths))
	for ns := range c.ViewPaths {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// Host returns a static host exposing the configured view paths, cache root
// and debug flag.
func (c *Config) Host() host.Static {
	paths := make(map[string]string, len(c.ViewPaths))
	for ns, dir := range c.ViewPaths {
		paths[ns] = dir
	}
	return host.Static{
		Paths:     paths,
		CacheRoot: c.CacheRoot,
		DebugMode: c.Debug,
	}
}

// Settings returns the adapter Init settings.
func (c *Config) Settings() render.Settings {
	return render.Settings{
		Extension:   c.Extension,
		Loader:      c.Loader,
		Environment: c.Environment,
	}
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
