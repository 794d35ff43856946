// Package config loads the comparator's runtime configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/spaceshipgen/comparator/internal/domain"
	"github.com/spaceshipgen/comparator/internal/shuffle"
	"github.com/spaceshipgen/comparator/internal/structure"
)

// EnvConfigPath names the environment variable consulted by Discover.
const EnvConfigPath = "SC_CONFIG"

// BuilderConfig defines how to launch an external structure solver.
type BuilderConfig struct {
	Command string            `json:"command" yaml:"command"`
	Args    []string          `json:"args" yaml:"args"`
	Env     map[string]string `json:"env" yaml:"env"`
}

// Config holds the comparator's runtime configuration.
type Config struct {
	DBPath                string                   `json:"db_path" yaml:"db_path"`
	ListenAddr            string                   `json:"listen_addr" yaml:"listen_addr"`
	Labels                []string                 `json:"labels" yaml:"labels"`
	Descriptors           []string                 `json:"descriptors" yaml:"descriptors"`
	Builders              map[string]BuilderConfig `json:"builders" yaml:"builders"`
	DefaultBuilder        string                   `json:"default_builder" yaml:"default_builder"`
	CacheSize             int                      `json:"cache_size" yaml:"cache_size"`
	MaxConcurrentSessions int                      `json:"max_concurrent_sessions" yaml:"max_concurrent_sessions"`
	UploadsPerMinute      int                      `json:"uploads_per_minute" yaml:"uploads_per_minute"`
	StrictRanks           bool                     `json:"strict_ranks" yaml:"strict_ranks"`
	ExportDir             string                   `json:"export_dir" yaml:"export_dir"`
	LogLevel              string                   `json:"log_level" yaml:"log_level"`
}

// Load reads a YAML or JSON config file (chosen by extension), applies
// defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config JSON: %w", err)
		}
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// Discover resolves the config file path: the explicit path if given, then
// $SC_CONFIG, then config.yaml, config.yml or config.json next to the
// executable or in the working directory. It returns "" when none exists.
func Discover(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	var dirs []string
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, wd)
	}
	for _, dir := range dirs {
		for _, name := range []string{"config.yaml", "config.yml", "config.json"} {
			p := filepath.Join(dir, name)
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
	}
	return ""
}

// LoadOrDefault loads the discovered config file, or the defaults when there
// is none.
func LoadOrDefault(explicit string) (*Config, string, error) {
	path := Discover(explicit)
	if path == "" {
		return Default(), "", nil
	}
	cfg, err := Load(path)
	return cfg, path, err
}

func (c *Config) applyDefaults() {
	if c.DBPath == "" {
		c.DBPath = "comparator.db"
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":9800"
	}
	if len(c.Labels) == 0 {
		c.Labels = append([]string(nil), shuffle.DefaultLabels...)
	}
	if len(c.Descriptors) == 0 {
		c.Descriptors = append([]string(nil), structure.DefaultDescriptorKeys...)
	}
	if c.DefaultBuilder == "" && len(c.Builders) == 1 {
		for name := range c.Builders {
			c.DefaultBuilder = name
		}
	}
	if c.CacheSize == 0 {
		c.CacheSize = 256
	}
	if c.MaxConcurrentSessions == 0 {
		c.MaxConcurrentSessions = 4
	}
	if c.UploadsPerMinute == 0 {
		c.UploadsPerMinute = 60
	}
	if c.ExportDir == "" {
		c.ExportDir = "results"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	var problems []string

	if len(c.Labels) != domain.NumSlots {
		problems = append(problems, fmt.Sprintf("labels must name exactly %d strategies", domain.NumSlots))
	}
	if err := shuffle.ValidateLabels(c.Labels); err != nil {
		problems = append(problems, err.Error())
	}
	if _, err := structure.Descriptors(c.Descriptors); err != nil {
		problems = append(problems, err.Error())
	}
	for name, b := range c.Builders {
		if b.Command == "" {
			problems = append(problems, fmt.Sprintf("builder %q has no command", name))
		}
	}
	if c.DefaultBuilder != "" {
		if _, ok := c.Builders[c.DefaultBuilder]; !ok {
			problems = append(problems, fmt.Sprintf("default_builder %q is not configured", c.DefaultBuilder))
		}
	}
	if c.CacheSize < 0 {
		problems = append(problems, "cache_size must not be negative")
	}
	if c.MaxConcurrentSessions < 0 {
		problems = append(problems, "max_concurrent_sessions must not be negative")
	}
	if c.UploadsPerMinute < 0 {
		problems = append(problems, "uploads_per_minute must not be negative")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log_level %q must be debug, info, warn or error", c.LogLevel))
	}

	if len(problems) > 0 {
		return &domain.EngineError{
			Code:    domain.ErrConfigInvalid.Code,
			Message: fmt.Sprintf("%s: %v", domain.ErrConfigInvalid.Message, problems),
		}
	}
	return nil
}

// Registry builds the structure builder registry from the configured builders.
func (c *Config) Registry() (*structure.Registry, error) {
	reg := structure.NewRegistry()
	for name, b := range c.Builders {
		spec := structure.BuilderSpec{Name: name, Command: b.Command, Args: b.Args, Env: b.Env}
		if err := reg.Register(spec); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// DescriptorSet resolves the enabled descriptors.
func (c *Config) DescriptorSet() ([]structure.Descriptor, error) {
	return structure.Descriptors(c.Descriptors)
}
