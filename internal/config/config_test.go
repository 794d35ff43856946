package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spaceshipgen/comparator/internal/domain"
)

// validJSON returns a minimal valid configuration JSON string.
func validJSON() string {
	return `{
		"db_path": "/tmp/test.db",
		"builders": {
			"pcgsepy": {
				"command": "python",
				"args": ["-m", "pcgsepy.solve"]
			}
		}
	}`
}

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func requireConfigInvalid(t *testing.T, err error, mention string) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	engineErr, ok := err.(*domain.EngineError)
	if !ok {
		t.Fatalf("expected EngineError, got %T", err)
	}
	if engineErr.Code != domain.ErrConfigInvalid.Code {
		t.Errorf("Code = %d, want %d", engineErr.Code, domain.ErrConfigInvalid.Code)
	}
	if !strings.Contains(engineErr.Message, mention) {
		t.Errorf("message %q does not mention %q", engineErr.Message, mention)
	}
}

func TestLoad_ValidJSON(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.json", validJSON())

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "/tmp/test.db" {
		t.Errorf("DBPath = %q, want /tmp/test.db", cfg.DBPath)
	}
	if len(cfg.Builders) != 1 {
		t.Errorf("Builders count = %d, want 1", len(cfg.Builders))
	}
	if cfg.DefaultBuilder != "pcgsepy" {
		t.Errorf("DefaultBuilder = %q, want pcgsepy", cfg.DefaultBuilder)
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", `
db_path: /data/sessions.db
listen_addr: 127.0.0.1:8050
labels: [Alpha, Beta, Gamma]
descriptors: [mame, avg_ma]
strict_ranks: true
builders:
  local:
    command: ./solver
    env:
      SOLVER_THREADS: "2"
  remote:
    command: ssh
    args: [gpu-box, solver]
default_builder: remote
log_level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:8050" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if strings.Join(cfg.Labels, ",") != "Alpha,Beta,Gamma" {
		t.Errorf("Labels = %v", cfg.Labels)
	}
	if !cfg.StrictRanks {
		t.Error("StrictRanks = false, want true")
	}
	if cfg.Builders["local"].Env["SOLVER_THREADS"] != "2" {
		t.Errorf("local env = %v", cfg.Builders["local"].Env)
	}
	if cfg.DefaultBuilder != "remote" {
		t.Errorf("DefaultBuilder = %q, want remote", cfg.DefaultBuilder)
	}
	ds, err := cfg.DescriptorSet()
	if err != nil {
		t.Fatalf("DescriptorSet: %v", err)
	}
	if len(ds) != 2 || ds[1].Name != "Average Proportions" {
		t.Errorf("descriptors = %+v", ds)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.json")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.json", `{not valid json}`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid JSON, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yml", "labels: [unclosed\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid YAML, got nil")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		mention string
	}{
		{"two labels", `{"labels": ["A", "B"]}`, "exactly 3"},
		{"duplicate label", `{"labels": ["A", "A", "B"]}`, "label"},
		{"unknown descriptor", `{"descriptors": ["hull_area"]}`, "hull_area"},
		{"builder without command", `{"builders": {"x": {}}}`, `builder "x" has no command`},
		{"unknown default builder", `{"default_builder": "ghost"}`, "ghost"},
		{"negative cache", `{"cache_size": -1}`, "cache_size"},
		{"bad log level", `{"log_level": "verbose"}`, "log_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), "config.json", tt.content)
			_, err := Load(path)
			requireConfigInvalid(t, err, tt.mention)
		})
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.json", `{}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.DBPath != "comparator.db" {
		t.Errorf("DBPath = %q, want comparator.db", cfg.DBPath)
	}
	if cfg.ListenAddr != ":9800" {
		t.Errorf("ListenAddr = %q, want :9800", cfg.ListenAddr)
	}
	if strings.Join(cfg.Labels, ",") != "Random,Preference Matrix,Contextual Bandit" {
		t.Errorf("Labels = %v", cfg.Labels)
	}
	if strings.Join(cfg.Descriptors, ",") != "mame,mami,symmetry" {
		t.Errorf("Descriptors = %v", cfg.Descriptors)
	}
	if cfg.CacheSize != 256 {
		t.Errorf("CacheSize = %d, want 256", cfg.CacheSize)
	}
	if cfg.MaxConcurrentSessions != 4 {
		t.Errorf("MaxConcurrentSessions = %d, want 4", cfg.MaxConcurrentSessions)
	}
	if cfg.UploadsPerMinute != 60 {
		t.Errorf("UploadsPerMinute = %d, want 60", cfg.UploadsPerMinute)
	}
	if cfg.ExportDir != "results" {
		t.Errorf("ExportDir = %q, want results", cfg.ExportDir)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestDefault_IsValid(t *testing.T) {
	if err := Default().validate(); err != nil {
		t.Errorf("Default config invalid: %v", err)
	}
}

func TestDiscover(t *testing.T) {
	if got := Discover("/explicit.yaml"); got != "/explicit.yaml" {
		t.Errorf("explicit path ignored: %q", got)
	}

	t.Setenv(EnvConfigPath, "/from/env.yaml")
	if got := Discover(""); got != "/from/env.yaml" {
		t.Errorf("env path ignored: %q", got)
	}
}

func TestDiscover_WorkingDirectory(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	dir := t.TempDir()
	want := writeConfig(t, dir, "config.yaml", "log_level: warn\n")
	t.Chdir(dir)

	got := Discover("")
	// The test binary's own directory is searched first and holds no config.
	if got != want {
		gotInfo, err1 := os.Stat(got)
		wantInfo, err2 := os.Stat(want)
		if err1 != nil || err2 != nil || !os.SameFile(gotInfo, wantInfo) {
			t.Errorf("Discover = %q, want %q", got, want)
		}
	}

	cfg, path, err := LoadOrDefault("")
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if path == "" || cfg.LogLevel != "warn" {
		t.Errorf("LoadOrDefault = %+v from %q", cfg, path)
	}
}

func TestRegistry(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.json", validJSON())
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	reg, err := cfg.Registry()
	if err != nil {
		t.Fatalf("Registry: %v", err)
	}
	b, err := reg.Builder("pcgsepy")
	if err != nil {
		t.Fatalf("Builder: %v", err)
	}
	if b.Spec.Command != "python" || len(b.Spec.Args) != 2 {
		t.Errorf("spec = %+v", b.Spec)
	}
	if _, err := reg.Builder("missing"); !errors.Is(err, domain.ErrBuilderUnavailable) {
		t.Errorf("err = %v, want ErrBuilderUnavailable", err)
	}
}
