// Package config holds the uthread configuration and its YAML file form.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/me/uthread/internal/dispatch"
	"github.com/me/uthread/pkg/model"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration shared by the CLI and the server.
type Config struct {
	LogLevel  string          `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string          `yaml:"log_format"` // text, json
	DBPath    string          `yaml:"db_path"`    // SQLite path (default ~/.uthread/uthread.db, ":memory:" for testing)
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Server    ServerConfig    `yaml:"server"`
}

// SchedulerConfig configures the dispatcher and its preemption timer.
type SchedulerConfig struct {
	MaxThreads   int           `yaml:"max_threads"`
	Preemptive   bool          `yaml:"preemptive"`
	Quantum      int           `yaml:"quantum"`       // steps per slice
	MaxSteps     int           `yaml:"max_steps"`     // 0 = unlimited
	TickInterval time.Duration `yaml:"tick_interval"` // wall-clock preemption timer; 0 disables it
}

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	Addr       string        `yaml:"addr"`        // listen address (default ":8080")
	RunTimeout time.Duration `yaml:"run_timeout"` // limit for one submitted run
	MaxBody    int64         `yaml:"max_body"`    // workload upload limit in bytes
}

// Default returns sensible defaults.
func Default() Config {
	dc := dispatch.DefaultConfig()
	return Config{
		LogLevel:  "info",
		LogFormat: "text",
		Scheduler: SchedulerConfig{
			MaxThreads: dc.MaxThreads,
			Quantum:    dc.Quantum,
			MaxSteps:   dc.MaxSteps,
		},
		Server: ServerConfig{
			Addr:       ":8080",
			RunTimeout: 30 * time.Second,
			MaxBody:    1 << 20,
		},
	}
}

// Load reads a YAML config file over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Scheduler.MaxThreads = ClampThreads(cfg.Scheduler.MaxThreads)
	if err := cfg.Scheduler.Dispatch().Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Dispatch converts the scheduler section into a dispatcher configuration.
func (c SchedulerConfig) Dispatch() dispatch.Config {
	return dispatch.Config{
		MaxThreads: c.MaxThreads,
		Preemptive: c.Preemptive,
		Quantum:    c.Quantum,
		MaxSteps:   c.MaxSteps,
	}
}

// ResolveDBPath returns DBPath, or ~/.uthread/uthread.db (creating the
// directory) when it is empty.
func (c Config) ResolveDBPath() (string, error) {
	if c.DBPath != "" {
		return c.DBPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".uthread")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("cannot create %s: %w", dir, err)
	}
	return filepath.Join(dir, "uthread.db"), nil
}

// ClampThreads limits a requested thread count to the library maximum.
func ClampThreads(n int) int {
	if n <= 0 || n > model.MaxThreads {
		return model.MaxThreads
	}
	return n
}
