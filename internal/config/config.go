// Package config resolves the runtime configuration for the dashboard
// server: defaults, then an optional YAML config file, then environment
// variables. Command-line flags are layered on top by the CLI.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration of the server.
type Config struct {
	Port       int    `yaml:"port"`
	CORSOrigin string `yaml:"corsOrigin"`
	MockData   bool   `yaml:"mockData"`
	TeamsDir   string `yaml:"teamsDir"`
	TasksDir   string `yaml:"tasksDir"`
	LogLevel   string `yaml:"logLevel"`
	EnableOtel bool   `yaml:"enableOtel"`
}

// Default returns the configuration used when nothing else is set. The
// teams/tasks roots default to the directories Claude Code writes session
// state into.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		Port:       3001,
		CORSOrigin: "http://localhost:5173",
		TeamsDir:   filepath.Join(home, ".claude", "teams"),
		TasksDir:   filepath.Join(home, ".claude", "tasks"),
		LogLevel:   "info",
	}
}

// Load resolves the configuration: defaults, overlaid by the YAML file at
// path (if path is non-empty; a missing explicit file is an error), overlaid
// by environment variables.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overlays the environment variables the original deployment used.
func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Port = p
		}
	}
	if v := os.Getenv("CORS_ORIGIN"); v != "" {
		c.CORSOrigin = v
	}
	if v := os.Getenv("MOCK_DATA"); v != "" {
		c.MockData = v == "true" || v == "1"
	}
	if v := os.Getenv("TEAMS_DIR"); v != "" {
		c.TeamsDir = v
	}
	if v := os.Getenv("TASKS_DIR"); v != "" {
		c.TasksDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// ParseLevel maps a config log level string to a slog.Level. Unknown values
// fall back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
