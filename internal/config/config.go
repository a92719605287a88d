package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
)

// Config is the top-level configuration structure.
type Config struct {
	Server    ServerConfig     `json:"server"`
	Data      DataConfig       `json:"data"`
	Providers []ProviderConfig `json:"providers"`
	Redis     RedisConfig      `json:"redis"`
	Query     QueryConfig      `json:"query"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

// DataConfig selects where the record store loads its snapshot from.
// Source is "files" (default) or "postgres".
type DataConfig struct {
	Source    string         `json:"source"`
	ClinicDir string         `json:"clinic_dir"`
	DeviceDir string         `json:"device_dir"`
	Postgres  PostgresConfig `json:"postgres"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type ProviderConfig struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Name     string `json:"name"`
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
	// TimeoutSeconds bounds a single Generate call. Zero means the
	// provider default.
	TimeoutSeconds int `json:"timeout_seconds"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

// QueryConfig tunes routing and aggregation.
type QueryConfig struct {
	// DefaultWindowDays is the lookback window applied when a query
	// names no date range.
	DefaultWindowDays int `json:"default_window_days"`
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 3210
	}
	if c.Data.Source == "" {
		c.Data.Source = "files"
	}
	if c.Data.ClinicDir == "" {
		c.Data.ClinicDir = "doctor_data"
	}
	if c.Data.DeviceDir == "" {
		c.Data.DeviceDir = "whoop_data"
	}
	if c.Query.DefaultWindowDays == 0 {
		c.Query.DefaultWindowDays = 30
	}
}
