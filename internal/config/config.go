// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads the tess YAML configuration: the ordered provider list with
// its API keys, key pool backoff, failover limits, security policy, feature toggles
// and the optional HTTP server settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// Providers lists LLM backends. Priority (lower first) defines the fallback order.
	Providers []ProviderConfig `yaml:"providers" json:"providers"`

	// KeyPool controls credential cooldown after rate limiting.
	KeyPool KeyPoolConfig `yaml:"key-pool" json:"key-pool"`

	// Brain controls the failover loop and the correction re-prompt.
	Brain BrainConfig `yaml:"brain" json:"brain"`

	// Security controls how dangerous commands are handled.
	Security SecurityConfig `yaml:"security" json:"security"`

	// Features toggles built-in action handlers.
	Features FeatureConfig `yaml:"features" json:"features"`

	Skills SkillsConfig `yaml:"skills" json:"skills"`
	Hooks  HooksConfig  `yaml:"hooks" json:"hooks"`

	// History persists console conversations between runs.
	History HistoryConfig `yaml:"history" json:"history"`

	// Server configures the optional HTTP/WebSocket surface started by `tess serve`.
	Server ServerConfig `yaml:"server" json:"-"`

	// Debug enables debug-level logging.
	Debug bool `yaml:"debug" json:"debug"`

	// LoggingToFile controls whether logs go to rotating files or stdout.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`

	// LogsDir overrides the directory used when LoggingToFile is set.
	LogsDir string `yaml:"logs-dir" json:"logs-dir"`
}

// KeyPoolConfig holds the exponential cooldown parameters.
type KeyPoolConfig struct {
	// CooldownBaseSeconds is the first cooldown applied to a rate-limited key.
	CooldownBaseSeconds int `yaml:"cooldown-base-seconds" json:"cooldown-base-seconds"`
	// CooldownMaxSeconds caps the cooldown regardless of consecutive failures.
	CooldownMaxSeconds int `yaml:"cooldown-max-seconds" json:"cooldown-max-seconds"`
	// DisableCooling keeps rate-limited keys selectable.
	DisableCooling bool `yaml:"disable-cooling" json:"disable-cooling"`
}

// CooldownBase returns the base cooldown as a duration.
func (k KeyPoolConfig) CooldownBase() time.Duration {
	return time.Duration(k.CooldownBaseSeconds) * time.Second
}

// CooldownMax returns the maximum cooldown as a duration.
func (k KeyPoolConfig) CooldownMax() time.Duration {
	return time.Duration(k.CooldownMaxSeconds) * time.Second
}

// BrainConfig holds failover and conversation limits.
type BrainConfig struct {
	// AttemptsPerProvider bounds retryable failures on one provider before switching.
	AttemptsPerProvider int `yaml:"attempts-per-provider" json:"attempts-per-provider"`
	// RepromptAttempts bounds correction round-trips after an invalid action payload.
	RepromptAttempts int `yaml:"reprompt-attempts" json:"reprompt-attempts"`
	// HistoryLimit caps the messages kept per session.
	HistoryLimit int `yaml:"history-limit" json:"history-limit"`
	// HistoryWindow is how many recent messages accompany each request.
	HistoryWindow int `yaml:"history-window" json:"history-window"`
}

// SecurityLevel selects the dangerous command policy.
type SecurityLevel string

const (
	// SecurityHigh blocks dangerous commands outright.
	SecurityHigh SecurityLevel = "HIGH"
	// SecurityMedium asks for confirmation before running dangerous commands.
	SecurityMedium SecurityLevel = "MEDIUM"
	// SecurityLow runs everything.
	SecurityLow SecurityLevel = "LOW"
)

// SecurityConfig mirrors the agent's command safety settings.
type SecurityConfig struct {
	Level            SecurityLevel `yaml:"level" json:"level"`
	ConfirmDangerous bool          `yaml:"confirm-dangerous" json:"confirm-dangerous"`
	// BlockedCommands adds patterns to the built-in dangerous list.
	BlockedCommands []string `yaml:"blocked-commands" json:"blocked-commands"`
}

// FeatureConfig toggles built-in handlers. A disabled feature's action kind is left unregistered.
type FeatureConfig struct {
	Apps     bool `yaml:"apps" json:"apps"`
	Shell    bool `yaml:"shell" json:"shell"`
	Browser  bool `yaml:"browser" json:"browser"`
	Files    bool `yaml:"files" json:"files"`
	System   bool `yaml:"system" json:"system"`
	Skills   bool `yaml:"skills" json:"skills"`
	Research bool `yaml:"research" json:"research"`
}

// SkillsConfig locates Lua skills.
type SkillsConfig struct {
	Dir string `yaml:"dir" json:"dir"`
}

// HooksConfig locates hook definitions.
type HooksConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Dir     string `yaml:"dir" json:"dir"`
	// Watch reloads hooks when files in Dir change.
	Watch bool `yaml:"watch" json:"watch"`
}

// History storage drivers.
const (
	HistorySQLite   = "sqlite"
	HistoryPostgres = "postgres"
)

// HistoryConfig selects where conversation history is stored.
type HistoryConfig struct {
	Persist bool   `yaml:"persist" json:"persist"`
	Driver  string `yaml:"driver" json:"driver"`
	// DSN is the database file for sqlite or the connection string for postgres.
	// An empty sqlite DSN means history.db under the state directory.
	DSN string `yaml:"dsn" json:"-"`
}

// ServerConfig configures `tess serve`.
type ServerConfig struct {
	Host string `yaml:"host" json:"-"`
	Port int    `yaml:"port" json:"-"`
	// SecretKey guards the API. Plaintext values are bcrypt-hashed at load time.
	SecretKey string `yaml:"secret-key" json:"-"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Default returns a Config populated with defaults and no providers.
func Default() *Config {
	cfg := &Config{}
	cfg.KeyPool.CooldownBaseSeconds = 1
	cfg.KeyPool.CooldownMaxSeconds = 300
	cfg.Brain.AttemptsPerProvider = 3
	cfg.Brain.RepromptAttempts = 1
	cfg.Brain.HistoryLimit = 20
	cfg.Brain.HistoryWindow = 5
	cfg.Security.Level = SecurityMedium
	cfg.Security.ConfirmDangerous = true
	cfg.Features = FeatureConfig{Apps: true, Shell: true, Browser: true, Files: true, System: true, Skills: true, Research: true}
	cfg.Hooks.Enabled = true
	cfg.History.Driver = HistorySQLite
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 8787
	return cfg
}

// LoadConfig reads a YAML configuration file from the given path.
func LoadConfig(configFile string) (*Config, error) {
	return LoadConfigOptional(configFile, false)
}

// LoadConfigOptional reads YAML from configFile.
// If optional is true and the file is missing or empty, it returns the defaults.
func LoadConfigOptional(configFile string, optional bool) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		if optional && (os.IsNotExist(err) || errors.Is(err, syscall.EISDIR)) {
			cfg := Default()
			return cfg, cfg.finalize()
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Config from YAML bytes, applying defaults, environment overrides
// and sanitization.
func Parse(data []byte) (*Config, error) {
	// Set defaults before unmarshal so that absent keys keep defaults.
	cfg := Default()
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) finalize() error {
	cfg.ApplyEnvOverrides(os.Getenv)
	cfg.SanitizeProviders()
	cfg.SanitizeKeyPool()
	cfg.SanitizeBrain()
	cfg.SanitizeSecurity()
	cfg.SanitizeHistory()

	if cfg.Server.SecretKey != "" && !looksLikeBcrypt(cfg.Server.SecretKey) {
		hashed, err := hashSecret(cfg.Server.SecretKey)
		if err != nil {
			return fmt.Errorf("failed to hash server secret key: %w", err)
		}
		cfg.Server.SecretKey = hashed
	}
	return cfg.Validate()
}

// Validate reports configuration errors that sanitization cannot repair.
func (cfg *Config) Validate() error {
	seen := make(map[string]struct{}, len(cfg.Providers))
	if cfg.History.Driver != HistorySQLite && cfg.History.Driver != HistoryPostgres {
		return fmt.Errorf("config: unsupported history driver %q", cfg.History.Driver)
	}
	if cfg.History.Persist && cfg.History.Driver == HistoryPostgres && cfg.History.DSN == "" {
		return fmt.Errorf("config: history.dsn is required for the postgres driver")
	}
	for _, p := range cfg.Providers {
		if p.ID == "" {
			return fmt.Errorf("config: provider entry without id")
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("config: duplicate provider id %q", p.ID)
		}
		seen[p.ID] = struct{}{}
		if !knownProviderType(p.Type) {
			return fmt.Errorf("config: provider %q has unsupported type %q", p.ID, p.Type)
		}
	}
	return nil
}

// SanitizeKeyPool clamps cooldown values.
func (cfg *Config) SanitizeKeyPool() {
	if cfg.KeyPool.CooldownBaseSeconds <= 0 {
		cfg.KeyPool.CooldownBaseSeconds = 1
	}
	if cfg.KeyPool.CooldownMaxSeconds < cfg.KeyPool.CooldownBaseSeconds {
		cfg.KeyPool.CooldownMaxSeconds = cfg.KeyPool.CooldownBaseSeconds
	}
}

// SanitizeBrain clamps failover limits.
func (cfg *Config) SanitizeBrain() {
	if cfg.Brain.AttemptsPerProvider <= 0 {
		cfg.Brain.AttemptsPerProvider = 3
	}
	if cfg.Brain.RepromptAttempts < 0 {
		cfg.Brain.RepromptAttempts = 0
	}
	if cfg.Brain.HistoryLimit <= 0 {
		cfg.Brain.HistoryLimit = 20
	}
	if cfg.Brain.HistoryWindow < 0 {
		cfg.Brain.HistoryWindow = 0
	}
	if cfg.Brain.HistoryWindow > cfg.Brain.HistoryLimit {
		cfg.Brain.HistoryWindow = cfg.Brain.HistoryLimit
	}
}

// SanitizeSecurity normalizes the level and the blocked command list.
func (cfg *Config) SanitizeSecurity() {
	level := SecurityLevel(strings.ToUpper(strings.TrimSpace(string(cfg.Security.Level))))
	switch level {
	case SecurityHigh, SecurityMedium, SecurityLow:
	default:
		level = SecurityMedium
	}
	cfg.Security.Level = level
	cfg.Security.BlockedCommands = normalizeList(cfg.Security.BlockedCommands, true)
}

// SanitizeHistory normalizes the driver name. "sqlite3" is accepted for sqlite.
func (cfg *Config) SanitizeHistory() {
	driver := strings.ToLower(strings.TrimSpace(cfg.History.Driver))
	switch driver {
	case "", "sqlite3":
		driver = HistorySQLite
	case "postgresql", "pgx":
		driver = HistoryPostgres
	}
	cfg.History.Driver = driver
	cfg.History.DSN = strings.TrimSpace(cfg.History.DSN)
}

// AllAPIKeys returns every configured key across providers.
func (cfg *Config) AllAPIKeys() []string {
	var keys []string
	for _, p := range cfg.Providers {
		keys = append(keys, p.APIKeys...)
	}
	return keys
}

// normalizeList trims, optionally lowercases, and deduplicates entries, keeping first occurrences.
func normalizeList(items []string, lower bool) []string {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, raw := range items {
		v := strings.TrimSpace(raw)
		if lower {
			v = strings.ToLower(v)
		}
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// looksLikeBcrypt returns true if the provided string appears to be a bcrypt hash.
func looksLikeBcrypt(s string) bool {
	return len(s) > 4 && (s[:4] == "$2a$" || s[:4] == "$2b$" || s[:4] == "$2y$")
}

// hashSecret hashes the given secret using bcrypt.
func hashSecret(secret string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashedBytes), nil
}
