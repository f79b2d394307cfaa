// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Brain.AttemptsPerProvider)
	assert.Equal(t, 1, cfg.Brain.RepromptAttempts)
	assert.Equal(t, 20, cfg.Brain.HistoryLimit)
	assert.Equal(t, 1, cfg.KeyPool.CooldownBaseSeconds)
	assert.Equal(t, 300, cfg.KeyPool.CooldownMaxSeconds)
	assert.Equal(t, SecurityMedium, cfg.Security.Level)
	assert.True(t, cfg.Security.ConfirmDangerous)
	assert.True(t, cfg.Features.Shell)
	assert.Equal(t, "127.0.0.1:8787", cfg.Server.Addr())
}

func TestLoadConfigOptional_Missing(t *testing.T) {
	cfg, err := LoadConfigOptional(filepath.Join(t.TempDir(), "nope.yaml"), true)
	require.NoError(t, err)
	assert.Empty(t, cfg.Providers)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_ProvidersSortedAndDefaulted(t *testing.T) {
	path := writeConfig(t, `
providers:
  - id: Gemini
    priority: 2
    api-keys: ["AIza-one", "AIza-one", " AIza-two "]
  - id: groq
    priority: 0
    api-keys: ["gsk_1"]
    temperature: 0.4
  - id: lmstudio
    type: openai-compat
    base-url: http://localhost:1234/v1/
    priority: 1
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Providers, 3)

	assert.Equal(t, "groq", cfg.Providers[0].ID)
	assert.Equal(t, TypeGroq, cfg.Providers[0].Type)
	assert.Equal(t, "https://api.groq.com/openai/v1", cfg.Providers[0].BaseURL)
	assert.InDelta(t, 0.4, cfg.Providers[0].TemperatureValue(), 1e-9)

	assert.Equal(t, "lmstudio", cfg.Providers[1].ID)
	assert.Equal(t, TypeOpenAI, cfg.Providers[1].Type)
	assert.Equal(t, "http://localhost:1234/v1", cfg.Providers[1].BaseURL)

	gemini := cfg.Providers[2]
	assert.Equal(t, TypeGemini, gemini.Type)
	assert.Equal(t, []string{"AIza-one", "AIza-two"}, gemini.APIKeys)
	assert.InDelta(t, 0.1, gemini.TemperatureValue(), 1e-9)
	assert.Equal(t, 2048, gemini.MaxTokens)
	assert.Equal(t, DefaultTimeout, gemini.Timeout())
}

func TestLoadConfig_DuplicateProvider(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `
providers:
  - id: groq
  - id: GROQ
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate provider id")
}

func TestLoadConfig_UnknownType(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `
providers:
  - id: x
    type: carrier-pigeon
`))
	require.Error(t, err)
}

func TestLoadConfig_EnvKeys(t *testing.T) {
	t.Setenv("TESS_GROQ_API_KEYS", "gsk_env1, gsk_env2,")
	cfg, err := LoadConfig(writeConfig(t, `
providers:
  - id: groq
    api-keys: [gsk_file]
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"gsk_file", "gsk_env1", "gsk_env2"}, cfg.Providers[0].APIKeys)
	assert.ElementsMatch(t, []string{"gsk_file", "gsk_env1", "gsk_env2"}, cfg.AllAPIKeys())
}

func TestLoadConfig_SecretHashed(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "server:\n  secret-key: hunter2\n"))
	require.NoError(t, err)
	assert.True(t, looksLikeBcrypt(cfg.Server.SecretKey))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(cfg.Server.SecretKey), []byte("hunter2")))
}

func TestLoadConfig_Clamping(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
key-pool:
  cooldown-base-seconds: -5
  cooldown-max-seconds: 0
brain:
  attempts-per-provider: 0
  history-window: 50
security:
  level: high
  blocked-commands: [" Mkfs ", "mkfs", ""]
`))
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.KeyPool.CooldownBaseSeconds)
	assert.Equal(t, 1, cfg.KeyPool.CooldownMaxSeconds)
	assert.Equal(t, 3, cfg.Brain.AttemptsPerProvider)
	assert.Equal(t, 20, cfg.Brain.HistoryWindow)
	assert.Equal(t, SecurityHigh, cfg.Security.Level)
	assert.Equal(t, []string{"mkfs"}, cfg.Security.BlockedCommands)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "providers: [:::"))
	assert.Error(t, err)
}

func TestLoadConfig_History(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, ""))
	require.NoError(t, err)
	assert.False(t, cfg.History.Persist)
	assert.Equal(t, HistorySQLite, cfg.History.Driver)

	cfg, err = LoadConfig(writeConfig(t, `
history:
  persist: true
  driver: PostgreSQL
  dsn: " postgres://tess@localhost/tess "
`))
	require.NoError(t, err)
	assert.Equal(t, HistoryPostgres, cfg.History.Driver)
	assert.Equal(t, "postgres://tess@localhost/tess", cfg.History.DSN)

	_, err = LoadConfig(writeConfig(t, "history:\n  persist: true\n  driver: postgres\n"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "history:\n  driver: mongo\n"))
	assert.Error(t, err)
}
