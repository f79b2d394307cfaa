// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"sort"
	"strings"
	"time"
)

// Provider types understood by the adapter factory.
const (
	TypeOpenAI   = "openai"
	TypeGroq     = "groq"
	TypeDeepSeek = "deepseek"
	TypeGemini   = "gemini"
	TypeOllama   = "ollama"
	TypeMock     = "mock"
)

// DefaultTimeout bounds every provider call unless overridden.
const DefaultTimeout = 30 * time.Second

const (
	defaultTemperature = 0.1
	defaultMaxTokens   = 2048
)

var defaultBaseURLs = map[string]string{
	TypeOpenAI:   "https://api.openai.com/v1",
	TypeGroq:     "https://api.groq.com/openai/v1",
	TypeDeepSeek: "https://api.deepseek.com",
	TypeGemini:   "https://generativelanguage.googleapis.com/v1beta",
	TypeOllama:   "http://localhost:11434",
}

var defaultModels = map[string]string{
	TypeOpenAI:   "gpt-4o-mini",
	TypeGroq:     "llama-3.3-70b-versatile",
	TypeDeepSeek: "deepseek-chat",
	TypeGemini:   "gemini-2.0-flash",
	TypeOllama:   "llama3.2",
	TypeMock:     "mock",
}

// ProviderConfig is one LLM backend. It is immutable after load.
type ProviderConfig struct {
	// ID names the provider in logs, the key pool and status output.
	ID string `yaml:"id" json:"id"`
	// Type selects the wire protocol: openai, groq, deepseek, gemini, ollama or mock.
	Type    string `yaml:"type" json:"type"`
	Model   string `yaml:"model" json:"model"`
	BaseURL string `yaml:"base-url" json:"base-url"`
	// Priority orders fallback; lower values are tried first.
	Priority int `yaml:"priority" json:"priority"`
	// APIKeys are loaded into the key pool. Local providers may have none.
	APIKeys []string `yaml:"api-keys" json:"-"`
	// TimeoutSeconds overrides DefaultTimeout.
	TimeoutSeconds int `yaml:"timeout-seconds" json:"timeout-seconds"`
	// MaxHistoryTokens trims the oldest history to fit; 0 disables trimming.
	MaxHistoryTokens int               `yaml:"max-history-tokens" json:"max-history-tokens"`
	Temperature      *float64          `yaml:"temperature" json:"temperature,omitempty"`
	MaxTokens        int               `yaml:"max-tokens" json:"max-tokens"`
	Headers          map[string]string `yaml:"headers" json:"headers,omitempty"`
}

// Timeout returns the per-call timeout.
func (p ProviderConfig) Timeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return DefaultTimeout
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// TemperatureValue returns the sampling temperature, defaulting to 0.1.
func (p ProviderConfig) TemperatureValue() float64 {
	if p.Temperature == nil {
		return defaultTemperature
	}
	return *p.Temperature
}

// RequiresKey reports whether the provider cannot be called without a credential.
func (p ProviderConfig) RequiresKey() bool {
	return p.Type != TypeOllama && p.Type != TypeMock
}

func knownProviderType(t string) bool {
	switch t {
	case TypeOpenAI, TypeGroq, TypeDeepSeek, TypeGemini, TypeOllama, TypeMock:
		return true
	}
	return false
}

// SanitizeProviders trims fields, applies per-type defaults, deduplicates keys
// and sorts providers by priority. The sort is stable so equal priorities keep file order.
func (cfg *Config) SanitizeProviders() {
	if cfg == nil || len(cfg.Providers) == 0 {
		return
	}
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		p.ID = strings.ToLower(strings.TrimSpace(p.ID))
		p.Type = strings.ToLower(strings.TrimSpace(p.Type))
		if p.Type == "" || p.Type == "openai-compat" || p.Type == "openai-compatibility" {
			if p.Type == "" && knownProviderType(p.ID) {
				p.Type = p.ID
			} else {
				p.Type = TypeOpenAI
			}
		}
		p.BaseURL = strings.TrimSuffix(strings.TrimSpace(p.BaseURL), "/")
		if p.BaseURL == "" {
			p.BaseURL = defaultBaseURLs[p.Type]
		}
		p.Model = strings.TrimSpace(p.Model)
		if p.Model == "" {
			p.Model = defaultModels[p.Type]
		}
		if p.MaxTokens <= 0 {
			p.MaxTokens = defaultMaxTokens
		}
		if p.MaxHistoryTokens < 0 {
			p.MaxHistoryTokens = 0
		}
		p.APIKeys = normalizeList(p.APIKeys, false)
		p.Headers = normalizeHeaders(p.Headers)
	}
	sort.SliceStable(cfg.Providers, func(i, j int) bool {
		return cfg.Providers[i].Priority < cfg.Providers[j].Priority
	})
}

// ApplyEnvOverrides appends keys from TESS_<PROVIDER>_API_KEYS (comma separated)
// to the matching provider, e.g. TESS_GROQ_API_KEYS=gsk_a,gsk_b.
func (cfg *Config) ApplyEnvOverrides(getenv func(string) string) {
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		id := strings.TrimSpace(p.ID)
		if id == "" {
			continue
		}
		name := "TESS_" + strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(id)) + "_API_KEYS"
		raw := getenv(name)
		if raw == "" {
			continue
		}
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				p.APIKeys = append(p.APIKeys, k)
			}
		}
	}
}

// normalizeHeaders trims header keys and values and removes empty pairs.
func normalizeHeaders(headers map[string]string) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	clean := make(map[string]string, len(headers))
	for k, v := range headers {
		key := strings.TrimSpace(k)
		val := strings.TrimSpace(v)
		if key == "" || val == "" {
			continue
		}
		clean[key] = val
	}
	if len(clean) == 0 {
		return nil
	}
	return clean
}
