// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package provider

import (
	"context"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"github.com/traylinx/tess/internal/config"
)

// OpenAICompat talks to any OpenAI-compatible /chat/completions endpoint:
// OpenAI, Groq, DeepSeek, OpenRouter, LM Studio and similar.
type OpenAICompat struct {
	client *http.Client
}

// NewOpenAICompat creates the adapter. A nil client uses a default one.
func NewOpenAICompat(client *http.Client) *OpenAICompat {
	if client == nil {
		client = newHTTPClient()
	}
	return &OpenAICompat{client: client}
}

// Complete implements Adapter.
func (a *OpenAICompat) Complete(ctx context.Context, cfg config.ProviderConfig, key string, req Request) (RawResponse, error) {
	if cfg.BaseURL == "" {
		return RawResponse{}, &Error{Kind: KindMalformed, Provider: cfg.ID, Message: "missing provider base-url"}
	}

	body := []byte(`{}`)
	body, _ = sjson.SetBytes(body, "model", cfg.Model)
	for _, m := range buildMessages(cfg, req) {
		body, _ = sjson.SetBytes(body, "messages.-1", m)
	}
	body, _ = sjson.SetBytes(body, "temperature", cfg.TemperatureValue())
	if cfg.MaxTokens > 0 {
		body, _ = sjson.SetBytes(body, "max_tokens", cfg.MaxTokens)
	}
	if req.JSONMode {
		body, _ = sjson.SetBytes(body, "response_format.type", "json_object")
	}

	headers := map[string]string{}
	if key != "" {
		headers["Authorization"] = "Bearer " + key
	}
	url := strings.TrimSuffix(cfg.BaseURL, "/") + "/chat/completions"
	data, err := post(ctx, a.client, cfg, url, headers, body)
	if err != nil {
		return RawResponse{}, err
	}

	content := gjson.GetBytes(data, "choices.0.message.content")
	if !content.Exists() || strings.TrimSpace(content.String()) == "" {
		return RawResponse{}, &Error{Kind: KindMalformed, Provider: cfg.ID, StatusCode: http.StatusOK, Message: "response has no message content"}
	}
	model := gjson.GetBytes(data, "model").String()
	log.Debugf("provider %s: completion model=%s content_len=%d", cfg.ID, model, len(content.String()))
	return newResponse(cfg, model, content.String()), nil
}
