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

// Ollama talks to a local Ollama instance through /api/chat.
type Ollama struct {
	client *http.Client
}

// NewOllama creates the adapter. A nil client uses a default one.
func NewOllama(client *http.Client) *Ollama {
	if client == nil {
		client = newHTTPClient()
	}
	return &Ollama{client: client}
}

// Complete implements Adapter.
func (a *Ollama) Complete(ctx context.Context, cfg config.ProviderConfig, key string, req Request) (RawResponse, error) {
	body := []byte(`{"stream":false}`)
	body, _ = sjson.SetBytes(body, "model", cfg.Model)
	for _, m := range buildMessages(cfg, req) {
		body, _ = sjson.SetBytes(body, "messages.-1", m)
	}
	body, _ = sjson.SetBytes(body, "options.temperature", cfg.TemperatureValue())
	if cfg.MaxTokens > 0 {
		body, _ = sjson.SetBytes(body, "options.num_predict", cfg.MaxTokens)
	}
	if req.JSONMode {
		body, _ = sjson.SetBytes(body, "format", "json")
	}

	headers := map[string]string{}
	if key != "" {
		headers["Authorization"] = "Bearer " + key
	}
	data, err := post(ctx, a.client, cfg, strings.TrimSuffix(cfg.BaseURL, "/")+"/api/chat", headers, body)
	if err != nil {
		return RawResponse{}, err
	}

	content := gjson.GetBytes(data, "message.content").String()
	if strings.TrimSpace(content) == "" {
		return RawResponse{}, &Error{Kind: KindMalformed, Provider: cfg.ID, StatusCode: http.StatusOK, Message: "response has no message content"}
	}
	model := gjson.GetBytes(data, "model").String()
	log.Debugf("Ollama response: model=%s, content_len=%d", model, len(content))
	return newResponse(cfg, model, content), nil
}
