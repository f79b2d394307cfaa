// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"github.com/traylinx/tess/internal/config"
)

// Gemini calls the Generative Language generateContent REST endpoint.
type Gemini struct {
	client *http.Client
}

// NewGemini creates the adapter. A nil client uses a default one.
func NewGemini(client *http.Client) *Gemini {
	if client == nil {
		client = newHTTPClient()
	}
	return &Gemini{client: client}
}

// Complete implements Adapter.
func (a *Gemini) Complete(ctx context.Context, cfg config.ProviderConfig, key string, req Request) (RawResponse, error) {
	body := []byte(`{}`)
	history := TrimHistory(req.History, cfg.MaxHistoryTokens)
	if req.System != "" {
		body, _ = sjson.SetBytes(body, "systemInstruction.parts.0.text", req.System)
	}
	turns := append(append([]Message{}, history...), Message{Role: RoleUser, Content: req.Prompt})
	for _, m := range turns {
		if m.Content == "" {
			continue
		}
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		body, _ = sjson.SetBytes(body, "contents.-1", map[string]any{
			"role":  role,
			"parts": []map[string]string{{"text": m.Content}},
		})
	}
	body, _ = sjson.SetBytes(body, "generationConfig.temperature", cfg.TemperatureValue())
	if cfg.MaxTokens > 0 {
		body, _ = sjson.SetBytes(body, "generationConfig.maxOutputTokens", cfg.MaxTokens)
	}
	if req.JSONMode {
		body, _ = sjson.SetBytes(body, "generationConfig.responseMimeType", "application/json")
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimSuffix(cfg.BaseURL, "/"), cfg.Model)
	headers := map[string]string{}
	if key != "" {
		headers["x-goog-api-key"] = key
	}
	data, err := post(ctx, a.client, cfg, url, headers, body)
	if err != nil {
		if pe, ok := AsError(err); ok && pe.StatusCode == http.StatusBadRequest {
			reclassifyGeminiBadRequest(pe)
		}
		return RawResponse{}, err
	}

	if reason := gjson.GetBytes(data, "promptFeedback.blockReason").String(); reason != "" {
		return RawResponse{}, &Error{Kind: KindMalformed, Provider: cfg.ID, StatusCode: http.StatusOK, Message: "prompt blocked: " + reason}
	}
	var text strings.Builder
	for _, part := range gjson.GetBytes(data, "candidates.0.content.parts").Array() {
		text.WriteString(part.Get("text").String())
	}
	if strings.TrimSpace(text.String()) == "" {
		return RawResponse{}, &Error{Kind: KindMalformed, Provider: cfg.ID, StatusCode: http.StatusOK, Message: "response has no candidate text"}
	}
	return newResponse(cfg, gjson.GetBytes(data, "modelVersion").String(), text.String()), nil
}

// reclassifyGeminiBadRequest turns the 400 INVALID_ARGUMENT Gemini returns for a bad key
// into an auth error.
func reclassifyGeminiBadRequest(pe *Error) {
	if strings.Contains(pe.Message, "API key not valid") || strings.Contains(pe.Message, "API_KEY_INVALID") {
		pe.Kind = KindAuth
	}
}
