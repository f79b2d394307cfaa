// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package provider normalizes LLM backends behind one call: Complete. Each adapter
// translates the request to its wire format, enforces the configured timeout and maps
// every failure onto one of four error kinds. Adapters never touch the key pool.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/traylinx/tess/internal/config"
)

// ErrorKind classifies a failed provider call.
type ErrorKind string

const (
	// KindRateLimited means the key hit a quota; it should cool down.
	KindRateLimited ErrorKind = "rate_limited"
	// KindAuth means the key was rejected; it should be retired.
	KindAuth ErrorKind = "auth_error"
	// KindTransient covers timeouts, network failures and 5xx responses.
	KindTransient ErrorKind = "transient_error"
	// KindMalformed means the provider answered but the body was unusable.
	KindMalformed ErrorKind = "malformed_response"
)

// Error is the only error type adapters return.
type Error struct {
	Kind       ErrorKind
	Provider   string
	StatusCode int
	Message    string
	// RetryAfter is the provider's back-off hint, zero when absent.
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "provider %s: %s", e.Provider, e.Kind)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// AsError extracts a *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// Role of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is the provider-independent input of Complete.
type Request struct {
	System  string
	Prompt  string
	History []Message
	// JSONMode asks the provider for a single JSON object when the API supports it.
	JSONMode bool
}

// ResponseKind says whether the text looks like a structured payload.
type ResponseKind string

const (
	ResponseText ResponseKind = "text"
	ResponseJSON ResponseKind = "json"
)

// RawResponse is a successful completion.
type RawResponse struct {
	Text     string
	Kind     ResponseKind
	Provider string
	Model    string
}

// Adapter performs one completion against one provider with one key.
type Adapter interface {
	Complete(ctx context.Context, cfg config.ProviderConfig, key string, req Request) (RawResponse, error)
}

// AdapterFunc lets a plain function satisfy Adapter.
type AdapterFunc func(ctx context.Context, cfg config.ProviderConfig, key string, req Request) (RawResponse, error)

// Complete implements Adapter.
func (f AdapterFunc) Complete(ctx context.Context, cfg config.ProviderConfig, key string, req Request) (RawResponse, error) {
	return f(ctx, cfg, key, req)
}

func newResponse(cfg config.ProviderConfig, model, text string) RawResponse {
	if model == "" {
		model = cfg.Model
	}
	return RawResponse{Text: text, Kind: detectKind(text), Provider: cfg.ID, Model: model}
}

func detectKind(text string) ResponseKind {
	t := strings.TrimSpace(text)
	t = strings.TrimPrefix(t, "```json")
	t = strings.TrimPrefix(t, "```")
	if strings.HasPrefix(strings.TrimSpace(t), "{") {
		return ResponseJSON
	}
	return ResponseText
}

// buildMessages lays out the system prompt, the (trimmed) history and the user prompt.
func buildMessages(cfg config.ProviderConfig, req Request) []Message {
	history := TrimHistory(req.History, cfg.MaxHistoryTokens)
	msgs := make([]Message, 0, len(history)+2)
	if req.System != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: req.System})
	}
	msgs = append(msgs, history...)
	if req.Prompt != "" {
		msgs = append(msgs, Message{Role: RoleUser, Content: req.Prompt})
	}
	return msgs
}
