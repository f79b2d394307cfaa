// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package provider

import (
	"context"
	"strings"

	"github.com/tidwall/sjson"
	"github.com/traylinx/tess/internal/config"
)

// Mock answers without any network access. It maps a few command shapes onto actions
// so the whole pipeline can run offline (TESS_MODE=MOCK).
type Mock struct{}

// NewMock creates a mock adapter.
func NewMock() *Mock { return &Mock{} }

var _ Adapter = (*Mock)(nil)

// Complete implements Adapter.
func (m *Mock) Complete(ctx context.Context, cfg config.ProviderConfig, _ string, req Request) (RawResponse, error) {
	if err := ctx.Err(); err != nil {
		return RawResponse{}, transportError(cfg.ID, err)
	}
	if !req.JSONMode {
		return newResponse(cfg, "mock", "Mock summary: "+strings.TrimSpace(req.Prompt)), nil
	}
	return newResponse(cfg, "mock", mockAction(req.Prompt)), nil
}

func mockAction(prompt string) string {
	text := strings.TrimSpace(prompt)
	lower := strings.ToLower(text)
	out := []byte(`{}`)

	switch {
	case strings.HasPrefix(lower, "open http://"), strings.HasPrefix(lower, "open https://"):
		out, _ = sjson.SetBytes(out, "action", "open_url")
		out, _ = sjson.SetBytes(out, "url", strings.TrimSpace(text[len("open "):]))
	case strings.HasPrefix(lower, "open "), strings.HasPrefix(lower, "launch "):
		_, target, _ := strings.Cut(text, " ")
		out, _ = sjson.SetBytes(out, "action", "open_app")
		out, _ = sjson.SetBytes(out, "target", strings.TrimSpace(target))
	case strings.HasPrefix(lower, "search "):
		out, _ = sjson.SetBytes(out, "action", "browser_search")
		out, _ = sjson.SetBytes(out, "query", strings.TrimSpace(text[len("search "):]))
	case strings.HasPrefix(lower, "run "):
		out, _ = sjson.SetBytes(out, "action", "shell_command")
		out, _ = sjson.SetBytes(out, "command", strings.TrimSpace(text[len("run "):]))
	case strings.HasPrefix(lower, "skill "):
		out, _ = sjson.SetBytes(out, "action", "run_skill")
		out, _ = sjson.SetBytes(out, "name", strings.TrimSpace(text[len("skill "):]))
	case strings.HasPrefix(lower, "research "):
		out, _ = sjson.SetBytes(out, "action", "research_op")
		out, _ = sjson.SetBytes(out, "topic", strings.TrimSpace(text[len("research "):]))
	default:
		out, _ = sjson.SetBytes(out, "action", "reply")
		out, _ = sjson.SetBytes(out, "content", "You said: "+text)
	}
	out, _ = sjson.SetBytes(out, "reason", "mock mode")
	return string(out)
}
