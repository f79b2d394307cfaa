// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package handlers

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/traylinx/tess/internal/action"
	"github.com/traylinx/tess/internal/orchestrator"
)

const searchURL = "https://www.google.com/search?q="

type browser struct {
	opener Opener
}

// SearchURL returns the web search address for query.
func SearchURL(query string) string {
	return searchURL + url.QueryEscape(query)
}

// Search opens a web search for the query in the default browser.
func (b browser) Search(_ context.Context, a *action.BrowserSearch, sink orchestrator.Sink, _ orchestrator.Brain) (string, error) {
	if err := b.opener.Open(SearchURL(a.Query)); err != nil {
		return "", fmt.Errorf("failed to open browser: %w", err)
	}
	sink("[TESS] Searching: " + a.Query)
	return "Searching for: " + a.Query, nil
}

// OpenURL opens an http(s) address in the default browser. Bare hosts get https.
func (b browser) OpenURL(_ context.Context, a *action.OpenURL, _ orchestrator.Sink, _ orchestrator.Brain) (string, error) {
	target, err := normalizeURL(a.URL)
	if err != nil {
		return "", err
	}
	if err := b.opener.Open(target); err != nil {
		return "", fmt.Errorf("failed to open browser: %w", err)
	}
	return "Opened " + target, nil
}

func normalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported url scheme: %s", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid url %q: missing host", raw)
	}
	return u.String(), nil
}
