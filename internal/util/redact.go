// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package util

import (
	"regexp"
	"sort"
	"strings"
	"sync"
)

// RedactedMarker replaces every credential removed from text.
const RedactedMarker = "[REDACTED]"

// MinSecretLength is the shortest value Register accepts as a known secret.
// Shorter values would shred ordinary words out of the text.
const MinSecretLength = 8

var (
	credentialPatterns = []*regexp.Regexp{
		regexp.MustCompile(`sk-(?:proj-|ant-)?[A-Za-z0-9_\-]{8,}`),
		regexp.MustCompile(`gsk_[A-Za-z0-9]{8,}`),
		regexp.MustCompile(`AIza[0-9A-Za-z_\-]{20,}`),
		regexp.MustCompile(`xai-[A-Za-z0-9]{8,}`),
	}
	bearerPattern    = regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9._~+/\-]+=*`)
	queryKeyPattern  = regexp.MustCompile(`(?i)([?&](?:key|api_key|apikey|access_token|token)=)[^&\s"']+`)
	jsonSecretFields = regexp.MustCompile(`(?i)("(?:api_?key|apikey|token|secret|password|authorization)"\s*:\s*")(?:[^"\\]|\\.)*(")`)
)

// Redactor removes credentials from text before it reaches logs or the user.
// It knows the common provider key shapes and every key registered with it.
type Redactor struct {
	mu      sync.RWMutex
	secrets []string
	seen    map[string]struct{}
}

// NewRedactor builds a Redactor seeded with known secrets.
func NewRedactor(secrets ...string) *Redactor {
	r := &Redactor{seen: make(map[string]struct{})}
	r.Register(secrets...)
	return r
}

// Register adds exact secret values. Values shorter than MinSecretLength are ignored.
func (r *Redactor) Register(secrets ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range secrets {
		s = strings.TrimSpace(s)
		if len(s) < MinSecretLength {
			continue
		}
		if _, ok := r.seen[s]; ok {
			continue
		}
		r.seen[s] = struct{}{}
		r.secrets = append(r.secrets, s)
	}
	// Longest first so a key that contains another key is removed whole.
	sort.Slice(r.secrets, func(i, j int) bool { return len(r.secrets[i]) > len(r.secrets[j]) })
}

// Redact returns text with every known secret and recognizable credential replaced by RedactedMarker.
func (r *Redactor) Redact(text string) string {
	if text == "" {
		return text
	}
	if r != nil {
		r.mu.RLock()
		for _, s := range r.secrets {
			if strings.Contains(text, s) {
				text = strings.ReplaceAll(text, s, RedactedMarker)
			}
		}
		r.mu.RUnlock()
	}
	return RedactPatterns(text)
}

// RedactPatterns strips credentials that can be recognized by shape alone.
func RedactPatterns(text string) string {
	for _, p := range credentialPatterns {
		text = p.ReplaceAllString(text, RedactedMarker)
	}
	text = bearerPattern.ReplaceAllString(text, "${1}"+RedactedMarker)
	text = queryKeyPattern.ReplaceAllString(text, "${1}"+RedactedMarker)
	text = jsonSecretFields.ReplaceAllString(text, "${1}"+RedactedMarker+"${2}")
	return text
}
