// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package util

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestRedactor_KnownPatterns(t *testing.T) {
	r := NewRedactor()

	tests := []struct {
		name   string
		input  string
		absent string
	}{
		{"openai key", "invalid key sk-proj-abcdefghijklmnop1234", "abcdefghijklmnop1234"},
		{"groq key", "groq rejected gsk_ABCDEFGH12345678", "ABCDEFGH12345678"},
		{"gemini key", "url https://x/v1?key=AIzaSyA1234567890abcdefghijkl", "AIzaSyA1234567890abcdefghijkl"},
		{"bearer header", "Authorization: Bearer abc.def.ghi-123", "abc.def.ghi-123"},
		{"json secret", `{"error":"bad","api_key":"plain-secret-value"}`, "plain-secret-value"},
		{"query token", "GET /models?access_token=tok123456&x=1", "tok123456"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := r.Redact(tt.input)
			assert.NotContains(t, out, tt.absent)
			assert.Contains(t, out, RedactedMarker)
		})
	}
}

func TestRedactor_RegisteredSecret(t *testing.T) {
	r := NewRedactor("custom-provider-secret")
	out := r.Redact("upstream said: custom-provider-secret is not valid")
	assert.Equal(t, "upstream said: [REDACTED] is not valid", out)
}

func TestRedactor_IgnoresShortSecrets(t *testing.T) {
	r := NewRedactor("abc")
	assert.Equal(t, "abc def", r.Redact("abc def"))
}

func TestRedactor_LongestFirst(t *testing.T) {
	r := NewRedactor("secret-key-one", "secret-key-one-extended")
	out := r.Redact("value=secret-key-one-extended")
	assert.Equal(t, "value=[REDACTED]", out)
}

func TestRedactor_NilSafe(t *testing.T) {
	var r *Redactor
	assert.Equal(t, "Bearer [REDACTED]", r.Redact("Bearer abcdef"))
}

func TestHideAPIKey(t *testing.T) {
	assert.Equal(t, "sk-a...wxyz", HideAPIKey("sk-abcdefghijklmnopqrstuvwxyz"))
	assert.Equal(t, "ab...ef", HideAPIKey("abcdef"))
	assert.Equal(t, "a...d", HideAPIKey("abcd"))
	assert.Equal(t, "ab", HideAPIKey("ab"))
	assert.Equal(t, "Bearer sk-a...7890", MaskAuthorizationHeader("Bearer sk-abcdef1234567890"))
}

func TestMaskSensitiveQuery(t *testing.T) {
	out := MaskSensitiveQuery("alt=sse&key=AIzaSyA1234567890")
	assert.True(t, strings.HasPrefix(out, "alt=sse&key="))
	assert.NotContains(t, out, "AIzaSyA1234567890")
	assert.Equal(t, "alt=sse", MaskSensitiveQuery("alt=sse"))
}

// TestProperty_RegisteredKeyNeverLeaks checks that a registered key never survives
// redaction, whatever text surrounds it.
func TestProperty_RegisteredKeyNeverLeaks(t *testing.T) {
	properties := gopter.NewProperties(nil)

	keyGen := gen.AlphaString().Map(func(s string) string { return "k" + s + "9x8w7v6" })

	properties.Property("registered key is absent from redacted output", prop.ForAll(
		func(key, prefix, suffix string, repeat int) bool {
			r := NewRedactor(key)
			text := prefix + strings.Repeat(key+" ", repeat) + key + suffix
			return !strings.Contains(r.Redact(text), key)
		},
		keyGen,
		gen.AlphaString(),
		gen.AlphaString(),
		gen.IntRange(0, 3),
	))

	properties.TestingRun(t)
}
