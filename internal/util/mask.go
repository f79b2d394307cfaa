// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package util provides small helpers shared across tess: credential masking,
// redaction of provider error text and state directory resolution.
package util

import (
	"net/url"
	"strings"
)

// HideAPIKey obscures an API key for status output, keeping only a short prefix and suffix.
//
// Parameters:
//   - apiKey: The API key to hide
//
// Returns:
//   - string: The obscured API key
func HideAPIKey(apiKey string) string {
	if len(apiKey) > 8 {
		return apiKey[:4] + "..." + apiKey[len(apiKey)-4:]
	} else if len(apiKey) > 4 {
		return apiKey[:2] + "..." + apiKey[len(apiKey)-2:]
	} else if len(apiKey) > 2 {
		return apiKey[:1] + "..." + apiKey[len(apiKey)-1:]
	}
	return apiKey
}

// MaskAuthorizationHeader masks an Authorization header value but keeps the scheme,
// so "Bearer sk-abcdef123456" becomes "Bearer sk-a...3456".
func MaskAuthorizationHeader(value string) string {
	parts := strings.SplitN(strings.TrimSpace(value), " ", 2)
	if len(parts) < 2 {
		return HideAPIKey(value)
	}
	return parts[0] + " " + HideAPIKey(parts[1])
}

// MaskSensitiveQuery masks credential-bearing query parameters such as key= (Gemini)
// within a raw query string.
func MaskSensitiveQuery(raw string) string {
	if raw == "" {
		return ""
	}
	parts := strings.Split(raw, "&")
	changed := false
	for i, part := range parts {
		if part == "" {
			continue
		}
		name, value, _ := strings.Cut(part, "=")
		decodedName, err := url.QueryUnescape(name)
		if err != nil {
			decodedName = name
		}
		if !isSensitiveParam(decodedName) {
			continue
		}
		decodedValue, err := url.QueryUnescape(value)
		if err != nil {
			decodedValue = value
		}
		parts[i] = name + "=" + url.QueryEscape(HideAPIKey(strings.TrimSpace(decodedValue)))
		changed = true
	}
	if !changed {
		return raw
	}
	return strings.Join(parts, "&")
}

func isSensitiveParam(key string) bool {
	key = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(key)), "[]")
	if key == "" {
		return false
	}
	if key == "key" || strings.Contains(key, "api-key") || strings.Contains(key, "apikey") || strings.Contains(key, "api_key") {
		return true
	}
	return strings.Contains(key, "token") || strings.Contains(key, "secret")
}
