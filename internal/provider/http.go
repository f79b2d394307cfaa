// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/traylinx/tess/internal/config"
	"github.com/traylinx/tess/internal/util"
)

// maxErrorBody bounds how much of an error body is kept in Error.Message.
const maxErrorBody = 512

// post sends body to url with the provider timeout applied and returns the 2xx body.
// Non-2xx statuses and transport failures come back as *Error.
func post(ctx context.Context, client *http.Client, cfg config.ProviderConfig, url string, headers map[string]string, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindMalformed, Provider: cfg.ID, Message: "invalid request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", "tess-agent")
	for k, v := range cfg.Headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	log.Debugf("provider %s: POST %s (authorization %s)", cfg.ID, maskedURL(url), util.MaskAuthorizationHeader(httpReq.Header.Get("Authorization")))
	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, transportError(cfg.ID, err)
	}
	defer func() {
		if errClose := httpResp.Body.Close(); errClose != nil {
			log.Errorf("provider %s: close response body error: %v", cfg.ID, errClose)
		}
	}()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, transportError(cfg.ID, err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		log.Debugf("provider %s: error status %d", cfg.ID, httpResp.StatusCode)
		return nil, classifyStatus(cfg.ID, httpResp.StatusCode, httpResp.Header, data)
	}
	return data, nil
}

// maskedURL hides credential query parameters for logging.
func maskedURL(raw string) string {
	base, query, ok := strings.Cut(raw, "?")
	if !ok {
		return raw
	}
	return base + "?" + util.MaskSensitiveQuery(query)
}

func transportError(providerID string, err error) *Error {
	msg := "network error"
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		msg = "request timed out"
	case errors.Is(err, context.Canceled):
		msg = "request cancelled"
	case errors.As(err, &netErr) && netErr.Timeout():
		msg = "request timed out"
	}
	return &Error{Kind: KindTransient, Provider: providerID, Message: msg, Err: err}
}

// classifyStatus maps an HTTP status to an error kind:
// 429 is rate_limited, 401 and 403 are auth_error, 408 and 5xx are transient_error,
// every other status is malformed_response.
func classifyStatus(providerID string, status int, header http.Header, body []byte) *Error {
	e := &Error{Provider: providerID, StatusCode: status, Message: errorMessage(body)}
	switch {
	case status == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
		e.RetryAfter = retryAfter(header, body)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind = KindAuth
	case status == http.StatusRequestTimeout || status >= 500:
		e.Kind = KindTransient
	default:
		e.Kind = KindMalformed
	}
	return e
}

// errorMessage pulls the human-readable message out of the common error envelopes.
func errorMessage(body []byte) string {
	for _, path := range []string{"error.message", "error", "message"} {
		if r := gjson.GetBytes(body, path); r.Exists() && r.Type == gjson.String && r.String() != "" {
			return truncate(r.String(), maxErrorBody)
		}
	}
	return truncate(strings.TrimSpace(string(body)), maxErrorBody)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// retryAfter reads the Retry-After header (seconds or HTTP date) and falls back to the
// google.rpc.RetryInfo detail used by Gemini.
func retryAfter(header http.Header, body []byte) time.Duration {
	if v := strings.TrimSpace(header.Get("Retry-After")); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
		if t, err := http.ParseTime(v); err == nil {
			if d := time.Until(t); d > 0 {
				return d
			}
		}
	}
	if d, err := parseRetryDelay(body); err == nil {
		return d
	}
	return 0
}

// parseRetryDelay extracts error.details[].retryDelay ("0.847655010s") from a Google API error.
func parseRetryDelay(body []byte) (time.Duration, error) {
	details := gjson.GetBytes(body, "error.details")
	if details.IsArray() {
		for _, detail := range details.Array() {
			if detail.Get("@type").String() != "type.googleapis.com/google.rpc.RetryInfo" {
				continue
			}
			if raw := detail.Get("retryDelay").String(); raw != "" {
				d, err := time.ParseDuration(raw)
				if err != nil {
					return 0, fmt.Errorf("parse retryDelay %q: %w", raw, err)
				}
				return d, nil
			}
		}
	}
	return 0, errors.New("no retry delay")
}

func newHTTPClient() *http.Client {
	// Per-call deadlines come from the request context.
	return &http.Client{}
}
