// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package logging

import (
	"context"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/traylinx/tess/internal/util"
)

// RequestIDField is the logrus field carrying the per-command correlation id.
const RequestIDField = "request_id"

type requestIDKey struct{}

// RedactionHook scrubs credentials from every entry before it is formatted.
type RedactionHook struct {
	redactor *util.Redactor
}

// NewRedactionHook returns a hook backed by redactor.
func NewRedactionHook(redactor *util.Redactor) *RedactionHook {
	return &RedactionHook{redactor: redactor}
}

// Levels implements log.Hook.
func (h *RedactionHook) Levels() []log.Level { return log.AllLevels }

// Fire implements log.Hook.
func (h *RedactionHook) Fire(entry *log.Entry) error {
	entry.Message = h.redactor.Redact(entry.Message)
	for k, v := range entry.Data {
		switch val := v.(type) {
		case string:
			entry.Data[k] = h.redactor.Redact(val)
		case error:
			entry.Data[k] = h.redactor.Redact(val.Error())
		}
	}
	return nil
}

// InstallRedaction attaches a RedactionHook to the standard logger.
func InstallRedaction(redactor *util.Redactor) {
	log.AddHook(NewRedactionHook(redactor))
}

// NewRequestID returns a short correlation id.
func NewRequestID() string {
	return uuid.NewString()[:8]
}

// WithRequestID stores id in ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the id stored in ctx, or "".
func RequestIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Entry returns a logrus entry tagged with the request id carried by ctx.
func Entry(ctx context.Context) *log.Entry {
	if id := RequestIDFrom(ctx); id != "" {
		return log.WithField(RequestIDField, id)
	}
	return log.NewEntry(log.StandardLogger())
}
