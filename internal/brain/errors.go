// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package brain

import (
	"errors"

	"github.com/traylinx/tess/internal/provider"
)

// Stage names the pipeline step a user-visible failure came from.
type Stage string

const (
	StageBrain      Stage = "BRAIN"
	StageValidation Stage = "VALIDATION"
	StageDispatch   Stage = "DISPATCH"
)

// ErrProvidersExhausted is wrapped by the Error returned when no provider produced a
// usable completion.
var ErrProvidersExhausted = errors.New("brain: all providers exhausted")

// ErrNoProviders is wrapped when the configuration lists no provider at all.
var ErrNoProviders = errors.New("brain: no providers configured")

// Attempt records one failed provider call. Message is already redacted.
type Attempt struct {
	Provider string             `json:"provider"`
	Kind     provider.ErrorKind `json:"kind"`
	Message  string             `json:"message,omitempty"`
}

// Error is the single consolidated failure surfaced to callers. Message is redacted
// and fits on one line.
type Error struct {
	Stage    Stage
	Message  string
	Attempts []Attempt
	Err      error
}

// NewError builds a stage error. message must already be redacted.
func NewError(stage Stage, message string, err error) *Error {
	return &Error{Stage: stage, Message: message, Err: err}
}

func (e *Error) Error() string { return e.UserMessage() }

func (e *Error) Unwrap() error { return e.Err }

// UserMessage renders the line shown to the user, e.g. "[BRAIN] All providers are unavailable".
func (e *Error) UserMessage() string {
	return "[" + string(e.Stage) + "] " + e.Message
}

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var be *Error
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
