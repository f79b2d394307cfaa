// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package orchestrator dispatches a validated action to the handler registered for its
// kind. It is the boundary where handler failures, including panics, become a Result.
package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/traylinx/tess/internal/action"
	"github.com/traylinx/tess/internal/hooks"
	"github.com/traylinx/tess/internal/logging"
	"github.com/traylinx/tess/internal/util"
)

// Sink receives progress lines while a handler runs. It must be safe to call from the
// handler's goroutine.
type Sink func(line string)

// Discard is a Sink that drops every line.
func Discard(string) {}

// Brain is the model access handlers may use for follow-up questions.
type Brain interface {
	Ask(ctx context.Context, prompt string) (string, error)
}

// Handler executes one action kind and returns the line reported to the user.
type Handler[A action.Action] func(ctx context.Context, a A, sink Sink, brain Brain) (string, error)

// Result is the outcome of one dispatch.
type Result struct {
	Kind    action.Kind `json:"kind"`
	Success bool        `json:"success"`
	Message string      `json:"message"`
}

// Dispatcher routes actions to handlers.
type Dispatcher struct {
	handlers Handlers
	brain    Brain
	bus      *hooks.EventBus
	redactor *util.Redactor
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithEventBus publishes dispatch events to bus.
func WithEventBus(bus *hooks.EventBus) Option {
	return func(d *Dispatcher) { d.bus = bus }
}

// WithRedactor scrubs failure messages before they reach the sink or the Result.
func WithRedactor(r *util.Redactor) Option {
	return func(d *Dispatcher) { d.redactor = r }
}

// New returns a Dispatcher over h. brain may be nil when no handler needs it.
func New(h Handlers, brain Brain, opts ...Option) *Dispatcher {
	d := &Dispatcher{handlers: h, brain: brain}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handlers returns the registry the dispatcher was built with.
func (d *Dispatcher) Handlers() Handlers { return d.handlers }

// Dispatch runs the handler registered for a's kind. It never panics.
func (d *Dispatcher) Dispatch(ctx context.Context, a action.Action, sink Sink) Result {
	if sink == nil {
		sink = Discard
	}
	h := &d.handlers
	switch v := a.(type) {
	case *action.OpenApp:
		return run(ctx, d, v, h.OpenApp, sink)
	case *action.ShellCommand:
		return run(ctx, d, v, h.ShellCommand, sink)
	case *action.BrowserSearch:
		return run(ctx, d, v, h.BrowserSearch, sink)
	case *action.OpenURL:
		return run(ctx, d, v, h.OpenURL, sink)
	case *action.SystemControl:
		return run(ctx, d, v, h.SystemControl, sink)
	case *action.FileOp:
		return run(ctx, d, v, h.FileOp, sink)
	case *action.WhatsAppSend:
		return run(ctx, d, v, h.WhatsAppSend, sink)
	case *action.TripPlanner:
		return run(ctx, d, v, h.TripPlanner, sink)
	case *action.DocumentOp:
		return run(ctx, d, v, h.DocumentOp, sink)
	case *action.Research:
		return run(ctx, d, v, h.Research, sink)
	case *action.RunSkill:
		return run(ctx, d, v, h.RunSkill, sink)
	case *action.Reply:
		return run(ctx, d, v, h.Reply, sink)
	case *action.Error:
		return run(ctx, d, v, h.Error, sink)
	}
	kind := action.Kind("none")
	if a != nil {
		kind = a.Kind()
	}
	return d.unhandled(ctx, kind)
}

func run[A action.Action](ctx context.Context, d *Dispatcher, a A, h Handler[A], sink Sink) (res Result) {
	kind := a.Kind()
	if h == nil {
		return d.unhandled(ctx, kind)
	}

	defer func() {
		if r := recover(); r != nil {
			logging.Entry(ctx).WithField("action", string(kind)).Errorf("handler panic: %v\n%s", r, debug.Stack())
			res = d.fault(ctx, kind, fmt.Sprint(r), sink)
		}
	}()

	msg, err := h(ctx, a, sink, d.brain)
	if err != nil {
		return d.fault(ctx, kind, err.Error(), sink)
	}
	d.publish(ctx, hooks.EventActionDispatched, kind, "")
	return Result{Kind: kind, Success: true, Message: msg}
}

func (d *Dispatcher) unhandled(ctx context.Context, kind action.Kind) Result {
	msg := "Unhandled action type: " + string(kind)
	logging.Entry(ctx).Warn(msg)
	d.publish(ctx, hooks.EventDispatchFailed, kind, msg)
	return Result{Kind: kind, Success: false, Message: msg}
}

func (d *Dispatcher) fault(ctx context.Context, kind action.Kind, desc string, sink Sink) Result {
	msg := d.redactor.Redact(fmt.Sprintf("Error in %s: %s", kind, desc))
	logging.Entry(ctx).WithField("action", string(kind)).Error(msg)
	func() {
		// A failing sink must not turn a reported fault into a crash.
		defer func() { _ = recover() }()
		sink("[ERROR] " + msg)
	}()
	d.publish(ctx, hooks.EventDispatchFailed, kind, msg)
	return Result{Kind: kind, Success: false, Message: msg}
}

func (d *Dispatcher) publish(ctx context.Context, event hooks.HookEvent, kind action.Kind, msg string) {
	if d.bus == nil {
		return
	}
	evt := hooks.NewEvent(event, nil)
	evt.Action = string(kind)
	evt.ErrorMessage = msg
	evt.RequestID = logging.RequestIDFrom(ctx)
	d.bus.Publish(evt)
}
