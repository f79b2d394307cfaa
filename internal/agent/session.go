// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package agent runs user commands end to end: the brain picks and validates an action,
// the orchestrator dispatches it, and the exchange is kept as conversation history.
package agent

import (
	"context"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/traylinx/tess/internal/action"
	"github.com/traylinx/tess/internal/brain"
	"github.com/traylinx/tess/internal/config"
	"github.com/traylinx/tess/internal/logging"
	"github.com/traylinx/tess/internal/orchestrator"
	"github.com/traylinx/tess/internal/provider"
	"github.com/traylinx/tess/internal/util"
)

// Decider turns user text into a validated action.
type Decider interface {
	Decide(ctx context.Context, text string, history []provider.Message) (brain.Decision, error)
}

// Dispatcher runs a validated action.
type Dispatcher interface {
	Dispatch(ctx context.Context, a action.Action, sink orchestrator.Sink) orchestrator.Result
}

// Reply is the outcome of one command.
type Reply struct {
	RequestID string      `json:"request_id"`
	Action    action.Kind `json:"action,omitempty"`
	Success   bool        `json:"success"`
	// Stage is set on failure and names the step that failed.
	Stage   brain.Stage `json:"stage,omitempty"`
	Message string      `json:"message"`
	// Provider answered the command. Empty when no provider did.
	Provider string `json:"provider,omitempty"`
}

// Persister keeps history outside the process.
type Persister interface {
	Load(ctx context.Context, sessionID string, limit int) ([]provider.Message, error)
	Append(ctx context.Context, sessionID string, limit int, msgs ...provider.Message) error
	Clear(ctx context.Context, sessionID string) error
}

// Options bound a session's memory.
type Options struct {
	// HistoryLimit caps stored messages; the oldest are dropped first.
	HistoryLimit int
	// HistoryWindow is how many of the most recent messages accompany a request.
	HistoryWindow int
	Redactor      *util.Redactor
	// Persist, when set, mirrors history so it survives restarts. Stored text is redacted.
	Persist Persister
}

// OptionsFrom returns the session options configured in cfg.
func OptionsFrom(cfg *config.Config, r *util.Redactor) Options {
	return Options{HistoryLimit: cfg.Brain.HistoryLimit, HistoryWindow: cfg.Brain.HistoryWindow, Redactor: r}
}

// Session is one conversation. Commands on a session run one at a time.
type Session struct {
	id      string
	created time.Time
	decider Decider
	disp    Dispatcher
	opts    Options

	// runMu serializes commands; mu guards history and is never held across a command.
	runMu   sync.Mutex
	mu      sync.Mutex
	history []provider.Message

	activeMu   sync.Mutex
	lastActive time.Time
}

// NewSession creates a session with an empty history.
func NewSession(id string, d Decider, disp Dispatcher, opts Options) *Session {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 20
	}
	if opts.HistoryWindow < 0 {
		opts.HistoryWindow = 0
	}
	if opts.HistoryWindow > opts.HistoryLimit {
		opts.HistoryWindow = opts.HistoryLimit
	}
	now := time.Now()
	return &Session{id: id, created: now, lastActive: now, decider: d, disp: disp, opts: opts}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Created returns when the session was opened.
func (s *Session) Created() time.Time { return s.created }

// LastActive returns when the session last handled a command.
func (s *Session) LastActive() time.Time {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	return s.lastActive
}

func (s *Session) touch() {
	s.activeMu.Lock()
	s.lastActive = time.Now()
	s.activeMu.Unlock()
}

// History returns a copy of the stored messages, oldest first.
func (s *Session) History() []provider.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]provider.Message(nil), s.history...)
}

// Restore loads persisted history. It is a no-op without a Persister.
func (s *Session) Restore(ctx context.Context) error {
	if s.opts.Persist == nil {
		return nil
	}
	msgs, err := s.opts.Persist.Load(ctx, s.id, s.opts.HistoryLimit)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.history = msgs
	s.mu.Unlock()
	return nil
}

// Clear forgets the conversation.
func (s *Session) Clear() {
	s.mu.Lock()
	s.history = nil
	s.mu.Unlock()
	if s.opts.Persist != nil {
		if err := s.opts.Persist.Clear(context.Background(), s.id); err != nil {
			log.Warnf("failed to clear stored history for session %s: %v", s.id, err)
		}
	}
}

func (s *Session) window() []provider.Message {
	n := s.opts.HistoryWindow
	if n == 0 || len(s.history) == 0 {
		return nil
	}
	if n > len(s.history) {
		n = len(s.history)
	}
	return append([]provider.Message(nil), s.history[len(s.history)-n:]...)
}

func (s *Session) remember(ctx context.Context, user, assistant string) {
	exchange := []provider.Message{
		{Role: provider.RoleUser, Content: user},
		{Role: provider.RoleAssistant, Content: assistant},
	}
	s.mu.Lock()
	s.history = append(s.history, exchange...)
	if over := len(s.history) - s.opts.HistoryLimit; over > 0 {
		s.history = append([]provider.Message(nil), s.history[over:]...)
	}
	s.mu.Unlock()
	if s.opts.Persist == nil {
		return
	}
	for i := range exchange {
		exchange[i].Content = s.opts.Redactor.Redact(exchange[i].Content)
	}
	if err := s.opts.Persist.Append(ctx, s.id, s.opts.HistoryLimit, exchange...); err != nil {
		logging.Entry(ctx).Warnf("failed to store history for session %s: %v", s.id, err)
	}
}

// Handle runs one command. Output lines produced while the action runs go to sink.
// An invalid action never reaches a handler.
func (s *Session) Handle(ctx context.Context, text string, sink orchestrator.Sink) Reply {
	reqID := logging.RequestIDFrom(ctx)
	if reqID == "" {
		reqID = logging.NewRequestID()
		ctx = logging.WithRequestID(ctx, reqID)
	}
	entry := logging.Entry(ctx).WithField("session", s.id)
	s.touch()

	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{RequestID: reqID, Stage: brain.StageBrain, Message: "[BRAIN] Empty command"}
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.mu.Lock()
	window := s.window()
	s.mu.Unlock()

	decision, err := s.decider.Decide(ctx, text, window)
	if err != nil {
		be, ok := brain.AsError(err)
		if !ok {
			be = brain.NewError(brain.StageBrain, s.opts.Redactor.Redact(err.Error()), err)
		}
		entry.Warnf("command failed: %s", be.UserMessage())
		return Reply{RequestID: reqID, Stage: be.Stage, Message: be.UserMessage()}
	}

	res := s.disp.Dispatch(ctx, decision.Action, sink)
	s.remember(ctx, text, decision.Response.Text)

	reply := Reply{
		RequestID: reqID,
		Action:    res.Kind,
		Success:   res.Success,
		Message:   res.Message,
		Provider:  decision.Response.Provider,
	}
	if !res.Success {
		reply.Stage = brain.StageDispatch
		reply.Message = brain.NewError(brain.StageDispatch, res.Message, nil).UserMessage()
	}
	entry.WithField("action", string(res.Kind)).Debugf("command handled (success=%t)", res.Success)
	return reply
}
