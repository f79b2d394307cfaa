// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package handlers implements the built-in action handlers and assembles them into an
// orchestrator registry according to the configured feature toggles.
//
// WhatsApp, trip planning and document processing are external collaborators and are
// never registered here; callers that have them set the corresponding fields on the
// returned registry themselves.
package handlers

import (
	"context"
	"os/exec"
	"runtime"

	"github.com/skratchdot/open-golang/open"
	"github.com/traylinx/tess/internal/action"
	"github.com/traylinx/tess/internal/config"
	"github.com/traylinx/tess/internal/orchestrator"
	"github.com/traylinx/tess/internal/security"
)

// sinkPreview is the number of characters of command or file output echoed to the sink.
const sinkPreview = 1000

// Opener hands a target to the desktop environment.
type Opener interface {
	// Open opens target (a URL or path) with its default application.
	Open(target string) error
}

// Runner runs host processes.
type Runner interface {
	// Output runs name and waits, returning its combined output.
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
	// Start launches name without waiting for it to exit.
	Start(name string, args ...string) error
}

// SkillRunner executes a named skill.
type SkillRunner interface {
	Run(ctx context.Context, name string, sink orchestrator.Sink, brain orchestrator.Brain) (string, error)
}

// Deps carries the collaborators of the built-in handlers. Zero fields fall back to the
// host implementations.
type Deps struct {
	Guard  *security.Guard
	Opener Opener
	Runner Runner
	Skills SkillRunner
	// GOOS selects the app table and shell. Defaults to runtime.GOOS.
	GOOS string
}

// Build returns the registry for the enabled features of cfg.
func Build(cfg *config.Config, deps Deps) orchestrator.Handlers {
	deps = deps.withDefaults(cfg)
	f := cfg.Features

	var h orchestrator.Handlers
	h.Reply = handleReply
	h.Error = handleError
	if f.Apps {
		h.OpenApp = newAppLauncher(deps).Handle
	}
	if f.Shell {
		h.ShellCommand = newShell(deps).Handle
	}
	if f.Browser {
		b := browser{opener: deps.Opener}
		h.BrowserSearch = b.Search
		h.OpenURL = b.OpenURL
	}
	if f.Files {
		h.FileOp = handleFileOp
	}
	if f.System {
		h.SystemControl = newSystemControl(deps).Handle
	}
	if f.Research {
		h.Research = handleResearch
	}
	if f.Skills && deps.Skills != nil {
		h.RunSkill = skills{runner: deps.Skills}.Handle
	}
	return h
}

func (d Deps) withDefaults(cfg *config.Config) Deps {
	if d.Guard == nil {
		d.Guard = security.NewGuard(cfg.Security, nil)
	}
	if d.Opener == nil {
		d.Opener = desktopOpener{}
	}
	if d.Runner == nil {
		d.Runner = execRunner{}
	}
	if d.GOOS == "" {
		d.GOOS = runtime.GOOS
	}
	return d
}

type desktopOpener struct{}

func (desktopOpener) Open(target string) error { return open.Start(target) }

type execRunner struct{}

func (execRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

func (execRunner) Start(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// preview truncates s to limit runes.
func preview(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}

func handleReply(_ context.Context, a *action.Reply, _ orchestrator.Sink, _ orchestrator.Brain) (string, error) {
	return a.Content, nil
}

// handleError relays the model's own refusal. It is a successful dispatch: the model
// answered, it just could not map the request to an action.
func handleError(_ context.Context, a *action.Error, _ orchestrator.Sink, _ orchestrator.Brain) (string, error) {
	if a.Reason == "" {
		return "Unknown error", nil
	}
	return a.Reason, nil
}
