// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/traylinx/tess/internal/action"
	"github.com/traylinx/tess/internal/logging"
	"github.com/traylinx/tess/internal/orchestrator"
	"github.com/traylinx/tess/internal/security"
)

// shellTimeout bounds a single shell command.
const shellTimeout = 30 * time.Second

// ErrCommandTimeout is returned when a shell command outlives shellTimeout.
var ErrCommandTimeout = errors.New("command timed out after 30 seconds")

type shell struct {
	guard   *security.Guard
	runner  Runner
	goos    string
	timeout time.Duration
}

func newShell(d Deps) *shell {
	return &shell{guard: d.Guard, runner: d.Runner, goos: d.GOOS, timeout: shellTimeout}
}

func (s *shell) argv(command string) (string, []string) {
	if s.goos == "windows" {
		return "powershell", []string{"-Command", command}
	}
	return "sh", []string{"-c", command}
}

// Handle runs the command through the system shell once the guard allows it.
func (s *shell) Handle(ctx context.Context, a *action.ShellCommand, sink orchestrator.Sink, _ orchestrator.Brain) (string, error) {
	verdict, msg := s.guard.Check(ctx, a.Command, a.IsDangerous)
	switch verdict {
	case security.Block:
		return "", errors.New(msg)
	case security.Declined:
		return msg, nil
	}

	sink("[TESS] Executing: " + a.Command)
	logging.Entry(ctx).Infof("executing shell command: %s", a.Command)

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	name, args := s.argv(a.Command)
	out, err := s.runner.Output(runCtx, name, args...)
	output := strings.TrimRight(string(out), "\r\n")

	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return "", ErrCommandTimeout
		}
		if output != "" {
			sink("[OUTPUT]\n" + preview(output, sinkPreview))
			return "", fmt.Errorf("%v: %s", err, preview(output, sinkPreview))
		}
		return "", err
	}

	if output == "" {
		return "Command executed successfully (no output)", nil
	}
	sink("[OUTPUT]\n" + preview(output, sinkPreview))
	return output, nil
}
