// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package security decides whether a shell command may run. A command is dangerous when
// the model flagged it or when it contains one of the configured patterns; what happens
// next depends on the configured security level.
package security

import (
	"context"
	"fmt"
	"strings"

	"github.com/traylinx/tess/internal/config"
)

// DefaultDangerousPatterns are always checked in addition to configured blocked commands.
var DefaultDangerousPatterns = []string{
	"rm -rf", "del /s", "format", "rd /s", "rmdir /s",
	"shutdown", "taskkill", "reg delete",
}

// Verdict is the outcome of a guard check.
type Verdict int

const (
	// Allow lets the command run.
	Allow Verdict = iota
	// Block refuses the command because of the security level.
	Block
	// Declined means confirmation was required and not given.
	Declined
)

func (v Verdict) String() string {
	switch v {
	case Allow:
		return "allow"
	case Block:
		return "block"
	case Declined:
		return "declined"
	}
	return fmt.Sprintf("verdict(%d)", int(v))
}

// ConfirmFunc asks the operator whether a dangerous command should run.
type ConfirmFunc func(ctx context.Context, command string) bool

// Guard applies the command safety policy.
type Guard struct {
	level    config.SecurityLevel
	confirm  bool
	patterns []string
	ask      ConfirmFunc
}

// NewGuard builds a guard from cfg. ask may be nil, in which case every confirmation
// is treated as refused.
func NewGuard(cfg config.SecurityConfig, ask ConfirmFunc) *Guard {
	patterns := make([]string, 0, len(DefaultDangerousPatterns)+len(cfg.BlockedCommands))
	seen := make(map[string]struct{})
	for _, p := range append(append([]string{}, DefaultDangerousPatterns...), cfg.BlockedCommands...) {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		patterns = append(patterns, p)
	}
	level := cfg.Level
	if level == "" {
		level = config.SecurityMedium
	}
	return &Guard{level: level, confirm: cfg.ConfirmDangerous, patterns: patterns, ask: ask}
}

// Level returns the active security level.
func (g *Guard) Level() config.SecurityLevel { return g.level }

// Dangerous reports whether command matches a dangerous pattern, case-insensitively,
// and returns the first pattern it matched.
func (g *Guard) Dangerous(command string) (bool, string) {
	lower := strings.ToLower(command)
	for _, p := range g.patterns {
		if strings.Contains(lower, p) {
			return true, p
		}
	}
	return false, ""
}

// Check evaluates command. flagged is the model's own is_dangerous marker. The returned
// message explains any verdict other than Allow.
func (g *Guard) Check(ctx context.Context, command string, flagged bool) (Verdict, string) {
	matched, _ := g.Dangerous(command)
	if !flagged && !matched {
		return Allow, ""
	}
	switch g.level {
	case config.SecurityHigh:
		return Block, "Command blocked by HIGH security level"
	case config.SecurityLow:
		return Allow, ""
	}
	if !g.confirm {
		return Allow, ""
	}
	if g.ask == nil || !g.ask(ctx, command) {
		return Declined, "Command cancelled."
	}
	return Allow, ""
}
