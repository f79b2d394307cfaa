// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package security

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/traylinx/tess/internal/config"
)

func always(answer bool, calls *int) ConfirmFunc {
	return func(context.Context, string) bool {
		*calls++
		return answer
	}
}

func TestGuard_Dangerous(t *testing.T) {
	g := NewGuard(config.SecurityConfig{BlockedCommands: []string{"  DD IF=", "rm -rf"}}, nil)

	tests := []struct {
		cmd     string
		want    bool
		pattern string
	}{
		{"ls -la", false, ""},
		{"RM -RF /tmp/x", true, "rm -rf"},
		{"sudo shutdown now", true, "shutdown"},
		{"dd if=/dev/zero of=/dev/sda", true, "dd if="},
		{"taskkill /F /IM chrome.exe", true, "taskkill"},
		{"echo hello", false, ""},
	}
	for _, tt := range tests {
		got, pattern := g.Dangerous(tt.cmd)
		assert.Equal(t, tt.want, got, tt.cmd)
		assert.Equal(t, tt.pattern, pattern, tt.cmd)
	}
	assert.Len(t, g.patterns, len(DefaultDangerousPatterns)+1)
}

func TestGuard_Check(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		cfg     config.SecurityConfig
		answer  bool
		cmd     string
		flagged bool
		want    Verdict
		asked   int
	}{
		{"safe command", config.SecurityConfig{Level: config.SecurityHigh, ConfirmDangerous: true}, false, "ls", false, Allow, 0},
		{"high blocks pattern", config.SecurityConfig{Level: config.SecurityHigh, ConfirmDangerous: true}, true, "rm -rf /", false, Block, 0},
		{"high blocks flagged", config.SecurityConfig{Level: config.SecurityHigh}, true, "ls", true, Block, 0},
		{"medium confirmed", config.SecurityConfig{Level: config.SecurityMedium, ConfirmDangerous: true}, true, "shutdown -h", false, Allow, 1},
		{"medium declined", config.SecurityConfig{Level: config.SecurityMedium, ConfirmDangerous: true}, false, "shutdown -h", false, Declined, 1},
		{"medium no confirm", config.SecurityConfig{Level: config.SecurityMedium}, false, "shutdown -h", false, Allow, 0},
		{"low allows", config.SecurityConfig{Level: config.SecurityLow, ConfirmDangerous: true}, false, "rm -rf /", true, Allow, 0},
		{"empty level is medium", config.SecurityConfig{ConfirmDangerous: true}, false, "format c:", false, Declined, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			g := NewGuard(tt.cfg, always(tt.answer, &calls))
			got, msg := g.Check(ctx, tt.cmd, tt.flagged)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.asked, calls)
			if got == Allow {
				assert.Empty(t, msg)
			} else {
				assert.NotEmpty(t, msg)
			}
		})
	}
}

func TestGuard_NilConfirmRefuses(t *testing.T) {
	g := NewGuard(config.SecurityConfig{Level: config.SecurityMedium, ConfirmDangerous: true}, nil)
	got, _ := g.Check(context.Background(), "rd /s C:\\temp", false)
	assert.Equal(t, Declined, got)
	assert.Equal(t, config.SecurityMedium, g.Level())
	assert.Equal(t, "declined", got.String())
}
