// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package handlers

import (
	"context"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/traylinx/tess/internal/action"
	"github.com/traylinx/tess/internal/orchestrator"
	"github.com/traylinx/tess/internal/util"
)

// launch is the process started for a known app.
type launch struct {
	name string
	args []string
}

var windowsApps = map[string]launch{
	"chrome":     {name: "chrome"},
	"firefox":    {name: "firefox"},
	"edge":       {name: "msedge"},
	"notepad":    {name: "notepad"},
	"calculator": {name: "calc"},
	"explorer":   {name: "explorer"},
	"cmd":        {name: "cmd"},
	"powershell": {name: "powershell"},
	"code":       {name: "code"},
	"spotify":    {name: "spotify"},
}

var darwinApps = map[string]launch{
	"chrome":   {name: "open", args: []string{"-a", "Google Chrome"}},
	"firefox":  {name: "open", args: []string{"-a", "Firefox"}},
	"safari":   {name: "open", args: []string{"-a", "Safari"}},
	"terminal": {name: "open", args: []string{"-a", "Terminal"}},
}

var linuxApps = map[string]launch{
	"chrome":   {name: "google-chrome"},
	"firefox":  {name: "firefox"},
	"terminal": {name: "gnome-terminal"},
	"code":     {name: "code"},
}

func appTable(goos string) map[string]launch {
	switch goos {
	case "windows":
		return windowsApps
	case "darwin":
		return darwinApps
	default:
		return linuxApps
	}
}

type appLauncher struct {
	apps   map[string]launch
	runner Runner
	opener Opener
}

func newAppLauncher(d Deps) *appLauncher {
	return &appLauncher{apps: appTable(d.GOOS), runner: d.Runner, opener: d.Opener}
}

// normalizeApp lowercases name and drops a trailing .exe.
func normalizeApp(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.TrimSuffix(name, ".exe")
}

// Handle starts a known app, or opens an existing path with its default application.
func (l *appLauncher) Handle(_ context.Context, a *action.OpenApp, _ orchestrator.Sink, _ orchestrator.Brain) (string, error) {
	if app, ok := l.apps[normalizeApp(a.Target)]; ok {
		log.Debugf("launching %s %v", app.name, app.args)
		if err := l.runner.Start(app.name, app.args...); err != nil {
			return "", fmt.Errorf("failed to launch %s: %w", a.Target, err)
		}
		return "Launched " + a.Target, nil
	}

	if path, err := util.ExpandPath(a.Target); err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			if err := l.opener.Open(path); err != nil {
				return "", fmt.Errorf("failed to open %s: %w", a.Target, err)
			}
			return "Opened " + a.Target, nil
		}
	}
	return "", fmt.Errorf("unknown app: %s", a.Target)
}
