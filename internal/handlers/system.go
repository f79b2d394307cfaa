// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package handlers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/traylinx/tess/internal/action"
	"github.com/traylinx/tess/internal/orchestrator"
)

const (
	processLimit   = 10
	processTimeout = 10 * time.Second
	volumeStep     = 10
)

// ErrUnsupportedSystemAction is returned for system_control operations this host cannot perform.
var ErrUnsupportedSystemAction = errors.New("system action is not supported on this platform")

type systemControl struct {
	runner Runner
	goos   string
	// shotDir receives screenshots.
	shotDir string
	now     func() time.Time
}

func newSystemControl(d Deps) systemControl {
	return systemControl{runner: d.Runner, goos: d.GOOS, shotDir: os.TempDir(), now: time.Now}
}

func (s systemControl) Handle(ctx context.Context, a *action.SystemControl, sink orchestrator.Sink, _ orchestrator.Brain) (string, error) {
	if a.SubAction == action.SystemListProcesses {
		list, err := s.listProcesses(ctx)
		if err != nil {
			return "", err
		}
		sink("[PROCESSES]\n" + list)
		return list, nil
	}

	var shot string
	if a.SubAction == action.SystemScreenshot {
		shot = filepath.Join(s.shotDir, "tess-screenshot-"+s.now().Format("20060102-150405")+".png")
	}
	name, args, ok := s.command(a.SubAction, shot)
	if !ok {
		return "", fmt.Errorf("%s: %w", a.SubAction, ErrUnsupportedSystemAction)
	}

	ctx, cancel := context.WithTimeout(ctx, processTimeout)
	defer cancel()
	if out, err := s.runner.Output(ctx, name, args...); err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return "", fmt.Errorf("%s failed: %w: %s", a.SubAction, err, msg)
		}
		return "", fmt.Errorf("%s failed: %w", a.SubAction, err)
	}

	msg := systemDone[a.SubAction]
	if shot != "" {
		msg += ": " + shot
	}
	sink("[SYSTEM] " + msg)
	return msg, nil
}

var systemDone = map[string]string{
	action.SystemVolumeUp:   "Volume raised",
	action.SystemVolumeDown: "Volume lowered",
	action.SystemMute:       "Mute toggled",
	action.SystemLock:       "Screen locked",
	action.SystemScreenshot: "Screenshot saved",
}

// command returns the host program that performs sub. ok is false when the platform
// has no program for it.
func (s systemControl) command(sub, shot string) (name string, args []string, ok bool) {
	switch s.goos {
	case "windows":
		switch sub {
		case action.SystemVolumeUp:
			return "powershell", []string{"-Command", sendKey(175)}, true
		case action.SystemVolumeDown:
			return "powershell", []string{"-Command", sendKey(174)}, true
		case action.SystemMute:
			return "powershell", []string{"-Command", sendKey(173)}, true
		case action.SystemLock:
			return "rundll32.exe", []string{"user32.dll,LockWorkStation"}, true
		case action.SystemScreenshot:
			script := "Add-Type -AssemblyName System.Windows.Forms,System.Drawing; " +
				"$b=[System.Windows.Forms.SystemInformation]::VirtualScreen; " +
				"$bmp=New-Object System.Drawing.Bitmap $b.Width,$b.Height; " +
				"$g=[System.Drawing.Graphics]::FromImage($bmp); " +
				"$g.CopyFromScreen($b.Left,$b.Top,0,0,$bmp.Size); " +
				"$bmp.Save('" + strings.ReplaceAll(shot, "'", "''") + "')"
			return "powershell", []string{"-Command", script}, true
		}
	case "darwin":
		switch sub {
		case action.SystemVolumeUp:
			return "osascript", []string{"-e", fmt.Sprintf("set volume output volume ((output volume of (get volume settings)) + %d)", volumeStep)}, true
		case action.SystemVolumeDown:
			return "osascript", []string{"-e", fmt.Sprintf("set volume output volume ((output volume of (get volume settings)) - %d)", volumeStep)}, true
		case action.SystemMute:
			return "osascript", []string{"-e", "set volume output muted (not (output muted of (get volume settings)))"}, true
		case action.SystemLock:
			return "osascript", []string{"-e", `tell application "System Events" to keystroke "q" using {control down, command down}`}, true
		case action.SystemScreenshot:
			return "screencapture", []string{"-x", shot}, true
		}
	case "linux":
		switch sub {
		case action.SystemVolumeUp:
			return "pactl", []string{"set-sink-volume", "@DEFAULT_SINK@", fmt.Sprintf("+%d%%", volumeStep)}, true
		case action.SystemVolumeDown:
			return "pactl", []string{"set-sink-volume", "@DEFAULT_SINK@", fmt.Sprintf("-%d%%", volumeStep)}, true
		case action.SystemMute:
			return "pactl", []string{"set-sink-mute", "@DEFAULT_SINK@", "toggle"}, true
		case action.SystemLock:
			return "loginctl", []string{"lock-session"}, true
		case action.SystemScreenshot:
			return "gnome-screenshot", []string{"-f", shot}, true
		}
	}
	return "", nil, false
}

// sendKey presses a virtual media key through WScript.Shell.
func sendKey(code int) string {
	return fmt.Sprintf("$wsh=New-Object -ComObject WScript.Shell; $wsh.SendKeys([char]%d)", code)
}

// listProcesses returns the process table header and the first processLimit rows.
func (s systemControl) listProcesses(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, processTimeout)
	defer cancel()

	if s.goos == "windows" {
		script := fmt.Sprintf("Get-Process | Select-Object -First %d | Format-Table -AutoSize", processLimit)
		out, err := s.runner.Output(ctx, "powershell", "-Command", script)
		if err != nil {
			return "", fmt.Errorf("failed to list processes: %w", err)
		}
		return strings.TrimSpace(string(out)), nil
	}

	out, err := s.runner.Output(ctx, "ps", "aux")
	if err != nil {
		return "", fmt.Errorf("failed to list processes: %w", err)
	}
	lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
	if len(lines) > processLimit+1 {
		lines = lines[:processLimit+1]
	}
	return strings.Join(lines, "\n"), nil
}
