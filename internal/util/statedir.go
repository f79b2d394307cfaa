// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// StateDir resolves the directory holding mutable tess data: logs, skills and hooks.
// TESS_STATE_DIR overrides the default of ~/.tess.
type StateDir struct {
	root string
}

// NewStateDir resolves the state directory from the environment.
func NewStateDir() (*StateDir, error) {
	dir := os.Getenv("TESS_STATE_DIR")
	if dir == "" {
		dir = "~/.tess"
	}
	resolved, err := ExpandPath(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve state directory: %w", err)
	}
	return &StateDir{root: resolved}, nil
}

// Root returns the resolved root directory.
func (s *StateDir) Root() string { return s.root }

// LogsDir returns the directory for rotated log files.
func (s *StateDir) LogsDir() string { return filepath.Join(s.root, "logs") }

// SkillsDir returns the default directory for Lua skills.
func (s *StateDir) SkillsDir() string { return filepath.Join(s.root, "skills") }

// HooksDir returns the default directory for hook definitions.
func (s *StateDir) HooksDir() string { return filepath.Join(s.root, "hooks") }

// Resolve joins a relative path with the root. Absolute and ~ paths are expanded and returned as-is.
func (s *StateDir) Resolve(path string) string {
	if path == "" {
		return s.root
	}
	if strings.HasPrefix(path, "~") || filepath.IsAbs(path) {
		expanded, err := ExpandPath(path)
		if err != nil {
			return filepath.Clean(path)
		}
		return expanded
	}
	return filepath.Join(s.root, path)
}

// EnsureDir creates path with 0700 permissions when it does not exist.
func EnsureDir(path string) error {
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("path exists but is not a directory: %s", path)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat directory %s: %w", path, err)
	}
	if err := os.MkdirAll(path, 0o700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// ExpandPath expands a leading ~ to the user's home directory and cleans the result.
func ExpandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Clean(path), nil
}
