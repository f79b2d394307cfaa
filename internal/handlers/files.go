// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/traylinx/tess/internal/action"
	"github.com/traylinx/tess/internal/orchestrator"
	"github.com/traylinx/tess/internal/util"
)

const (
	maxListEntries = 50
	maxReadChars   = 5000
)

func handleFileOp(_ context.Context, a *action.FileOp, sink orchestrator.Sink, _ orchestrator.Brain) (string, error) {
	path, err := util.ExpandPath(a.Path)
	if err != nil {
		return "", err
	}

	info, statErr := os.Stat(path)
	if statErr != nil && !(a.SubAction == action.FileWrite && os.IsNotExist(statErr)) {
		if os.IsNotExist(statErr) {
			return "", fmt.Errorf("path not found: %s", path)
		}
		return "", statErr
	}
	isDir := info != nil && info.IsDir()

	switch a.SubAction {
	case action.FileList:
		if !isDir {
			return "", fmt.Errorf("not a directory: %s", path)
		}
		listing, err := listDir(path)
		if err != nil {
			return "", err
		}
		sink("[FILES]\n" + listing)
		return listing, nil

	case action.FileRead:
		if isDir {
			listing, err := listDir(path)
			if err != nil {
				return "", err
			}
			sink(fmt.Sprintf("[DIRECTORY: %s]\n%s", path, listing))
			return listing, nil
		}
		content, err := readFile(path, maxReadChars)
		if err != nil {
			return "", err
		}
		sink("[CONTENT]\n" + preview(content, sinkPreview))
		return content, nil

	case action.FileWrite:
		if isDir {
			return "", errors.New("cannot write to a directory")
		}
		if err := os.WriteFile(path, []byte(a.Content), 0o644); err != nil {
			return "", fmt.Errorf("error writing file: %w", err)
		}
		return "File written: " + path, nil

	case action.FilePatch:
		if isDir {
			return "", errors.New("cannot patch a directory")
		}
		return patchFile(path, a.SearchText, a.ReplaceText, info.Mode().Perm())
	}
	return "", fmt.Errorf("unknown file operation: %s", a.SubAction)
}

// listDir renders up to maxListEntries entries of dir, directories first by name.
func listDir(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "Empty directory", nil
	}
	if len(entries) > maxListEntries {
		entries = entries[:maxListEntries]
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		marker := "[FILE]"
		if e.IsDir() {
			marker = "[DIR]"
		}
		lines = append(lines, marker+" "+e.Name())
	}
	return strings.Join(lines, "\n"), nil
}

func readFile(path string, limit int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("error reading file: %w", err)
	}
	defer f.Close()

	// Four bytes per rune is the worst case for limit characters.
	data, err := io.ReadAll(io.LimitReader(f, int64(limit)*4))
	if err != nil {
		return "", fmt.Errorf("error reading file: %w", err)
	}
	return preview(strings.ToValidUTF8(string(data), ""), limit), nil
}

func patchFile(path, search, replace string, perm os.FileMode) (string, error) {
	if search == "" {
		return "", errors.New("search text is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("error patching file: %w", err)
	}
	content := string(data)
	if !strings.Contains(content, search) {
		return "", errors.New("search text not found in file")
	}
	patched := strings.ReplaceAll(content, search, replace)
	if err := os.WriteFile(path, []byte(patched), perm); err != nil {
		return "", fmt.Errorf("error patching file: %w", err)
	}
	return "File patched: " + filepath.Clean(path), nil
}
