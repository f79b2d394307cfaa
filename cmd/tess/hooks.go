// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	json "github.com/goccy/go-json"
	"github.com/traylinx/tess/internal/config"
	"github.com/traylinx/tess/internal/hooks"
	"github.com/traylinx/tess/internal/util"
)

// HooksCommand represents available hooks subcommands
type HooksCommand string

const (
	HooksList HooksCommand = "list"
	HooksTest HooksCommand = "test"
)

// HooksOptions holds the command-line options for hooks commands
type HooksOptions struct {
	Command HooksCommand
	HookID  string
	Event   string
	Data    string // JSON data for test
	Format  string
}

var errHooksUsage = errors.New("missing subcommand")

// ParseHooksCommand parses command arguments
func ParseHooksCommand(args []string) (*HooksOptions, error) {
	if len(args) == 0 || args[0] == "help" {
		return nil, errHooksUsage
	}

	opts := &HooksOptions{Command: HooksCommand(args[0])}
	flagSet := flag.NewFlagSet("hooks", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	flagSet.StringVar(&opts.HookID, "id", "", "Target hook ID")
	flagSet.StringVar(&opts.Event, "event", "", "Event type for test (e.g. provider_failed)")
	flagSet.StringVar(&opts.Data, "data", "{}", "JSON data payload for test")
	flagSet.StringVar(&opts.Format, "format", "table", "Output format (table/json)")

	if err := flagSet.Parse(args[1:]); err != nil {
		return nil, err
	}
	return opts, nil
}

func printHooksUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: tess hooks <command> [options]")
	fmt.Fprintln(w, "\nCommands:")
	fmt.Fprintln(w, "  list           List all enabled hooks")
	fmt.Fprintln(w, "  test           Test hook conditions against a simulated event")
	fmt.Fprintln(w, "\nOptions:")
	fmt.Fprintln(w, "  -id <str>      Hook ID")
	fmt.Fprintln(w, "  -event <str>   Event type")
	fmt.Fprintln(w, "  -data <json>   Simulated event data (JSON)")
	fmt.Fprintln(w, "  -format <str>  Output format")
	fmt.Fprintln(w, "\nExamples:")
	fmt.Fprintln(w, "  tess hooks list -format json")
	fmt.Fprintln(w, "  tess hooks test -event provider_failed -data '{\"status_code\":429}'")
}

func runHooks(cfg *config.Config, args []string, w io.Writer) error {
	opts, err := ParseHooksCommand(args)
	if err != nil {
		printHooksUsage(w)
		if errors.Is(err, errHooksUsage) {
			return nil
		}
		return err
	}

	manager, err := hookManager(cfg)
	if err != nil {
		return err
	}
	defer manager.Close()

	switch opts.Command {
	case HooksList:
		return doHooksList(manager, opts, w)
	case HooksTest:
		return doHooksTest(manager, opts, w)
	default:
		printHooksUsage(w)
		return fmt.Errorf("unknown hooks command: %s", opts.Command)
	}
}

// hookManager loads hooks for inspection. It is not subscribed to any bus.
func hookManager(cfg *config.Config) (*hooks.HookManager, error) {
	dir := cfg.Hooks.Dir
	if dir != "" {
		state, err := util.NewStateDir()
		if err != nil {
			return nil, err
		}
		dir = state.Resolve(dir)
	}
	manager, err := hooks.NewHookManager(dir, nil)
	if err != nil {
		return nil, err
	}
	if err := manager.LoadHooks(); err != nil {
		return nil, err
	}
	return manager, nil
}

func doHooksList(manager *hooks.HookManager, opts *HooksOptions, w io.Writer) error {
	allHooks := manager.GetHooks()

	if len(allHooks) == 0 {
		fmt.Fprintln(w, "No hooks configured.")
		fmt.Fprintf(w, "Create hook files in: %s\n", manager.GetHooksDir())
		return nil
	}

	if opts.Format == "json" {
		data, err := json.MarshalIndent(allHooks, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
		return nil
	}

	fmt.Fprintln(w, "Configured Hooks")
	fmt.Fprintln(w, "================")
	fmt.Fprintf(w, "Hooks Directory: %s\n", manager.GetHooksDir())
	fmt.Fprintf(w, "Total Hooks: %d\n\n", len(allHooks))

	for i, hook := range allHooks {
		fmt.Fprintf(w, "[%d] %s\n", i+1, hook.Name)
		fmt.Fprintf(w, "    ID: %s\n", hook.ID)
		fmt.Fprintf(w, "    Event: %s\n", hook.Event)
		fmt.Fprintf(w, "    Action: %s\n", hook.Action)
		if hook.Condition != "" {
			fmt.Fprintf(w, "    Condition: %s\n", hook.Condition)
		}
		if hook.Description != "" {
			fmt.Fprintf(w, "    Description: %s\n", hook.Description)
		}
		fmt.Fprintf(w, "    File: %s\n\n", hook.FilePath)
	}
	return nil
}

func doHooksTest(manager *hooks.HookManager, opts *HooksOptions, w io.Writer) error {
	evType := hooks.HookEvent(opts.Event)
	if evType == "" {
		evType = hooks.EventProviderFailed
	}

	var dataMap map[string]any
	if err := json.Unmarshal([]byte(opts.Data), &dataMap); err != nil {
		return fmt.Errorf("failed to parse data JSON: %w", err)
	}
	ctx := &hooks.EventContext{Event: evType, Timestamp: time.Now(), Data: dataMap}

	allHooks := manager.GetHooks()
	if opts.HookID != "" {
		hook := manager.GetHook(opts.HookID)
		if hook == nil {
			return fmt.Errorf("hook with ID '%s' not found", opts.HookID)
		}
		allHooks = []*hooks.Hook{hook}
	}
	if len(allHooks) == 0 {
		fmt.Fprintln(w, "No hooks configured to test.")
		return nil
	}

	fmt.Fprintf(w, "Event Type: %s\n", evType)
	fmt.Fprintf(w, "Event Data: %s\n\n", opts.Data)

	matched, failed := 0, 0
	for i, hook := range allHooks {
		fmt.Fprintf(w, "[%d] %s (%s)\n", i+1, hook.Name, hook.ID)
		if hook.Event != evType {
			fmt.Fprintf(w, "    Result: event type mismatch (expects %s)\n", hook.Event)
			continue
		}
		ok, err := manager.EvaluateCondition(hook, ctx)
		switch {
		case err != nil:
			failed++
			fmt.Fprintf(w, "    Result: condition evaluation failed: %v\n", err)
		case ok:
			matched++
			fmt.Fprintf(w, "    Result: would execute action %s\n", hook.Action)
		default:
			fmt.Fprintln(w, "    Result: condition not met")
		}
	}

	fmt.Fprintf(w, "\nTested: %d, Matched: %d, Failed: %d\n", len(allHooks), matched, failed)
	return nil
}
