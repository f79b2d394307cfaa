// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"time"

	"github.com/traylinx/tess/internal/brain"
	"github.com/traylinx/tess/internal/config"
	"github.com/traylinx/tess/internal/plugin"
	"github.com/traylinx/tess/internal/provider"
	"github.com/traylinx/tess/internal/util"
)

// runProviders prints every provider in failover order with its masked credentials.
func runProviders(cfg *config.Config, w io.Writer) error {
	pool, err := brain.NewPool(cfg)
	if err != nil {
		return err
	}
	b := brain.New(cfg, pool, provider.NewMock())
	writeProviders(w, b.Status(), time.Now())
	return nil
}

func writeProviders(w io.Writer, status []brain.ProviderStatus, now time.Time) {
	if len(status) == 0 {
		fmt.Fprintln(w, "No providers configured.")
		return
	}
	fmt.Fprintln(w, "Providers")
	fmt.Fprintln(w, "=========")
	for i, p := range status {
		fmt.Fprintf(w, "[%d] %s (%s)\n", i+1, p.ID, p.Type)
		if p.Model != "" {
			fmt.Fprintf(w, "    Model: %s\n", p.Model)
		}
		fmt.Fprintf(w, "    Priority: %d\n", p.Priority)
		fmt.Fprintf(w, "    Available keys: %d/%d\n", p.Available, len(p.Credentials))
		for _, c := range p.Credentials {
			line := fmt.Sprintf("    - %s %s", displayKey(c.Key), c.Status)
			if !c.CooldownUntil.IsZero() && c.CooldownUntil.After(now) {
				line += fmt.Sprintf(" (%s left)", c.CooldownUntil.Sub(now).Round(time.Second))
			}
			fmt.Fprintln(w, line)
		}
	}
}

func displayKey(masked string) string {
	if masked == "" {
		return "(no key)"
	}
	return masked
}

// runSkills lists the Lua skills in the configured directory.
func runSkills(cfg *config.Config, w io.Writer) error {
	state, err := util.NewStateDir()
	if err != nil {
		return err
	}
	dir := state.SkillsDir()
	if cfg.Skills.Dir != "" {
		dir = state.Resolve(cfg.Skills.Dir)
	}
	engine := plugin.NewLuaEngine(plugin.Config{Enabled: cfg.Features.Skills, Dir: dir})
	defer engine.Close()

	skills, err := engine.Skills()
	if err != nil {
		return err
	}
	writeSkills(w, engine, skills)
	return nil
}

func writeSkills(w io.Writer, engine *plugin.LuaEngine, skills []plugin.Skill) {
	if !engine.IsEnabled() {
		fmt.Fprintln(w, "Skills are disabled (features.skills: false).")
	}
	if len(skills) == 0 {
		fmt.Fprintln(w, "No skills installed.")
		fmt.Fprintf(w, "Add <name>.lua files to: %s\n", engine.Dir())
		return
	}
	fmt.Fprintf(w, "Skills in %s\n\n", engine.Dir())
	for _, s := range skills {
		if s.Description != "" {
			fmt.Fprintf(w, "  %-20s %s\n", s.Name, s.Description)
			continue
		}
		fmt.Fprintf(w, "  %s\n", s.Name)
	}
}
