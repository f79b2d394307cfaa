// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/traylinx/tess/internal/brain"
	"github.com/traylinx/tess/internal/config"
	"github.com/traylinx/tess/internal/handlers"
	"github.com/traylinx/tess/internal/hooks"
	"github.com/traylinx/tess/internal/logging"
	"github.com/traylinx/tess/internal/orchestrator"
	"github.com/traylinx/tess/internal/plugin"
	"github.com/traylinx/tess/internal/provider"
	"github.com/traylinx/tess/internal/security"
	"github.com/traylinx/tess/internal/store"
	"github.com/traylinx/tess/internal/util"
)

// app holds the wired agent components shared by the console and the API server.
type app struct {
	cfg        *config.Config
	redactor   *util.Redactor
	bus        *hooks.EventBus
	hooks      *hooks.HookManager
	brain      *brain.Brain
	skills     *plugin.LuaEngine
	dispatcher *orchestrator.Dispatcher
	history    *store.HistoryStore
}

// newApp wires the agent for cfg. ask answers confirmation prompts for dangerous
// commands; nil declines them all.
func newApp(cfg *config.Config, ask security.ConfirmFunc) (*app, error) {
	state, err := util.NewStateDir()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, bus: hooks.NewEventBus()}
	a.redactor = util.NewRedactor(cfg.AllAPIKeys()...)
	logging.InstallRedaction(a.redactor)

	if cfg.Hooks.Enabled {
		a.hooks, err = startHooks(cfg, state, a.bus)
		if err != nil {
			a.close()
			return nil, err
		}
	}

	pool, err := brain.NewPool(cfg)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to build key pool: %w", err)
	}
	adapter := provider.NewFactory(nil).Router()
	a.brain = brain.New(cfg, pool, adapter, brain.WithEventBus(a.bus), brain.WithRedactor(a.redactor))

	skillsDir := cfg.Skills.Dir
	if skillsDir == "" {
		skillsDir = state.SkillsDir()
	} else {
		skillsDir = state.Resolve(skillsDir)
	}
	a.skills = plugin.NewLuaEngine(plugin.Config{Enabled: cfg.Features.Skills, Dir: skillsDir})

	registry := handlers.Build(cfg, handlers.Deps{
		Guard:  security.NewGuard(cfg.Security, ask),
		Skills: a.skills,
	})
	a.dispatcher = orchestrator.New(registry, a.brain,
		orchestrator.WithEventBus(a.bus),
		orchestrator.WithRedactor(a.redactor),
	)
	a.skills.SetDispatcher(a.dispatcher)

	log.Debugf("tess ready: %d provider(s), %d handler(s)", len(cfg.Providers), len(registry.Registered()))
	return a, nil
}

func startHooks(cfg *config.Config, state *util.StateDir, bus *hooks.EventBus) (*hooks.HookManager, error) {
	dir := cfg.Hooks.Dir
	if dir == "" {
		dir = state.HooksDir()
	} else {
		dir = state.Resolve(dir)
	}
	manager, err := hooks.NewHookManager(dir, bus)
	if err != nil {
		return nil, fmt.Errorf("failed to create hook manager: %w", err)
	}
	if err := manager.LoadHooks(); err != nil {
		log.Warnf("failed to load hooks: %v", err)
	}
	manager.SubscribeToAllEvents()
	if cfg.Hooks.Watch {
		if err := manager.StartWatcher(); err != nil {
			log.Warnf("failed to watch hooks directory: %v", err)
		}
	}
	return manager, nil
}

// openHistory connects the history database when history.persist is set.
func (a *app) openHistory(ctx context.Context) error {
	if !a.cfg.History.Persist {
		return nil
	}
	state, err := util.NewStateDir()
	if err != nil {
		return err
	}
	a.history, err = store.Open(ctx, a.cfg.History, state)
	return err
}

func (a *app) close() {
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			log.Warnf("failed to close history database: %v", err)
		}
	}
	if a.hooks != nil {
		a.hooks.Close()
	}
	if a.bus != nil {
		a.bus.Shutdown()
	}
	if a.skills != nil {
		a.skills.Close()
	}
}
