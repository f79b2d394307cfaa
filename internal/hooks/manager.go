package hooks

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/traylinx/tess/internal/util"
	"gopkg.in/yaml.v3"
)

// reloadDelay lets editors finish writing before hooks are re-read.
const reloadDelay = 100 * time.Millisecond

// HookManager manages the lifecycle and execution of automation hooks.
type HookManager struct {
	hooksDir       string
	hooks          map[HookEvent][]*Hook
	eventBus       *EventBus
	programs       map[string]*vm.Program
	actionHandlers map[HookAction]ActionHandler
	subscriptions  []*Subscription
	mu             sync.RWMutex
	running        sync.WaitGroup

	watcher     *fsnotify.Watcher
	stopWatcher chan struct{}
	stopOnce    sync.Once
}

// NewHookManager creates a new hook manager reading hooks from hooksDir.
// An empty hooksDir resolves to the hooks directory under the tess state root.
func NewHookManager(hooksDir string, eventBus *EventBus) (*HookManager, error) {
	if hooksDir == "" {
		state, err := util.NewStateDir()
		if err != nil {
			return nil, err
		}
		hooksDir = state.HooksDir()
	}

	manager := &HookManager{
		hooksDir:       hooksDir,
		hooks:          make(map[HookEvent][]*Hook),
		eventBus:       eventBus,
		programs:       make(map[string]*vm.Program),
		actionHandlers: make(map[HookAction]ActionHandler),
		stopWatcher:    make(chan struct{}),
	}

	RegisterBuiltInActions(manager)

	return manager, nil
}

// LoadHooks loads all hooks from the hooks directory. Unreadable or invalid files are
// logged and skipped so one bad hook never disables the rest.
func (m *HookManager) LoadHooks() error {
	if err := util.EnsureDir(m.hooksDir); err != nil {
		return fmt.Errorf("failed to create hooks directory: %w", err)
	}

	newHooks := make(map[HookEvent][]*Hook)
	programs := make(map[string]*vm.Program)
	err := filepath.WalkDir(m.hooksDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !(strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml")) {
			return nil
		}
		hook, err := readHook(path)
		if err != nil {
			log.Errorf("Failed to load hook %s: %v", path, err)
			return nil
		}
		if !hook.Enabled {
			return nil
		}
		if !slices.Contains(AllEvents(), hook.Event) {
			log.Warnf("Hook %s subscribes to unknown event %q", hook.Name, hook.Event)
		}
		if c := hook.Condition; c != "" && c != "true" {
			program, err := expr.Compile(c)
			if err != nil {
				log.Errorf("Hook %s has an invalid condition %q: %v", hook.Name, c, err)
				return nil
			}
			programs[c] = program
		}
		newHooks[hook.Event] = append(newHooks[hook.Event], hook)
		log.Debugf("Loaded hook: %s for event %s", hook.Name, hook.Event)
		return nil
	})
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.hooks = newHooks
	m.programs = programs
	m.mu.Unlock()

	log.Infof("Successfully loaded hooks for %d event types", len(newHooks))
	return nil
}

func readHook(path string) (*Hook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var hook Hook
	if err := yaml.Unmarshal(data, &hook); err != nil {
		return nil, err
	}
	if hook.ID == "" {
		hook.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if hook.Name == "" {
		hook.Name = hook.ID
	}
	hook.FilePath = path
	return &hook, nil
}

// SubscribeToAllEvents subscribes the manager to every event the agent publishes.
// Calling it again is a no-op.
func (m *HookManager) SubscribeToAllEvents() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.subscriptions) > 0 || m.eventBus == nil {
		return
	}
	for _, evt := range AllEvents() {
		m.subscriptions = append(m.subscriptions, m.eventBus.Subscribe(evt, m.handleEvent))
	}
}

func (m *HookManager) handleEvent(ctx *EventContext) {
	m.mu.RLock()
	hooks := m.hooks[ctx.Event]
	m.mu.RUnlock()

	for _, hook := range hooks {
		matches, err := m.evaluateCondition(hook.Condition, ctx)
		if err != nil {
			log.Warnf("Failed to evaluate hook condition '%s': %v", hook.Condition, err)
			continue
		}
		if matches {
			log.Infof("Executing hook: %s (Action: %s)", hook.Name, hook.Action)
			m.running.Add(1)
			go func(h *Hook) {
				defer m.running.Done()
				m.executeAction(h, ctx)
			}(hook)
		}
	}
}

func (m *HookManager) evaluateCondition(condition string, ctx *EventContext) (bool, error) {
	if condition == "" || condition == "true" {
		return true, nil
	}

	m.mu.Lock()
	program, exists := m.programs[condition]
	if !exists {
		var err error
		program, err = expr.Compile(condition)
		if err != nil {
			m.mu.Unlock()
			return false, err
		}
		m.programs[condition] = program
	}
	m.mu.Unlock()

	env := map[string]any{
		"Event":     string(ctx.Event),
		"Timestamp": ctx.Timestamp,
		"Data":      ctx.Data,
		"Provider":  ctx.Provider,
		"Action":    ctx.Action,
		"RequestID": ctx.RequestID,
		"Error":     ctx.ErrorMessage,
	}
	if ctx.Error != nil && ctx.ErrorMessage == "" {
		env["Error"] = ctx.Error.Error()
	}

	output, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}
	result, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("condition did not return boolean")
	}
	return result, nil
}

func (m *HookManager) executeAction(hook *Hook, ctx *EventContext) {
	m.mu.RLock()
	handler, exists := m.actionHandlers[hook.Action]
	m.mu.RUnlock()

	if !exists {
		log.Warnf("No handler registered for action: %s", hook.Action)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Action %s panicked for hook %s: %v", hook.Action, hook.Name, r)
		}
	}()
	if err := handler(hook, ctx); err != nil {
		log.Errorf("Action %s failed for hook %s: %v", hook.Action, hook.Name, err)
	}
}

// RegisterAction registers a handler for a specific action type.
func (m *HookManager) RegisterAction(action HookAction, handler ActionHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actionHandlers[action] = handler
}

// Wait blocks until every triggered action has returned.
func (m *HookManager) Wait() {
	m.running.Wait()
}

// StartWatcher starts a background fsnotify watcher for hot-reloading hooks.
func (m *HookManager) StartWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(m.hooksDir); err != nil {
		watcher.Close()
		return err
	}
	m.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					log.Infof("Hooks directory changed (%s), reloading...", event.Name)
					time.Sleep(reloadDelay)
					if err := m.LoadHooks(); err != nil {
						log.Errorf("Failed to reload hooks: %v", err)
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Errorf("Hooks watcher error: %v", err)
			case <-m.stopWatcher:
				return
			}
		}
	}()

	return nil
}

// StopWatcher stops the file watcher.
func (m *HookManager) StopWatcher() {
	m.stopOnce.Do(func() {
		close(m.stopWatcher)
		if m.watcher != nil {
			m.watcher.Close()
		}
	})
}

// Close stops the watcher, unsubscribes from the bus and waits for running actions.
func (m *HookManager) Close() {
	m.StopWatcher()
	m.mu.Lock()
	subs := m.subscriptions
	m.subscriptions = nil
	m.mu.Unlock()
	for _, s := range subs {
		s.Unsubscribe()
	}
	m.Wait()
}

// GetHooksDir returns the hooks directory path.
func (m *HookManager) GetHooksDir() string {
	return m.hooksDir
}

// GetHooks returns all loaded hooks ordered by ID.
func (m *HookManager) GetHooks() []*Hook {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Hook, 0)
	for _, hooks := range m.hooks {
		result = append(result, hooks...)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// GetHook returns a hook by ID.
func (m *HookManager) GetHook(id string) *Hook {
	for _, h := range m.GetHooks() {
		if h.ID == id {
			return h
		}
	}
	return nil
}

// EvaluateCondition exposes condition evaluation for testing.
func (m *HookManager) EvaluateCondition(h *Hook, ctx *EventContext) (bool, error) {
	return m.evaluateCondition(h.Condition, ctx)
}
