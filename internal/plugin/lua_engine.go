// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package plugin runs user skills written in Lua. A skill is a single file
// <skills-dir>/<name>.lua executed in a sandboxed interpreter that exposes a small host
// API under the global "tess" table:
//
//	tess.output(text)             write a line to the caller's output sink
//	tess.run(action_json)         validate and dispatch an action; returns message, ok
//	tess.ask(prompt)              free-form model completion; returns text or nil, err
//	tess.json(json_str, path)     read a value from a JSON document
//	tess.log(message)             write to the agent log
//	tess.get_cache(key)           read a value kept across runs
//	tess.set_cache(key, value)    store a value across runs
//
// The chunk's return value, when it is a string, becomes the skill's result.
package plugin

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/traylinx/tess/internal/action"
	"github.com/traylinx/tess/internal/orchestrator"
	lua "github.com/yuin/gopher-lua"
)

type contextKey string

// depthContextKey counts nested skill runs so a skill that runs itself terminates.
const depthContextKey contextKey = "skill_depth"

const (
	// MaxDepth bounds run_skill nesting through tess.run.
	MaxDepth = 3
	// DefaultTimeout bounds a single skill run.
	DefaultTimeout = 60 * time.Second

	skillExt     = ".lua"
	maxCacheSize = 1000
)

var (
	// ErrSkillNotFound is returned when no <name>.lua exists in the skills directory.
	ErrSkillNotFound = errors.New("skill not found")
	// ErrDisabled is returned by Run on a disabled engine.
	ErrDisabled = errors.New("skills are disabled")
	// ErrTooDeep is returned when skills nest beyond MaxDepth.
	ErrTooDeep = errors.New("skill nesting too deep")

	skillNameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
)

// Dispatcher executes validated actions on behalf of a skill.
type Dispatcher interface {
	Dispatch(ctx context.Context, a action.Action, sink orchestrator.Sink) orchestrator.Result
}

// Config configures the engine.
type Config struct {
	// Enabled determines if skills can run.
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Dir is the directory containing <name>.lua skills.
	Dir string `yaml:"dir" json:"dir"`
	// Timeout bounds one run. Zero means DefaultTimeout.
	Timeout time.Duration `yaml:"-" json:"-"`
}

// Skill describes an installed skill.
type Skill struct {
	Name string
	// Description is taken from a leading "-- description:" comment.
	Description string
	Path        string
}

type compiled struct {
	proto   *lua.FunctionProto
	modTime time.Time
}

// LuaEngine compiles and runs skills. It is safe for concurrent use; each run owns a
// pooled interpreter state.
type LuaEngine struct {
	pool    sync.Pool
	dir     string
	enabled bool
	timeout time.Duration

	scriptsMu sync.RWMutex
	scripts   map[string]compiled

	dispatchMu sync.RWMutex
	dispatcher Dispatcher

	cacheMu sync.RWMutex
	cache   map[string]string
}

// NewLuaEngine creates an engine for cfg. A disabled engine refuses every run.
func NewLuaEngine(cfg Config) *LuaEngine {
	e := &LuaEngine{
		dir:     cfg.Dir,
		enabled: cfg.Enabled,
		timeout: cfg.Timeout,
		scripts: make(map[string]compiled),
		cache:   make(map[string]string),
	}
	if e.timeout <= 0 {
		e.timeout = DefaultTimeout
	}
	e.pool = sync.Pool{New: func() interface{} { return newSandbox() }}
	return e
}

// newSandbox returns a state with only the safe standard libraries.
func newSandbox() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	// os is limited to the clock.
	osTbl := L.NewTable()
	L.SetField(osTbl, "time", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(time.Now().Unix()))
		return 1
	}))
	L.SetField(osTbl, "date", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(time.Now().Format("2006-01-02 15:04:05")))
		return 1
	}))
	L.SetGlobal("os", osTbl)

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

// IsEnabled returns whether the engine runs skills.
func (e *LuaEngine) IsEnabled() bool {
	return e != nil && e.enabled
}

// Dir returns the skills directory.
func (e *LuaEngine) Dir() string { return e.dir }

// SetDispatcher sets the dispatcher used by tess.run. The dispatcher is usually built
// after the engine because the engine is one of its handlers.
func (e *LuaEngine) SetDispatcher(d Dispatcher) {
	if e == nil {
		return
	}
	e.dispatchMu.Lock()
	e.dispatcher = d
	e.dispatchMu.Unlock()
}

func (e *LuaEngine) getDispatcher() Dispatcher {
	e.dispatchMu.RLock()
	defer e.dispatchMu.RUnlock()
	return e.dispatcher
}

func (e *LuaEngine) getState() *lua.LState {
	return e.pool.Get().(*lua.LState)
}

func (e *LuaEngine) putState(L *lua.LState) {
	L.SetTop(0)
	L.RemoveContext()
	L.SetGlobal("tess", lua.LNil)
	e.pool.Put(L)
}

// ValidName reports whether name can be used as a skill file name.
func ValidName(name string) bool {
	return skillNameRe.MatchString(name)
}

// Skills lists the installed skills sorted by name.
func (e *LuaEngine) Skills() ([]Skill, error) {
	if e.dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(e.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read skills directory: %w", err)
	}

	var out []Skill
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != skillExt {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), skillExt)
		if !ValidName(name) {
			log.Warnf("skipping skill with invalid name '%s' (must be slug-style)", entry.Name())
			continue
		}
		path := filepath.Join(e.dir, entry.Name())
		out = append(out, Skill{Name: name, Description: readDescription(path), Path: path})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func readDescription(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "--") {
			return ""
		}
		if d, ok := strings.CutPrefix(strings.TrimSpace(strings.TrimPrefix(line, "--")), "description:"); ok {
			return strings.TrimSpace(d)
		}
	}
	return ""
}

// load returns the compiled skill, recompiling when the file changed since it was cached.
func (e *LuaEngine) load(name string) (*lua.FunctionProto, error) {
	if !ValidName(name) {
		return nil, fmt.Errorf("invalid skill name %q", name)
	}
	path := filepath.Join(e.dir, name+skillExt)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSkillNotFound, name)
		}
		return nil, err
	}

	e.scriptsMu.RLock()
	c, ok := e.scripts[name]
	e.scriptsMu.RUnlock()
	if ok && c.modTime.Equal(info.ModTime()) {
		return c.proto, nil
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read skill %s: %w", name, err)
	}
	L := e.getState()
	defer e.putState(L)
	fn, err := L.Load(strings.NewReader(string(src)), name+skillExt)
	if err != nil {
		return nil, fmt.Errorf("failed to compile skill %s: %w", name, err)
	}

	e.scriptsMu.Lock()
	e.scripts[name] = compiled{proto: fn.Proto, modTime: info.ModTime()}
	e.scriptsMu.Unlock()
	log.Debugf("compiled skill %s", name)
	return fn.Proto, nil
}

// Run executes the named skill. Lines written with tess.output go to sink; brain serves
// tess.ask.
func (e *LuaEngine) Run(ctx context.Context, name string, sink orchestrator.Sink, brain orchestrator.Brain) (string, error) {
	if !e.IsEnabled() {
		return "", ErrDisabled
	}
	depth, _ := ctx.Value(depthContextKey).(int)
	if depth >= MaxDepth {
		return "", fmt.Errorf("%w (%d)", ErrTooDeep, depth)
	}
	if sink == nil {
		sink = orchestrator.Discard
	}

	proto, err := e.load(name)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(context.WithValue(ctx, depthContextKey, depth+1), e.timeout)
	defer cancel()

	L := e.getState()
	defer e.putState(L)
	L.SetContext(ctx)

	r := &run{engine: e, ctx: ctx, sink: sink, brain: brain}
	L.SetGlobal("tess", r.module(L))

	L.Push(L.NewFunctionFromProto(proto))
	if err := L.PCall(0, 1, nil); err != nil {
		if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) {
			return "", fmt.Errorf("skill %s timed out after %s", name, e.timeout)
		}
		return "", fmt.Errorf("skill %s failed: %w", name, err)
	}
	ret := L.Get(-1)
	L.Pop(1)

	if s, ok := ret.(lua.LString); ok && s != "" {
		return string(s), nil
	}
	if r.written > 0 {
		return fmt.Sprintf("Skill '%s' completed", name), nil
	}
	return fmt.Sprintf("Skill '%s' completed (no output)", name), nil
}

// run holds the per-invocation bindings behind the tess table.
type run struct {
	engine  *LuaEngine
	ctx     context.Context
	sink    orchestrator.Sink
	brain   orchestrator.Brain
	written int
}

func (r *run) module(L *lua.LState) *lua.LTable {
	mod := L.NewTable()

	L.SetField(mod, "output", L.NewFunction(func(L *lua.LState) int {
		r.sink(L.CheckString(1))
		r.written++
		return 0
	}))

	L.SetField(mod, "run", L.NewFunction(func(L *lua.LState) int {
		payload := L.CheckString(1)
		a, err := action.Parse(payload)
		if err != nil {
			L.Push(lua.LNil)
			L.Push(lua.LString(err.Error()))
			return 2
		}
		d := r.engine.getDispatcher()
		if d == nil {
			L.Push(lua.LNil)
			L.Push(lua.LString("dispatcher not configured"))
			return 2
		}
		res := d.Dispatch(r.ctx, a, r.sink)
		L.Push(lua.LString(res.Message))
		L.Push(lua.LBool(res.Success))
		return 2
	}))

	L.SetField(mod, "ask", L.NewFunction(func(L *lua.LState) int {
		prompt := L.CheckString(1)
		if r.brain == nil {
			L.Push(lua.LNil)
			L.Push(lua.LString("no language model available"))
			return 2
		}
		text, err := r.brain.Ask(r.ctx, prompt)
		if err != nil {
			L.Push(lua.LNil)
			L.Push(lua.LString(err.Error()))
			return 2
		}
		L.Push(lua.LString(text))
		return 1
	}))

	L.SetField(mod, "json", L.NewFunction(func(L *lua.LState) int {
		doc := L.CheckString(1)
		path := L.CheckString(2)
		L.Push(gjsonToLua(L, gjson.Get(doc, path)))
		return 1
	}))

	L.SetField(mod, "log", L.NewFunction(func(L *lua.LState) int {
		log.Infof("[LUA] %s", L.CheckString(1))
		return 0
	}))

	L.SetField(mod, "get_cache", L.NewFunction(func(L *lua.LState) int {
		key := L.CheckString(1)
		r.engine.cacheMu.RLock()
		val, ok := r.engine.cache[key]
		r.engine.cacheMu.RUnlock()
		if !ok {
			L.Push(lua.LNil)
		} else {
			L.Push(lua.LString(val))
		}
		return 1
	}))

	L.SetField(mod, "set_cache", L.NewFunction(func(L *lua.LState) int {
		key := L.CheckString(1)
		val := L.CheckString(2)
		r.engine.cacheMu.Lock()
		if _, exists := r.engine.cache[key]; !exists && len(r.engine.cache) >= maxCacheSize {
			r.engine.cache = make(map[string]string)
		}
		r.engine.cache[key] = val
		r.engine.cacheMu.Unlock()
		return 0
	}))

	return mod
}

// gjsonToLua converts a JSON value into the equivalent Lua value.
func gjsonToLua(L *lua.LState, v gjson.Result) lua.LValue {
	switch v.Type {
	case gjson.Null:
		return lua.LNil
	case gjson.False:
		return lua.LFalse
	case gjson.True:
		return lua.LTrue
	case gjson.Number:
		return lua.LNumber(v.Num)
	case gjson.String:
		return lua.LString(v.Str)
	}
	if v.IsArray() {
		tbl := L.NewTable()
		for i, item := range v.Array() {
			L.RawSetInt(tbl, i+1, gjsonToLua(L, item))
		}
		return tbl
	}
	if v.IsObject() {
		tbl := L.NewTable()
		v.ForEach(func(k, item gjson.Result) bool {
			L.SetField(tbl, k.String(), gjsonToLua(L, item))
			return true
		})
		return tbl
	}
	return lua.LNil
}

// Close drops compiled skills and disables the engine.
func (e *LuaEngine) Close() {
	e.scriptsMu.Lock()
	e.scripts = make(map[string]compiled)
	e.scriptsMu.Unlock()
	e.enabled = false
}
