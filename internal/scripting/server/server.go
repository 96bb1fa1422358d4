// Package server implements the server-side scripting resource lifecycle
// (§4.9.4): discovery, load, unload, and reload of resources under a
// resources/<name>/{server,shared}/ tree.
package server

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	lua "github.com/yuin/gopher-lua"

	"github.com/gmp-go/core/internal/scripting/bindings"
	"github.com/gmp-go/core/internal/scripting/events"
	"github.com/gmp-go/core/internal/scripting/exports"
	"github.com/gmp-go/core/internal/scripting/luavm"
	"github.com/gmp-go/core/internal/scripting/packetbuilder"
	"github.com/gmp-go/core/internal/scripting/timers"
)

// Meta is a resource's optional resource.toml metadata.
type Meta struct {
	Version     string `toml:"version"`
	Author      string `toml:"author"`
	Description string `toml:"description"`
}

// Resource is one loaded (or previously loaded) server resource.
type Resource struct {
	Name       string
	Meta       Meta
	Generation int
	Loaded     bool

	env *lua.LState
}

// Manager owns every server resource's environment and wires the shared
// scripting-host bindings into each one as it loads.
type Manager struct {
	baseDir string

	events     *events.Manager
	timers     *timers.Manager
	exportsReg *exports.Registry
	sender     *packetbuilder.Sender
	extras     bindings.ServerExtras

	mu        sync.Mutex
	resources map[string]*Resource
}

// New creates a Manager rooted at baseDir (conventionally "resources/").
func New(baseDir string, ev *events.Manager, tm *timers.Manager, exportsReg *exports.Registry, sender *packetbuilder.Sender, extras bindings.ServerExtras) *Manager {
	return &Manager{
		baseDir:    baseDir,
		events:     ev,
		timers:     tm,
		exportsReg: exportsReg,
		sender:     sender,
		extras:     extras,
		resources:  make(map[string]*Resource),
	}
}

// DiscoverResources enumerates immediate subdirectories of baseDir,
// reading each one's resource.toml if present (§4.9.4).
func (m *Manager) DiscoverResources() ([]Meta, error) {
	entries, err := os.ReadDir(m.baseDir)
	if err != nil {
		return nil, fmt.Errorf("reading resources dir: %w", err)
	}

	var metas []Meta
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		meta := Meta{}
		tomlPath := filepath.Join(m.baseDir, e.Name(), "resource.toml")
		if data, err := os.ReadFile(tomlPath); err == nil {
			_ = toml.Unmarshal(data, &meta)
		}
		metas = append(metas, meta)
	}
	return metas, nil
}

// LoadResource creates an isolated trusted environment for name, runs its
// shared/ then server/ Lua files (sorted, aborting on first error),
// captures exports, and calls onResourceStart if defined (§4.9.4).
func (m *Manager) LoadResource(name string) error {
	resourceDir := filepath.Join(m.baseDir, name)
	if info, err := os.Stat(resourceDir); err != nil || !info.IsDir() {
		return fmt.Errorf("resource %s not found under %s", name, m.baseDir)
	}

	env := luavm.New(luavm.Trusted)
	bindings.InstallCommon(env, m.events, m.timers, name)
	bindings.InstallServerOnly(env, m.extras)
	m.exportsReg.InstallGlobal(env)
	packetbuilder.InstallConstructor(env, m.sender)

	for _, subtree := range []string{"shared", "server"} {
		files, err := sortedLuaFiles(filepath.Join(resourceDir, subtree))
		if err != nil {
			env.Close()
			return err
		}
		for _, f := range files {
			if err := env.DoFile(f); err != nil {
				env.Close()
				return fmt.Errorf("loading resource %s: running %s: %w", name, f, err)
			}
		}
	}

	if tbl, ok := env.GetGlobal("exports").(*lua.LTable); ok {
		m.exportsReg.Set(name, tbl)
	}

	m.mu.Lock()
	res, existed := m.resources[name]
	if !existed {
		res = &Resource{Name: name}
		m.resources[name] = res
	}
	res.env = env
	res.Loaded = true
	res.Generation++
	m.mu.Unlock()

	callIfDefined(env, "onResourceStart")
	return nil
}

// UnloadResource calls onResourceStop if defined, kills owned timers,
// drops the environment and exports, and marks the resource unloaded.
func (m *Manager) UnloadResource(name string) error {
	m.mu.Lock()
	res, ok := m.resources[name]
	m.mu.Unlock()
	if !ok || !res.Loaded {
		return fmt.Errorf("resource %s is not loaded", name)
	}

	callIfDefined(res.env, "onResourceStop")

	m.timers.KillTimersForResource(name)
	m.exportsReg.Clear(name)

	m.mu.Lock()
	res.env.Close()
	res.env = nil
	res.Loaded = false
	m.mu.Unlock()

	return nil
}

// ReloadResource unloads then loads name again.
func (m *Manager) ReloadResource(name string) error {
	if err := m.UnloadResource(name); err != nil {
		return err
	}
	return m.LoadResource(name)
}

// Resource returns the tracked state for name, if it has ever been
// loaded.
func (m *Manager) Resource(name string) (Resource, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.resources[name]
	if !ok {
		return Resource{}, false
	}
	return *res, true
}

func sortedLuaFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".lua") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	out := make([]string, len(names))
	for i, n := range names {
		out[i] = filepath.Join(dir, n)
	}
	return out, nil
}

func callIfDefined(L *lua.LState, name string) {
	fn, ok := L.GetGlobal(name).(*lua.LFunction)
	if !ok {
		return
	}
	_ = L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true})
}
