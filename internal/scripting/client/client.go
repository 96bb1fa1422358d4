// Package client implements the client-side scripting resource lifecycle
// (§4.9.5): mounting a downloaded ResourcePayload, a require() that
// searches the mounted pack, entrypoint execution, and exports capture.
package client

import (
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/gmp-go/core/internal/resource/loader"
	"github.com/gmp-go/core/internal/resource/packer"
	"github.com/gmp-go/core/internal/scripting/bindings"
	"github.com/gmp-go/core/internal/scripting/events"
	"github.com/gmp-go/core/internal/scripting/exports"
	"github.com/gmp-go/core/internal/scripting/luavm"
	"github.com/gmp-go/core/internal/scripting/packetbuilder"
	"github.com/gmp-go/core/internal/scripting/timers"
)

// Resource is one mounted client resource.
type Resource struct {
	Name   string
	Loaded bool

	env  *lua.LState
	pack *loader.Pack
}

// Manager owns every client resource's sandboxed environment.
type Manager struct {
	events     *events.Manager
	timers     *timers.Manager
	exportsReg *exports.Registry
	sender     *packetbuilder.Sender

	mu        sync.Mutex
	resources map[string]*Resource
	order     []string // load order, for reverse-order unload
}

// New creates a Manager. sender may be nil if scripted packets aren't
// wired on this build.
func New(ev *events.Manager, tm *timers.Manager, exportsReg *exports.Registry, sender *packetbuilder.Sender) *Manager {
	return &Manager{
		events:     ev,
		timers:     tm,
		exportsReg: exportsReg,
		sender:     sender,
		resources:  make(map[string]*Resource),
	}
}

// Mount loads pack as resource name: installs bindings and a require()
// that searches the mounted pack, runs every manifest entrypoint, captures
// exports, and calls onResourceStart if defined (§4.9.5).
func (m *Manager) Mount(name string, pack *loader.Pack) error {
	env := luavm.New(luavm.Sandboxed)
	bindings.InstallCommon(env, m.events, m.timers, name)
	m.exportsReg.InstallGlobal(env)
	packetbuilder.InstallConstructor(env, m.sender)
	installRequire(env, pack)

	for _, entry := range pack.Manifest.Entrypoints {
		if err := runFile(env, pack, entry); err != nil {
			env.Close()
			return fmt.Errorf("mounting resource %s: running entrypoint %s: %w", name, entry, err)
		}
	}

	if tbl, ok := env.GetGlobal("exports").(*lua.LTable); ok {
		m.exportsReg.Set(name, tbl)
	}

	m.mu.Lock()
	m.resources[name] = &Resource{Name: name, Loaded: true, env: env, pack: pack}
	m.order = append(m.order, name)
	m.mu.Unlock()

	callIfDefined(env, "onResourceStart")
	return nil
}

// Unload reverses Mount for name: calls onResourceStop, clears owned
// timers, drops the environment (§4.9.5).
func (m *Manager) Unload(name string) error {
	m.mu.Lock()
	res, ok := m.resources[name]
	m.mu.Unlock()
	if !ok || !res.Loaded {
		return fmt.Errorf("resource %s is not mounted", name)
	}

	callIfDefined(res.env, "onResourceStop")
	m.timers.KillTimersForResource(name)
	m.exportsReg.Clear(name)

	m.mu.Lock()
	res.env.Close()
	res.Loaded = false
	m.removeFromOrder(name)
	m.mu.Unlock()

	return nil
}

// UnloadAll unmounts every resource in reverse load order.
func (m *Manager) UnloadAll() {
	m.mu.Lock()
	names := append([]string(nil), m.order...)
	m.mu.Unlock()

	for i := len(names) - 1; i >= 0; i-- {
		_ = m.Unload(names[i])
	}
}

func (m *Manager) removeFromOrder(name string) {
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}

func runFile(env *lua.LState, pack *loader.Pack, path string) error {
	raw, err := pack.LoadFile(path, false)
	if err != nil {
		return err
	}
	source, _ := packer.ExtractSource(raw)

	fn, err := env.LoadString(string(source))
	if err != nil {
		return fmt.Errorf("compiling %s: %w", path, err)
	}
	env.Push(fn)
	return env.PCall(0, 0, nil)
}

func callIfDefined(L *lua.LState, name string) {
	fn, ok := L.GetGlobal(name).(*lua.LFunction)
	if !ok {
		return
	}
	_ = L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true})
}
