// Package exports implements the scripting host's cross-resource exports
// proxy (§4.9.4): the global `exports` table, and the current-resource
// LIFO stack that proxied export calls push onto.
package exports

import (
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// Stack is the "currently executing resource" pointer, one mutex-guarded
// stack shared by everything holding it, managed with LIFO scoped-guard
// semantics.
type Stack struct {
	mu    sync.Mutex
	names []string
}

// NewStack creates an empty Stack.
func NewStack() *Stack { return &Stack{} }

// Push enters resourceName as current; the returned func restores the
// prior value and must be deferred by the caller.
func (s *Stack) Push(resourceName string) func() {
	s.mu.Lock()
	s.names = append(s.names, resourceName)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		if len(s.names) > 0 {
			s.names = s.names[:len(s.names)-1]
		}
		s.mu.Unlock()
	}
}

// Current returns the resource on top of the stack, or "" if empty.
func (s *Stack) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.names) == 0 {
		return ""
	}
	return s.names[len(s.names)-1]
}

// Registry holds each loaded resource's captured exports table, keyed by
// resource name.
type Registry struct {
	mu      sync.RWMutex
	tables  map[string]*lua.LTable
	loaded  map[string]bool
	current *Stack
}

// NewRegistry creates an empty Registry bound to stack for current-resource
// bracketing during proxied calls.
func NewRegistry(stack *Stack) *Registry {
	return &Registry{
		tables: make(map[string]*lua.LTable),
		loaded: make(map[string]bool),
		current: stack,
	}
}

// Set installs resourceName's captured exports table (nil clears it) and
// marks the resource loaded.
func (r *Registry) Set(resourceName string, table *lua.LTable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables[resourceName] = table
	r.loaded[resourceName] = true
}

// Clear marks resourceName unloaded; reads and calls through its proxy
// subsequently return nil (§4.9.4).
func (r *Registry) Clear(resourceName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tables, resourceName)
	r.loaded[resourceName] = false
}

func (r *Registry) tableFor(resourceName string) (*lua.LTable, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.loaded[resourceName] {
		return nil, false
	}
	t, ok := r.tables[resourceName]
	return t, ok && t != nil
}

// InstallGlobal sets the `exports` global on L: a table whose __index
// metamethod returns a per-resource proxy (§4.9.4).
func (r *Registry) InstallGlobal(L *lua.LState) {
	exportsTable := L.NewTable()
	mt := L.NewTable()
	mt.RawSetString("__index", L.NewFunction(r.exportsIndex))
	L.SetMetatable(exportsTable, mt)
	L.SetGlobal("exports", exportsTable)
}

func (r *Registry) exportsIndex(L *lua.LState) int {
	name := L.CheckString(2)
	proxy := L.NewTable()
	mt := L.NewTable()
	nameVal := lua.LString(name)
	mt.RawSetString("__index", L.NewClosure(r.proxyIndex, nameVal))
	mt.RawSetString("__newindex", L.NewClosure(r.proxyNewIndex, nameVal))
	L.SetMetatable(proxy, mt)
	L.Push(proxy)
	return 1
}

func (r *Registry) proxyIndex(L *lua.LState) int {
	name := string(L.Get(lua.UpvalueIndex(1)).(lua.LString))
	key := L.CheckString(2)

	target, ok := r.tableFor(name)
	if !ok {
		L.Push(lua.LNil)
		return 1
	}

	value := target.RawGetString(key)
	fn, isFunction := value.(*lua.LFunction)
	if !isFunction {
		L.Push(value)
		return 1
	}

	nameVal := lua.LString(name)
	L.Push(L.NewClosure(r.callThroughProxy(fn), nameVal))
	return 1
}

// callThroughProxy wraps fn so the target resource is current (LIFO
// scoped guard) for the duration of the call.
func (r *Registry) callThroughProxy(fn *lua.LFunction) lua.LGFunction {
	return func(L *lua.LState) int {
		name := string(L.Get(lua.UpvalueIndex(1)).(lua.LString))

		argc := L.GetTop()
		args := make([]lua.LValue, argc)
		for i := 1; i <= argc; i++ {
			args[i-1] = L.Get(i)
		}

		pop := r.current.Push(name)
		defer pop()

		L.Push(fn)
		for _, a := range args {
			L.Push(a)
		}
		L.Call(argc, lua.MultRet)
		return L.GetTop() - argc
	}
}

func (r *Registry) proxyNewIndex(L *lua.LState) int {
	name := string(L.Get(lua.UpvalueIndex(1)).(lua.LString))
	key := L.CheckString(2)
	value := L.Get(3)

	target, ok := r.tableFor(name)
	if !ok {
		return 0
	}
	target.RawSetString(key, value)
	return 0
}
