// Package luavm builds gopher-lua states under one of two security
// policies (§4.9.1): Sandboxed for client resources, Trusted for server
// resources.
package luavm

import (
	lua "github.com/yuin/gopher-lua"
)

// Policy selects which standard libraries a VM opens.
type Policy int

const (
	// Sandboxed opens only base, string, math, table, coroutine; it
	// omits the io/os/package/debug libraries entirely, and New removes
	// the dofile/loadfile/load globals the base library installs.
	Sandboxed Policy = iota
	// Trusted additionally exposes a whitelisted subset of os time
	// functions (time, date, clock, difftime). No I/O, package, or
	// debug library either.
	Trusted
)

// New creates an *lua.LState configured for policy.
func New(policy Policy) *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	open(L, lua.BaseLibName, lua.OpenBase)
	open(L, lua.StringLibName, lua.OpenString)
	open(L, lua.MathLibName, lua.OpenMath)
	open(L, lua.TabLibName, lua.OpenTable)
	open(L, lua.CoroutineLibName, lua.OpenCoroutine)

	stripDangerousBaseGlobals(L)

	if policy == Trusted {
		installTrustedOSSubset(L)
	}

	return L
}

func open(L *lua.LState, name string, fn lua.LGFunction) {
	L.Push(L.NewFunction(fn))
	L.Push(lua.LString(name))
	L.Call(1, 0)
}

// stripDangerousBaseGlobals removes the file/chunk-loading primitives
// OpenBase installs, since the base library itself has no concept of
// a restricted subset (§4.9.1).
func stripDangerousBaseGlobals(L *lua.LState) {
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "collectgarbage"} {
		L.SetGlobal(name, lua.LNil)
	}
}

// installTrustedOSSubset exposes exactly os.time, os.date, os.clock,
// os.difftime under a global "os" table built by hand, rather than
// opening the real OS library (which would also pull in os.execute,
// os.remove, os.getenv, …).
func installTrustedOSSubset(L *lua.LState) {
	osTable := L.NewTable()
	L.SetField(osTable, "time", L.NewFunction(osTime))
	L.SetField(osTable, "date", L.NewFunction(osDate))
	L.SetField(osTable, "clock", L.NewFunction(osClock))
	L.SetField(osTable, "difftime", L.NewFunction(osDifftime))
	L.SetGlobal("os", osTable)
}
