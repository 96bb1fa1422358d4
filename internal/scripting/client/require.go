package client

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/gmp-go/core/internal/resource/loader"
	"github.com/gmp-go/core/internal/resource/packer"
)

// installRequire binds a require() into env that searches pack's mounted
// files in client/<mod>.luac|.lua, shared/<mod>.luac|.lua,
// <mod>.luac|.lua order (§4.9.5), caching results in package.loaded.
func installRequire(env *lua.LState, pack *loader.Pack) {
	packageTable := env.NewTable()
	loadedTable := env.NewTable()
	env.SetField(packageTable, "loaded", loadedTable)
	env.SetGlobal("package", packageTable)

	env.SetGlobal("require", env.NewFunction(func(L *lua.LState) int {
		modname := L.CheckString(1)

		if cached := loadedTable.RawGetString(modname); cached != lua.LNil {
			L.Push(cached)
			return 1
		}

		raw, found := findModule(pack, modname)
		if !found {
			L.RaiseError("module '%s' not found", modname)
			return 0
		}

		// ok is irrelevant here: ExtractSource returns plain source either
		// way, signed or not.
		source, _ := packer.ExtractSource(raw)
		fn, err := L.LoadString(string(source))
		if err != nil {
			L.RaiseError("error loading module '%s': %s", modname, err.Error())
			return 0
		}

		L.Push(fn)
		if err := L.PCall(0, 1, nil); err != nil {
			L.RaiseError("error running module '%s': %s", modname, err.Error())
			return 0
		}

		result := L.Get(-1)
		L.Pop(1)
		loadedTable.RawSetString(modname, result)
		L.Push(result)
		return 1
	}))
}

func findModule(pack *loader.Pack, modname string) ([]byte, bool) {
	candidates := []string{
		"client/" + modname + ".luac",
		"client/" + modname + ".lua",
		"shared/" + modname + ".luac",
		"shared/" + modname + ".lua",
		modname + ".luac",
		modname + ".lua",
	}
	for _, c := range candidates {
		if data, err := pack.LoadFile(c, false); err == nil {
			return data, true
		}
	}
	return nil, false
}
