package bindings

import (
	"time"

	lua "github.com/yuin/gopher-lua"
)

func msToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// toGo converts a primitive Lua value to its Go equivalent. Tables pass
// through as the raw *lua.LTable; callers needing a deep conversion do it
// themselves (event payloads are variant-typed at the bus level, per
// §4.9.2, and are re-pushed with pushAny on dispatch).
func toGo(lv lua.LValue) any {
	switch v := lv.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		return float64(v)
	case lua.LString:
		return string(v)
	case *lua.LNilType:
		return nil
	default:
		return v
	}
}

// pushAny pushes a Go value produced by toGo (or a raw lua.LValue) back
// onto L's stack.
func pushAny(L *lua.LState, v any) {
	switch val := v.(type) {
	case nil:
		L.Push(lua.LNil)
	case bool:
		L.Push(lua.LBool(val))
	case float64:
		L.Push(lua.LNumber(val))
	case int:
		L.Push(lua.LNumber(val))
	case string:
		L.Push(lua.LString(val))
	case lua.LValue:
		L.Push(val)
	default:
		L.Push(lua.LNil)
	}
}
