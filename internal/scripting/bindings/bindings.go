// Package bindings wires the scripting host's standard library functions
// (§4.9.6) into a gopher-lua state: event subscription, timers, logging,
// and hex encode/decode for both policies, plus server-only hashing and
// broadcast helpers.
package bindings

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"log/slog"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/gmp-go/core/internal/scripting/events"
	"github.com/gmp-go/core/internal/scripting/timers"
)

// InstallCommon binds the event, timer, logging, and hex functions every
// resource environment gets regardless of policy. resourceName tags
// timers created from this environment (§4.9.3).
func InstallCommon(L *lua.LState, ev *events.Manager, tm *timers.Manager, resourceName string) {
	L.SetGlobal("registerEvent", L.NewFunction(func(L *lua.LState) int {
		ev.RegisterEvent(L.CheckString(1))
		return 0
	}))

	L.SetGlobal("subscribeToEvent", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		fn := L.CheckFunction(2)
		_, err := ev.SubscribeToEvent(name, func(payload any) error {
			L.Push(fn)
			pushAny(L, payload)
			return L.PCall(1, 0, nil)
		})
		if err != nil {
			L.Push(lua.LNil)
			L.Push(lua.LString(err.Error()))
			return 2
		}
		L.Push(lua.LTrue)
		return 1
	}))

	L.SetGlobal("triggerEvent", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		var payload any
		if L.GetTop() >= 2 {
			payload = toGo(L.Get(2))
		}
		ev.TriggerEvent(name, payload)
		return 0
	}))

	L.SetGlobal("createTimer", L.NewFunction(func(L *lua.LState) int {
		fn := L.CheckFunction(1)
		intervalMs := L.CheckInt64(2)
		executeTimes := L.OptInt(3, 0)

		var args []any
		for i := 4; i <= L.GetTop(); i++ {
			args = append(args, toGo(L.Get(i)))
		}

		id := tm.CreateTimer(func(boundArgs []any) {
			L.Push(fn)
			for _, a := range boundArgs {
				pushAny(L, a)
			}
			if err := L.PCall(len(boundArgs), 0, nil); err != nil {
				slog.Error("timer callback failed", "resource", resourceName, "error", err)
			}
		}, msToDuration(intervalMs), executeTimes, args, resourceName)

		L.Push(lua.LNumber(id))
		return 1
	}))

	L.SetGlobal("killTimer", L.NewFunction(func(L *lua.LState) int {
		tm.KillTimer(timers.TimerID(L.CheckInt64(1)))
		return 0
	}))

	L.SetGlobal("setInterval", L.NewFunction(func(L *lua.LState) int {
		id := timers.TimerID(L.CheckInt64(1))
		intervalMs := L.CheckInt64(2)
		ok := tm.SetInterval(id, msToDuration(intervalMs), time.Now())
		L.Push(lua.LBool(ok))
		return 1
	}))

	L.SetGlobal("setExecuteTimes", L.NewFunction(func(L *lua.LState) int {
		id := timers.TimerID(L.CheckInt64(1))
		ok := tm.SetExecuteTimes(id, L.CheckInt(2))
		L.Push(lua.LBool(ok))
		return 1
	}))

	L.SetGlobal("getInterval", L.NewFunction(func(L *lua.LState) int {
		id := timers.TimerID(L.CheckInt64(1))
		interval, ok := tm.GetInterval(id)
		if !ok {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LNumber(interval.Milliseconds()))
		return 1
	}))

	L.SetGlobal("getExecuteTimes", L.NewFunction(func(L *lua.LState) int {
		id := timers.TimerID(L.CheckInt64(1))
		n, ok := tm.GetExecuteTimes(id)
		if !ok {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LNumber(n))
		return 1
	}))

	L.SetGlobal("log", L.NewFunction(func(L *lua.LState) int {
		slog.Info(L.CheckString(1), "resource", resourceName)
		return 0
	}))

	L.SetGlobal("hexEncode", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(hex.EncodeToString([]byte(L.CheckString(1)))))
		return 1
	}))

	L.SetGlobal("hexDecode", L.NewFunction(func(L *lua.LState) int {
		decoded, err := hex.DecodeString(L.CheckString(1))
		if err != nil {
			L.Push(lua.LNil)
			L.Push(lua.LString(err.Error()))
			return 2
		}
		L.Push(lua.LString(decoded))
		return 1
	}))
}

// ServerExtras binds the server-only functions (§4.9.6): broadcast
// helpers and hashing.
type ServerExtras struct {
	SendServerMessage func(text string)

	// UpdateDiscordActivity mirrors wire.DiscordActivityPacket's six
	// fields (opcode 157, §6.1) to the discord package's presence cache.
	UpdateDiscordActivity func(state, details, largeImageKey, largeImageText, smallImageKey, smallImageText string) error
}

// InstallServerOnly binds extras plus the MD5/SHA-1/SHA-256/384/512 hash
// functions, all computed over in-memory bytes.
func InstallServerOnly(L *lua.LState, extras ServerExtras) {
	L.SetGlobal("SendServerMessage", L.NewFunction(func(L *lua.LState) int {
		if extras.SendServerMessage != nil {
			extras.SendServerMessage(L.CheckString(1))
		}
		return 0
	}))

	L.SetGlobal("UpdateDiscordActivity", L.NewFunction(func(L *lua.LState) int {
		state := L.CheckString(1)
		details := L.OptString(2, "")
		largeImageKey := L.OptString(3, "")
		largeImageText := L.OptString(4, "")
		smallImageKey := L.OptString(5, "")
		smallImageText := L.OptString(6, "")
		if extras.UpdateDiscordActivity == nil {
			return 0
		}
		if err := extras.UpdateDiscordActivity(state, details, largeImageKey, largeImageText, smallImageKey, smallImageText); err != nil {
			L.Push(lua.LString(err.Error()))
			return 1
		}
		return 0
	}))

	hashFn := func(sum func([]byte) []byte) lua.LGFunction {
		return func(L *lua.LState) int {
			L.Push(lua.LString(hex.EncodeToString(sum([]byte(L.CheckString(1))))))
			return 1
		}
	}
	L.SetGlobal("md5sum", L.NewFunction(hashFn(func(b []byte) []byte { s := md5.Sum(b); return s[:] })))
	L.SetGlobal("sha1sum", L.NewFunction(hashFn(func(b []byte) []byte { s := sha1.Sum(b); return s[:] })))
	L.SetGlobal("sha256sum", L.NewFunction(hashFn(func(b []byte) []byte { s := sha256.Sum256(b); return s[:] })))
	L.SetGlobal("sha384sum", L.NewFunction(hashFn(func(b []byte) []byte { s := sha512.Sum384(b); return s[:] })))
	L.SetGlobal("sha512sum", L.NewFunction(hashFn(func(b []byte) []byte { s := sha512.Sum512(b); return s[:] })))
}
