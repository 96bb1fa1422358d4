package packetbuilder

import (
	"log/slog"

	lua "github.com/yuin/gopher-lua"

	"github.com/gmp-go/core/internal/transport"
	"github.com/gmp-go/core/internal/wire"
)

const packetUserDataTypeName = "Packet"

// InstallConstructor exposes a `Packet` global table to L: `Packet.new()`
// and `Packet.fromBytes(s)` each return a userdata wrapping a *Packet,
// with read/write/send methods attached via a shared metatable (§4.9.7).
// sender may be nil in contexts (e.g. the client lifecycle) where
// send/sendToAll aren't wired; calling them then is a no-op that logs a
// warning on every call.
func InstallConstructor(L *lua.LState, sender *Sender) {
	mt := L.NewTypeMetatable(packetUserDataTypeName)
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), methodTable(sender)))

	ctor := L.NewTable()
	L.SetField(ctor, "new", L.NewFunction(func(L *lua.LState) int {
		ud := L.NewUserData()
		ud.Value = New()
		L.SetMetatable(ud, L.GetTypeMetatable(packetUserDataTypeName))
		L.Push(ud)
		return 1
	}))
	L.SetField(ctor, "fromBytes", L.NewFunction(func(L *lua.LState) int {
		s := L.CheckString(1)
		ud := L.NewUserData()
		ud.Value = FromBytes([]byte(s))
		L.SetMetatable(ud, L.GetTypeMetatable(packetUserDataTypeName))
		L.Push(ud)
		return 1
	}))
	L.SetGlobal("Packet", ctor)
}

func checkPacket(L *lua.LState, n int) *Packet {
	ud := L.CheckUserData(n)
	p, ok := ud.Value.(*Packet)
	if !ok {
		L.ArgError(n, "Packet expected")
	}
	return p
}

func methodTable(sender *Sender) map[string]lua.LGFunction {
	return map[string]lua.LGFunction{
		"writeBool":   func(L *lua.LState) int { checkPacket(L, 1).WriteBool(L.ToBool(2)); return 0 },
		"writeU8":     func(L *lua.LState) int { checkPacket(L, 1).WriteU8(uint8(L.CheckInt(2))); return 0 },
		"writeI8":     func(L *lua.LState) int { checkPacket(L, 1).WriteI8(int8(L.CheckInt(2))); return 0 },
		"writeU16":    func(L *lua.LState) int { checkPacket(L, 1).WriteU16(uint16(L.CheckInt(2))); return 0 },
		"writeI16":    func(L *lua.LState) int { checkPacket(L, 1).WriteI16(int16(L.CheckInt(2))); return 0 },
		"writeU32":    func(L *lua.LState) int { checkPacket(L, 1).WriteU32(uint32(L.CheckInt64(2))); return 0 },
		"writeI32":    func(L *lua.LState) int { checkPacket(L, 1).WriteI32(int32(L.CheckInt64(2))); return 0 },
		"writeF32":    func(L *lua.LState) int { checkPacket(L, 1).WriteF32(float32(L.CheckNumber(2))); return 0 },
		"writeString": func(L *lua.LState) int { checkPacket(L, 1).WriteString(L.CheckString(2)); return 0 },
		"writeBlob":   func(L *lua.LState) int { checkPacket(L, 1).WriteBlob([]byte(L.CheckString(2))); return 0 },
		"readBool":    readMethod(func(p *Packet) (lua.LValue, error) { v, err := p.ReadBool(); return lua.LBool(v), err }),
		"readU8":      readMethod(func(p *Packet) (lua.LValue, error) { v, err := p.ReadU8(); return lua.LNumber(v), err }),
		"readI8":      readMethod(func(p *Packet) (lua.LValue, error) { v, err := p.ReadI8(); return lua.LNumber(v), err }),
		"readU16":     readMethod(func(p *Packet) (lua.LValue, error) { v, err := p.ReadU16(); return lua.LNumber(v), err }),
		"readI16":     readMethod(func(p *Packet) (lua.LValue, error) { v, err := p.ReadI16(); return lua.LNumber(v), err }),
		"readU32":     readMethod(func(p *Packet) (lua.LValue, error) { v, err := p.ReadU32(); return lua.LNumber(v), err }),
		"readI32":     readMethod(func(p *Packet) (lua.LValue, error) { v, err := p.ReadI32(); return lua.LNumber(v), err }),
		"readF32":     readMethod(func(p *Packet) (lua.LValue, error) { v, err := p.ReadF32(); return lua.LNumber(v), err }),
		"readString":  readMethod(func(p *Packet) (lua.LValue, error) { v, err := p.ReadString(); return lua.LString(v), err }),
		"readBlob":    readMethod(func(p *Packet) (lua.LValue, error) { v, err := p.ReadBlob(); return lua.LString(v), err }),
		"send": func(L *lua.LState) int {
			p := checkPacket(L, 1)
			peer := wire.ConnectionHandle(L.CheckInt64(2))
			reliability := transport.Reliability(L.CheckInt(3))
			if sender == nil {
				slog.Warn("Packet:send called with no sender bound")
				return 0
			}
			if err := sender.Send(p, peer, transport.Immediate, reliability, 0); err != nil {
				slog.Warn("scripted packet send failed", "error", err)
			}
			return 0
		},
		"sendToAll": func(L *lua.LState) int {
			p := checkPacket(L, 1)
			reliability := transport.Reliability(L.CheckInt(2))
			if sender == nil {
				slog.Warn("Packet:sendToAll called with no sender bound")
				return 0
			}
			sender.SendToAll(p, transport.Immediate, reliability, 0)
			return 0
		},
	}
}

func readMethod(read func(p *Packet) (lua.LValue, error)) lua.LGFunction {
	return func(L *lua.LState) int {
		p := checkPacket(L, 1)
		v, err := read(p)
		if err != nil {
			L.Push(lua.LNil)
			L.Push(lua.LString(err.Error()))
			return 2
		}
		L.Push(v)
		return 1
	}
}
