package bindings_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"

	"github.com/gmp-go/core/internal/scripting/bindings"
	"github.com/gmp-go/core/internal/scripting/events"
	"github.com/gmp-go/core/internal/scripting/timers"
)

func TestEventSubscriptionRoundTripsThroughLua(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	ev := events.New()
	tm := timers.New()
	bindings.InstallCommon(L, ev, tm, "res")

	require.NoError(t, L.DoString(`
		registerEvent("onFoo")
		received = nil
		subscribeToEvent("onFoo", function(payload) received = payload end)
	`))

	ev.TriggerEvent("onFoo", "hello")
	require.Equal(t, lua.LString("hello"), L.GetGlobal("received"))
}

func TestCreateTimerFiresThroughLuaCallback(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	ev := events.New()
	tm := timers.New()
	bindings.InstallCommon(L, ev, tm, "res")

	require.NoError(t, L.DoString(`
		fired = false
		timerId = createTimer(function() fired = true end, 50, 1)
	`))

	tm.ProcessTimers(time.Now().Add(100 * time.Millisecond))
	require.Equal(t, lua.LTrue, L.GetGlobal("fired"))
}

func TestHexEncodeDecodeRoundTrip(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	bindings.InstallCommon(L, events.New(), timers.New(), "res")

	require.NoError(t, L.DoString(`
		encoded = hexEncode("AB")
		decoded = hexDecode(encoded)
	`))

	require.Equal(t, lua.LString("4142"), L.GetGlobal("encoded"))
	require.Equal(t, lua.LString("AB"), L.GetGlobal("decoded"))
}

func TestServerOnlyHashFunctions(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	bindings.InstallServerOnly(L, bindings.ServerExtras{})

	require.NoError(t, L.DoString(`
		h = sha256sum("abc")
	`))
	require.Equal(t, lua.LString("ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"), L.GetGlobal("h"))
}

func TestSendServerMessageInvokesBoundCallback(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	var got string
	bindings.InstallServerOnly(L, bindings.ServerExtras{
		SendServerMessage: func(text string) { got = text },
	})

	require.NoError(t, L.DoString(`SendServerMessage("hello world")`))
	require.Equal(t, "hello world", got)
}
