package luavm_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"

	"github.com/gmp-go/core/internal/scripting/luavm"
)

func TestSandboxedPolicyHasNoFileLoadingPrimitives(t *testing.T) {
	L := luavm.New(luavm.Sandboxed)
	defer L.Close()

	err := L.DoString(`
		assert(dofile == nil)
		assert(loadfile == nil)
		assert(load == nil)
		assert(require == nil)
		assert(os == nil)
		assert(io == nil)
	`)
	require.NoError(t, err)
}

func TestSandboxedPolicyCanRunBasicArithmeticAndStrings(t *testing.T) {
	L := luavm.New(luavm.Sandboxed)
	defer L.Close()

	err := L.DoString(`
		local t = {1, 2, 3}
		assert(#t == 3)
		assert(string.upper("ok") == "OK")
		assert(math.floor(3.7) == 3)
	`)
	require.NoError(t, err)
}

func TestTrustedPolicyExposesOnlyWhitelistedOSFunctions(t *testing.T) {
	L := luavm.New(luavm.Trusted)
	defer L.Close()

	err := L.DoString(`
		assert(type(os.time) == "function")
		assert(type(os.clock) == "function")
		assert(type(os.date) == "function")
		assert(type(os.difftime) == "function")
		assert(os.execute == nil)
		assert(os.remove == nil)
		assert(os.getenv == nil)
	`)
	require.NoError(t, err)
}

func TestTrustedPolicyTimeFunctionsReturnNumbers(t *testing.T) {
	L := luavm.New(luavm.Trusted)
	defer L.Close()

	require.NoError(t, L.DoString(`t1 = os.time()`))
	v := L.GetGlobal("t1")
	require.Equal(t, lua.LTNumber, v.Type())
}
