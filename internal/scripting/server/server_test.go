package server_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"

	"github.com/gmp-go/core/internal/scripting/bindings"
	"github.com/gmp-go/core/internal/scripting/events"
	"github.com/gmp-go/core/internal/scripting/exports"
	"github.com/gmp-go/core/internal/scripting/server"
	"github.com/gmp-go/core/internal/scripting/timers"
)

func writeResource(t *testing.T, baseDir, name string, sharedLua, serverLua string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(baseDir, name, "shared"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(baseDir, name, "server"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(baseDir, name, "shared", "a.lua"), []byte(sharedLua), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(baseDir, name, "server", "b.lua"), []byte(serverLua), 0o644))
}

func newManager(t *testing.T, baseDir string) (*server.Manager, *events.Manager, *timers.Manager, *exports.Registry) {
	ev := events.New()
	tm := timers.New()
	stack := exports.NewStack()
	reg := exports.NewRegistry(stack)
	mgr := server.New(baseDir, ev, tm, reg, nil, bindings.ServerExtras{})
	return mgr, ev, tm, reg
}

func TestLoadResourceRunsSharedThenServerAndCallsOnResourceStart(t *testing.T) {
	baseDir := t.TempDir()
	writeResource(t, baseDir, "r1", `sharedValue = 10`, `
		serverValue = sharedValue + 1
		started = false
		function onResourceStart()
			started = true
			triggerEvent("started", serverValue)
		end
	`)

	mgr, ev, _, _ := newManager(t, baseDir)
	ev.RegisterEvent("started")
	var got any
	_, err := ev.SubscribeToEvent("started", func(p any) error { got = p; return nil })
	require.NoError(t, err)
	require.NoError(t, mgr.LoadResource("r1"))

	res, ok := mgr.Resource("r1")
	require.True(t, ok)
	require.True(t, res.Loaded)
	require.Equal(t, 1, res.Generation)
	require.Equal(t, float64(11), got)
}

func TestLoadResourceCapturesExportsTable(t *testing.T) {
	baseDir := t.TempDir()
	writeResource(t, baseDir, "r1", `
		exports = {}
		function exports.add(a, b) return a + b end
	`, ``)

	mgr, _, _, reg := newManager(t, baseDir)
	require.NoError(t, mgr.LoadResource("r1"))

	L := lua.NewState()
	defer L.Close()
	reg.InstallGlobal(L)
	require.NoError(t, L.DoString(`kind = type(exports.r1.add)`))
	require.Equal(t, lua.LString("function"), L.GetGlobal("kind"))
}

func TestUnloadResourceCallsOnResourceStopAndClearsTimers(t *testing.T) {
	baseDir := t.TempDir()
	writeResource(t, baseDir, "r1", ``, `
		stopped = false
		function onResourceStop()
			stopped = true
			triggerEvent("stopped")
		end
		createTimer(function() end, 50, 0)
	`)

	mgr, ev, tm, _ := newManager(t, baseDir)
	ev.RegisterEvent("stopped")
	stopped := false
	_, err := ev.SubscribeToEvent("stopped", func(any) error { stopped = true; return nil })
	require.NoError(t, err)
	require.NoError(t, mgr.LoadResource("r1"))
	require.Equal(t, 1, tm.Count())

	require.NoError(t, mgr.UnloadResource("r1"))
	require.Equal(t, 0, tm.Count())
	require.True(t, stopped)

	res, ok := mgr.Resource("r1")
	require.True(t, ok)
	require.False(t, res.Loaded)
}

func TestReloadResourceIncrementsGeneration(t *testing.T) {
	baseDir := t.TempDir()
	writeResource(t, baseDir, "r1", ``, ``)

	mgr, _, _, _ := newManager(t, baseDir)
	require.NoError(t, mgr.LoadResource("r1"))
	require.NoError(t, mgr.ReloadResource("r1"))

	res, ok := mgr.Resource("r1")
	require.True(t, ok)
	require.Equal(t, 2, res.Generation)
}

func TestLoadResourceAbortsOnFirstError(t *testing.T) {
	baseDir := t.TempDir()
	writeResource(t, baseDir, "r1", `this is not valid lua (((`, ``)

	mgr, _, _, _ := newManager(t, baseDir)
	err := mgr.LoadResource("r1")
	require.Error(t, err)
}
