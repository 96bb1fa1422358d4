package registry_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gmp-go/core/internal/registry"
	"github.com/gmp-go/core/internal/wire"
)

func TestConnectionAndIDMapsAreInverses(t *testing.T) {
	r := registry.New()

	p1 := r.AddPlayer(wire.ConnectionHandle(100))
	p2 := r.AddPlayer(wire.ConnectionHandle(200))

	require.NotEqual(t, p1.ID, p2.ID)
	require.NotEqual(t, wire.NoPlayer, p1.ID)

	gotByConn, ok := r.ByConnection(wire.ConnectionHandle(100))
	require.True(t, ok)
	require.Equal(t, p1, gotByConn)

	conn, ok := r.ConnectionOf(p1.ID)
	require.True(t, ok)
	require.Equal(t, wire.ConnectionHandle(100), conn)

	gotByID, ok := r.ByID(p2.ID)
	require.True(t, ok)
	require.Equal(t, p2, gotByID)
}

func TestRemovePlayerInvalidatesBothDirections(t *testing.T) {
	r := registry.New()
	p := r.AddPlayer(wire.ConnectionHandle(1))

	removed, ok := r.Remove(wire.ConnectionHandle(1))
	require.True(t, ok)
	require.Equal(t, p, removed)

	_, ok = r.ByConnection(wire.ConnectionHandle(1))
	require.False(t, ok)
	_, ok = r.ByID(p.ID)
	require.False(t, ok)
}

func TestPlayerIdsAreNeverReused(t *testing.T) {
	r := registry.New()
	p1 := r.AddPlayer(wire.ConnectionHandle(1))
	r.Remove(wire.ConnectionHandle(1))
	p2 := r.AddPlayer(wire.ConnectionHandle(1)) // same handle recycled by transport

	require.NotEqual(t, p1.ID, p2.ID)
}

func TestForEachSafeDuringRemoval(t *testing.T) {
	r := registry.New()
	for i := range 5 {
		r.AddPlayer(wire.ConnectionHandle(i))
	}

	var visited int
	r.ForEach(func(p *registry.Player) {
		visited++
		r.RemoveByID(p.ID) // mutate during iteration
	})

	require.Equal(t, 5, visited)
	require.Equal(t, 0, r.Count())
}

func TestForEachIngameFiltersNonIngame(t *testing.T) {
	r := registry.New()
	p1 := r.AddPlayer(wire.ConnectionHandle(1))
	r.AddPlayer(wire.ConnectionHandle(2))
	require.NoError(t, r.SetIngame(p1.ID, true))

	var seen []wire.PlayerId
	r.ForEachIngame(func(p *registry.Player) {
		seen = append(seen, p.ID)
	})
	require.Equal(t, []wire.PlayerId{p1.ID}, seen)
}

func TestConcurrentReadsAndWrites(t *testing.T) {
	r := registry.New()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, ok := r.ByConnection(wire.ConnectionHandle(i))
			if ok {
				_ = p.Snapshot()
			}
		}(i)
	}
	for i := range 50 {
		r.AddPlayer(wire.ConnectionHandle(i))
	}
	wg.Wait()
	require.Equal(t, 50, r.Count())
}
