package combat_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gmp-go/core/internal/combat"
	"github.com/gmp-go/core/internal/registry"
	"github.com/gmp-go/core/internal/wire"
)

func TestSelfDeltaAppliesDirectly(t *testing.T) {
	r := registry.New()
	p := r.AddPlayer(wire.ConnectionHandle(1))
	p.Health = 50

	out := combat.Apply(p, p, -10, 100, false, time.Now())
	require.True(t, out.Applied)
	require.Equal(t, int16(40), p.Health)
	require.True(t, out.HitFired)
	require.False(t, out.KillFired, "self-hits never fire onPlayerKill")
}

func TestTwoHitKillSubArbitration(t *testing.T) {
	r := registry.New()
	attacker := r.AddPlayer(wire.ConnectionHandle(1))
	victim := r.AddPlayer(wire.ConnectionHandle(2))
	attacker.FightPos = 1
	victim.Health = 6

	first := combat.Apply(attacker, victim, -5, 100, true, time.Now())
	require.True(t, first.NowUnconscious)
	require.Equal(t, int16(1), victim.Health)
	require.True(t, victim.Unconscious())
	require.False(t, first.Died)

	second := combat.Apply(attacker, victim, -5, 100, true, time.Now())
	require.True(t, second.Died)
	require.True(t, second.DeathFired)
	require.True(t, second.KillFired)
	require.Equal(t, attacker.ID, second.Killer)
	require.False(t, victim.Alive())
}

func TestOrdinaryDamageClampsToZeroAndFiresDeath(t *testing.T) {
	r := registry.New()
	attacker := r.AddPlayer(wire.ConnectionHandle(1))
	victim := r.AddPlayer(wire.ConnectionHandle(2))
	victim.Health = 5

	out := combat.Apply(attacker, victim, -20, 100, false, time.Now())
	require.Equal(t, int16(0), victim.Health)
	require.True(t, out.Died)
	require.True(t, out.KillFired)
}

func TestHealthNeverExceedsMax(t *testing.T) {
	r := registry.New()
	p := r.AddPlayer(wire.ConnectionHandle(1))
	p.Health = 90

	combat.Apply(p, p, 50, 100, false, time.Now())
	require.Equal(t, int16(100), p.Health)
}

func TestAlreadyDeadVictimRejectsFurtherDamage(t *testing.T) {
	r := registry.New()
	attacker := r.AddPlayer(wire.ConnectionHandle(1))
	victim := r.AddPlayer(wire.ConnectionHandle(2))
	victim.Health = 0
	victim.TOD = time.Now()

	out := combat.Apply(attacker, victim, -5, 100, false, time.Now())
	require.False(t, out.Applied)
}
