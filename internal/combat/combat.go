// Package combat implements the HPDiff damage-arbitration state machine
// (§4.4). Apply writes the victim's health, flags and time of death in
// place; callers (the dispatcher) own any network broadcast or
// scripting-hook dispatch the returned Outcome implies.
package combat

import (
	"time"

	"github.com/gmp-go/core/internal/registry"
	"github.com/gmp-go/core/internal/wire"
)

// fightPosUnconsciousEligible are the melee fight postures eligible for
// the two-hit-kill sub-arbitration (§4.4).
var fightPosUnconsciousEligible = map[uint8]bool{1: true, 3: true, 4: true}

// Outcome describes the side effects an Apply call implies, beyond the
// registry mutation Apply already performed.
type Outcome struct {
	// Applied is false when the hit was rejected outright (victim already
	// dead, or absent) and no state changed.
	Applied bool

	Died           bool
	NowUnconscious bool

	HitFired  bool // onPlayerHit should fire
	HitAmount int16

	KillFired  bool // onPlayerKill should fire (attacker != victim)
	DeathFired bool // onPlayerDeath should fire
	Killer     wire.PlayerId
	HasKiller  bool
}

// Apply arbitrates delta against victim, mutating victim's Health/Flags/TOD
// in place per §4.4. attacker may equal victim (self-delta). maxHealth is
// the victim's class maximum (callers fall back to 100 when the class
// table has no entry, per §4.4/§3).
func Apply(attacker *registry.Player, victim *registry.Player, delta int16, maxHealth int16, beUnconsciousBeforeDead bool, now time.Time) Outcome {
	if victim == nil || !victim.Alive() {
		return Outcome{}
	}

	out := Outcome{Applied: true}

	self := attacker != nil && attacker.ID == victim.ID

	switch {
	case self:
		victim.Health = clamp(victim.Health+delta, 0, maxHealth)

	case beUnconsciousBeforeDead && attacker != nil && fightPosUnconsciousEligible[attacker.FightPos]:
		applyUnconsciousSubArbitration(victim, delta, maxHealth, &out)

	default:
		victim.Health = clamp(victim.Health+delta, 0, maxHealth)
	}

	if delta < 0 {
		out.HitFired = true
		out.HitAmount = -delta
	}

	if victim.Health <= 0 && victim.Alive() {
		victim.TOD = now
		victim.SetUnconscious(false)
		out.Died = true
		out.DeathFired = true
		if attacker != nil && attacker.ID != victim.ID {
			out.KillFired = true
			out.Killer = attacker.ID
			out.HasKiller = true
		}
	}

	return out
}

// applyUnconsciousSubArbitration implements the two-hit-kill rule: the
// first hit that would drop health below 2 instead clamps health to 1 and
// sets UNCONSCIOUS; any further hit while UNCONSCIOUS kills outright.
func applyUnconsciousSubArbitration(victim *registry.Player, delta int16, maxHealth int16, out *Outcome) {
	if victim.Unconscious() {
		victim.Health = 0
		return
	}

	projected := victim.Health + delta
	if projected < 2 {
		victim.Health = 1
		victim.SetUnconscious(true)
		out.NowUnconscious = true
		return
	}
	victim.Health = clamp(projected, 0, maxHealth)
}

func clamp(v, lo, hi int16) int16 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
