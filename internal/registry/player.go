// Package registry holds the authoritative player table (§4.3): the
// PlayerId<->ConnectionHandle maps and the per-player record, guarded by a
// single lock spanning both maps as §5 requires.
package registry

import (
	"time"

	"github.com/gmp-go/core/internal/wire"
)

// Flags is the player flag bitset (§3).
type Flags uint8

const (
	FlagUnconscious Flags = 1 << 0
)

// Player is the server-side record for one connected peer.
type Player struct {
	ID         wire.PlayerId
	Connection wire.ConnectionHandle

	Name      string
	Class     uint8
	Head      uint8
	Skin      uint8
	Body      uint8
	WalkStyle uint8

	State wire.PlayerState

	Health int16
	Mana   int16

	Flags Flags

	IsIngame      bool
	Mute          bool
	PassedCRCTest bool

	// IsAdmin is set once a peer authenticates via the Command opcode's
	// RCON login convention (§6.2 admin_passwd). Ungated when the server
	// config leaves admin_passwd empty.
	IsAdmin bool

	// TOD is the wall-clock time of death, or the zero Time if alive.
	TOD time.Time

	// FightPos is advisory; used by damage arbitration (§4.4).
	FightPos uint8
}

// Alive reports whether the player is currently alive.
func (p *Player) Alive() bool {
	return p.TOD.IsZero()
}

// Unconscious reports whether the UNCONSCIOUS flag is set.
func (p *Player) Unconscious() bool {
	return p.Flags&FlagUnconscious != 0
}

// SetUnconscious sets or clears the UNCONSCIOUS flag.
func (p *Player) SetUnconscious(v bool) {
	if v {
		p.Flags |= FlagUnconscious
	} else {
		p.Flags &^= FlagUnconscious
	}
}

// Snapshot returns a copy of the player's current wire-visible state,
// keeping State.HealthPoints/ManaPoints synced with Health/Mana.
func (p *Player) Snapshot() wire.PlayerState {
	s := p.State
	s.HealthPoints = p.Health
	s.ManaPoints = p.Mana
	return s
}
