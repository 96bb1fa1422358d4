// Package mirror maintains the client-side remote-player table (§4.10):
// entity creation on JoinGame, interpolation and item/health diffing on
// PlayerStateUpdate, and map-only teleport on PlayerPositionUpdate.
package mirror

import (
	"sync"

	"github.com/gmp-go/core/internal/wire"
)

const (
	defaultSnapDistance        = 400
	defaultInterpolateDistance = 50
	healthFlickerGate          = 5 // packets; §4.10 "5-frame packet-count gate"
)

// Orientation is the 3x3 rotation the engine applies to a remote entity,
// reconstructed from the wire's right-vector (nrot).
type Orientation struct {
	Right wire.Vec3
}

// RemotePlayer is one engine-side mirror of a remote peer.
type RemotePlayer struct {
	ID   wire.PlayerId
	Name string

	Class, HeadModel, SkinTex, FaceTex, WalkStyle uint8

	Position    wire.Vec3
	Orientation Orientation

	Health   int16
	Mana     int16
	LeftHand, RightHand, EquippedArmor, MeleeWeapon, RangedWeapon uint16
	WeaponMode                                                    uint8

	Dead bool

	// pendingHealthPackets counts consecutive state updates whose health
	// delta hasn't yet cleared the flicker gate.
	pendingHealthPackets int
	pendingHealthTarget  int16

	VisibleBody bool // false once the entity is map-only (PlayerPositionUpdate)
}

// Sink receives the engine-visible effects of mirror updates; a real
// client binds this to its renderer; tests bind a recording Sink.
type Sink interface {
	SpawnEntity(p *RemotePlayer)
	DespawnEntity(id wire.PlayerId)
	SnapPosition(id wire.PlayerId, pos wire.Vec3)
	InterpolateToPosition(id wire.PlayerId, pos wire.Vec3)
	SetOrientation(id wire.PlayerId, o Orientation)
	SetItemInstance(id wire.PlayerId, slot string, instance uint16)
	SetHealth(id wire.PlayerId, hp int16)
	PlayDeathTransition(id wire.PlayerId)
	SetVisibleBody(id wire.PlayerId, visible bool)
}

// Mirror owns every remote-player entity known to the client.
type Mirror struct {
	sink Sink

	mu      sync.Mutex
	players map[wire.PlayerId]*RemotePlayer

	snapDistance        float64
	interpolateDistance float64
}

// New creates a Mirror that reports entity effects to sink, using the
// source engine's default 400/50-unit interpolation thresholds.
func New(sink Sink) *Mirror {
	return &Mirror{
		sink:                sink,
		players:             make(map[wire.PlayerId]*RemotePlayer),
		snapDistance:        defaultSnapDistance,
		interpolateDistance: defaultInterpolateDistance,
	}
}

// SetInterpolationThresholds overrides the snap/smooth distances (§9
// "tuned for the source engine's scale; keep it configurable"),
// typically sourced from config.Client's interpolation_snap_distance and
// interpolation_smooth_distance. Values <= 0 are ignored.
func (m *Mirror) SetInterpolationThresholds(snap, interpolate float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if snap > 0 {
		m.snapDistance = snap
	}
	if interpolate > 0 {
		m.interpolateDistance = interpolate
	}
}

// ApplyJoinGame creates a local entity for a newly-joined peer, applies
// appearance, and sets its initial position (§4.10).
func (m *Mirror) ApplyJoinGame(id wire.PlayerId, name string, class, head, skin, face, walk uint8, position wire.Vec3) {
	p := &RemotePlayer{
		ID: id, Name: name,
		Class: class, HeadModel: head, SkinTex: skin, FaceTex: face, WalkStyle: walk,
		Position: position, VisibleBody: true,
	}

	m.mu.Lock()
	m.players[id] = p
	m.mu.Unlock()

	m.sink.SpawnEntity(p)
	m.sink.SnapPosition(id, position)
}

// ApplyLeftGame removes id's entity.
func (m *Mirror) ApplyLeftGame(id wire.PlayerId) {
	m.mu.Lock()
	delete(m.players, id)
	m.mu.Unlock()
	m.sink.DespawnEntity(id)
}

// ApplyStateUpdate applies one PlayerStateUpdate to id's mirror.
// localFighting reflects whether the observing client's own player is
// currently in combat (§4.10 "prevents rubberbanding during combat").
func (m *Mirror) ApplyStateUpdate(id wire.PlayerId, state wire.PlayerState, localFighting bool) {
	m.mu.Lock()
	p, ok := m.players[id]
	snapDistance, interpolateDistance := m.snapDistance, m.interpolateDistance
	m.mu.Unlock()
	if !ok {
		return
	}

	orientation := Orientation{Right: state.NRot}
	m.sink.SetOrientation(id, orientation)

	dist := p.Position.Distance(state.Position)
	switch {
	case dist > snapDistance:
		m.sink.SnapPosition(id, state.Position)
	case dist > interpolateDistance:
		if localFighting {
			m.sink.SnapPosition(id, state.Position)
		} else {
			m.sink.InterpolateToPosition(id, state.Position)
		}
	default:
		// within the tight radius, the engine's own animation carries
		// the entity; no position write.
	}

	m.applyItemDiff(id, p, state)
	m.applyHealthDiff(id, p, state.HealthPoints)

	m.mu.Lock()
	p.Position = state.Position
	p.Orientation = orientation
	p.Mana = state.ManaPoints
	p.LeftHand, p.RightHand = state.LeftHand, state.RightHand
	p.EquippedArmor, p.MeleeWeapon, p.RangedWeapon = state.EquippedArmor, state.MeleeWeapon, state.RangedWeapon
	p.WeaponMode = state.WeaponMode
	m.mu.Unlock()
}

func (m *Mirror) applyItemDiff(id wire.PlayerId, p *RemotePlayer, state wire.PlayerState) {
	if state.LeftHand != p.LeftHand {
		m.sink.SetItemInstance(id, "left", state.LeftHand)
	}
	if state.RightHand != p.RightHand {
		m.sink.SetItemInstance(id, "right", state.RightHand)
	}
	if state.EquippedArmor != p.EquippedArmor {
		m.sink.SetItemInstance(id, "armor", state.EquippedArmor)
	}
	if state.MeleeWeapon != p.MeleeWeapon {
		m.sink.SetItemInstance(id, "melee", state.MeleeWeapon)
	}
	if state.RangedWeapon != p.RangedWeapon {
		m.sink.SetItemInstance(id, "ranged", state.RangedWeapon)
	}
}

// applyHealthDiff suppresses health flicker smaller than the gate and
// honours the death transition when new_hp==0 and old_hp>0 (§4.10).
func (m *Mirror) applyHealthDiff(id wire.PlayerId, p *RemotePlayer, newHP int16) {
	m.mu.Lock()
	oldHP := p.Health
	m.mu.Unlock()

	if newHP == 0 && oldHP > 0 {
		m.mu.Lock()
		p.Health = 0
		p.Dead = true
		p.pendingHealthPackets = 0
		m.mu.Unlock()
		m.sink.SetHealth(id, 0)
		m.sink.PlayDeathTransition(id)
		return
	}

	if newHP == oldHP {
		m.mu.Lock()
		p.pendingHealthPackets = 0
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	if p.pendingHealthTarget != newHP {
		p.pendingHealthTarget = newHP
		p.pendingHealthPackets = 1
	} else {
		p.pendingHealthPackets++
	}
	settled := p.pendingHealthPackets >= healthFlickerGate
	if settled {
		p.Health = newHP
		p.pendingHealthPackets = 0
	}
	m.mu.Unlock()

	if settled {
		m.sink.SetHealth(id, newHP)
	}
}

// ApplyPositionUpdate teleports id on the horizontal plane and disables
// its visible body: the peer is far enough that it is map-only (§4.10).
func (m *Mirror) ApplyPositionUpdate(id wire.PlayerId, position wire.Vec3) {
	m.mu.Lock()
	p, ok := m.players[id]
	if ok {
		p.Position = position
		p.VisibleBody = false
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	m.sink.SnapPosition(id, position)
	m.sink.SetVisibleBody(id, false)
}

// Get returns a snapshot of id's mirrored state.
func (m *Mirror) Get(id wire.PlayerId) (RemotePlayer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[id]
	if !ok {
		return RemotePlayer{}, false
	}
	return *p, true
}

// Count returns the number of mirrored remote players.
func (m *Mirror) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.players)
}
