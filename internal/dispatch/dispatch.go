// Package dispatch implements the packet dispatcher (§4.5): the
// opcode→handler table, admission-event handling, the JoinGame CRC gate,
// and "mutate registry before broadcast" ordering.
package dispatch

import (
	"crypto/subtle"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/gmp-go/core/internal/combat"
	"github.com/gmp-go/core/internal/packet"
	"github.com/gmp-go/core/internal/registry"
	"github.com/gmp-go/core/internal/transport"
	"github.com/gmp-go/core/internal/wire"
)

// voiceRateLimit and voiceRateBurst bound Voice opcode traffic per
// sender (§9 "relayed opaquely with no rate limit... a production
// reimplementation should add one"): 8 packets/second steady-state with
// a small burst allowance for the codec's natural jitter.
const (
	voiceRateLimit = 8
	voiceRateBurst = 4
)

// crcBanDuration is the fixed §4.5/§8 scenario F ban TTL for a failed CRC
// gate at JoinGame.
const crcBanDuration = 3_600_000 * time.Millisecond

const maxNameLength = 24

// ClassTable resolves a class id to its maximum health. Callers that have
// no data-driven class table (v1 ships none) use DefaultClassTable, which
// always answers 100 per §4.4's "or 100 if class table empty" fallback.
type ClassTable interface {
	MaxHealth(class uint8) int16
}

// DefaultClassTable implements ClassTable with a single flat maximum.
type DefaultClassTable struct{}

func (DefaultClassTable) MaxHealth(uint8) int16 { return 100 }

// Hooks lets the scripting host observe dispatcher-level events without
// this package importing the scripting package (the wiring lives in
// cmd/gmpserver).
type Hooks interface {
	OnPlayerConnect(p *registry.Player)
	OnPlayerJoin(p *registry.Player)
	OnPlayerDisconnect(p *registry.Player)
	OnPlayerHit(attacker wire.PlayerId, hasAttacker bool, victim wire.PlayerId, amount int16)
	OnPlayerKill(attacker, victim wire.PlayerId)
	OnPlayerDeath(victim wire.PlayerId, killer wire.PlayerId, hasKiller bool)
	OnCommand(p *registry.Player, command string)
	OnScriptPacket(sender wire.PlayerId, hasSender bool, payload []byte)
}

// NoopHooks is the zero-value Hooks implementation; embed it to implement
// only the events a particular scripting binding cares about.
type NoopHooks struct{}

func (NoopHooks) OnPlayerConnect(*registry.Player)                      {}
func (NoopHooks) OnPlayerJoin(*registry.Player)                         {}
func (NoopHooks) OnPlayerDisconnect(*registry.Player)                   {}
func (NoopHooks) OnPlayerHit(wire.PlayerId, bool, wire.PlayerId, int16) {}
func (NoopHooks) OnPlayerKill(wire.PlayerId, wire.PlayerId)             {}
func (NoopHooks) OnPlayerDeath(wire.PlayerId, wire.PlayerId, bool)      {}
func (NoopHooks) OnCommand(*registry.Player, string)                   {}
func (NoopHooks) OnScriptPacket(wire.PlayerId, bool, []byte)            {}

// Config carries the server.toml values the dispatcher consults.
type Config struct {
	MapName                 string
	AllowModification       bool
	BeUnconsciousBeforeDead bool

	// AdminPasswd gates the Command opcode's RCON functions (§6.2): empty
	// disables gating and every Command reaches Hooks.OnCommand as before.
	AdminPasswd string
}

// Dispatcher wires the opcode table onto a transport and arbitrates
// gameplay packets against the registry.
type Dispatcher struct {
	t   *transport.Transport
	reg *registry.Registry

	classTable ClassTable
	hooks      Hooks
	cfg        Config

	voiceMu       sync.Mutex
	voiceLimiters map[wire.PlayerId]*rate.Limiter
}

// New creates a Dispatcher. hooks may be nil (NoopHooks is used).
func New(t *transport.Transport, reg *registry.Registry, classTable ClassTable, hooks Hooks, cfg Config) *Dispatcher {
	if classTable == nil {
		classTable = DefaultClassTable{}
	}
	if hooks == nil {
		hooks = NoopHooks{}
	}
	return &Dispatcher{t: t, reg: reg, classTable: classTable, hooks: hooks, cfg: cfg, voiceLimiters: make(map[wire.PlayerId]*rate.Limiter)}
}

// Register installs every opcode handler onto the transport. Call once
// before Start so admission handlers are live for the first Pulse.
func (d *Dispatcher) Register() {
	d.t.AddPacketHandler(wire.OpNewIncomingConnection, d.handleNewIncomingConnection)
	d.t.AddPacketHandler(wire.OpDisconnectionNotification, d.handleDisconnect)
	d.t.AddPacketHandler(wire.OpConnectionLost, d.handleDisconnect)

	d.t.AddPacketHandler(wire.OpJoinGame, d.decoded(d.handleJoinGame))
	d.t.AddPacketHandler(wire.OpPlayerStateUpdate, d.decoded(d.handlePlayerStateUpdate))
	d.t.AddPacketHandler(wire.OpHPDiff, d.decoded(d.handleHPDiff))
	d.t.AddPacketHandler(wire.OpMessage, d.decoded(d.handleMessage))
	d.t.AddPacketHandler(wire.OpWhisper, d.decoded(d.handleMessage))
	d.t.AddPacketHandler(wire.OpCommand, d.decoded(d.handleCommand))
	d.t.AddPacketHandler(wire.OpDropItem, d.decoded(d.handleDropItem))
	d.t.AddPacketHandler(wire.OpTakeItem, d.decoded(d.handleTakeItem))
	d.t.AddPacketHandler(wire.OpCastSpell, d.decoded(d.handleCastSpell))
	d.t.AddPacketHandler(wire.OpCastSpellOnTarget, d.decoded(d.handleCastSpell))
	d.t.AddPacketHandler(wire.OpVoice, d.decoded(d.handleVoice))
	d.t.AddPacketHandler(wire.OpScriptingEnvelope, d.decoded(d.handleScriptingEnvelope))
}

// decoded wraps a typed handler with frame decode + the "sender must
// already be registered" lookup described in §4.5.
func (d *Dispatcher) decoded(fn func(sender *registry.Player, peer wire.ConnectionHandle, frame packet.Frame)) transport.Handler {
	return func(peer wire.ConnectionHandle, data []byte, length int) {
		frame, err := packet.Decode(data[:length])
		if err != nil {
			slog.Warn("dropping malformed frame", "peer", peer, "error", err)
			return
		}
		sender, ok := d.reg.ByConnection(peer)
		if !ok {
			slog.Debug("dropping frame from unregistered peer", "peer", peer, "opcode", frame.Op)
			return
		}
		fn(sender, peer, frame)
	}
}

func (d *Dispatcher) handleNewIncomingConnection(peer wire.ConnectionHandle, data []byte, length int) {
	p := d.reg.AddPlayer(peer)
	encoded, err := packet.Encode(wire.OpInitialInfo, wire.InitialInfoPacket{
		MapName:    d.cfg.MapName,
		AssignedID: p.ID,
	})
	if err != nil {
		slog.Error("encoding InitialInfo", "error", err)
		return
	}
	if err := d.t.Send(encoded, transport.Immediate, transport.Reliable, 0, peer); err != nil {
		slog.Warn("sending InitialInfo", "peer", peer, "error", err)
	}
	d.hooks.OnPlayerConnect(p)
}

func (d *Dispatcher) handleDisconnect(peer wire.ConnectionHandle, data []byte, length int) {
	p, ok := d.reg.Remove(peer)
	if !ok {
		return
	}
	if p.IsIngame {
		d.broadcastExcept(wire.OpLeftGame, wire.LeftGamePacket{Disconnected: p.ID}, wire.NoPlayer)
	}
	d.voiceMu.Lock()
	delete(d.voiceLimiters, p.ID)
	d.voiceMu.Unlock()
	d.hooks.OnPlayerDisconnect(p)
}

func (d *Dispatcher) handleJoinGame(sender *registry.Player, peer wire.ConnectionHandle, frame packet.Frame) {
	pkt := frame.Payload.(wire.JoinGamePacket)

	if !d.cfg.AllowModification && !sender.PassedCRCTest {
		d.reg.Remove(peer)
		if ip, ok := d.t.GetPeerIp(peer); ok {
			d.t.AddBan(ip, crcBanDuration)
		}
		d.t.Disconnect(peer)
		slog.Warn("peer failed CRC gate at JoinGame, banned", "peer", peer)
		return
	}

	sender.Name = sanitizeName(pkt.PlayerName)
	sender.Class = pkt.Class
	sender.Head = pkt.HeadModel
	sender.Skin = pkt.SkinTex
	sender.Body = pkt.FaceTex
	sender.WalkStyle = pkt.WalkStyle
	sender.State.Position = pkt.Position
	sender.State.NRot = pkt.Normal
	sender.State.LeftHand = pkt.Left
	sender.State.RightHand = pkt.Right
	sender.State.EquippedArmor = pkt.Armor
	sender.State.Animation = pkt.Animation
	sender.Health = d.classTable.MaxHealth(sender.Class)

	existing := wire.ExistingPlayersPacket{}
	d.reg.ForEachIngame(func(p *registry.Player) {
		if p.ID == sender.ID {
			return
		}
		existing.Players = append(existing.Players, wire.ExistingPlayerInfo{
			PlayerID:   p.ID,
			PlayerName: p.Name,
			Class:      p.Class,
			HeadModel:  p.Head,
			SkinTex:    p.Skin,
			FaceTex:    p.Body,
			WalkStyle:  p.WalkStyle,
			State:      p.Snapshot(),
		})
	})

	d.reg.SetIngame(sender.ID, true)

	encoded, err := packet.Encode(wire.OpExistingPlayers, existing)
	if err != nil {
		slog.Error("encoding ExistingPlayers", "error", err)
		return
	}
	if err := d.t.Send(encoded, transport.Immediate, transport.Reliable, 0, peer); err != nil {
		slog.Warn("sending ExistingPlayers", "peer", peer, "error", err)
	}

	d.broadcastExcept(wire.OpJoinGame, wire.JoinGamePacket{
		PlayerID:   wire.Some(sender.ID),
		Class:      sender.Class,
		HeadModel:  sender.Head,
		SkinTex:    sender.Skin,
		FaceTex:    sender.Body,
		WalkStyle:  sender.WalkStyle,
		Position:   sender.State.Position,
		Normal:     sender.State.NRot,
		Left:       sender.State.LeftHand,
		Right:      sender.State.RightHand,
		Armor:      sender.State.EquippedArmor,
		Animation:  sender.State.Animation,
		PlayerName: sender.Name,
	}, sender.ID)

	d.hooks.OnPlayerJoin(sender)
}

func (d *Dispatcher) handlePlayerStateUpdate(sender *registry.Player, peer wire.ConnectionHandle, frame packet.Frame) {
	pkt := frame.Payload.(wire.PlayerStateUpdatePacket)
	sender.State = pkt.State
	sender.Health = pkt.State.HealthPoints
	sender.Mana = pkt.State.ManaPoints
}

func (d *Dispatcher) handleHPDiff(sender *registry.Player, peer wire.ConnectionHandle, frame packet.Frame) {
	pkt := frame.Payload.(wire.HPDiffPacket)
	if !sender.IsIngame {
		return
	}
	victim, ok := d.reg.ByID(pkt.Victim)
	if !ok {
		return
	}

	outcome := combat.Apply(sender, victim, pkt.Delta, d.classTable.MaxHealth(victim.Class), d.cfg.BeUnconsciousBeforeDead, time.Now())
	if !outcome.Applied {
		return
	}

	if outcome.Died {
		d.broadcastExcept(wire.OpDoDie, wire.DoDiePacket{Dead: victim.ID}, wire.NoPlayer)
	}
	if outcome.HitFired {
		d.hooks.OnPlayerHit(sender.ID, true, victim.ID, outcome.HitAmount)
	}
	if outcome.KillFired {
		d.hooks.OnPlayerKill(sender.ID, victim.ID)
	}
	if outcome.DeathFired {
		d.hooks.OnPlayerDeath(victim.ID, outcome.Killer, outcome.HasKiller)
	}
}

func (d *Dispatcher) handleMessage(sender *registry.Player, peer wire.ConnectionHandle, frame packet.Frame) {
	if !sender.IsIngame || sender.Mute {
		return
	}
	pkt := frame.Payload.(wire.MessagePacket)
	pkt.Sender = wire.Some(sender.ID)

	if pkt.Recipient.Present {
		if recConn, ok := d.reg.ConnectionOf(pkt.Recipient.Value); ok {
			d.send(wire.OpWhisper, pkt, transport.Reliable, recConn)
		}
		return
	}
	d.broadcastExcept(wire.OpMessage, pkt, wire.NoPlayer)
}

// rconLoginPrefix is the Command-opcode sub-command that authenticates a
// peer against admin_passwd (§6.2). Everything after it is the password.
const rconLoginPrefix = "login "

// Command response markers, loosely mirroring the original client's
// packet.data[1]=='A' admin-granted convention (gmp-client's OnRcon):
// the first byte of the reply tells the client whether access was
// granted, the rest is a human-readable message.
const (
	rconGrantedMarker = "A"
	rconDeniedMarker  = "D"
)

// handleCommand implements the Command opcode (§4.9, §6.2). With
// admin_passwd unset, every command reaches Hooks.OnCommand unchanged.
// With admin_passwd set, a peer must first send "/login <password>"; only
// an authenticated sender's subsequent commands are forwarded.
func (d *Dispatcher) handleCommand(sender *registry.Player, peer wire.ConnectionHandle, frame packet.Frame) {
	if !sender.IsIngame {
		return
	}
	pkt := frame.Payload.(wire.CommandPacket)
	cmd := strings.TrimPrefix(strings.TrimSpace(pkt.Command), "/")

	if d.cfg.AdminPasswd == "" {
		d.hooks.OnCommand(sender, cmd)
		return
	}

	if rest, ok := strings.CutPrefix(strings.ToLower(cmd), rconLoginPrefix); ok {
		password := cmd[len(cmd)-len(rest):]
		if subtle.ConstantTimeCompare([]byte(password), []byte(d.cfg.AdminPasswd)) == 1 {
			sender.IsAdmin = true
			d.send(wire.OpCommand, wire.CommandPacket{Command: rconGrantedMarker + "admin access granted"}, transport.Reliable, peer)
		} else {
			d.send(wire.OpCommand, wire.CommandPacket{Command: rconDeniedMarker + "invalid password"}, transport.Reliable, peer)
		}
		return
	}

	if !sender.IsAdmin {
		return
	}
	d.hooks.OnCommand(sender, cmd)
}

func (d *Dispatcher) handleDropItem(sender *registry.Player, peer wire.ConnectionHandle, frame packet.Frame) {
	pkt := frame.Payload.(wire.DropItemPacket)
	pkt.PlayerID = wire.Some(sender.ID)
	d.broadcastExcept(wire.OpDropItem, pkt, sender.ID)
}

func (d *Dispatcher) handleTakeItem(sender *registry.Player, peer wire.ConnectionHandle, frame packet.Frame) {
	pkt := frame.Payload.(wire.TakeItemPacket)
	pkt.PlayerID = wire.Some(sender.ID)
	d.broadcastExcept(wire.OpTakeItem, pkt, sender.ID)
}

func (d *Dispatcher) handleCastSpell(sender *registry.Player, peer wire.ConnectionHandle, frame packet.Frame) {
	pkt := frame.Payload.(wire.CastSpellPacket)
	pkt.Caster = wire.Some(sender.ID)
	d.broadcastExcept(frame.Op, pkt, sender.ID)
}

func (d *Dispatcher) handleVoice(sender *registry.Player, peer wire.ConnectionHandle, frame packet.Frame) {
	if !d.allowVoice(sender.ID) {
		slog.Debug("dropping voice packet over rate limit", "player", sender.ID)
		return
	}
	pkt := frame.Payload.(wire.VoicePacket)
	d.broadcastUnreliableExcept(wire.OpVoice, pkt, sender.ID)
}

func (d *Dispatcher) allowVoice(id wire.PlayerId) bool {
	d.voiceMu.Lock()
	lim, ok := d.voiceLimiters[id]
	if !ok {
		lim = rate.NewLimiter(voiceRateLimit, voiceRateBurst)
		d.voiceLimiters[id] = lim
	}
	d.voiceMu.Unlock()
	return lim.Allow()
}

func (d *Dispatcher) handleScriptingEnvelope(sender *registry.Player, peer wire.ConnectionHandle, frame packet.Frame) {
	pkt := frame.Payload.(wire.ScriptingEnvelopePacket)
	d.hooks.OnScriptPacket(sender.ID, true, pkt.Payload)
}

func (d *Dispatcher) send(op wire.Opcode, payload any, reliability transport.Reliability, peer wire.ConnectionHandle) {
	encoded, err := packet.Encode(op, payload)
	if err != nil {
		slog.Error("encoding packet", "opcode", op, "error", err)
		return
	}
	if err := d.t.Send(encoded, transport.Immediate, reliability, 0, peer); err != nil {
		slog.Warn("sending packet", "opcode", op, "peer", peer, "error", err)
	}
}

// broadcastExcept sends op/payload RELIABLE to every in-game peer other
// than exclude (pass wire.NoPlayer to include everyone).
func (d *Dispatcher) broadcastExcept(op wire.Opcode, payload any, exclude wire.PlayerId) {
	d.broadcast(op, payload, transport.Reliable, exclude)
}

func (d *Dispatcher) broadcastUnreliableExcept(op wire.Opcode, payload any, exclude wire.PlayerId) {
	d.broadcast(op, payload, transport.Unreliable, exclude)
}

func (d *Dispatcher) broadcast(op wire.Opcode, payload any, reliability transport.Reliability, exclude wire.PlayerId) {
	encoded, err := packet.Encode(op, payload)
	if err != nil {
		slog.Error("encoding broadcast packet", "opcode", op, "error", err)
		return
	}
	d.reg.ForEachIngame(func(p *registry.Player) {
		if p.ID == exclude {
			return
		}
		if err := d.t.Send(encoded, transport.Immediate, reliability, 0, p.Connection); err != nil {
			slog.Warn("broadcast send failed", "opcode", op, "peer", p.Connection, "error", err)
		}
	})
}

func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	out := strings.TrimSpace(b.String())
	if len(out) > maxNameLength {
		out = out[:maxNameLength]
	}
	return out
}
