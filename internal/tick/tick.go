// Package tick implements the authoritative tick engine (§4.4): a
// single-threaded cooperative loop that pulses the transport, advances
// the game clock, processes scripting timers, resolves respawns, and
// fans out player state at a fixed period.
package tick

import (
	"context"
	"log/slog"
	"time"

	"github.com/gmp-go/core/internal/clock"
	"github.com/gmp-go/core/internal/packet"
	"github.com/gmp-go/core/internal/registry"
	"github.com/gmp-go/core/internal/transport"
	"github.com/gmp-go/core/internal/wire"
)

// highDetailRadius is the §4.4/§4 Glossary "high-detail radius": below it
// peers exchange full PlayerStateUpdate, at or beyond it only position.
const highDetailRadius = 5000

const loopSleep = 10 * time.Millisecond

// ClassTable resolves a class id to its maximum health, mirroring
// dispatch.ClassTable so both packages can share one implementation
// without an import cycle between them.
type ClassTable interface {
	MaxHealth(class uint8) int16
}

// TimerProcessor lets the scripting host plug its timer manager into step
// 3 of the tick loop without this package depending on scripting types.
type TimerProcessor interface {
	ProcessTimers()
}

// TaskDrainer lets worker threads post closures onto the tick thread
// (§4.14/§5: "the only supported mechanism for worker threads to touch
// engine or scripting-host state").
type TaskDrainer interface {
	ProcessTasks()
}

// Hooks observes respawns, mirroring dispatch.Hooks' shape for the events
// the tick engine itself originates.
type Hooks interface {
	OnPlayerRespawn(p *registry.Player)
}

type noopHooks struct{}

func (noopHooks) OnPlayerRespawn(*registry.Player) {}

// Engine runs the fixed-period loop described in §4.4.
type Engine struct {
	transport *transport.Transport
	registry  *registry.Registry
	clock     *clock.Clock
	timers    TimerProcessor
	hooks     Hooks

	classTable ClassTable
	tasks      TaskDrainer

	tickRate       time.Duration
	respawnSeconds int
	lastFanout     time.Time

	gameMode   uint8
	gameFlags  wire.GameInfoFlags
	lastMinute uint8
	haveMinute bool
}

// SetTaskDrainer wires a TaskDrainer to be drained once per iteration,
// before respawns and fan-out (§4.14). Optional; nil disables draining.
func (e *Engine) SetTaskDrainer(d TaskDrainer) {
	e.tasks = d
}

// SetGameInfo configures the GameMode/flag byte (§6.1 "Flag byte
// semantics") broadcast with every GameInfo packet. Optional; the zero
// value (no flags, mode 0) is sent until configured.
func (e *Engine) SetGameInfo(gameMode uint8, flags wire.GameInfoFlags) {
	e.gameMode = gameMode
	e.gameFlags = flags
}

// New creates an Engine. respawnSeconds<0 disables auto-respawn (§6.2);
// timers and hooks may be nil.
func New(t *transport.Transport, reg *registry.Registry, c *clock.Clock, classTable ClassTable, timers TimerProcessor, hooks Hooks, tickRateMs, respawnSeconds int) *Engine {
	if hooks == nil {
		hooks = noopHooks{}
	}
	if classTable == nil {
		classTable = flatClassTable{}
	}
	return &Engine{
		transport:      t,
		registry:       reg,
		clock:          c,
		timers:         timers,
		hooks:          hooks,
		classTable:     classTable,
		tickRate:       time.Duration(tickRateMs) * time.Millisecond,
		respawnSeconds: respawnSeconds,
	}
}

type flatClassTable struct{}

func (flatClassTable) MaxHealth(uint8) int16 { return 100 }

// Run blocks, executing the tick loop until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	lastClockAdvance := time.Now()
	e.lastFanout = time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		e.transport.Pulse()

		now := time.Now()
		e.clock.Advance(now.Sub(lastClockAdvance))
		lastClockAdvance = now
		e.broadcastGameInfoOnMinuteRollover()

		if e.timers != nil {
			e.timers.ProcessTimers()
		}
		if e.tasks != nil {
			e.tasks.ProcessTasks()
		}

		e.processRespawns(now)

		if now.Sub(e.lastFanout) >= e.tickRate {
			e.fanOut()
			e.lastFanout = now
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(loopSleep):
		}
	}
}

// broadcastGameInfoOnMinuteRollover sends OpGameInfo (§6.1, §9) whenever
// the in-world clock's minute changes, so every connected peer's local
// clock (synced via clock.SetPacked on the client side) stays within a
// minute of the server's authoritative time without flooding the wire
// once per tick.
func (e *Engine) broadcastGameInfoOnMinuteRollover() {
	_, _, minute := e.clock.GetTime()
	if e.haveMinute && minute == e.lastMinute {
		return
	}
	e.lastMinute = minute
	e.haveMinute = true

	e.broadcast(wire.OpGameInfo, wire.GameInfoPacket{
		RawGameTime: e.clock.Packed(),
		GameMode:    e.gameMode,
		Flags:       e.gameFlags,
	})
}

// processRespawns implements §4.4 step 4.
func (e *Engine) processRespawns(now time.Time) {
	if e.respawnSeconds < 0 {
		return
	}
	respawnAfter := time.Duration(e.respawnSeconds) * time.Second

	var toRespawn []*registry.Player
	e.registry.ForEach(func(p *registry.Player) {
		if p.Alive() {
			return
		}
		if e.respawnSeconds == 0 || !now.Before(p.TOD.Add(respawnAfter)) {
			toRespawn = append(toRespawn, p)
		}
	})

	for _, p := range toRespawn {
		p.SetUnconscious(false)
		p.TOD = time.Time{}
		p.Health = e.classTable.MaxHealth(p.Class)
		e.broadcast(wire.OpRespawn, wire.RespawnPacket{Respawned: p.ID})
		e.hooks.OnPlayerRespawn(p)
	}
}

// fanOut implements §4.4 step 5: for every unordered in-game pair, send
// the high-detail PlayerStateUpdate below the high-detail radius, and a
// degraded PlayerPositionUpdate otherwise.
func (e *Engine) fanOut() {
	players := make([]*registry.Player, 0, e.registry.Count())
	e.registry.ForEachIngame(func(p *registry.Player) {
		players = append(players, p)
	})

	for i := 0; i < len(players); i++ {
		for j := i + 1; j < len(players); j++ {
			a, b := players[i], players[j]
			dist := a.State.Position.Distance(b.State.Position)
			e.sendPair(a, b, dist)
			e.sendPair(b, a, dist)
		}
	}
}

func (e *Engine) sendPair(observer, subject *registry.Player, dist float64) {
	if dist < highDetailRadius {
		e.sendTo(observer, wire.OpPlayerStateUpdate, wire.PlayerStateUpdatePacket{
			PlayerID: wire.Some(subject.ID),
			State:    subject.Snapshot(),
		})
		return
	}
	e.sendTo(observer, wire.OpPlayerPositionUpdate, wire.PlayerPositionUpdatePacket{
		PlayerID: wire.Some(subject.ID),
		Position: subject.State.Position,
	})
}

func (e *Engine) sendTo(observer *registry.Player, op wire.Opcode, payload any) {
	encoded, err := packet.Encode(op, payload)
	if err != nil {
		slog.Error("encoding fan-out packet", "opcode", op, "error", err)
		return
	}
	if err := e.transport.Send(encoded, transport.Immediate, transport.Unreliable, 0, observer.Connection); err != nil {
		slog.Debug("fan-out send failed", "opcode", op, "peer", observer.Connection, "error", err)
	}
}

func (e *Engine) broadcast(op wire.Opcode, payload any) {
	encoded, err := packet.Encode(op, payload)
	if err != nil {
		slog.Error("encoding broadcast packet", "opcode", op, "error", err)
		return
	}
	e.registry.ForEachIngame(func(p *registry.Player) {
		if err := e.transport.Send(encoded, transport.Immediate, transport.Reliable, 0, p.Connection); err != nil {
			slog.Warn("broadcast send failed", "opcode", op, "peer", p.Connection, "error", err)
		}
	})
}
