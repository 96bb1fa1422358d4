// Package conn implements the client-side connection state machine
// (§5 client threading model): connect, admission handling, JoinGame
// handshake, and synchronous disconnect.
package conn

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gmp-go/core/internal/clock"
	"github.com/gmp-go/core/internal/packet"
	"github.com/gmp-go/core/internal/transport"
	"github.com/gmp-go/core/internal/wire"
)

// State is the client connection's lifecycle stage.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingInitialInfo
	StateJoining
	StateInGame
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateAwaitingInitialInfo:
		return "AwaitingInitialInfo"
	case StateJoining:
		return "Joining"
	case StateInGame:
		return "InGame"
	default:
		return "Unknown"
	}
}

// Observer surfaces connection lifecycle events for UI presentation
// (§7 "user-visible failures").
type Observer interface {
	OnConnectionFailed(reason string)
	OnInitialInfo(mapName string, assignedID wire.PlayerId)
	OnJoined(existing wire.ExistingPlayersPacket)
	OnGameInfo(rawGameTime uint32, gameMode uint8, flags wire.GameInfoFlags)
	OnDisconnected()
}

// Conn drives one client connection attempt against a single server.
type Conn struct {
	t        *transport.Transport
	observer Observer

	mu         sync.Mutex
	state      State
	peer       wire.ConnectionHandle
	assignedID wire.PlayerId
	mapName    string
	gameClock  *clock.Clock
}

// New creates a Conn bound to t, registering the admission and
// InitialInfo/ExistingPlayers handlers it needs.
func New(t *transport.Transport, observer Observer) *Conn {
	c := &Conn{t: t, observer: observer, state: StateDisconnected}
	c.registerHandlers()
	return c
}

func (c *Conn) registerHandlers() {
	c.t.AddPacketHandler(wire.OpInitialInfo, c.handleInitialInfo)
	c.t.AddPacketHandler(wire.OpExistingPlayers, c.handleExistingPlayers)
	c.t.AddPacketHandler(wire.OpGameInfo, c.handleGameInfo)
	c.t.AddPacketHandler(wire.OpConnectionAttemptFailed, c.handleRejected("connection attempt failed"))
	c.t.AddPacketHandler(wire.OpAlreadyConnected, c.handleRejected("already connected"))
	c.t.AddPacketHandler(wire.OpNoFreeIncomingConnections, c.handleRejected("no free incoming connections"))
	c.t.AddPacketHandler(wire.OpConnectionBanned, c.handleRejected("banned"))
	c.t.AddPacketHandler(wire.OpInvalidPassword, c.handleRejected("invalid password"))
	c.t.AddPacketHandler(wire.OpIncompatibleProtocolVersion, c.handleRejected("incompatible protocol version"))
	c.t.AddPacketHandler(wire.OpIpRecentlyConnected, c.handleRejected("ip recently connected"))
	c.t.AddPacketHandler(wire.OpDisconnectionNotification, c.handleDisconnectNotice)
	c.t.AddPacketHandler(wire.OpConnectionLost, c.handleDisconnectNotice)
}

// SetGameClock wires a local clock.Clock to be synced from every
// server-authoritative GameInfo packet (§9 "the client's local clock
// should be resynced from the server's GameInfo broadcasts"). Optional;
// nil (the default) skips the sync and only notifies the observer.
func (c *Conn) SetGameClock(clk *clock.Clock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gameClock = clk
}

// State returns the connection's current lifecycle stage.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect addresses the first datagram at serverAddr and transitions to
// Connecting; the transport's own admission handshake runs opaquely on
// subsequent Pulse() calls.
func (c *Conn) Connect(serverAddr string) error {
	peer, err := c.t.ConnectTo(serverAddr)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", serverAddr, err)
	}

	c.mu.Lock()
	c.peer = peer
	c.state = StateConnecting
	c.mu.Unlock()
	return nil
}

// JoinGame sends the join request once InitialInfo has been received.
func (c *Conn) JoinGame(pkt wire.JoinGamePacket) error {
	c.mu.Lock()
	if c.state != StateAwaitingInitialInfo {
		c.mu.Unlock()
		return fmt.Errorf("cannot join game from state %s", c.state)
	}
	c.state = StateJoining
	peer := c.peer
	c.mu.Unlock()

	encoded, err := packet.Encode(wire.OpJoinGame, pkt)
	if err != nil {
		return fmt.Errorf("encoding JoinGame: %w", err)
	}
	return c.t.Send(encoded, transport.Immediate, transport.Reliable, 0, peer)
}

// Disconnect synchronously tears down the connection and fires
// OnDisconnected (§5 "Disconnect() from the client is synchronous").
func (c *Conn) Disconnect() {
	c.mu.Lock()
	peer := c.peer
	alreadyDisconnected := c.state == StateDisconnected
	c.state = StateDisconnected
	c.mu.Unlock()

	if alreadyDisconnected {
		return
	}
	c.t.Disconnect(peer)
	c.observer.OnDisconnected()
}

func (c *Conn) handleInitialInfo(peer wire.ConnectionHandle, data []byte, length int) {
	frame, err := packet.Decode(data[:length])
	if err != nil {
		slog.Warn("dropping malformed InitialInfo", "error", err)
		return
	}
	pkt := frame.Payload.(wire.InitialInfoPacket)

	c.mu.Lock()
	c.assignedID = pkt.AssignedID
	c.mapName = pkt.MapName
	c.state = StateAwaitingInitialInfo
	c.mu.Unlock()

	c.observer.OnInitialInfo(pkt.MapName, pkt.AssignedID)
}

func (c *Conn) handleExistingPlayers(peer wire.ConnectionHandle, data []byte, length int) {
	frame, err := packet.Decode(data[:length])
	if err != nil {
		slog.Warn("dropping malformed ExistingPlayers", "error", err)
		return
	}
	pkt := frame.Payload.(wire.ExistingPlayersPacket)

	c.mu.Lock()
	c.state = StateInGame
	c.mu.Unlock()

	c.observer.OnJoined(pkt)
}

func (c *Conn) handleGameInfo(peer wire.ConnectionHandle, data []byte, length int) {
	frame, err := packet.Decode(data[:length])
	if err != nil {
		slog.Warn("dropping malformed GameInfo", "error", err)
		return
	}
	pkt := frame.Payload.(wire.GameInfoPacket)

	c.mu.Lock()
	clk := c.gameClock
	c.mu.Unlock()

	if clk != nil {
		clock.SetPacked(clk, pkt.RawGameTime)
	}
	c.observer.OnGameInfo(pkt.RawGameTime, pkt.GameMode, pkt.Flags)
}

func (c *Conn) handleRejected(reason string) transport.Handler {
	return func(peer wire.ConnectionHandle, data []byte, length int) {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		c.observer.OnConnectionFailed(reason)
	}
}

func (c *Conn) handleDisconnectNotice(peer wire.ConnectionHandle, data []byte, length int) {
	c.mu.Lock()
	wasConnected := c.state != StateDisconnected
	c.state = StateDisconnected
	c.mu.Unlock()

	if wasConnected {
		c.observer.OnDisconnected()
	}
}
