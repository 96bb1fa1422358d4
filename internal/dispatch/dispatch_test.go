package dispatch_test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gmp-go/core/internal/dispatch"
	"github.com/gmp-go/core/internal/packet"
	"github.com/gmp-go/core/internal/registry"
	"github.com/gmp-go/core/internal/transport"
	"github.com/gmp-go/core/internal/wire"
)

func newServerAndClient(t *testing.T, port int, cfg dispatch.Config) (*transport.Transport, *registry.Registry, *dispatch.Dispatcher) {
	t.Helper()
	tr := transport.New()
	require.NoError(t, tr.Start(port, 64))
	t.Cleanup(func() { _ = tr.Close() })

	reg := registry.New()
	d := dispatch.New(tr, reg, nil, nil, cfg)
	d.Register()
	return tr, reg, d
}

func joinGame(t *testing.T, cli *transport.Transport, peer wire.ConnectionHandle, name string) {
	t.Helper()
	encoded, err := packet.Encode(wire.OpJoinGame, wire.JoinGamePacket{PlayerName: name})
	require.NoError(t, err)
	require.NoError(t, cli.Send(encoded, transport.Immediate, transport.Reliable, 0, peer))
}

func TestJoinGameBroadcastsToExistingPeerAndSendsSnapshotToJoiner(t *testing.T) {
	srvPort := 19001
	srv, _, _ := newServerAndClient(t, srvPort, dispatch.Config{MapName: "testmap", AllowModification: true})

	cli1 := transport.New()
	require.NoError(t, cli1.Start(19002, 8))
	defer cli1.Close()
	cli2 := transport.New()
	require.NoError(t, cli2.Start(19003, 8))
	defer cli2.Close()

	p1, err := cli1.ConnectTo(fmt.Sprintf("127.0.0.1:%d", srvPort))
	require.NoError(t, err)
	joinGame(t, cli1, p1, "TestUser")
	time.Sleep(30 * time.Millisecond)
	srv.Pulse()

	p2, err := cli2.ConnectTo(fmt.Sprintf("127.0.0.1:%d", srvPort))
	require.NoError(t, err)
	joinGame(t, cli2, p2, "TestUser2")
	time.Sleep(30 * time.Millisecond)
	srv.Pulse()

	var gotJoinBroadcast *wire.JoinGamePacket
	cli1.AddPacketHandler(wire.OpJoinGame, func(peer wire.ConnectionHandle, data []byte, n int) {
		frame, err := packet.Decode(data[:n])
		require.NoError(t, err)
		pkt := frame.Payload.(wire.JoinGamePacket)
		gotJoinBroadcast = &pkt
	})

	var gotExisting *wire.ExistingPlayersPacket
	cli2.AddPacketHandler(wire.OpExistingPlayers, func(peer wire.ConnectionHandle, data []byte, n int) {
		frame, err := packet.Decode(data[:n])
		require.NoError(t, err)
		pkt := frame.Payload.(wire.ExistingPlayersPacket)
		gotExisting = &pkt
	})

	time.Sleep(30 * time.Millisecond)
	cli1.Pulse()
	cli2.Pulse()

	require.NotNil(t, gotJoinBroadcast, "observer1 should receive a JoinGame broadcast for TestUser2")
	require.Equal(t, "TestUser2", gotJoinBroadcast.PlayerName)

	require.NotNil(t, gotExisting, "observer2 should receive an ExistingPlayers snapshot")
	require.Len(t, gotExisting.Players, 1)
	require.Equal(t, "TestUser", gotExisting.Players[0].PlayerName)
}

func TestJoinGameWithFailedCRCGateBansPeer(t *testing.T) {
	srvPort := 19004
	srv, reg, _ := newServerAndClient(t, srvPort, dispatch.Config{MapName: "testmap", AllowModification: false})

	cli := transport.New()
	require.NoError(t, cli.Start(19005, 8))
	defer cli.Close()

	peer, err := cli.ConnectTo(fmt.Sprintf("127.0.0.1:%d", srvPort))
	require.NoError(t, err)
	joinGame(t, cli, peer, "Cheater")

	time.Sleep(30 * time.Millisecond)
	srv.Pulse()
	time.Sleep(30 * time.Millisecond)
	srv.Pulse()

	require.Equal(t, 0, reg.Count(), "banned joiner must be removed from the registry")
	require.True(t, srv.IsBanned("127.0.0.1"))
}

type recordingHooks struct {
	dispatch.NoopHooks
	commands []string
}

func (h *recordingHooks) OnCommand(p *registry.Player, command string) {
	h.commands = append(h.commands, command)
}

func sendCommand(t *testing.T, cli *transport.Transport, peer wire.ConnectionHandle, cmd string) {
	t.Helper()
	encoded, err := packet.Encode(wire.OpCommand, wire.CommandPacket{Command: cmd})
	require.NoError(t, err)
	require.NoError(t, cli.Send(encoded, transport.Immediate, transport.Reliable, 0, peer))
}

func TestCommandWithoutAdminPasswdReachesHooksUngated(t *testing.T) {
	srvPort := 19006
	tr := transport.New()
	require.NoError(t, tr.Start(srvPort, 8))
	t.Cleanup(func() { _ = tr.Close() })
	reg := registry.New()
	hooks := &recordingHooks{}
	d := dispatch.New(tr, reg, nil, hooks, dispatch.Config{MapName: "testmap", AllowModification: true})
	d.Register()

	cli := transport.New()
	require.NoError(t, cli.Start(19007, 8))
	defer cli.Close()
	peer, err := cli.ConnectTo(fmt.Sprintf("127.0.0.1:%d", srvPort))
	require.NoError(t, err)
	joinGame(t, cli, peer, "Player")
	time.Sleep(30 * time.Millisecond)
	tr.Pulse()

	sendCommand(t, cli, peer, "/heal")
	time.Sleep(30 * time.Millisecond)
	tr.Pulse()

	require.Equal(t, []string{"heal"}, hooks.commands)
}

func TestCommandWithAdminPasswdGatesUntilLogin(t *testing.T) {
	srvPort := 19008
	tr := transport.New()
	require.NoError(t, tr.Start(srvPort, 8))
	t.Cleanup(func() { _ = tr.Close() })
	reg := registry.New()
	hooks := &recordingHooks{}
	d := dispatch.New(tr, reg, nil, hooks, dispatch.Config{MapName: "testmap", AllowModification: true, AdminPasswd: "s3cret"})
	d.Register()

	cli := transport.New()
	require.NoError(t, cli.Start(19009, 8))
	defer cli.Close()
	peer, err := cli.ConnectTo(fmt.Sprintf("127.0.0.1:%d", srvPort))
	require.NoError(t, err)
	joinGame(t, cli, peer, "Player")
	time.Sleep(30 * time.Millisecond)
	tr.Pulse()

	sendCommand(t, cli, peer, "/ban SomePlayer")
	time.Sleep(30 * time.Millisecond)
	tr.Pulse()
	require.Empty(t, hooks.commands, "unauthenticated command must not reach hooks")

	var replies []wire.CommandPacket
	cli.AddPacketHandler(wire.OpCommand, func(peer wire.ConnectionHandle, data []byte, n int) {
		frame, err := packet.Decode(data[:n])
		require.NoError(t, err)
		replies = append(replies, frame.Payload.(wire.CommandPacket))
	})

	sendCommand(t, cli, peer, "/login wrong")
	time.Sleep(30 * time.Millisecond)
	tr.Pulse()
	time.Sleep(30 * time.Millisecond)
	cli.Pulse()
	require.Len(t, replies, 1)
	require.True(t, strings.HasPrefix(replies[0].Command, "D"))

	sendCommand(t, cli, peer, "/login s3cret")
	time.Sleep(30 * time.Millisecond)
	tr.Pulse()
	time.Sleep(30 * time.Millisecond)
	cli.Pulse()
	require.Len(t, replies, 2)
	require.True(t, strings.HasPrefix(replies[1].Command, "A"))

	sendCommand(t, cli, peer, "/ban SomePlayer")
	time.Sleep(30 * time.Millisecond)
	tr.Pulse()
	require.Equal(t, []string{"ban SomePlayer"}, hooks.commands)
}

func TestVoiceBeyondRateLimitIsDropped(t *testing.T) {
	srvPort := 19010
	srv, _, _ := newServerAndClient(t, srvPort, dispatch.Config{MapName: "testmap", AllowModification: true})

	sender := transport.New()
	require.NoError(t, sender.Start(19011, 8))
	defer sender.Close()
	listener := transport.New()
	require.NoError(t, listener.Start(19012, 8))
	defer listener.Close()

	senderPeer, err := sender.ConnectTo(fmt.Sprintf("127.0.0.1:%d", srvPort))
	require.NoError(t, err)
	joinGame(t, sender, senderPeer, "Speaker")
	time.Sleep(30 * time.Millisecond)
	srv.Pulse()

	listenerPeer, err := listener.ConnectTo(fmt.Sprintf("127.0.0.1:%d", srvPort))
	require.NoError(t, err)
	joinGame(t, listener, listenerPeer, "Listener")
	time.Sleep(30 * time.Millisecond)
	srv.Pulse()

	var received int
	listener.AddPacketHandler(wire.OpVoice, func(peer wire.ConnectionHandle, data []byte, n int) {
		received++
	})

	encoded, err := packet.Encode(wire.OpVoice, wire.VoicePacket{Raw: []byte("hi")})
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		require.NoError(t, sender.Send(encoded, transport.Immediate, transport.Unreliable, 0, senderPeer))
	}

	time.Sleep(30 * time.Millisecond)
	srv.Pulse()
	time.Sleep(30 * time.Millisecond)
	listener.Pulse()

	require.Less(t, received, 20, "burst above the rate limit must be partially dropped")
	require.Greater(t, received, 0, "at least the initial burst allowance should get through")
}
