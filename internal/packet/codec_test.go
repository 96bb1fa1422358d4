package packet_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gmp-go/core/internal/packet"
	"github.com/gmp-go/core/internal/wire"
)

func TestCodecRoundTrip(t *testing.T) {
	state := wire.PlayerState{
		Position:      wire.Vec3{X: 1, Y: 2, Z: 3},
		NRot:          wire.Vec3{X: 0.1, Y: 0.2, Z: 0.3},
		HealthPoints:  100,
		ManaPoints:    50,
		LeftHand:      10,
		RightHand:     11,
		EquippedArmor: 12,
		MeleeWeapon:   13,
		RangedWeapon:  14,
		Animation:     5,
		WeaponMode:    1,
		ActiveSpellNr: 2,
		HeadDirection: 3,
	}

	cases := []struct {
		name    string
		op      wire.Opcode
		payload any
	}{
		{"Message", wire.OpMessage, wire.MessagePacket{
			Op: wire.MessageChat, Sender: wire.Some(wire.PlayerId(7)), Recipient: wire.None[wire.PlayerId](), Text: "hello",
		}},
		{"Whisper", wire.OpWhisper, wire.MessagePacket{
			Op: wire.MessageWhisper, Sender: wire.Some(wire.PlayerId(7)), Recipient: wire.Some(wire.PlayerId(9)), Text: "psst",
		}},
		{"InitialInfo", wire.OpInitialInfo, wire.InitialInfoPacket{MapName: "colony", AssignedID: 42}},
		{"JoinGame", wire.OpJoinGame, wire.JoinGamePacket{
			PlayerID: wire.Some(wire.PlayerId(3)), Class: 1, HeadModel: 2, SkinTex: 3, FaceTex: 4, WalkStyle: 5,
			Position: wire.Vec3{X: 1, Y: 2, Z: 3}, Normal: wire.Vec3{X: 0, Y: 1, Z: 0},
			Left: 1, Right: 2, Armor: 3, Animation: 4, PlayerName: "TestUser",
		}},
		{"PlayerStateUpdate", wire.OpPlayerStateUpdate, wire.PlayerStateUpdatePacket{
			PlayerID: wire.Some(wire.PlayerId(1)), State: state,
		}},
		{"ExistingPlayers", wire.OpExistingPlayers, wire.ExistingPlayersPacket{
			Players: []wire.ExistingPlayerInfo{
				{PlayerID: 1, PlayerName: "TestUser", Class: 1, HeadModel: 2, SkinTex: 3, FaceTex: 4, WalkStyle: 5, State: state},
			},
		}},
		{"ExistingPlayersEmpty", wire.OpExistingPlayers, wire.ExistingPlayersPacket{}},
		{"HPDiff", wire.OpHPDiff, wire.HPDiffPacket{Victim: 5, Delta: -10}},
		{"PlayerPositionUpdate", wire.OpPlayerPositionUpdate, wire.PlayerPositionUpdatePacket{
			PlayerID: wire.None[wire.PlayerId](), Position: wire.Vec3{X: 5, Y: 6, Z: 7},
		}},
		{"Command", wire.OpCommand, wire.CommandPacket{Command: "kick TestUser2"}},
		{"ScriptingEnvelope", wire.OpScriptingEnvelope, wire.ScriptingEnvelopePacket{Payload: []byte{1, 2, 3, 4}}},
		{"ServerMessage", wire.OpServerMessage, wire.ServerMessagePacket{Text: "welcome"}},
		{"LeftGame", wire.OpLeftGame, wire.LeftGamePacket{Disconnected: 3}},
		{"GameInfo", wire.OpGameInfo, wire.GameInfoPacket{RawGameTime: 123456, GameMode: 1, Flags: wire.FlagQuickPots | wire.FlagHideMap}},
		{"DoDie", wire.OpDoDie, wire.DoDiePacket{Dead: 9}},
		{"Respawn", wire.OpRespawn, wire.RespawnPacket{Respawned: 9}},
		{"DropItem", wire.OpDropItem, wire.DropItemPacket{PlayerID: wire.Some(wire.PlayerId(2)), Instance: 100, Amount: 5}},
		{"TakeItem", wire.OpTakeItem, wire.TakeItemPacket{PlayerID: wire.Some(wire.PlayerId(2)), Instance: 100}},
		{"CastSpell", wire.OpCastSpell, wire.CastSpellPacket{Caster: wire.Some(wire.PlayerId(1)), Target: wire.None[wire.PlayerId](), Spell: 44}},
		{"CastSpellOnTarget", wire.OpCastSpellOnTarget, wire.CastSpellPacket{Caster: wire.Some(wire.PlayerId(1)), Target: wire.Some(wire.PlayerId(2)), Spell: 44}},
		{"Voice", wire.OpVoice, wire.VoicePacket{Raw: []byte{9, 8, 7}}},
		{"DiscordActivity", wire.OpDiscordActivity, wire.DiscordActivityPacket{
			State: "s", Details: "d", LargeImageKey: "lk", LargeImageText: "lt", SmallImageKey: "sk", SmallImageText: "st",
		}},
		{"ConnectionBanned", wire.OpConnectionBanned, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := packet.Encode(tc.op, tc.payload)
			require.NoError(t, err)

			frame, err := packet.Decode(encoded)
			require.NoError(t, err)
			require.Equal(t, tc.op, frame.Op)
			require.False(t, frame.HasTimestamp)
			require.Equal(t, tc.payload, frame.Payload)
		})
	}
}

func TestCodecTimestampWrapper(t *testing.T) {
	encoded, err := packet.EncodeTimestamped(9999, wire.OpCommand, wire.CommandPacket{Command: "who"})
	require.NoError(t, err)

	frame, err := packet.Decode(encoded)
	require.NoError(t, err)
	require.True(t, frame.HasTimestamp)
	require.Equal(t, uint32(9999), frame.TimestampMs)
	require.Equal(t, wire.OpCommand, frame.Op)
	require.Equal(t, wire.CommandPacket{Command: "who"}, frame.Payload)
}

func TestCodecMalformedPacketFailsCleanly(t *testing.T) {
	_, err := packet.Decode([]byte{byte(wire.OpJoinGame)}) // opcode with no body
	require.Error(t, err)

	_, err = packet.Decode(nil)
	require.Error(t, err)
}

func TestCodecUnknownOpcode(t *testing.T) {
	_, err := packet.Decode([]byte{250})
	require.Error(t, err)
}

func TestCodecStringLengthOverflowRejected(t *testing.T) {
	w := packet.NewWriter(16)
	w.WriteByte(byte(wire.OpCommand))
	w.WriteU32(0xFFFFFFF0) // declares a string far larger than remaining buffer
	_, err := packet.Decode(w.Bytes())
	require.Error(t, err)
}
