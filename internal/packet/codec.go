package packet

import (
	"fmt"

	"github.com/gmp-go/core/internal/errs"
	"github.com/gmp-go/core/internal/wire"
)

// Frame is one decoded datagram: its opcode, an optional millisecond
// timestamp prefix (§4.2, opcode Timestamp), and the decoded payload.
type Frame struct {
	Op        wire.Opcode
	TimestampMs uint32
	HasTimestamp bool
	Payload   any
}

// Encode serialises op and payload into a length-delimited frame: opcode
// byte first, then the payload's wire encoding. Encode never prepends a
// Timestamp wrapper; callers that need one use EncodeTimestamped.
func Encode(op wire.Opcode, payload any) ([]byte, error) {
	w := NewWriter(64)
	w.WriteByte(byte(op))
	if err := encodePayload(w, op, payload); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// EncodeTimestamped wraps op/payload with the Timestamp opcode prefix
// (§4.2: "The special opcode Timestamp prefixes a 4-byte millisecond
// timestamp and then the real opcode").
func EncodeTimestamped(timestampMs uint32, op wire.Opcode, payload any) ([]byte, error) {
	w := NewWriter(68)
	w.WriteByte(byte(wire.OpTimestamp))
	w.WriteU32(timestampMs)
	w.WriteByte(byte(op))
	if err := encodePayload(w, op, payload); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// Decode parses a single frame from data, unwrapping a Timestamp prefix if
// present.
func Decode(data []byte) (Frame, error) {
	r := NewReader(data)
	opByte, err := r.ReadByte()
	if err != nil {
		return Frame{}, err
	}
	op := wire.Opcode(opByte)

	var frame Frame
	if op == wire.OpTimestamp {
		ts, err := r.ReadU32()
		if err != nil {
			return Frame{}, err
		}
		innerByte, err := r.ReadByte()
		if err != nil {
			return Frame{}, err
		}
		op = wire.Opcode(innerByte)
		frame.HasTimestamp = true
		frame.TimestampMs = ts
	}
	frame.Op = op

	payload, err := decodePayload(r, op)
	if err != nil {
		return Frame{}, err
	}
	frame.Payload = payload
	return frame, nil
}

func encodePayload(w *Writer, op wire.Opcode, payload any) error {
	switch op {
	case wire.OpConnectionAttemptFailed, wire.OpAlreadyConnected, wire.OpNoFreeIncomingConnections,
		wire.OpConnectionBanned, wire.OpInvalidPassword, wire.OpIncompatibleProtocolVersion,
		wire.OpIpRecentlyConnected, wire.OpRequestFileLength, wire.OpRequestFilePart:
		return nil // no payload

	case wire.OpMessage, wire.OpWhisper:
		p := payload.(wire.MessagePacket)
		w.WriteByte(byte(p.Op))
		w.WriteOptionalPlayerId(p.Sender)
		w.WriteOptionalPlayerId(p.Recipient)
		w.WriteString(p.Text)
		return nil

	case wire.OpInitialInfo:
		p := payload.(wire.InitialInfoPacket)
		w.WriteString(p.MapName)
		w.WritePlayerId(p.AssignedID)
		return nil

	case wire.OpJoinGame:
		p := payload.(wire.JoinGamePacket)
		w.WriteOptionalPlayerId(p.PlayerID)
		w.WriteByte(p.Class)
		w.WriteByte(p.HeadModel)
		w.WriteByte(p.SkinTex)
		w.WriteByte(p.FaceTex)
		w.WriteByte(p.WalkStyle)
		w.WriteVec3(p.Position)
		w.WriteVec3(p.Normal)
		w.WriteU16(p.Left)
		w.WriteU16(p.Right)
		w.WriteU16(p.Armor)
		w.WriteU16(p.Animation)
		w.WriteString(p.PlayerName)
		return nil

	case wire.OpPlayerStateUpdate:
		p := payload.(wire.PlayerStateUpdatePacket)
		w.WriteOptionalPlayerId(p.PlayerID)
		writePlayerState(w, p.State)
		return nil

	case wire.OpExistingPlayers:
		p := payload.(wire.ExistingPlayersPacket)
		w.WriteU32(uint32(len(p.Players)))
		for _, info := range p.Players {
			w.WritePlayerId(info.PlayerID)
			w.WriteString(info.PlayerName)
			w.WriteByte(info.Class)
			w.WriteByte(info.HeadModel)
			w.WriteByte(info.SkinTex)
			w.WriteByte(info.FaceTex)
			w.WriteByte(info.WalkStyle)
			writePlayerState(w, info.State)
		}
		return nil

	case wire.OpHPDiff:
		p := payload.(wire.HPDiffPacket)
		w.WritePlayerId(p.Victim)
		w.WriteI16(p.Delta)
		return nil

	case wire.OpPlayerPositionUpdate:
		p := payload.(wire.PlayerPositionUpdatePacket)
		w.WriteOptionalPlayerId(p.PlayerID)
		w.WriteVec3(p.Position)
		return nil

	case wire.OpCommand:
		p := payload.(wire.CommandPacket)
		w.WriteString(p.Command)
		return nil

	case wire.OpScriptingEnvelope:
		p := payload.(wire.ScriptingEnvelopePacket)
		w.WriteBlob(p.Payload)
		return nil

	case wire.OpServerMessage:
		p := payload.(wire.ServerMessagePacket)
		w.WriteString(p.Text)
		return nil

	case wire.OpLeftGame:
		p := payload.(wire.LeftGamePacket)
		w.WritePlayerId(p.Disconnected)
		return nil

	case wire.OpGameInfo:
		p := payload.(wire.GameInfoPacket)
		w.WriteU32(p.RawGameTime)
		w.WriteByte(p.GameMode)
		w.WriteByte(byte(p.Flags))
		return nil

	case wire.OpDoDie:
		p := payload.(wire.DoDiePacket)
		w.WritePlayerId(p.Dead)
		return nil

	case wire.OpRespawn:
		p := payload.(wire.RespawnPacket)
		w.WritePlayerId(p.Respawned)
		return nil

	case wire.OpDropItem:
		p := payload.(wire.DropItemPacket)
		w.WriteOptionalPlayerId(p.PlayerID)
		w.WriteU16(p.Instance)
		w.WriteU16(p.Amount)
		return nil

	case wire.OpTakeItem:
		p := payload.(wire.TakeItemPacket)
		w.WriteOptionalPlayerId(p.PlayerID)
		w.WriteU16(p.Instance)
		return nil

	case wire.OpCastSpell, wire.OpCastSpellOnTarget:
		p := payload.(wire.CastSpellPacket)
		w.WriteOptionalPlayerId(p.Caster)
		w.WriteOptionalPlayerId(p.Target)
		w.WriteU16(p.Spell)
		return nil

	case wire.OpVoice:
		p := payload.(wire.VoicePacket)
		w.WriteBlob(p.Raw)
		return nil

	case wire.OpDiscordActivity:
		p := payload.(wire.DiscordActivityPacket)
		w.WriteString(p.State)
		w.WriteString(p.Details)
		w.WriteString(p.LargeImageKey)
		w.WriteString(p.LargeImageText)
		w.WriteString(p.SmallImageKey)
		w.WriteString(p.SmallImageText)
		return nil

	default:
		return fmt.Errorf("%w: opcode %d", errs.ErrUnknownOpcode, op)
	}
}

func decodePayload(r *Reader, op wire.Opcode) (any, error) {
	switch op {
	case wire.OpConnectionAttemptFailed, wire.OpAlreadyConnected, wire.OpNoFreeIncomingConnections,
		wire.OpConnectionBanned, wire.OpInvalidPassword, wire.OpIncompatibleProtocolVersion,
		wire.OpIpRecentlyConnected, wire.OpRequestFileLength, wire.OpRequestFilePart:
		return nil, nil

	case wire.OpMessage, wire.OpWhisper:
		var p wire.MessagePacket
		kind, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		p.Op = wire.MessageKind(kind)
		if p.Sender, err = r.ReadOptionalPlayerId(); err != nil {
			return nil, err
		}
		if p.Recipient, err = r.ReadOptionalPlayerId(); err != nil {
			return nil, err
		}
		if p.Text, err = r.ReadString(); err != nil {
			return nil, err
		}
		return p, nil

	case wire.OpInitialInfo:
		var p wire.InitialInfoPacket
		var err error
		if p.MapName, err = r.ReadString(); err != nil {
			return nil, err
		}
		if p.AssignedID, err = r.ReadPlayerId(); err != nil {
			return nil, err
		}
		return p, nil

	case wire.OpJoinGame:
		var p wire.JoinGamePacket
		var err error
		if p.PlayerID, err = r.ReadOptionalPlayerId(); err != nil {
			return nil, err
		}
		if p.Class, err = r.ReadByte(); err != nil {
			return nil, err
		}
		if p.HeadModel, err = r.ReadByte(); err != nil {
			return nil, err
		}
		if p.SkinTex, err = r.ReadByte(); err != nil {
			return nil, err
		}
		if p.FaceTex, err = r.ReadByte(); err != nil {
			return nil, err
		}
		if p.WalkStyle, err = r.ReadByte(); err != nil {
			return nil, err
		}
		if p.Position, err = r.ReadVec3(); err != nil {
			return nil, err
		}
		if p.Normal, err = r.ReadVec3(); err != nil {
			return nil, err
		}
		if p.Left, err = r.ReadU16(); err != nil {
			return nil, err
		}
		if p.Right, err = r.ReadU16(); err != nil {
			return nil, err
		}
		if p.Armor, err = r.ReadU16(); err != nil {
			return nil, err
		}
		if p.Animation, err = r.ReadU16(); err != nil {
			return nil, err
		}
		if p.PlayerName, err = r.ReadString(); err != nil {
			return nil, err
		}
		return p, nil

	case wire.OpPlayerStateUpdate:
		var p wire.PlayerStateUpdatePacket
		var err error
		if p.PlayerID, err = r.ReadOptionalPlayerId(); err != nil {
			return nil, err
		}
		if p.State, err = readPlayerState(r); err != nil {
			return nil, err
		}
		return p, nil

	case wire.OpExistingPlayers:
		var p wire.ExistingPlayersPacket
		count, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		if count > 0 {
			p.Players = make([]wire.ExistingPlayerInfo, 0, count)
		}
		for range make([]struct{}, count) {
			var info wire.ExistingPlayerInfo
			if info.PlayerID, err = r.ReadPlayerId(); err != nil {
				return nil, err
			}
			if info.PlayerName, err = r.ReadString(); err != nil {
				return nil, err
			}
			if info.Class, err = r.ReadByte(); err != nil {
				return nil, err
			}
			if info.HeadModel, err = r.ReadByte(); err != nil {
				return nil, err
			}
			if info.SkinTex, err = r.ReadByte(); err != nil {
				return nil, err
			}
			if info.FaceTex, err = r.ReadByte(); err != nil {
				return nil, err
			}
			if info.WalkStyle, err = r.ReadByte(); err != nil {
				return nil, err
			}
			if info.State, err = readPlayerState(r); err != nil {
				return nil, err
			}
			p.Players = append(p.Players, info)
		}
		return p, nil

	case wire.OpHPDiff:
		var p wire.HPDiffPacket
		var err error
		if p.Victim, err = r.ReadPlayerId(); err != nil {
			return nil, err
		}
		if p.Delta, err = r.ReadI16(); err != nil {
			return nil, err
		}
		return p, nil

	case wire.OpPlayerPositionUpdate:
		var p wire.PlayerPositionUpdatePacket
		var err error
		if p.PlayerID, err = r.ReadOptionalPlayerId(); err != nil {
			return nil, err
		}
		if p.Position, err = r.ReadVec3(); err != nil {
			return nil, err
		}
		return p, nil

	case wire.OpCommand:
		var p wire.CommandPacket
		var err error
		if p.Command, err = r.ReadString(); err != nil {
			return nil, err
		}
		return p, nil

	case wire.OpScriptingEnvelope:
		var p wire.ScriptingEnvelopePacket
		var err error
		if p.Payload, err = r.ReadBlob(); err != nil {
			return nil, err
		}
		return p, nil

	case wire.OpServerMessage:
		var p wire.ServerMessagePacket
		var err error
		if p.Text, err = r.ReadString(); err != nil {
			return nil, err
		}
		return p, nil

	case wire.OpLeftGame:
		var p wire.LeftGamePacket
		var err error
		if p.Disconnected, err = r.ReadPlayerId(); err != nil {
			return nil, err
		}
		return p, nil

	case wire.OpGameInfo:
		var p wire.GameInfoPacket
		var err error
		if p.RawGameTime, err = r.ReadU32(); err != nil {
			return nil, err
		}
		if p.GameMode, err = r.ReadByte(); err != nil {
			return nil, err
		}
		flags, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		p.Flags = wire.GameInfoFlags(flags)
		return p, nil

	case wire.OpDoDie:
		var p wire.DoDiePacket
		var err error
		if p.Dead, err = r.ReadPlayerId(); err != nil {
			return nil, err
		}
		return p, nil

	case wire.OpRespawn:
		var p wire.RespawnPacket
		var err error
		if p.Respawned, err = r.ReadPlayerId(); err != nil {
			return nil, err
		}
		return p, nil

	case wire.OpDropItem:
		var p wire.DropItemPacket
		var err error
		if p.PlayerID, err = r.ReadOptionalPlayerId(); err != nil {
			return nil, err
		}
		if p.Instance, err = r.ReadU16(); err != nil {
			return nil, err
		}
		if p.Amount, err = r.ReadU16(); err != nil {
			return nil, err
		}
		return p, nil

	case wire.OpTakeItem:
		var p wire.TakeItemPacket
		var err error
		if p.PlayerID, err = r.ReadOptionalPlayerId(); err != nil {
			return nil, err
		}
		if p.Instance, err = r.ReadU16(); err != nil {
			return nil, err
		}
		return p, nil

	case wire.OpCastSpell, wire.OpCastSpellOnTarget:
		var p wire.CastSpellPacket
		var err error
		if p.Caster, err = r.ReadOptionalPlayerId(); err != nil {
			return nil, err
		}
		if p.Target, err = r.ReadOptionalPlayerId(); err != nil {
			return nil, err
		}
		if p.Spell, err = r.ReadU16(); err != nil {
			return nil, err
		}
		return p, nil

	case wire.OpVoice:
		var p wire.VoicePacket
		var err error
		if p.Raw, err = r.ReadBlob(); err != nil {
			return nil, err
		}
		return p, nil

	case wire.OpDiscordActivity:
		var p wire.DiscordActivityPacket
		var err error
		if p.State, err = r.ReadString(); err != nil {
			return nil, err
		}
		if p.Details, err = r.ReadString(); err != nil {
			return nil, err
		}
		if p.LargeImageKey, err = r.ReadString(); err != nil {
			return nil, err
		}
		if p.LargeImageText, err = r.ReadString(); err != nil {
			return nil, err
		}
		if p.SmallImageKey, err = r.ReadString(); err != nil {
			return nil, err
		}
		if p.SmallImageText, err = r.ReadString(); err != nil {
			return nil, err
		}
		return p, nil

	default:
		return nil, fmt.Errorf("%w: opcode %d", errs.ErrUnknownOpcode, op)
	}
}

func writePlayerState(w *Writer, s wire.PlayerState) {
	w.WriteVec3(s.Position)
	w.WriteVec3(s.NRot)
	w.WriteI16(s.HealthPoints)
	w.WriteI16(s.ManaPoints)
	w.WriteU16(s.LeftHand)
	w.WriteU16(s.RightHand)
	w.WriteU16(s.EquippedArmor)
	w.WriteU16(s.MeleeWeapon)
	w.WriteU16(s.RangedWeapon)
	w.WriteU16(s.Animation)
	w.WriteByte(s.WeaponMode)
	w.WriteByte(s.ActiveSpellNr)
	w.WriteByte(s.HeadDirection)
}

func readPlayerState(r *Reader) (wire.PlayerState, error) {
	var s wire.PlayerState
	var err error
	if s.Position, err = r.ReadVec3(); err != nil {
		return s, err
	}
	if s.NRot, err = r.ReadVec3(); err != nil {
		return s, err
	}
	if s.HealthPoints, err = r.ReadI16(); err != nil {
		return s, err
	}
	if s.ManaPoints, err = r.ReadI16(); err != nil {
		return s, err
	}
	if s.LeftHand, err = r.ReadU16(); err != nil {
		return s, err
	}
	if s.RightHand, err = r.ReadU16(); err != nil {
		return s, err
	}
	if s.EquippedArmor, err = r.ReadU16(); err != nil {
		return s, err
	}
	if s.MeleeWeapon, err = r.ReadU16(); err != nil {
		return s, err
	}
	if s.RangedWeapon, err = r.ReadU16(); err != nil {
		return s, err
	}
	if s.Animation, err = r.ReadU16(); err != nil {
		return s, err
	}
	if s.WeaponMode, err = r.ReadByte(); err != nil {
		return s, err
	}
	if s.ActiveSpellNr, err = r.ReadByte(); err != nil {
		return s, err
	}
	if s.HeadDirection, err = r.ReadByte(); err != nil {
		return s, err
	}
	return s, nil
}
