package wire

// PlayerState is the snapshot serialised in PlayerStateUpdate fan-out
// frames (§3). It never crosses the wire on its own; it is always embedded
// in a PlayerStateUpdate payload.
type PlayerState struct {
	Position Vec3
	NRot     Vec3 // right-vector of the rotation matrix; yaw is derived from it

	HealthPoints int16
	ManaPoints   int16

	LeftHand     uint16
	RightHand    uint16
	EquippedArmor uint16
	MeleeWeapon   uint16
	RangedWeapon  uint16

	Animation     uint16
	WeaponMode    uint8
	ActiveSpellNr uint8
	HeadDirection uint8
}

// MessageKind distinguishes the sub-variants multiplexed onto the Message
// opcode (plain chat vs. whisper vs. server message share a payload shape
// in the original protocol; we keep Message/Whisper/ServerMessage distinct
// Go types but record the wire sub-op for completeness).
type MessageKind uint8

const (
	MessageChat MessageKind = iota
	MessageWhisper
	MessageServer
)

// MessagePacket is the payload for opcode 135 (Message) and, with
// Recipient present, opcode 145 (Whisper).
type MessagePacket struct {
	Op        MessageKind
	Sender    Optional[PlayerId]
	Recipient Optional[PlayerId]
	Text      string
}

// InitialInfoPacket is S->C opcode 138.
type InitialInfoPacket struct {
	MapName    string
	AssignedID PlayerId
}

// JoinGamePacket is the C<->S, reused-as-broadcast opcode 139.
type JoinGamePacket struct {
	PlayerID   Optional[PlayerId]
	Class      uint8
	HeadModel  uint8
	SkinTex    uint8
	FaceTex    uint8
	WalkStyle  uint8
	Position   Vec3
	Normal     Vec3
	Left       uint16
	Right      uint16
	Armor      uint16
	Animation  uint16
	PlayerName string
}

// PlayerStateUpdatePacket is opcode 140.
type PlayerStateUpdatePacket struct {
	PlayerID Optional[PlayerId]
	State    PlayerState
}

// ExistingPlayerInfo is one element of ExistingPlayersPacket.Players.
type ExistingPlayerInfo struct {
	PlayerID   PlayerId
	PlayerName string
	Class      uint8
	HeadModel  uint8
	SkinTex    uint8
	FaceTex    uint8
	WalkStyle  uint8
	State      PlayerState
}

// ExistingPlayersPacket is opcode 141.
type ExistingPlayersPacket struct {
	Players []ExistingPlayerInfo
}

// HPDiffPacket is C->S opcode 142.
type HPDiffPacket struct {
	Victim PlayerId
	Delta  int16
}

// PlayerPositionUpdatePacket is S->C opcode 143 ("MapOnly"/degraded update).
type PlayerPositionUpdatePacket struct {
	PlayerID Optional[PlayerId]
	Position Vec3
}

// CommandPacket is opcode 144; Command is the command text as sent (per
// §4.2, "Command is any text beginning with / after stripping"). The
// dispatcher trims surrounding whitespace and one leading '/' itself.
type CommandPacket struct {
	Command string
}

// ScriptingEnvelopePacket is opcode 146; Payload is opaque to the codec and
// owned entirely by the scripting host's packet builder (§4.9.7).
type ScriptingEnvelopePacket struct {
	Payload []byte
}

// ServerMessagePacket is opcode 147.
type ServerMessagePacket struct {
	Text string
}

// LeftGamePacket is opcode 148.
type LeftGamePacket struct {
	Disconnected PlayerId
}

// GameInfoPacket is opcode 149.
type GameInfoPacket struct {
	RawGameTime uint32
	GameMode    uint8
	Flags       GameInfoFlags
}

// DoDiePacket is opcode 150.
type DoDiePacket struct {
	Dead PlayerId
}

// RespawnPacket is opcode 151.
type RespawnPacket struct {
	Respawned PlayerId
}

// DropItemPacket is opcode 152.
type DropItemPacket struct {
	PlayerID Optional[PlayerId]
	Instance uint16
	Amount   uint16
}

// TakeItemPacket is opcode 153.
type TakeItemPacket struct {
	PlayerID Optional[PlayerId]
	Instance uint16
}

// CastSpellPacket is opcode 154, and with Target present, opcode 155.
type CastSpellPacket struct {
	Caster Optional[PlayerId]
	Target Optional[PlayerId]
	Spell  uint16
}

// VoicePacket is opcode 156; Raw is relayed opaquely with no decoding.
type VoicePacket struct {
	Raw []byte
}

// DiscordActivityPacket is opcode 157.
type DiscordActivityPacket struct {
	State          string
	Details        string
	LargeImageKey  string
	LargeImageText string
	SmallImageKey  string
	SmallImageText string
}
