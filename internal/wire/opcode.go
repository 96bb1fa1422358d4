package wire

// Opcode identifies the payload shape of a frame. The byte values match
// §6.1 of the protocol exactly so capture tooling and the reference client
// agree with this implementation on the wire.
type Opcode uint8

const (
	OpConnectionAttemptFailed     Opcode = 17
	OpAlreadyConnected            Opcode = 18
	OpNewIncomingConnection       Opcode = 19
	OpNoFreeIncomingConnections   Opcode = 20
	OpDisconnectionNotification   Opcode = 21
	OpConnectionLost              Opcode = 22
	OpConnectionBanned            Opcode = 23
	OpInvalidPassword             Opcode = 24
	OpIncompatibleProtocolVersion Opcode = 25
	OpIpRecentlyConnected         Opcode = 26
	OpTimestamp                   Opcode = 27

	OpMessage            Opcode = 135
	OpRequestFileLength  Opcode = 136
	OpRequestFilePart    Opcode = 137
	OpInitialInfo        Opcode = 138
	OpJoinGame           Opcode = 139
	OpPlayerStateUpdate  Opcode = 140 // "ActualStatistics" in the original
	OpExistingPlayers    Opcode = 141
	OpHPDiff             Opcode = 142
	OpPlayerPositionUpdate Opcode = 143 // "MapOnly" in the original
	OpCommand            Opcode = 144
	OpWhisper            Opcode = 145
	OpScriptingEnvelope  Opcode = 146 // "Extended4Scripts" in the original
	OpServerMessage      Opcode = 147
	OpLeftGame           Opcode = 148
	OpGameInfo           Opcode = 149
	OpDoDie              Opcode = 150
	OpRespawn            Opcode = 151
	OpDropItem           Opcode = 152
	OpTakeItem           Opcode = 153
	OpCastSpell          Opcode = 154
	OpCastSpellOnTarget  Opcode = 155
	OpVoice              Opcode = 156
	OpDiscordActivity    Opcode = 157
)

// admissionOpcodes run before the application opcode table; they are
// synthesized by the transport adapter, never sent on the wire by a peer.
var admissionOpcodes = map[Opcode]bool{
	OpNewIncomingConnection:       true,
	OpDisconnectionNotification:   true,
	OpConnectionLost:              true,
	OpIncompatibleProtocolVersion: true,
	OpConnectionBanned:            true,
}

// IsAdmission reports whether op is a connection-lifecycle event rather
// than an application-level opcode.
func (op Opcode) IsAdmission() bool {
	return admissionOpcodes[op]
}

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return "OpUnknown"
}

var opcodeNames = map[Opcode]string{
	OpConnectionAttemptFailed:      "ConnectionAttemptFailed",
	OpAlreadyConnected:             "AlreadyConnected",
	OpNewIncomingConnection:        "NewIncomingConnection",
	OpNoFreeIncomingConnections:    "NoFreeIncomingConnections",
	OpDisconnectionNotification:    "DisconnectionNotification",
	OpConnectionLost:               "ConnectionLost",
	OpConnectionBanned:             "ConnectionBanned",
	OpInvalidPassword:              "InvalidPassword",
	OpIncompatibleProtocolVersion:  "IncompatibleProtocolVersion",
	OpIpRecentlyConnected:          "IpRecentlyConnected",
	OpTimestamp:                    "Timestamp",
	OpMessage:                      "Message",
	OpRequestFileLength:            "RequestFileLength",
	OpRequestFilePart:              "RequestFilePart",
	OpInitialInfo:                  "InitialInfo",
	OpJoinGame:                     "JoinGame",
	OpPlayerStateUpdate:            "PlayerStateUpdate",
	OpExistingPlayers:              "ExistingPlayers",
	OpHPDiff:                       "HPDiff",
	OpPlayerPositionUpdate:         "PlayerPositionUpdate",
	OpCommand:                      "Command",
	OpWhisper:                      "Whisper",
	OpScriptingEnvelope:            "ScriptingEnvelope",
	OpServerMessage:                "ServerMessage",
	OpLeftGame:                     "LeftGame",
	OpGameInfo:                     "GameInfo",
	OpDoDie:                        "DoDie",
	OpRespawn:                      "Respawn",
	OpDropItem:                     "DropItem",
	OpTakeItem:                     "TakeItem",
	OpCastSpell:                    "CastSpell",
	OpCastSpellOnTarget:            "CastSpellOnTarget",
	OpVoice:                        "Voice",
	OpDiscordActivity:              "DiscordActivity",
}

// GameInfoFlags is the GameInfo opcode's flag byte (§6.1 "Flag byte semantics").
type GameInfoFlags uint8

const (
	FlagQuickPots GameInfoFlags = 1 << 0
	FlagDropItems GameInfoFlags = 1 << 1
	FlagHideMap   GameInfoFlags = 1 << 2
)

// Has reports whether the given bit is set.
func (f GameInfoFlags) Has(bit GameInfoFlags) bool {
	return f&bit != 0
}
