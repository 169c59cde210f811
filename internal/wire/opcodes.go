package wire

// Opcode is the u32 general-message opcode.
type Opcode uint32

const (
	// CMsgNewUser is the only recognized inbound-only opcode; it has no
	// named constant in the original protocol docs but is referenced here
	// for clarity at call sites that branch on it.
	CMsgNewUser     Opcode = 0
	SMsgClientId    Opcode = 1
	SMsgUserJoined  Opcode = 2
	SMsgUserLeft    Opcode = 3
	SMsgBroadcastId Opcode = 4
	MsgCommonOpcode Opcode = 6
	CMsgStateChange Opcode = 7
	SMsgSetMaster   Opcode = 8
	SMsgUserCount   Opcode = 11
)

// MsgCommonType is the u32 sub-type carried in a MsgCommon body.
type MsgCommonType uint32

const (
	TransformUpdate MsgCommonType = 2
	ChatSend        MsgCommonType = 9
	CharacterUpdate MsgCommonType = 12
	NameChange      MsgCommonType = 13
	AvatarChange    MsgCommonType = 14
	PrivateChat     MsgCommonType = 15
	ApplSpecific    MsgCommonType = 10000
)

// Strategy is the 1-byte MessageCommon audience code.
type Strategy uint8

const (
	AuraClients             Strategy = 0
	AuraClientsExceptSender Strategy = 1
	SpecificClient          Strategy = 2
	AllClients              Strategy = 3
	AllClientsExceptSender  Strategy = 4
	Unknown5                Strategy = 5
	Unknown6                Strategy = 6
	Invalid                 Strategy = 255
)

// StrategyFromByte maps a wire byte to a Strategy, defaulting to Invalid
// for anything outside the enumerated range.
func StrategyFromByte(b uint8) Strategy {
	switch b {
	case 0, 1, 2, 3, 4, 5, 6:
		return Strategy(b)
	default:
		return Invalid
	}
}

func (s Strategy) String() string {
	switch s {
	case AuraClients:
		return "aura"
	case AuraClientsExceptSender:
		return "aura_except_sender"
	case SpecificClient:
		return "specific"
	case AllClients:
		return "all"
	case AllClientsExceptSender:
		return "all_except_sender"
	case Unknown5:
		return "unknown5"
	case Unknown6:
		return "unknown6"
	default:
		return "invalid"
	}
}
