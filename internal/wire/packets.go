package wire

// GeneralMessage builds [u8=0][i32 id1][i32 id2][u32 opcode][u32 len(content)][content].
func GeneralMessage(id1, id2 int32, opcode Opcode, content []byte) []byte {
	return NewWriter(17 + len(content)).
		WriteU8(0).
		WriteI32(id1).
		WriteI32(id2).
		WriteU32(uint32(opcode)).
		WriteU32(uint32(len(content))).
		WriteBytes(content).
		Bytes
}

// PositionUpdate builds [u8=2][i32 id][i32 id][i32 id][f32 x][f32 y][f32 z][u8=1][u8=0].
// The trailing two bytes are protocol artifacts carried verbatim for
// wire compatibility; their meaning is unknown upstream.
func PositionUpdate(id int32, x, y, z float32) []byte {
	return NewWriter(27).
		WriteU8(2).
		WriteI32(id).
		WriteI32(id).
		WriteI32(id).
		WriteF32(x).
		WriteF32(y).
		WriteF32(z).
		WriteU8(1).
		WriteU8(0).
		Bytes
}

// MessageCommon builds a MsgCommon body [i32 id2][u32 type][u8 strategy][content]
// and wraps it in GeneralMessage(id1, id1, MsgCommonOpcode, body) — note
// both outer ids equal id1, not id1/id2.
func MessageCommon(id1, id2 int32, msgType MsgCommonType, strategy Strategy, content []byte) []byte {
	body := NewWriter(9 + len(content)).
		WriteI32(id2).
		WriteU32(uint32(msgType)).
		WriteU8(uint8(strategy)).
		WriteBytes(content).
		Bytes
	return GeneralMessage(id1, id1, MsgCommonOpcode, body)
}

// RejectBytes is the 14-byte rejection sent when a bureau has no free id.
func RejectBytes() []byte {
	return []byte{'r', 'e', 'j', 'e', 'c', 't', 0, 0, 0, 0, 0, 0, 0, 0}
}

// HelloBytes is the 14-byte handshake-accept greeting: "hello\0" followed
// by the assigned id repeated twice, big-endian. The sixth byte must be a
// literal NUL — some variants emit a filler byte there; this
// implementation does not.
func HelloBytes(id int32) []byte {
	return NewWriter(14).
		WriteBytes([]byte("hello")).
		WriteU8(0).
		WriteI32(id).
		WriteI32(id).
		Bytes
}

// HandshakeMagic is the literal 7-byte client handshake preamble
// ("hello" + VSCP client version major/minor) that Listener compares
// inbound bytes against.
var HandshakeMagic = [7]byte{'h', 'e', 'l', 'l', 'o', 1, 1}
