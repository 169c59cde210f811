// Package vuser implements a single connected VSCP client: wire parsing,
// the position/rotation state the bureau needs for aura math, and the
// non-blocking read loop that turns raw bytes into UserEvents.
package vuser

import (
	"net"
	"strings"
	"time"

	"vscp/internal/spatial"
	"vscp/internal/wire"
)

// EventKind enumerates the events Poll can produce.
type EventKind int

const (
	NewUser EventKind = iota
	StateChange
	PositionUpdate
	TransformUpdate
	ChatSend
	CharacterUpdate
	NameChange
	AvatarChange
	PrivateChat
	ApplSpecific
)

// Event is the decoded result of a single Poll call.
type Event struct {
	Kind EventKind

	Username string // NewUser
	Avatar   string // NewUser, AvatarChange
	Position spatial.Vec3
	Rotation spatial.Mat3

	Text string // ChatSend, CharacterUpdate, NameChange, PrivateChat

	TargetID int32  // PrivateChat
	Strategy wire.Strategy // ApplSpecific
	SenderID int32  // ApplSpecific
	Method   string // ApplSpecific
	StrArg   string // ApplSpecific
	IntArg   int32  // ApplSpecific
}

const defaultAvatar = "avtwrl/01cat.wrl"

func validateAvatar(avatar string) string {
	if !strings.HasPrefix(avatar, "avtwrl/") {
		return defaultAvatar
	}
	return avatar
}

// User is a single connected VSCP client.
type User struct {
	ID        int32
	Aura      map[int32]struct{}
	Connected bool
	Username  string
	Avatar    string
	Data      string

	addr     net.Addr
	conn     net.Conn
	position spatial.Vec3
	rotation spatial.Mat3
}

// New wraps an already-accepted connection as a User.
func New(id int32, c net.Conn) *User {
	return &User{
		ID:        id,
		Aura:      make(map[int32]struct{}),
		Connected: true,
		addr:      c.RemoteAddr(),
		conn:      c,
	}
}

// Addr returns the peer address captured at accept time.
func (u *User) Addr() net.Addr {
	return u.addr
}

// Pos returns the user's last known position.
func (u *User) Pos() spatial.Vec3 {
	return u.position
}

// SetPos pushes a position update to the client and records it locally.
func (u *User) SetPos(pos spatial.Vec3) {
	u.Send(wire.PositionUpdate(u.ID, pos.X, pos.Y, pos.Z))
	u.position = pos
}

// SetRot pushes a transform update (rotation + position, strategy
// AuraClients) to this client only and records the rotation locally.
func (u *User) SetRot(rot spatial.Mat3) {
	w := wire.NewWriter(48)
	for _, f := range rot.Data {
		w.WriteF32(f)
	}
	w.WriteF32(u.position.X).WriteF32(u.position.Y).WriteF32(u.position.Z)

	u.Send(wire.MessageCommon(u.ID, u.ID, wire.TransformUpdate, wire.AuraClients, w.Bytes))
	u.rotation = rot
}

// Send writes raw bytes to the client's socket. A write failure marks the
// user disconnected; the caller is expected to reap it on its next pass.
func (u *User) Send(b []byte) {
	if _, err := u.conn.Write(b); err != nil {
		u.Connected = false
	}
}

// Close releases the underlying socket.
func (u *User) Close() error {
	return u.conn.Close()
}

// read performs one read into buf that waits at most a millisecond,
// returning the byte count and whether it is non-zero. A zero count means
// nothing was available yet, unless the read failed with something other
// than a timeout, in which case the user is also marked disconnected.
func (u *User) read(buf []byte) (int, bool) {
	// A deadline already in the past makes Go fail the read before trying it.
	u.conn.SetReadDeadline(time.Now().Add(time.Millisecond))
	n, err := u.conn.Read(buf)
	if n > 0 {
		return n, true
	}
	if err == nil {
		return 0, false
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return 0, false
	}
	u.Connected = false
	return 0, false
}

// Poll attempts to decode a single event from the socket without blocking.
// It returns nil when no complete event is available yet.
func (u *User) Poll() *Event {
	var class [1]byte
	n, _ := u.read(class[:])
	if n == 0 {
		return nil
	}

	switch class[0] {
	case 0:
		return u.generalMessage()
	case 1:
		// Purpose unknown; the original client reliably follows this
		// class byte with 14 bytes, so they're discarded rather than
		// treated as a protocol violation.
		var discard [14]byte
		u.read(discard[:])
		return nil
	case 2:
		return u.positionUpdate()
	default:
		u.Connected = false
		return nil
	}
}

func (u *User) generalMessage() *Event {
	var header [16]byte
	n, _ := u.read(header[:])
	if n < 16 {
		return nil
	}
	r := wire.NewReader(header[:])
	opcode := wire.Opcode(r.ReadU32(8))
	size := r.ReadU32(12)

	if size > 1024 {
		u.Connected = false
		return nil
	}

	packet := make([]byte, size)
	n, _ = u.read(packet)
	if uint32(n) < size {
		return nil
	}

	switch opcode {
	case wire.CMsgNewUser:
		return u.cmsgNewUser(packet)
	case wire.MsgCommonOpcode:
		return u.msgCommon(packet)
	case wire.CMsgStateChange:
		return &Event{Kind: StateChange}
	default:
		return nil
	}
}

func (u *User) positionUpdate() *Event {
	var packet [26]byte
	n, _ := u.read(packet[:])
	if n < 26 {
		return nil
	}
	r := wire.NewReader(packet[:])
	u.position = spatial.Vec3{
		X: r.ReadF32(12),
		Y: r.ReadF32(16),
		Z: r.ReadF32(20),
	}
	return &Event{Kind: PositionUpdate, Position: u.position}
}

func (u *User) cmsgNewUser(packet []byte) *Event {
	r := wire.NewReader(packet)
	username := r.ReadString(0)
	if len(packet) < len(username)+1 {
		return nil
	}
	avatar := validateAvatar(r.ReadString(len(username) + 1))

	u.Username = username
	u.Avatar = avatar

	u.Send(wire.GeneralMessage(0, u.ID, wire.SMsgClientId, beI32(u.ID)))

	joined := wire.NewWriter(8).WriteI32(u.ID).WriteI32(u.ID).WriteString(u.Avatar).WriteString(u.Username)
	u.Send(wire.GeneralMessage(u.ID, u.ID, wire.SMsgUserJoined, joined.Bytes))

	u.Send(wire.GeneralMessage(u.ID, u.ID, wire.SMsgBroadcastId, beI32(u.ID)))

	return &Event{Kind: NewUser, Username: username, Avatar: avatar}
}

func (u *User) msgCommon(packet []byte) *Event {
	if len(packet) < 10 {
		return nil
	}
	r := wire.NewReader(packet)
	id := r.ReadI32(0)
	msgType := wire.MsgCommonType(r.ReadU32(4))
	strategy := wire.StrategyFromByte(packet[8])
	content := packet[9:]

	switch msgType {
	case wire.TransformUpdate:
		return u.transformUpdate(content)
	case wire.ChatSend:
		return u.chatSend(content)
	case wire.CharacterUpdate:
		return u.characterUpdate(content)
	case wire.NameChange:
		return u.nameChange(content)
	case wire.AvatarChange:
		return u.avatarChange(content)
	case wire.PrivateChat:
		return u.privateChat(id, content)
	default:
		// ApplSpecific and every type outside the enumerated set.
		return u.applSpecific(id, strategy, content)
	}
}

func (u *User) transformUpdate(content []byte) *Event {
	if len(content) < 48 {
		return nil
	}
	r := wire.NewReader(content)
	var mat spatial.Mat3
	for i := 0; i < 9; i++ {
		mat.Data[i] = r.ReadF32(i * 4)
	}
	u.rotation = mat
	u.position = spatial.Vec3{X: r.ReadF32(36), Y: r.ReadF32(40), Z: r.ReadF32(44)}

	return &Event{Kind: TransformUpdate, Rotation: u.rotation, Position: u.position}
}

func (u *User) chatSend(content []byte) *Event {
	text := wire.NewReader(content).ReadString(0)

	_, message, found := strings.Cut(text, ": ")
	if !found || message == "" {
		return nil
	}

	return &Event{Kind: ChatSend, Text: message}
}

func (u *User) characterUpdate(content []byte) *Event {
	data := wire.NewReader(content).ReadString(0)
	u.Data = data
	return &Event{Kind: CharacterUpdate, Text: data}
}

func (u *User) nameChange(content []byte) *Event {
	name := wire.NewReader(content).ReadString(0)
	u.Username = name
	return &Event{Kind: NameChange, Text: name}
}

func (u *User) avatarChange(content []byte) *Event {
	avatar := validateAvatar(wire.NewReader(content).ReadString(0))
	u.Avatar = avatar
	return &Event{Kind: AvatarChange, Avatar: avatar}
}

func (u *User) privateChat(id int32, content []byte) *Event {
	if len(content) < 5 {
		return nil
	}
	text := wire.NewReader(content).ReadString(4)
	return &Event{Kind: PrivateChat, TargetID: id, Text: text}
}

func (u *User) applSpecific(id int32, strategy wire.Strategy, content []byte) *Event {
	if len(content) < 7 {
		return nil
	}
	r := wire.NewReader(content)
	method := r.ReadString(1)
	if len(content) < len(method)+2 {
		return nil
	}
	strarg := r.ReadString(len(method) + 2)
	if len(content) < len(method)+len(strarg)+6 {
		return nil
	}
	intarg := r.ReadI32(len(method) + len(strarg) + 3)

	return &Event{
		Kind:     ApplSpecific,
		Strategy: strategy,
		SenderID: id,
		Method:   method,
		StrArg:   strarg,
		IntArg:   intarg,
	}
}

func beI32(v int32) []byte {
	return wire.NewWriter(4).WriteI32(v).Bytes
}
