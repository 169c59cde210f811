// Package hook defines the scripting surface a bureau drives once per
// tick. A Hook may not reach back into the bureau's UserList directly —
// doing so from Go would tie the hook and the bureau into the same
// cyclic mutable-reference problem the original Lua binding solved with
// shared interior-mutability cells. Instead a Hook queues Actions, which
// the bureau drains and applies once per tick after Think, and again after
// each user-disconnect callback.
package hook

import "vscp/internal/spatial"

// ActionKind enumerates the deferred operations a Hook can request.
type ActionKind int

const (
	ActionSetPos ActionKind = iota
	ActionSetRot
	ActionSendMsg
	ActionSendPacket
	ActionDisconnect
)

// Action is a single deferred operation targeting UserID, applied by the
// bureau once the current tick's dispatch has finished.
type Action struct {
	Kind   ActionKind
	UserID int32

	Pos    spatial.Vec3
	Rot    spatial.Mat3
	Text   string
	Packet []byte
}

// Queue accumulates Actions across a tick for the bureau to drain.
type Queue struct {
	actions []Action
}

func (q *Queue) SetPos(id int32, pos spatial.Vec3) {
	q.actions = append(q.actions, Action{Kind: ActionSetPos, UserID: id, Pos: pos})
}

func (q *Queue) SetRot(id int32, rot spatial.Mat3) {
	q.actions = append(q.actions, Action{Kind: ActionSetRot, UserID: id, Rot: rot})
}

func (q *Queue) SendMsg(id int32, text string) {
	q.actions = append(q.actions, Action{Kind: ActionSendMsg, UserID: id, Text: text})
}

func (q *Queue) SendPacket(id int32, packet []byte) {
	q.actions = append(q.actions, Action{Kind: ActionSendPacket, UserID: id, Packet: packet})
}

func (q *Queue) Disconnect(id int32) {
	q.actions = append(q.actions, Action{Kind: ActionDisconnect, UserID: id})
}

// Drain returns every queued Action and empties the queue.
func (q *Queue) Drain() []Action {
	actions := q.actions
	q.actions = nil
	return actions
}

// Hook is the scripting surface a bureau calls into once per tick and on
// every protocol event. Implementations queue Actions via the Queue
// passed to each method rather than mutating bureau state directly.
// A nil Hook is valid everywhere a Bureau accepts one; Noop supplies it.
type Hook interface {
	// UserConnect is called the instant a socket is accepted, before its
	// handshake completes. Returning false vetoes the connection.
	UserConnect(q *Queue, addr string) bool
	NewUser(q *Queue, id int32, username, avatar string)
	PosUpdate(q *Queue, id int32, pos spatial.Vec3)
	TransUpdate(q *Queue, id int32, rot spatial.Mat3)
	// ChatSend may return a replacement message; an empty string
	// suppresses the chat line entirely.
	ChatSend(q *Queue, id int32, msg string) (replacement string, override bool)
	PrivateChat(q *Queue, id, receiver int32, msg string) (replacement string, override bool)
	NameChange(q *Queue, id int32, name string)
	AvatarChange(q *Queue, id int32, avatar string)
	AuraEnter(q *Queue, id, otherID int32)
	AuraLeave(q *Queue, id, otherID int32)
	Think(q *Queue)
	UserDisconnect(q *Queue, id int32)
}

// Noop implements Hook with no-ops, for bureaus run without scripting.
type Noop struct{}

func (Noop) UserConnect(*Queue, string) bool                               { return true }
func (Noop) NewUser(*Queue, int32, string, string)                        {}
func (Noop) PosUpdate(*Queue, int32, spatial.Vec3)                       {}
func (Noop) TransUpdate(*Queue, int32, spatial.Mat3)                     {}
func (Noop) ChatSend(*Queue, int32, string) (string, bool)                { return "", false }
func (Noop) PrivateChat(*Queue, int32, int32, string) (string, bool)      { return "", false }
func (Noop) NameChange(*Queue, int32, string)                            {}
func (Noop) AvatarChange(*Queue, int32, string)                          {}
func (Noop) AuraEnter(*Queue, int32, int32)                               {}
func (Noop) AuraLeave(*Queue, int32, int32)                               {}
func (Noop) Think(*Queue)                                                 {}
func (Noop) UserDisconnect(*Queue, int32)                                 {}
