// Package bureau implements a single world's event loop: accepting and
// staging handshakes, decoding per-user events, running the spatial aura
// engine, routing chat and ApplSpecific messages, and driving an
// optional scripting Hook once per tick.
package bureau

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"vscp/internal/conn"
	"vscp/internal/hook"
	"vscp/internal/spatial"
	"vscp/internal/userlist"
	"vscp/internal/vuser"
	"vscp/internal/wire"
)

// Options configures a single bureau instance.
type Options struct {
	MaxUsers       int32
	AuraRadius     float32
	ConnectTimeout time.Duration
	WRL            string
}

var specialPrivateChats = map[string]struct{}{
	"%%REQ": {}, "%%RINGING": {}, "%%REJECT": {}, "%%ACCEPT": {},
	"%%OK": {}, "%%BUSY": {}, "%%END": {},
}

// Bureau owns one world's connections and runs its 10Hz event loop.
type Bureau struct {
	ID       uuid.UUID
	Options  Options
	listener *conn.Listener
	users    *userlist.UserList
	hook     hook.Hook
	port     uint16

	startTime    time.Time
	lastActivity time.Time
}

// New binds addr and returns a Bureau ready to Poll or Run. h may be nil,
// in which case hook.Noop{} is used.
func New(addr string, opts Options, h hook.Hook) (*Bureau, error) {
	if opts.MaxUsers <= 0 {
		opts.MaxUsers = 1
	}
	if h == nil {
		h = hook.Noop{}
	}
	ln, err := conn.New(addr, opts.ConnectTimeout, wire.HandshakeMagic[:])
	if err != nil {
		return nil, err
	}
	return &Bureau{
		ID:           uuid.New(),
		Options:      opts,
		listener:     ln,
		users:        userlist.New(opts.MaxUsers),
		hook:         h,
		port:         ln.Port(),
		startTime:    time.Now(),
		lastActivity: time.Now(),
	}, nil
}

// Port returns the bound TCP port.
func (b *Bureau) Port() uint16 {
	return b.port
}

// UserCount returns the number of connected users.
func (b *Bureau) UserCount() int {
	return b.users.Len()
}

// StartTime returns when this bureau was spawned.
func (b *Bureau) StartTime() time.Time {
	return b.startTime
}

// LastActivity returns the last time this bureau accepted a connection
// or saw a user disconnect. The manager's idle reaping does not use it.
func (b *Bureau) LastActivity() time.Time {
	return b.lastActivity
}

// Close shuts down the listener and every connected user's socket.
func (b *Bureau) Close() error {
	for _, id := range b.users.All() {
		if u := b.users.Get(id); u != nil {
			u.Close()
		}
	}
	return b.listener.Close()
}

// Run polls the bureau at ~10Hz until ctx is cancelled.
func (b *Bureau) Run(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if err := b.Poll(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll runs exactly one iteration of the event loop: accept/stage,
// decode, dispatch, think, and reap.
func (b *Bureau) Poll() error {
	q := &hook.Queue{}

	event, err := b.listener.PollEvent()
	if err != nil {
		return err
	}
	if event != nil {
		switch event.Kind {
		case conn.EventIncoming:
			b.lastActivity = time.Now()
			if !b.hook.UserConnect(q, event.Addr.String()) {
				b.listener.DenyLast()
			}
		case conn.EventAccepted:
			if b.users.Add(event.Conn) {
				b.users.SendUserCount()
			}
		}
	}

	ids := b.users.All()
	for _, id := range ids {
		user := b.users.Get(id)
		if user == nil {
			continue
		}
		if ev := user.Poll(); ev != nil {
			b.handleEvent(q, id, ev)
		}
	}

	b.hook.Think(q)
	b.applyActions(q)

	removed := false
	for _, id := range ids {
		user := b.users.Get(id)
		if user == nil || user.Connected {
			continue
		}
		b.disconnectUser(id)
		b.hook.UserDisconnect(q, id)
		b.applyActions(q)
		removed = true
	}
	if removed {
		b.lastActivity = time.Now()
		b.users.SendUserCount()
	}

	return nil
}

func (b *Bureau) applyActions(q *hook.Queue) {
	for _, a := range q.Drain() {
		user := b.users.Get(a.UserID)
		if user == nil {
			continue
		}
		switch a.Kind {
		case hook.ActionSetPos:
			user.SetPos(a.Pos)
		case hook.ActionSetRot:
			user.SetRot(a.Rot)
		case hook.ActionSendMsg:
			user.Send(wire.MessageCommon(user.ID, user.ID, wire.ChatSend, wire.AllClientsExceptSender,
				wire.NewWriter(0).WriteString(a.Text).Bytes))
		case hook.ActionSendPacket:
			user.Send(a.Packet)
		case hook.ActionDisconnect:
			user.Connected = false
		}
	}
}

func (b *Bureau) sendToAura(id int32, buf []byte) {
	b.users.SendAura(id, buf)
}

func (b *Bureau) updateAura(q *hook.Queue, id int32) {
	radiusSqr := b.Options.AuraRadius * b.Options.AuraRadius
	b.users.ForOthers(id, func(user, other *vuser.User) {
		inRadius := user.Pos().DistanceSqr(other.Pos()) <= radiusSqr
		_, inAura := other.Aura[user.ID]

		switch {
		case !inRadius && inAura:
			delete(other.Aura, user.ID)
			other.Send(wire.GeneralMessage(other.ID, user.ID, wire.SMsgUserLeft,
				wire.NewWriter(4).WriteI32(user.ID).Bytes))

			delete(user.Aura, other.ID)
			user.Send(wire.GeneralMessage(user.ID, other.ID, wire.SMsgUserLeft,
				wire.NewWriter(4).WriteI32(other.ID).Bytes))

			b.hook.AuraLeave(q, user.ID, other.ID)

		case inRadius && !inAura:
			other.Aura[user.ID] = struct{}{}
			other.Send(wire.GeneralMessage(other.ID, other.ID, wire.SMsgUserJoined,
				wire.NewWriter(8).WriteI32(user.ID).WriteI32(user.ID).WriteString(user.Avatar).WriteString(user.Username).Bytes))
			other.Send(wire.MessageCommon(other.ID, user.ID, wire.CharacterUpdate, wire.AuraClientsExceptSender,
				wire.NewWriter(0).WriteString(user.Data).Bytes))

			user.Aura[other.ID] = struct{}{}
			user.Send(wire.GeneralMessage(user.ID, other.ID, wire.SMsgUserJoined,
				wire.NewWriter(8).WriteI32(other.ID).WriteI32(other.ID).WriteString(other.Avatar).WriteString(other.Username).Bytes))
			user.Send(wire.MessageCommon(user.ID, other.ID, wire.CharacterUpdate, wire.AuraClientsExceptSender,
				wire.NewWriter(0).WriteString(other.Data).Bytes))

			b.hook.AuraEnter(q, user.ID, other.ID)
		}
	})
}

func (b *Bureau) disconnectUser(id int32) {
	b.sendToAura(id, wire.GeneralMessage(id, id, wire.SMsgUserLeft, wire.NewWriter(4).WriteI32(id).Bytes))
	b.users.Disconnect(id)
}

func (b *Bureau) handleEvent(q *hook.Queue, id int32, ev *vuser.Event) {
	switch ev.Kind {
	case vuser.NewUser:
		b.users.Master()
		b.users.SendUserCount()
		b.hook.NewUser(q, id, ev.Username, ev.Avatar)

	case vuser.StateChange:
		// No observable behavior; present for protocol completeness.

	case vuser.PositionUpdate:
		b.updateAura(q, id)
		b.sendToAura(id, wire.PositionUpdate(id, ev.Position.X, ev.Position.Y, ev.Position.Z))
		b.hook.PosUpdate(q, id, ev.Position)

	case vuser.TransformUpdate:
		b.updateAura(q, id)
		w := wire.NewWriter(48)
		for _, f := range ev.Rotation.Data {
			w.WriteF32(f)
		}
		w.WriteF32(ev.Position.X).WriteF32(ev.Position.Y).WriteF32(ev.Position.Z)
		b.sendToAura(id, wire.MessageCommon(id, id, wire.TransformUpdate, wire.AuraClients, w.Bytes))
		b.hook.TransUpdate(q, id, ev.Rotation)

	case vuser.ChatSend:
		b.chatSend(q, id, ev.Text)

	case vuser.CharacterUpdate:
		b.sendToAura(id, wire.MessageCommon(id, id, wire.CharacterUpdate, wire.AuraClientsExceptSender,
			wire.NewWriter(0).WriteString(ev.Text).Bytes))

	case vuser.NameChange:
		b.sendToAura(id, wire.MessageCommon(id, id, wire.NameChange, wire.AuraClientsExceptSender,
			wire.NewWriter(0).WriteString(ev.Text).Bytes))
		b.hook.NameChange(q, id, ev.Text)

	case vuser.AvatarChange:
		b.sendToAura(id, wire.MessageCommon(id, id, wire.AvatarChange, wire.AuraClientsExceptSender,
			wire.NewWriter(0).WriteString(ev.Avatar).Bytes))
		b.hook.AvatarChange(q, id, ev.Avatar)

	case vuser.PrivateChat:
		b.privateChat(q, id, ev.TargetID, ev.Text)

	case vuser.ApplSpecific:
		b.applSpecific(id, ev.Strategy, ev.SenderID, ev.Method, ev.StrArg, ev.IntArg)
	}
}

func (b *Bureau) chatSend(q *hook.Queue, id int32, msg string) {
	if replacement, override := b.hook.ChatSend(q, id, msg); override {
		if replacement == "" {
			return
		}
		msg = replacement
	}

	user := b.users.Get(id)
	if user == nil {
		return
	}
	text := user.Username + ": " + msg

	b.users.SendOthers(id, wire.MessageCommon(id, id, wire.ChatSend, wire.AllClientsExceptSender,
		wire.NewWriter(0).WriteString(text).Bytes))
}

func (b *Bureau) privateChat(q *hook.Queue, id, receiver int32, text string) {
	user := b.users.Get(id)
	if user == nil {
		return
	}

	if _, special := specialPrivateChats[text]; !special {
		_, msg, found := cutColonSpace(text)
		if !found || msg == "" {
			return
		}

		if replacement, override := b.hook.PrivateChat(q, id, receiver, msg); override {
			if replacement == "" {
				return
			}
			msg = replacement
		}

		text = user.Username + ": " + msg
	}

	other := b.users.Get(receiver)
	if other == nil {
		return
	}

	other.Send(wire.MessageCommon(id, id, wire.PrivateChat, wire.SpecificClient,
		wire.NewWriter(4).WriteI32(id).WriteString(text).Bytes))
}

func cutColonSpace(s string) (before, after string, found bool) {
	const sep = ": "
	for i := 0; i+len(sep) <= len(s); i++ {
		if s[i:i+len(sep)] == sep {
			return s[:i], s[i+len(sep):], true
		}
	}
	return s, "", false
}

func (b *Bureau) applSpecific(id int32, strategy wire.Strategy, id2 int32, method, strarg string, intarg int32) {
	content := wire.NewWriter(1).WriteU8(2).WriteString(method).WriteString(strarg).WriteI32(intarg)
	msg := wire.MessageCommon(id, id2, wire.ApplSpecific, strategy, content.Bytes)

	if id2 == -9999 {
		switch strategy {
		case wire.AuraClients, wire.AllClients, wire.Unknown5:
			b.users.SendAll(msg)
		case wire.AuraClientsExceptSender, wire.AllClientsExceptSender, wire.Unknown6:
			b.users.SendOthers(id, msg)
		case wire.SpecificClient:
			masterID, ok := b.users.Master()
			if !ok {
				return
			}
			if master := b.users.Get(masterID); master != nil {
				master.Send(msg)
			}
		case wire.Invalid:
		}
		return
	}

	switch strategy {
	case wire.AuraClients:
		b.sendToAura(id, msg)
		if user := b.users.Get(id); user != nil {
			user.Send(msg)
		}
	case wire.AuraClientsExceptSender:
		b.sendToAura(id, msg)
	case wire.SpecificClient:
		if target := b.users.Get(id2); target != nil {
			target.Send(msg)
		}
	case wire.AllClients:
		b.users.SendAll(msg)
	case wire.AllClientsExceptSender:
		b.users.SendOthers(id, msg)
	default:
		log.Printf("[bureau %s] appl_specific: unrouted strategy %v", b.ID, strategy)
	}
}
