// Package userlist manages the set of Users connected to a single bureau:
// ID allocation, master-user designation, and the fan-out helpers the
// bureau's event loop uses to relay updates to others and aura peers.
package userlist

import (
	"log"
	"net"

	"vscp/internal/vuser"
	"vscp/internal/wire"
)

// UserList owns every connected vuser.User for one bureau.
type UserList struct {
	users map[int32]*vuser.User

	masterID int32

	maxIndex  int32
	userIndex int32
}

// New returns an empty UserList that allocates IDs in [1, maxUsers].
func New(maxUsers int32) *UserList {
	return &UserList{
		users:    make(map[int32]*vuser.User),
		masterID: -1,
		maxIndex: maxUsers,
	}
}

// Len reports the number of connected users.
func (l *UserList) Len() int {
	return len(l.users)
}

// Get returns the user with id, or nil if none is connected.
func (l *UserList) Get(id int32) *vuser.User {
	return l.users[id]
}

// All returns every connected user's ID. The slice is a fresh copy and
// safe for the caller to mutate or range over while modifying the list.
func (l *UserList) All() []int32 {
	ids := make([]int32, 0, len(l.users))
	for id := range l.users {
		ids = append(ids, id)
	}
	return ids
}

// nextID scans forward from the last allocated index, probing for a free
// slot in [1, maxIndex]. Returns false if the bureau is full.
func (l *UserList) nextID() (int32, bool) {
	for i := int32(0); i < l.maxIndex; i++ {
		l.userIndex = (l.userIndex % l.maxIndex) + 1
		if _, taken := l.users[l.userIndex]; !taken {
			return l.userIndex, true
		}
	}
	return 0, false
}

var rejectBuf = append([]byte("reject\x00"), make([]byte, 7)...)

// Add runs the handshake response for a newly accepted connection: on
// success it writes the hello/id frame and registers a User; when the
// bureau is full it writes the reject frame and closes conn itself.
func (l *UserList) Add(conn net.Conn) bool {
	id, ok := l.nextID()
	if !ok {
		conn.Write(rejectBuf)
		conn.Close()
		return false
	}

	if _, err := conn.Write(wire.HelloBytes(id)); err != nil {
		conn.Close()
		return false
	}

	l.users[id] = vuser.New(id, conn)
	return true
}

// Master returns the current master user's ID, promoting an arbitrary
// remaining user (and notifying it) if the previous master is gone.
func (l *UserList) Master() (int32, bool) {
	if _, ok := l.users[l.masterID]; ok {
		return l.masterID, true
	}

	for id, user := range l.users {
		l.masterID = id
		user.Send(wire.GeneralMessage(id, id, wire.SMsgSetMaster, []byte{1}))
		return l.masterID, true
	}

	return 0, false
}

// Disconnect removes id from the aura set of every user holding it, then
// from the list. It sends no message; the bureau notifies aura peers
// before calling it.
func (l *UserList) Disconnect(id int32) {
	l.ForAura(id, func(user, other *vuser.User) {
		delete(other.Aura, user.ID)
	})
	delete(l.users, id)
}

// ForOthers calls f(user, other) for every connected user except id.
func (l *UserList) ForOthers(id int32, f func(user, other *vuser.User)) {
	user, ok := l.users[id]
	if !ok {
		return
	}
	for otherID, other := range l.users {
		if otherID == id {
			continue
		}
		f(user, other)
	}
}

// ForAura calls f(user, other) for every user in id's aura set. A missing
// aura peer (desync) is logged and skipped rather than treated as fatal.
func (l *UserList) ForAura(id int32, f func(user, other *vuser.User)) {
	user, ok := l.users[id]
	if !ok {
		return
	}
	for otherID := range user.Aura {
		other, ok := l.users[otherID]
		if !ok {
			log.Printf("[userlist] aura desync: %d has id %d", id, otherID)
			continue
		}
		f(user, other)
	}
}

// SendUserCount broadcasts the current connection count to every user.
func (l *UserList) SendUserCount() {
	count := int32(len(l.users))
	body := wire.NewWriter(5).WriteU8(1).WriteI32(count).Bytes
	msg := wire.GeneralMessage(0, 0, wire.SMsgUserCount, body)
	l.SendAll(msg)
}

// SendAll writes buf to every connected user.
func (l *UserList) SendAll(buf []byte) {
	for _, user := range l.users {
		user.Send(buf)
	}
}

// SendOthers writes buf to every connected user except id.
func (l *UserList) SendOthers(id int32, buf []byte) {
	l.ForOthers(id, func(_, other *vuser.User) {
		other.Send(buf)
	})
}

// SendAura writes buf to every user in id's aura.
func (l *UserList) SendAura(id int32, buf []byte) {
	l.ForAura(id, func(_, other *vuser.User) {
		other.Send(buf)
	})
}
