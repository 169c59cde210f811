package userlist

import (
	"net"
	"testing"

	"vscp/internal/wire"
)

func pipePair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	return a, b
}

func drain(t *testing.T, c net.Conn, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	read := 0
	for read < n {
		k, err := c.Read(buf[read:])
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		read += k
	}
	return buf
}

func TestAddAssignsUniqueIDs(t *testing.T) {
	l := New(3)

	a, serverA := pipePair(t)
	go drain(t, a, 14)
	if !l.Add(serverA) {
		t.Fatal("expected Add to succeed")
	}

	b, serverB := pipePair(t)
	go drain(t, b, 14)
	if !l.Add(serverB) {
		t.Fatal("expected Add to succeed")
	}

	ids := l.All()
	if len(ids) != 2 {
		t.Fatalf("got %d users, want 2", len(ids))
	}
	if ids[0] == ids[1] {
		t.Fatal("expected distinct IDs")
	}
}

func TestAddRejectsWhenFull(t *testing.T) {
	l := New(1)

	a, serverA := pipePair(t)
	go drain(t, a, 14)
	if !l.Add(serverA) {
		t.Fatal("expected first Add to succeed")
	}

	b, serverB := pipePair(t)
	done := make(chan []byte, 1)
	go func() { done <- drain(t, b, 14) }()
	if l.Add(serverB) {
		t.Fatal("expected second Add to be rejected, bureau is full")
	}
	got := <-done
	want := "reject\x00"
	if string(got[:7]) != want {
		t.Fatalf("got %q, want reject frame", got)
	}
}

func TestMasterPromotesWhenGone(t *testing.T) {
	l := New(5)
	a, serverA := pipePair(t)
	go drain(t, a, 14)
	l.Add(serverA)

	ids := l.All()
	first := ids[0]

	go drain(t, a, 18) // SetMaster frame sent to the promoted user
	id, ok := l.Master()
	if !ok || id != first {
		t.Fatalf("got master %d ok=%v, want %d", id, ok, first)
	}

	// Stable on repeated calls.
	id2, ok := l.Master()
	if !ok || id2 != id {
		t.Fatal("master should remain stable while still connected")
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	l := New(5)
	a, serverA := pipePair(t)
	go drain(t, a, 14)
	l.Add(serverA)
	ids := l.All()
	id := ids[0]

	l.Disconnect(id)
	if l.Get(id) != nil {
		t.Fatal("expected user removed")
	}
	l.Disconnect(id) // must not panic on a second call
}

func TestSendUserCountBroadcastsToAll(t *testing.T) {
	l := New(5)
	a, serverA := pipePair(t)
	go drain(t, a, 14)
	l.Add(serverA)

	done := make(chan []byte, 1)
	go func() { done <- drain(t, a, 22) }()
	l.SendUserCount()

	msg := <-done
	r := wire.NewReader(msg)
	if wire.Opcode(r.ReadU32(9)) != wire.SMsgUserCount {
		t.Fatal("expected SMsgUserCount opcode")
	}
	if r.ReadU8(17) != 1 {
		t.Fatal("expected leading byte 1 in count payload")
	}
	if r.ReadI32(18) != 1 {
		t.Fatalf("expected count 1, got %d", r.ReadI32(18))
	}
}
