package manager

import (
	"net"
	"strconv"
	"testing"
	"time"

	"vscp/internal/bureau"
	"vscp/internal/wire"
)

// fill connects one client to the bureau on port and polls m until that
// bureau has registered it as a user.
func fill(t *testing.T, m *Manager, port uint16) {
	t.Helper()
	c, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(int(port))))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	c.Write(wire.HandshakeMagic[:])

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		m.Poll()
		for _, b := range m.Bureaus() {
			if b.Port() == port && b.UserCount() > 0 {
				return
			}
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("bureau on port %d never registered a user", port)
}

func TestAvailableSpawnsUpToMax(t *testing.T) {
	opts := bureau.Options{MaxUsers: 1, AuraRadius: 200, ConnectTimeout: time.Second}
	m := New("Test WRL", 2, opts, nil)
	t.Cleanup(m.Close)

	p1, ok := m.Available()
	if !ok {
		t.Fatal("expected first spawn to succeed")
	}
	fill(t, m, p1)
	p2, ok := m.Available()
	if !ok {
		t.Fatal("expected second spawn to succeed")
	}
	fill(t, m, p2)
	if p1 == p2 {
		t.Fatal("expected distinct bureau ports")
	}
	if m.BureauCount() != 2 {
		t.Fatalf("got %d bureaus, want 2", m.BureauCount())
	}

	if _, ok := m.Available(); ok {
		t.Fatal("expected pool exhausted at max=2 with both bureaus full")
	}
}

func TestPollReapsIdleEmptyBureau(t *testing.T) {
	opts := bureau.Options{MaxUsers: 4, AuraRadius: 200, ConnectTimeout: time.Second}
	m := New("Test WRL", 2, opts, nil)
	t.Cleanup(m.Close)

	m.Available()
	if m.BureauCount() != 1 {
		t.Fatal("expected one bureau spawned")
	}

	// Freshly spawned and empty: retained under the idle grace period.
	m.Poll()
	if m.BureauCount() != 1 {
		t.Fatal("expected bureau retained within grace period")
	}

	m.bureaus[0].startTime = time.Now().Add(-idleReapAfter - time.Second)
	m.Poll()
	if m.BureauCount() != 0 {
		t.Fatal("expected idle empty bureau to be reaped")
	}
}
