// Package wls implements the world-location-server front door: a CSV
// request/response protocol clients use to resolve a world name to the
// host/port of a bureau with room for them.
//
// The request shape ("f,<ip>,<wrl>") doesn't fit internal/conn's
// Listener, which stages connections against a fixed-length exact-match
// handshake. A WLS request is a single variable-length line, so this
// package runs its own small non-blocking accept loop instead of reusing
// that type.
package wls

import (
	"context"
	"errors"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"vscp/internal/bureau"
	"vscp/internal/hook"
	"vscp/internal/manager"
	"vscp/internal/wrlstore"
)

const requestBufSize = 256

var defaultWRLs = []string{
	"SAPARi COAST MIL.",
	"SAPARi DOWNTOWN MIL.",
	"HONJO JIDAIMURA MIL.",
	"SAPARi PARK MIL.",
	"SAPARi SPA",
	"SAPARi GARDEN",
	"SAPARi HILLS",
}

// DefaultWRLs returns the world list seeded into a fresh registry.
func DefaultWRLs() []string {
	out := make([]string, len(defaultWRLs))
	copy(out, defaultWRLs)
	return out
}

// Options configures a WLS instance.
type Options struct {
	HostName       string
	MaxBureaus     int
	BureauOptions  bureau.Options
	ConnectTimeout time.Duration
	HookFn         func() hook.Hook
}

type pending struct {
	conn     net.Conn
	deadline time.Time
}

// WLS is the front-door server: it accepts CSV lookup requests and
// delegates bureau lifecycle to one manager.Manager per registered world.
type WLS struct {
	opts     Options
	store    *wrlstore.Store
	tcp      *net.TCPListener
	managers map[string]*manager.Manager
	queue    []*pending
	port     uint16
}

// New binds addr, seeds the registry with the default world list if
// empty, and constructs a Manager for every registered world.
func New(addr string, opts Options, store *wrlstore.Store) (*WLS, error) {
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 10 * time.Second
	}

	wrls, err := store.List()
	if err != nil {
		return nil, err
	}
	if len(wrls) == 0 {
		if err := store.Seed(DefaultWRLs()); err != nil {
			return nil, err
		}
		wrls, err = store.List()
		if err != nil {
			return nil, err
		}
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	tcp, ok := ln.(*net.TCPListener)
	if !ok {
		ln.Close()
		return nil, errors.New("wls: listener is not a *net.TCPListener")
	}

	w := &WLS{
		opts:     opts,
		store:    store,
		tcp:      tcp,
		managers: make(map[string]*manager.Manager),
	}
	if _, portStr, err := net.SplitHostPort(tcp.Addr().String()); err == nil {
		if p, err := strconv.Atoi(portStr); err == nil {
			w.port = uint16(p)
		}
	}

	bopts := opts.BureauOptions
	bopts.ConnectTimeout = opts.ConnectTimeout
	maxBureaus := opts.MaxBureaus
	if maxBureaus <= 0 {
		maxBureaus = 1
	}
	for _, wrl := range wrls {
		max := maxBureaus
		if wrl.MaxBureaus > 0 {
			max = wrl.MaxBureaus
		}
		wopts := bopts
		if wrl.MaxUsers > 0 {
			wopts.MaxUsers = int32(wrl.MaxUsers)
		}
		w.managers[wrl.Name] = manager.New(wrl.Name, max, wopts, opts.HookFn)
	}

	return w, nil
}

// Port returns the bound TCP port.
func (w *WLS) Port() uint16 {
	return w.port
}

// Managers returns the live per-WRL bureau managers, for read-only
// inspection by the ops API.
func (w *WLS) Managers() map[string]*manager.Manager {
	return w.managers
}

// Close shuts down the listener and every managed bureau.
func (w *WLS) Close() error {
	for _, m := range w.managers {
		m.Close()
	}
	for _, p := range w.queue {
		p.conn.Close()
	}
	return w.tcp.Close()
}

// Run polls the WLS at ~10Hz until ctx is cancelled.
func (w *WLS) Run(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if err := w.Poll(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll runs one iteration: accept, service staged requests, and advance
// every world's bureau pool.
func (w *WLS) Poll() error {
	// A deadline already in the past makes Go fail the call before trying
	// it, so accepts and reads each wait up to a millisecond instead.
	if err := w.tcp.SetDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return err
	}
	if c, err := w.tcp.Accept(); err == nil {
		c.SetReadDeadline(time.Now())
		w.queue = append(w.queue, &pending{conn: c, deadline: time.Now().Add(w.opts.ConnectTimeout)})
	} else if !isTimeout(err) {
		return err
	}

	kept := w.queue[:0]
	for _, p := range w.queue {
		if w.service(p) {
			continue
		}
		if time.Now().After(p.deadline) {
			p.conn.Close()
			continue
		}
		kept = append(kept, p)
	}
	w.queue = kept

	for _, m := range w.managers {
		m.Poll()
	}

	return nil
}

// service attempts one non-blocking read of p.conn and, if a full
// request arrived, handles it and closes the connection. It returns true
// once the connection has been consumed (handled or dropped), false if
// it should remain staged for a later poll.
func (w *WLS) service(p *pending) bool {
	p.conn.SetReadDeadline(time.Now().Add(time.Millisecond))
	buf := make([]byte, requestBufSize)
	n, err := p.conn.Read(buf)
	if n == 0 {
		if err != nil && !isTimeout(err) {
			p.conn.Close()
			return true
		}
		return false
	}

	w.handleRequest(p.conn, buf[:n])
	p.conn.Close()
	return true
}

func (w *WLS) handleRequest(conn net.Conn, data []byte) {
	if len(data) < 3 {
		return
	}
	fields := strings.Split(string(data), ",")
	if len(fields) < 3 || fields[0] != "f" {
		return
	}
	wrl := fields[2]

	m, ok := w.managers[wrl]
	if !ok {
		conn.Write([]byte("f,9"))
		return
	}

	before := m.BureauCount()
	port, ok := m.Available()
	if !ok {
		conn.Write([]byte("f,9"))
		return
	}

	if m.BureauCount() > before {
		if err := w.store.RecordSpawn(wrl, port); err != nil {
			log.Printf("[wls] record spawn for %q: %v", wrl, err)
		}
	}
	conn.Write([]byte("f,0," + w.opts.HostName + "," + strconv.Itoa(int(port)) + "\x00"))
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}
