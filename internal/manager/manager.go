// Package manager implements the per-WRL pool of bureaus the WLS spawns
// bureaus from: reuse a bureau with room, otherwise spawn one up to a
// configured cap, and reap bureaus that have sat idle and empty.
package manager

import (
	"log"
	"time"

	"vscp/internal/bureau"
	"vscp/internal/hook"
)

const idleReapAfter = 10 * time.Second

type entry struct {
	startTime time.Time
	b         *bureau.Bureau
}

// Manager owns every bureau spawned for a single WRL.
type Manager struct {
	wrl     string
	max     int
	opts    bureau.Options
	hookFn  func() hook.Hook
	bureaus []*entry
}

// New returns a Manager that spawns up to max bureaus for wrl, each
// configured with opts. hookFn is called once per spawned bureau to
// build its scripting hook; pass nil for bureaus run without scripting.
func New(wrl string, max int, opts bureau.Options, hookFn func() hook.Hook) *Manager {
	opts.WRL = wrl
	return &Manager{wrl: wrl, max: max, opts: opts, hookFn: hookFn}
}

// WRL returns the world name this manager spawns bureaus for.
func (m *Manager) WRL() string {
	return m.wrl
}

// Poll advances every owned bureau by one tick and reaps any bureau that
// was spawned at least idleReapAfter ago and currently has no users.
func (m *Manager) Poll() {
	kept := m.bureaus[:0]
	for _, e := range m.bureaus {
		if err := e.b.Poll(); err != nil {
			log.Printf("[manager %s] bureau port %d poll error: %v", m.wrl, e.b.Port(), err)
		}

		if time.Since(e.startTime) < idleReapAfter || e.b.UserCount() > 0 {
			kept = append(kept, e)
			continue
		}

		log.Printf("[manager %s] reaping idle bureau on port %d", m.wrl, e.b.Port())
		e.b.Close()
	}
	m.bureaus = kept
}

// Available returns the port of a bureau with room for another user,
// spawning a new one if every existing bureau is full and the manager
// hasn't hit its cap. It returns false if the pool is exhausted.
func (m *Manager) Available() (uint16, bool) {
	for _, e := range m.bureaus {
		if int32(e.b.UserCount()) < e.b.Options.MaxUsers {
			return e.b.Port(), true
		}
	}

	if len(m.bureaus) >= m.max {
		return 0, false
	}

	var h hook.Hook
	if m.hookFn != nil {
		h = m.hookFn()
	}
	b, err := bureau.New("0.0.0.0:0", m.opts, h)
	if err != nil {
		log.Printf("[manager %s] failed to spawn bureau: %v", m.wrl, err)
		return 0, false
	}

	m.bureaus = append(m.bureaus, &entry{startTime: time.Now(), b: b})
	return b.Port(), true
}

// BureauCount returns the number of bureaus currently running for this WRL.
func (m *Manager) BureauCount() int {
	return len(m.bureaus)
}

// Bureaus returns the bureaus currently running for this WRL, for
// read-only inspection by the ops API.
func (m *Manager) Bureaus() []*bureau.Bureau {
	out := make([]*bureau.Bureau, len(m.bureaus))
	for i, e := range m.bureaus {
		out[i] = e.b
	}
	return out
}

// Close shuts down every bureau owned by this manager.
func (m *Manager) Close() {
	for _, e := range m.bureaus {
		e.b.Close()
	}
	m.bureaus = nil
}
