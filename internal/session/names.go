package session

import (
	"fmt"
	"time"
)

// phoneticNames is the pool of preferred auto-generated session names:
// the NATO phonetic alphabet, in alphabet order. The pool is fixed — the
// iteration order below is the allocation order, and it never changes at
// runtime.
var phoneticNames = [26]string{
	"alpha", "bravo", "charlie", "delta", "echo", "foxtrot",
	"golf", "hotel", "india", "juliet", "kilo", "lima",
	"mike", "november", "oscar", "papa", "quebec", "romeo",
	"sierra", "tango", "uniform", "victor", "whiskey", "xray",
	"yankee", "zulu",
}

// AllocateName returns the first pool name with no live session, querying
// the multiplexer fresh for each candidate. When all 26 are taken it
// falls back to session-<unix-timestamp>, which is returned without an
// existence check: two allocations in the same second with a fully
// exhausted pool would collide, an accepted edge case.
func (m *Manager) AllocateName() string {
	for _, name := range phoneticNames {
		if !m.mux.HasSession(name) {
			return name
		}
	}
	return fmt.Sprintf("session-%d", m.now().Unix())
}

// defaultNow is the clock used for fallback names unless the Config
// overrides it.
func defaultNow() time.Time {
	return time.Now()
}
