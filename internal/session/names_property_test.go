package session

import (
	"regexp"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/agent-sandbox/smux/internal/mux"
)

// Allocation contract: with fewer than 26 pool names taken, the chosen
// name is the first pool entry (in pool order) with no live session.
func TestAllocationPicksFirstFreePoolName(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	takenIndices := gen.SliceOf(gen.IntRange(0, 25))

	properties.Property("first free pool name in pool order", prop.ForAll(
		func(indices []int) bool {
			taken := make(map[int]bool)
			var live []string
			for _, i := range indices {
				if !taken[i] {
					taken[i] = true
					live = append(live, phoneticNames[i])
				}
			}
			if len(taken) == 26 {
				// Exhausted pool is covered by its own test.
				return true
			}

			fake := mux.NewFake(live...)
			manager := NewManager(fake, Config{})

			got := manager.AllocateName()

			for _, name := range phoneticNames {
				if !taken[indexOf(name)] {
					return got == name
				}
			}
			return false
		},
		takenIndices,
	))

	properties.Property("allocation is deterministic for a fixed live set", prop.ForAll(
		func(indices []int) bool {
			var live []string
			seen := make(map[int]bool)
			for _, i := range indices {
				if !seen[i] {
					seen[i] = true
					live = append(live, phoneticNames[i])
				}
			}

			fake := mux.NewFake(live...)
			manager := NewManager(fake, Config{})

			return manager.AllocateName() == manager.AllocateName()
		},
		takenIndices,
	))

	properties.TestingRun(t)
}

func indexOf(name string) int {
	for i, n := range phoneticNames {
		if n == name {
			return i
		}
	}
	return -1
}

func TestAllocationFallsBackWhenPoolExhausted(t *testing.T) {
	fake := mux.NewFake(phoneticNames[:]...)
	manager := NewManager(fake, Config{
		Now: func() time.Time { return time.Unix(1756400000, 0) },
	})

	got := manager.AllocateName()

	if matched := regexp.MustCompile(`^session-\d+$`).MatchString(got); !matched {
		t.Fatalf("fallback name %q does not match session-<integer>", got)
	}
	if got != "session-1756400000" {
		t.Errorf("fallback name = %q, want session-1756400000", got)
	}
	if fake.HasSession(got) {
		t.Errorf("fallback name %q collides with a live session", got)
	}
}

func TestPoolIsFixedAndDistinct(t *testing.T) {
	if len(phoneticNames) != 26 {
		t.Fatalf("pool has %d entries, want 26", len(phoneticNames))
	}
	seen := make(map[string]bool)
	for _, name := range phoneticNames {
		if seen[name] {
			t.Errorf("duplicate pool entry %q", name)
		}
		seen[name] = true
	}
}
