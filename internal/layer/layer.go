// Package layer models the shared ordered buffer consumed by downstream tag
// processing code. Layers live in a named registry: an explicit, injectable
// stand-in for the ambient global the buffer would otherwise be. Claiming a
// layer either creates it or adopts pre-existing contents (the hydration
// case), and releasing it restores whatever the claimant found.
package layer

import (
	"sync"

	"taglayer/pkg/types"
)

// DefaultName is the layer name used when a client does not configure one.
const DefaultName = "eventLayer"

// Layer is a single mutable ordered sequence of entries. All mutations are
// guarded; the host environment and multiple client instances may share one
// layer.
type Layer struct {
	mu      sync.Mutex
	entries []types.Entry
}

// Append adds one entry at the end.
func (l *Layer) Append(e types.Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
}

// Len returns the current number of entries.
func (l *Layer) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Snapshot returns a copy of the current contents.
func (l *Layer) Snapshot() []types.Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]types.Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Replace swaps the contents for the given entries (used on restore).
func (l *Layer) Replace(entries []types.Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make([]types.Entry, len(entries))
	copy(l.entries, entries)
}

// EvictOldest removes up to n of the oldest entries for which critical
// returns false, preserving the relative order of everything else. Returns
// how many entries were removed and the resulting length.
func (l *Layer) EvictOldest(n int, critical func(types.Entry) bool) (evicted, remaining int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 {
		return 0, len(l.entries)
	}
	kept := l.entries[:0]
	for _, e := range l.entries {
		if evicted < n && !critical(e) {
			evicted++
			continue
		}
		kept = append(kept, e)
	}
	l.entries = kept
	return evicted, len(l.entries)
}
