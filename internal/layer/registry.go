package layer

import (
	"sync"

	"taglayer/pkg/types"
)

// Registry is a named set of layers. A process normally uses the package
// default, but tests and embedders can construct isolated registries.
type Registry struct {
	mu     sync.Mutex
	layers map[string]*Layer
	claims map[string]int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		layers: make(map[string]*Layer),
		claims: make(map[string]int),
	}
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry { return defaultRegistry }

// Claim records the result of claiming a layer. It is the handle a client
// must present back to Release.
type Claim struct {
	// Layer is the claimed buffer.
	Layer *Layer
	// PreExisted is true when the layer was adopted rather than created.
	PreExisted bool
	// Snapshot holds the pre-claim contents when PreExisted is true.
	Snapshot []types.Entry
	// Siblings counts other claims active on the same name at claim time.
	Siblings int

	name     string
	released bool
}

// Claim creates the named layer, or adopts it if it already exists. The
// returned claim carries a snapshot of any pre-existing contents so the
// claimant can dedup hydration-seeded entries and restore them on release.
func (r *Registry) Claim(name string) *Claim {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.layers[name]
	c := &Claim{name: name, Siblings: r.claims[name]}
	if ok {
		c.Layer = l
		c.PreExisted = true
		c.Snapshot = l.Snapshot()
	} else {
		l = &Layer{}
		r.layers[name] = l
		c.Layer = l
	}
	r.claims[name]++
	return c
}

// Release restores the layer to its pre-claim contents, or removes it
// entirely when this claim created it. A second release of the same claim is
// a no-op: there is nothing left to restore.
func (r *Registry) Release(c *Claim) {
	if c == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.released {
		return
	}
	c.released = true
	if r.claims[c.name] > 0 {
		r.claims[c.name]--
	}
	if c.PreExisted {
		c.Layer.Replace(c.Snapshot)
		return
	}
	delete(r.layers, c.name)
}

// Has reports whether a layer with the given name currently exists.
func (r *Registry) Has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.layers[name]
	return ok
}

// Seed installs a layer with the given contents, replacing any existing one.
// Used by embedders that receive server-rendered buffer contents before any
// client instance is constructed.
func (r *Registry) Seed(name string, entries []types.Entry) *Layer {
	r.mu.Lock()
	defer r.mu.Unlock()
	l := &Layer{}
	l.Replace(entries)
	r.layers[name] = l
	return l
}
