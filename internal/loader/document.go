package loader

import "sync"

// Element is one script resource inserted into the host document, tagged
// with the owning source and instance so repeated Ensure calls and other
// client instances can recognize already-present resources.
type Element struct {
	SourceID   string
	InstanceID string
	URL        string
}

// Document abstracts the host document's head/body. Implementations must be
// safe for concurrent use.
type Document interface {
	// Has reports whether an element for the source is already present,
	// regardless of which instance inserted it.
	Has(sourceID string) bool
	// Insert adds an element. Inserting an element for a source that already
	// has one replaces it.
	Insert(el Element) error
	// Remove deletes the element for the source, if present.
	Remove(sourceID string)
}

// MemoryDocument is the in-process Document used by embedders and tests.
type MemoryDocument struct {
	mu  sync.Mutex
	els map[string]Element
}

// NewMemoryDocument returns an empty in-memory document.
func NewMemoryDocument() *MemoryDocument {
	return &MemoryDocument{els: make(map[string]Element)}
}

func (d *MemoryDocument) Has(sourceID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.els[sourceID]
	return ok
}

func (d *MemoryDocument) Insert(el Element) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.els[el.SourceID] = el
	return nil
}

func (d *MemoryDocument) Remove(sourceID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.els, sourceID)
}

// Elements returns a copy of the current elements.
func (d *MemoryDocument) Elements() []Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Element, 0, len(d.els))
	for _, el := range d.els {
		out = append(out, el)
	}
	return out
}
