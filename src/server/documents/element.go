package documents

import (
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

// Element is one identifier occurrence inside a document snapshot. It
// implements types.NamedElementRef: handles are pointers, so two occurrences
// with the same text are distinct keys. The mutable live-state fields are
// guarded by the owning Store's mutex.
type Element struct {
	id   uint64
	file uri.URI

	// Guarded by Store.mu.
	valid bool
	name  string
	rng   protocol.Range
}

// RefID returns the process-unique identity of this occurrence handle.
func (e *Element) RefID() uint64 {
	return e.id
}

// File returns the owning file. Immutable after construction.
func (e *Element) File() uri.URI {
	return e.file
}
