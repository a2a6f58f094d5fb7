package documents

import (
	"context"
	"os"
	"regexp"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"def-gateway/src/internal/common"
	interrors "def-gateway/src/internal/errors"
	"def-gateway/src/internal/types"
)

var (
	identifierPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_']*`)
	moduleHeaderLine  = regexp.MustCompile(`(?m)^module\s+([A-Za-z][A-Za-z0-9_.']*)`)
)

// DefaultReadBudget bounds a single read against a document snapshot.
const DefaultReadBudget = 50 * time.Millisecond

// Store holds in-memory document snapshots and hands out identifier
// occurrence handles. It implements Provider; every Provider read is bounded
// by the configured budget and aborts on context cancellation.
type Store struct {
	mu         sync.RWMutex
	docs       map[uri.URI]*document
	readBudget time.Duration
	indexing   atomic.Bool
	nextID     atomic.Uint64
}

// document is one text snapshot plus the live occurrence handles scanned
// from it. Replacing the snapshot invalidates every previous handle.
type document struct {
	file        uri.URI
	text        string
	lineOffsets []int
	module      string
	elements    []*Element
}

// NewStore creates a document store with the given read budget. A zero
// budget selects DefaultReadBudget.
func NewStore(readBudget time.Duration) *Store {
	if readBudget <= 0 {
		readBudget = DefaultReadBudget
	}
	return &Store{
		docs:       make(map[uri.URI]*document),
		readBudget: readBudget,
	}
}

// SetIndexing flips the host-side indexing flag. While set, every bounded
// read fails with ErrIndexNotReady.
func (s *Store) SetIndexing(indexing bool) {
	s.indexing.Store(indexing)
}

// Open registers a document snapshot, replacing any previous snapshot for
// the same file. Returns the occurrence handles invalidated by the
// replacement (empty on first open).
func (s *Store) Open(file uri.URI, text string) []types.NamedElementRef {
	s.mu.Lock()
	defer s.mu.Unlock()

	invalidated := s.dropLocked(file)
	doc := &document{
		file:        file,
		text:        text,
		lineOffsets: scanLineOffsets(text),
		module:      scanModuleHeader(text),
	}
	doc.elements = s.scanElementsLocked(doc)
	s.docs[file] = doc

	common.ResolverLogger.Debug("Opened %s: %d identifier occurrences, module=%q",
		file, len(doc.elements), doc.module)
	return invalidated
}

// Update replaces a document's snapshot. All previous occurrence handles for
// the file become invalid and are returned so the caller can drive cache
// invalidation.
func (s *Store) Update(file uri.URI, text string) []types.NamedElementRef {
	return s.Open(file, text)
}

// Close removes a document. All its occurrence handles become invalid.
func (s *Store) Close(file uri.URI) []types.NamedElementRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropLocked(file)
}

// dropLocked invalidates and detaches every handle of file. Caller holds mu.
func (s *Store) dropLocked(file uri.URI) []types.NamedElementRef {
	doc, ok := s.docs[file]
	if !ok {
		return nil
	}

	refs := make([]types.NamedElementRef, 0, len(doc.elements))
	for _, el := range doc.elements {
		el.valid = false
		refs = append(refs, el)
	}
	delete(s.docs, file)
	return refs
}

// scanElementsLocked tokenizes the snapshot into identifier occurrence
// handles. Caller holds mu.
func (s *Store) scanElementsLocked(doc *document) []*Element {
	matches := identifierPattern.FindAllStringIndex(doc.text, -1)
	elements := make([]*Element, 0, len(matches))
	for _, m := range matches {
		start := positionAt(doc.lineOffsets, m[0])
		end := positionAt(doc.lineOffsets, m[1])
		elements = append(elements, &Element{
			id:    s.nextID.Add(1),
			file:  doc.file,
			valid: true,
			name:  doc.text[m[0]:m[1]],
			rng:   protocol.Range{Start: start, End: end},
		})
	}
	return elements
}

// ElementAt returns the identifier occurrence covering pos, if any. This is
// the entry point callers use to turn a cursor position into a reference
// handle before resolving.
func (s *Store) ElementAt(file uri.URI, pos protocol.Position) (types.NamedElementRef, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[file]
	if !ok {
		return nil, false
	}
	for _, el := range doc.elements {
		if el.rng.Start.Line == pos.Line &&
			el.rng.Start.Character <= pos.Character &&
			pos.Character < el.rng.End.Character {
			return el, true
		}
	}
	return nil, false
}

// Text returns the current snapshot text for a file.
func (s *Store) Text(file uri.URI) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[file]
	if !ok {
		return "", false
	}
	return doc.text, true
}

// read runs fn under the store's read budget with cooperative cancellation.
// fn performs its own locking.
func (s *Store) read(ctx context.Context, op string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.indexing.Load() {
		return ErrIndexNotReady
	}

	done := make(chan error, 1)
	go func() { done <- fn() }()

	timer := time.NewTimer(s.readBudget)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return interrors.NewTimeoutError(op, s.readBudget, nil)
	}
}

// PositionAt converts a byte offset to a zero-based position.
func (s *Store) PositionAt(ctx context.Context, file uri.URI, offset int) (protocol.Position, error) {
	var pos protocol.Position
	err := s.read(ctx, "positionAt", func() error {
		s.mu.RLock()
		defer s.mu.RUnlock()

		doc, ok := s.docs[file]
		if !ok {
			return ErrNotFound
		}
		if offset < 0 || offset > len(doc.text) {
			return interrors.NewValidationError("offset", "offset outside document")
		}
		pos = positionAt(doc.lineOffsets, offset)
		return nil
	})
	return pos, err
}

// ModuleName returns the file's module name if known. Best-effort: callers
// treat a missing name as "unknown", never as a failure.
func (s *Store) ModuleName(_ context.Context, file uri.URI) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[file]
	if !ok || doc.module == "" {
		return "", false
	}
	return doc.module, true
}

// IsValid reports whether the occurrence handle still belongs to a live
// snapshot.
func (s *Store) IsValid(ctx context.Context, ref types.NamedElementRef) (bool, error) {
	el, err := s.element(ref)
	if err != nil {
		return false, err
	}

	var valid bool
	err = s.read(ctx, "isValid", func() error {
		s.mu.RLock()
		defer s.mu.RUnlock()
		valid = el.valid
		return nil
	})
	return valid, err
}

// Name returns the occurrence's current identifier text.
func (s *Store) Name(ctx context.Context, ref types.NamedElementRef) (string, error) {
	el, err := s.element(ref)
	if err != nil {
		return "", err
	}

	var name string
	err = s.read(ctx, "name", func() error {
		s.mu.RLock()
		defer s.mu.RUnlock()
		if !el.valid {
			return ErrNotFound
		}
		name = el.name
		return nil
	})
	return name, err
}

// Span returns the occurrence's current range in its owning file.
func (s *Store) Span(ctx context.Context, ref types.NamedElementRef) (protocol.Range, error) {
	el, err := s.element(ref)
	if err != nil {
		return protocol.Range{}, err
	}

	var rng protocol.Range
	err = s.read(ctx, "span", func() error {
		s.mu.RLock()
		defer s.mu.RUnlock()
		if !el.valid {
			return ErrNotFound
		}
		rng = el.rng
		return nil
	})
	return rng, err
}

// FindNamedElementAt locates the occurrence of identifier in file closest to
// pos. Line distance dominates column distance.
func (s *Store) FindNamedElementAt(ctx context.Context, file uri.URI, pos protocol.Position, identifier string) (types.NamedElementRef, error) {
	var found *Element
	err := s.read(ctx, "findNamedElementAt", func() error {
		s.mu.RLock()
		defer s.mu.RUnlock()

		doc, ok := s.docs[file]
		if !ok {
			return ErrNotFound
		}

		best := -1
		for _, el := range doc.elements {
			if el.name != identifier {
				continue
			}
			d := distance(el.rng.Start, pos)
			if best < 0 || d < best {
				best = d
				found = el
			}
		}
		if found == nil {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// FindNamedElement locates the first occurrence of identifier in file.
func (s *Store) FindNamedElement(ctx context.Context, file uri.URI, identifier string) (types.NamedElementRef, error) {
	var found *Element
	err := s.read(ctx, "findNamedElement", func() error {
		s.mu.RLock()
		defer s.mu.RUnlock()

		doc, ok := s.docs[file]
		if !ok {
			return ErrNotFound
		}
		for _, el := range doc.elements {
			if el.name == identifier {
				found = el
				return nil
			}
		}
		return ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// EnsureLoaded makes the file's content available for reads. Files the host
// has not opened are pulled from disk; failures surface as ErrNotFound
// wrapped with context.
func (s *Store) EnsureLoaded(ctx context.Context, file uri.URI) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	_, ok := s.docs[file]
	s.mu.RUnlock()
	if ok {
		return nil
	}

	data, err := os.ReadFile(file.Filename())
	if err != nil {
		return interrors.WrapWithContext("load document", err)
	}
	s.Open(file, string(data))
	return nil
}

// element narrows a NamedElementRef to this store's handle type.
func (s *Store) element(ref types.NamedElementRef) (*Element, error) {
	el, ok := ref.(*Element)
	if !ok || el == nil {
		return nil, interrors.NewValidationError("ref", "not a document element handle")
	}
	return el, nil
}

// positionAt converts a byte offset to a position using the line offset
// table. Character is a byte column.
func positionAt(lineOffsets []int, offset int) protocol.Position {
	line := sort.Search(len(lineOffsets), func(i int) bool {
		return lineOffsets[i] > offset
	}) - 1
	if line < 0 {
		line = 0
	}
	return protocol.Position{
		Line:      uint32(line),
		Character: uint32(offset - lineOffsets[line]),
	}
}

// scanLineOffsets returns the byte offset of every line start.
func scanLineOffsets(text string) []int {
	offsets := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			offsets = append(offsets, i+1)
		}
	}
	return offsets
}

// scanModuleHeader extracts the module name from a "module X.Y" header.
func scanModuleHeader(text string) string {
	m := moduleHeaderLine.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

// distance orders occurrences by closeness to a position; line distance
// dominates column distance.
func distance(a, b protocol.Position) int {
	dl := int(a.Line) - int(b.Line)
	if dl < 0 {
		dl = -dl
	}
	dc := int(a.Character) - int(b.Character)
	if dc < 0 {
		dc = -dc
	}
	return dl*10000 + dc
}
