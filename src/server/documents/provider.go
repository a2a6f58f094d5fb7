package documents

import (
	"context"
	"errors"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"def-gateway/src/internal/types"
)

// ErrIndexNotReady is returned by bounded reads while the host-side index is
// still being built.
var ErrIndexNotReady = errors.New("index not ready")

// ErrNotFound is returned when a document or element lookup has a definitive
// negative answer.
var ErrNotFound = errors.New("not found")

// Provider is the source file / syntax tree collaborator contract. Every
// read is bounded by the provider's read budget and aborts when ctx is
// cancelled; a blown budget surfaces as *errors.TimeoutError.
type Provider interface {
	// PositionAt converts a byte offset in the file to a zero-based position.
	PositionAt(ctx context.Context, file uri.URI, offset int) (protocol.Position, error)

	// ModuleName returns the file's module name if known.
	ModuleName(ctx context.Context, file uri.URI) (string, bool)

	// IsValid reports whether the occurrence handle still belongs to a live
	// document snapshot.
	IsValid(ctx context.Context, ref types.NamedElementRef) (bool, error)

	// Name returns the occurrence's current identifier text.
	Name(ctx context.Context, ref types.NamedElementRef) (string, error)

	// Span returns the occurrence's current range in its owning file.
	Span(ctx context.Context, ref types.NamedElementRef) (protocol.Range, error)

	// FindNamedElementAt locates the occurrence of identifier in file closest
	// to the given zero-based position. ErrNotFound when absent.
	FindNamedElementAt(ctx context.Context, file uri.URI, pos protocol.Position, identifier string) (types.NamedElementRef, error)

	// FindNamedElement locates the first occurrence of identifier in file.
	// ErrNotFound when absent.
	FindNamedElement(ctx context.Context, file uri.URI, identifier string) (types.NamedElementRef, error)

	// EnsureLoaded makes the file's content available for reads, pulling it
	// from disk when the host has no snapshot open yet.
	EnsureLoaded(ctx context.Context, file uri.URI) error
}
