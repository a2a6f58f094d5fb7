package types

import (
	"fmt"

	"go.lsp.dev/uri"
)

// NamedElementRef is an opaque handle to one identifier occurrence inside a
// live syntax tree snapshot. Equality is handle identity: two occurrences
// with the same text are distinct refs. Implementations must be comparable
// (pointer types), so refs can serve as map-key components.
type NamedElementRef interface {
	// RefID returns a process-unique identity for this occurrence handle.
	RefID() uint64
}

// Key identifies one resolution request. Keys are immutable once built; a
// Key goes logically stale when its Ref or File is invalidated by the host
// editor.
type Key struct {
	File   uri.URI
	Module string // containing module name, "" when unknown
	Ref    NamedElementRef
}

// NoInfoKind enumerates the closed taxonomy of resolution-failure reasons.
type NoInfoKind int

const (
	// NoInfoAvailable means the lookup ran but found nothing, or the input
	// reference was invalid. Definitive: safe to cache.
	NoInfoAvailable NoInfoKind = iota

	// ModuleNotLoaded means the prerequisite module/session is not ready yet.
	ModuleNotLoaded

	// ReplIsBusy means the external analysis session is mid-request.
	ReplIsBusy

	// ReplNotAvailable means no analysis session exists for the file, or the
	// session answered on its error stream.
	ReplNotAvailable

	// ReadActionTimeout means a bounded read against the live syntax tree
	// exceeded its budget.
	ReadActionTimeout

	// IndexNotReady means host-side indexing is still in progress.
	IndexNotReady
)

var noInfoKindNames = map[NoInfoKind]string{
	NoInfoAvailable:   "NoInfoAvailable",
	ModuleNotLoaded:   "ModuleNotLoaded",
	ReplIsBusy:        "ReplIsBusy",
	ReplNotAvailable:  "ReplNotAvailable",
	ReadActionTimeout: "ReadActionTimeout",
	IndexNotReady:     "IndexNotReady",
}

func (k NoInfoKind) String() string {
	if name, ok := noInfoKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("NoInfoKind(%d)", int(k))
}

// NoInfo is a first-class resolution-failure value. It is not an error:
// failures drive caching policy, they never propagate as exceptions.
type NoInfo struct {
	Kind   NoInfoKind
	File   string // file name the failure refers to, "" when not applicable
	Detail string // free-form diagnostic detail, "" when not applicable
}

// Transient reports whether this failure must never be persisted in the
// cache. Transient outcomes are retry signals: the next access recomputes.
func (n NoInfo) Transient() bool {
	switch n.Kind {
	case ReplIsBusy, ReplNotAvailable, ReadActionTimeout, IndexNotReady:
		return true
	default:
		return false
	}
}

func (n NoInfo) String() string {
	switch {
	case n.File != "" && n.Detail != "":
		return fmt.Sprintf("%s(%s: %s)", n.Kind, n.File, n.Detail)
	case n.File != "":
		return fmt.Sprintf("%s(%s)", n.Kind, n.File)
	case n.Detail != "":
		return fmt.Sprintf("%s(%s)", n.Kind, n.Detail)
	default:
		return n.Kind.String()
	}
}

// LocationKind tags the DefinitionLocation union.
type LocationKind int

const (
	// LocalModuleLocation targets a file belonging to the current workspace.
	LocalModuleLocation LocationKind = iota

	// PackageModuleLocation targets an external module known only by name.
	PackageModuleLocation
)

// DefinitionLocation is the resolved target of a reference. Exactly one of
// File / ModuleName carries the target identity, selected by Kind. Element
// is the resolved occurrence; its validity is checked lazily at read time,
// never assumed from cache age.
type DefinitionLocation struct {
	Kind       LocationKind
	File       uri.URI // LocalModuleLocation only
	ModuleName string  // PackageModuleLocation only
	Element    NamedElementRef
	Name       string // identifier text recorded at resolution time
}

// NewLocalModuleLocation builds an in-workspace definition location.
func NewLocalModuleLocation(file uri.URI, element NamedElementRef, name string) DefinitionLocation {
	return DefinitionLocation{
		Kind:    LocalModuleLocation,
		File:    file,
		Element: element,
		Name:    name,
	}
}

// NewPackageModuleLocation builds an external-module definition location.
func NewPackageModuleLocation(moduleName string, element NamedElementRef, name string) DefinitionLocation {
	return DefinitionLocation{
		Kind:       PackageModuleLocation,
		ModuleName: moduleName,
		Element:    element,
		Name:       name,
	}
}

// Result is the Either of a resolution: exactly one of Location / NoInfo is
// populated. Identifier records the reference's text at computation time,
// used later to detect renames during invalidation scans.
type Result struct {
	Location   *DefinitionLocation
	NoInfo     *NoInfo
	Identifier string
}

// LocationResult wraps a successful definition location.
func LocationResult(identifier string, loc DefinitionLocation) Result {
	return Result{Location: &loc, Identifier: identifier}
}

// NoInfoResult wraps a resolution failure.
func NoInfoResult(identifier string, info NoInfo) Result {
	return Result{NoInfo: &info, Identifier: identifier}
}

// IsLocation reports whether the result carries a definition location.
func (r Result) IsLocation() bool {
	return r.Location != nil
}

// IsNoInfo reports whether the result carries a failure value.
func (r Result) IsNoInfo() bool {
	return r.NoInfo != nil
}

// IsTransient reports whether the result is a never-cache retry signal.
func (r Result) IsTransient() bool {
	return r.NoInfo != nil && r.NoInfo.Transient()
}

func (r Result) String() string {
	switch {
	case r.Location != nil && r.Location.Kind == LocalModuleLocation:
		return fmt.Sprintf("LocalModuleLocation(%s, %s)", r.Location.File, r.Location.Name)
	case r.Location != nil:
		return fmt.Sprintf("PackageModuleLocation(%s, %s)", r.Location.ModuleName, r.Location.Name)
	case r.NoInfo != nil:
		return r.NoInfo.String()
	default:
		return "Result(empty)"
	}
}
