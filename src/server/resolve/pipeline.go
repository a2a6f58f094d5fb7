package resolve

import (
	"context"
	"errors"
	"unicode"
	"unicode/utf8"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"def-gateway/src/internal/common"
	interrors "def-gateway/src/internal/errors"
	"def-gateway/src/internal/types"
	"def-gateway/src/server/documents"
	"def-gateway/src/server/repl"
	"def-gateway/src/utils"
)

// ModuleLookup resolves a dotted module name to the file defining it.
type ModuleLookup interface {
	Lookup(name string) (uri.URI, bool)
}

// Pipeline computes a Result for a Key on a cache miss. It never mutates
// caller state: its only side effects are one session request and bounded
// reads against document snapshots.
type Pipeline struct {
	docs     documents.Provider
	sessions repl.Registry
	modules  ModuleLookup
}

// NewPipeline wires the pipeline to its collaborators.
func NewPipeline(docs documents.Provider, sessions repl.Registry, modules ModuleLookup) *Pipeline {
	return &Pipeline{
		docs:     docs,
		sessions: sessions,
		modules:  modules,
	}
}

// Compute resolves key from scratch. The returned error is non-nil only for
// context cancellation, which must propagate untouched rather than become a
// cached value; every other outcome is a Result.
func (p *Pipeline) Compute(ctx context.Context, key types.Key) (types.Result, error) {
	fileName := key.File.Filename()

	// Step 1: the reference must still be live in its syntax tree.
	valid, err := p.docs.IsValid(ctx, key.Ref)
	if err != nil {
		return p.readFailure("", fileName, err)
	}
	if !valid {
		return types.NoInfoResult("", types.NoInfo{
			Kind:   types.NoInfoAvailable,
			File:   fileName,
			Detail: "reference is no longer valid",
		}), nil
	}

	identifier, err := p.docs.Name(ctx, key.Ref)
	if err != nil {
		return p.readFailure("", fileName, err)
	}

	// Step 2/3: build the 1-based request span. Type-level references
	// (upper-case initial) need the end column shifted back by one to match
	// the session's column convention for those forms.
	rng, err := p.docs.Span(ctx, key.Ref)
	if err != nil {
		return p.readFailure(identifier, fileName, err)
	}

	query := repl.LocationQuery{
		Module:     key.Module,
		File:       key.File,
		StartLine:  int(rng.Start.Line) + 1,
		StartCol:   int(rng.Start.Character) + 1,
		EndLine:    int(rng.End.Line) + 1,
		EndCol:     int(rng.End.Character) + 1,
		Identifier: identifier,
	}
	if isTypeLevel(identifier) {
		query.EndCol--
	}

	// Step 4: fail fast on a missing or busy session; never queue.
	session, ok := p.sessions.SessionFor(key.File)
	if !ok {
		return types.NoInfoResult(identifier, types.NoInfo{Kind: types.ReplNotAvailable, File: fileName}), nil
	}
	if session.IsBusy() {
		return types.NoInfoResult(identifier, types.NoInfo{Kind: types.ReplIsBusy}), nil
	}

	response, err := session.FindLocationInfo(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return types.Result{}, ctx.Err()
		}
		if errors.Is(err, repl.ErrSessionBusy) {
			return types.NoInfoResult(identifier, types.NoInfo{Kind: types.ReplIsBusy}), nil
		}
		common.ResolverLogger.Warn("Session request failed for %s: %v", identifier, err)
		return types.NoInfoResult(identifier, types.NoInfo{Kind: types.ReplNotAvailable, File: fileName}), nil
	}
	if len(response.Stderr) > 0 {
		common.ResolverLogger.Debug("Session answered on stderr for %s: %s", identifier, response.Stderr[0])
		return types.NoInfoResult(identifier, types.NoInfo{Kind: types.ReplNotAvailable, File: fileName}), nil
	}

	// Step 5: decode the first output line.
	if len(response.Stdout) == 0 {
		return types.NoInfoResult(identifier, types.NoInfo{
			Kind:   types.NoInfoAvailable,
			File:   fileName,
			Detail: "empty session reply",
		}), nil
	}

	parsed := ParseResponseLine(response.Stdout[0])
	switch parsed.Kind {
	case ParsedLocal:
		return p.resolveLocal(ctx, identifier, parsed)
	case ParsedPackage:
		return p.resolvePackage(ctx, identifier, fileName, parsed)
	default:
		return types.NoInfoResult(identifier, types.NoInfo{
			Kind:   types.NoInfoAvailable,
			File:   fileName,
			Detail: "unrecognized reply: " + response.Stdout[0],
		}), nil
	}
}

// resolveLocal turns a path:(l,c)-(l,c) reply into a LocalModuleLocation by
// locating the identifier occurrence closest to the reported position.
func (p *Pipeline) resolveLocal(ctx context.Context, identifier string, parsed ParsedLine) (types.Result, error) {
	target := utils.FilePathToURI(parsed.Path)
	if err := p.docs.EnsureLoaded(ctx, target); err != nil {
		return p.readFailure(identifier, parsed.Path, err)
	}

	pos := protocol.Position{
		Line:      uint32(parsed.StartLine - 1),
		Character: uint32(parsed.StartCol - 1),
	}
	element, err := p.docs.FindNamedElementAt(ctx, target, pos, identifier)
	if err != nil {
		if errors.Is(err, documents.ErrNotFound) {
			return types.NoInfoResult(identifier, types.NoInfo{
				Kind:   types.NoInfoAvailable,
				File:   parsed.Path,
				Detail: "no matching occurrence at reported location",
			}), nil
		}
		return p.readFailure(identifier, parsed.Path, err)
	}

	return types.LocationResult(identifier,
		types.NewLocalModuleLocation(target, element, identifier)), nil
}

// resolvePackage turns a pkg:Dotted.Module reply into a
// PackageModuleLocation via the module-name index.
func (p *Pipeline) resolvePackage(ctx context.Context, identifier, fileName string, parsed ParsedLine) (types.Result, error) {
	target, ok := p.modules.Lookup(parsed.Module)
	if !ok {
		return types.NoInfoResult(identifier, types.NoInfo{
			Kind:   types.NoInfoAvailable,
			File:   fileName,
			Detail: "module not indexed: " + parsed.Module,
		}), nil
	}
	if err := p.docs.EnsureLoaded(ctx, target); err != nil {
		return p.readFailure(identifier, parsed.Module, err)
	}

	element, err := p.docs.FindNamedElement(ctx, target, identifier)
	if err != nil {
		if errors.Is(err, documents.ErrNotFound) {
			return types.NoInfoResult(identifier, types.NoInfo{
				Kind:   types.NoInfoAvailable,
				File:   parsed.Module,
				Detail: "identifier not found in module",
			}), nil
		}
		return p.readFailure(identifier, parsed.Module, err)
	}

	return types.LocationResult(identifier,
		types.NewPackageModuleLocation(parsed.Module, element, identifier)), nil
}

// readFailure maps a bounded-read error to the matching NoInfo value.
// Cancellation propagates as a Go error, everything else becomes a Result.
func (p *Pipeline) readFailure(identifier, fileName string, err error) (types.Result, error) {
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return types.Result{}, err
	case errors.Is(err, documents.ErrIndexNotReady):
		return types.NoInfoResult(identifier, types.NoInfo{Kind: types.IndexNotReady, File: fileName}), nil
	case interrors.IsTimeoutError(err):
		return types.NoInfoResult(identifier, types.NoInfo{
			Kind:   types.ReadActionTimeout,
			File:   fileName,
			Detail: err.Error(),
		}), nil
	default:
		return types.NoInfoResult(identifier, types.NoInfo{
			Kind:   types.NoInfoAvailable,
			File:   fileName,
			Detail: err.Error(),
		}), nil
	}
}

// isTypeLevel reports whether the identifier names a type/class-level form.
func isTypeLevel(identifier string) bool {
	r, _ := utf8.DecodeRuneInString(identifier)
	return unicode.IsUpper(r)
}
