// Package repl talks to the long-lived external analysis process that
// answers "where is this symbol defined" queries, one request at a time.
package repl

import (
	"context"

	"go.lsp.dev/uri"
)

// Response carries one reply from the analysis session with separated
// output streams. Any error-stream output means the answer cannot be
// trusted.
type Response struct {
	Stdout []string
	Stderr []string
}

// LocationQuery is one definition lookup request. Lines and columns are
// 1-based, matching the external process's convention.
type LocationQuery struct {
	Module     string // containing module name, "" when unknown
	File       uri.URI
	StartLine  int
	StartCol   int
	EndLine    int
	EndCol     int
	Identifier string
}

// Session is the single stateful external process for a project. It is a
// shared, non-reentrant resource: when busy, callers must fail fast instead
// of queueing.
type Session interface {
	// IsBusy reports whether the session is mid-request right now.
	IsBusy() bool

	// IsLoaded reports whether the session has finished loading the modules
	// it needs to answer queries.
	IsLoaded() bool

	// FindLocationInfo issues one location query and returns the raw reply.
	FindLocationInfo(ctx context.Context, query LocationQuery) (*Response, error)
}

// Registry maps a file to its zero-or-one active session.
type Registry interface {
	SessionFor(file uri.URI) (Session, bool)
}
