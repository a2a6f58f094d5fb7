package repl

import (
	"sync"

	"go.lsp.dev/uri"

	"def-gateway/src/utils"
)

// SessionRegistry routes files to the per-project session by workspace root
// prefix. Safe for concurrent use.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]Session // workspace root -> session
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]Session),
	}
}

// Register binds a session to a workspace root, replacing any previous one.
func (r *SessionRegistry) Register(root string, session Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[root] = session
}

// Unregister removes the session bound to root.
func (r *SessionRegistry) Unregister(root string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, root)
}

// SessionFor returns the session whose workspace root contains file.
func (r *SessionRegistry) SessionFor(file uri.URI) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for root, session := range r.sessions {
		if utils.IsUnderRoot(file, root) {
			return session, true
		}
	}
	return nil, false
}
