package server

import (
	"context"
	"fmt"
	"sync"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"def-gateway/src/config"
	"def-gateway/src/internal/common"
	"def-gateway/src/internal/project"
	"def-gateway/src/internal/types"
	"def-gateway/src/server/cache"
	"def-gateway/src/server/documents"
	"def-gateway/src/server/repl"
	"def-gateway/src/server/resolve"
	"def-gateway/src/server/watcher"
)

// Gateway assembles the resolution stack over one workspace: document store,
// module index, analysis session, cache, invalidation, and file watching.
type Gateway struct {
	mu      sync.Mutex
	started bool

	cfg *config.Config

	docs        *documents.Store
	modules     *project.ModuleIndex
	sessions    *repl.SessionRegistry
	session     *repl.ProcessSession
	store       *cache.Store
	invalidator *cache.Invalidator
	resolver    *Resolver
	watch       *watcher.Watcher
}

// NewGateway wires the components from configuration. Nothing is running
// until Start.
func NewGateway(cfg *config.Config) *Gateway {
	docs := documents.NewStore(cfg.ReadBudget())
	modules := project.NewModuleIndex(cfg.Workspace.Root)
	sessions := repl.NewSessionRegistry()
	session := repl.NewProcessSession(cfg.Session.Command, cfg.Session.Args, cfg.Session.WorkingDir, cfg.Session.Prompt)

	store := cache.NewStore()
	invalidator := cache.NewInvalidator(store, docs)
	pipeline := resolve.NewPipeline(docs, sessions, modules)
	resolver := NewResolver(store, pipeline, docs, sessions, cfg.WaitCeiling(), cfg.PollInterval())
	watch := watcher.NewWatcher(docs, invalidator, modules, cfg.Workspace.Extensions, cfg.Debounce())

	return &Gateway{
		cfg:         cfg,
		docs:        docs,
		modules:     modules,
		sessions:    sessions,
		session:     session,
		store:       store,
		invalidator: invalidator,
		resolver:    resolver,
		watch:       watch,
	}
}

// Start launches the analysis session, scans the workspace into the module
// index, and begins watching for file changes.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.started {
		return fmt.Errorf("gateway already started")
	}

	startCtx, cancel := common.CreateContext(g.cfg.StartTimeout())
	defer cancel()
	if err := g.session.Start(startCtx); err != nil {
		return fmt.Errorf("failed to start analysis session: %w", err)
	}
	g.sessions.Register(g.cfg.Workspace.Root, g.session)

	g.docs.SetIndexing(true)
	go func() {
		defer g.docs.SetIndexing(false)
		if err := g.modules.ScanWorkspace(ctx, g.cfg.Workspace.Extensions); err != nil {
			common.ResolverLogger.Warn("Workspace scan incomplete: %v", err)
		}
	}()

	if err := g.watch.Start(); err != nil {
		g.sessions.Unregister(g.cfg.Workspace.Root)
		stopErr := g.session.Stop()
		if stopErr != nil {
			common.ResolverLogger.Warn("Session stop after failed start: %v", stopErr)
		}
		return fmt.Errorf("failed to start file watcher: %w", err)
	}

	g.started = true
	common.ResolverLogger.Info("Gateway started for workspace %s", g.cfg.Workspace.Root)
	return nil
}

// Stop tears the stack down in reverse order and drops every cache entry
// belonging to the workspace.
func (g *Gateway) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.started {
		return nil
	}
	g.started = false

	watchErr := g.watch.Stop()
	g.sessions.Unregister(g.cfg.Workspace.Root)
	sessionErr := g.session.Stop()

	dropped := g.invalidator.ProjectClosed(g.cfg.Workspace.Root)
	common.ResolverLogger.Info("Gateway stopped, %d cache entries dropped", dropped)

	if watchErr != nil {
		return watchErr
	}
	return sessionErr
}

// Resolver exposes the resolution entry point.
func (g *Gateway) Resolver() *Resolver {
	return g.resolver
}

// Cache exposes the definition cache for status inspection.
func (g *Gateway) Cache() *cache.Store {
	return g.store
}

// Session exposes the analysis session for status inspection.
func (g *Gateway) Session() repl.Session {
	return g.session
}

// ResolveAt resolves the identifier occurrence at a one-based line and
// column in the given file.
func (g *Gateway) ResolveAt(ctx context.Context, file uri.URI, line, col int, mode AccessMode) (types.Result, error) {
	if err := g.docs.EnsureLoaded(ctx, file); err != nil {
		return types.Result{}, fmt.Errorf("cannot load %s: %w", file.Filename(), err)
	}

	pos := protocol.Position{Line: uint32(line - 1), Character: uint32(col - 1)}
	ref, ok := g.docs.ElementAt(file, pos)
	if !ok {
		return types.NoInfoResult("", types.NoInfo{
			Kind:   types.NoInfoAvailable,
			File:   file.Filename(),
			Detail: "no identifier at position",
		}), nil
	}

	return g.resolver.Resolve(ctx, file, ref, mode)
}
