// Package server hosts the resolution entry point callers use: a
// thread-aware gate over the definition cache, the resolution pipeline, and
// the analysis session.
package server

import (
	"context"
	"time"

	"go.lsp.dev/uri"

	"def-gateway/src/internal/common"
	"def-gateway/src/internal/types"
	"def-gateway/src/server/cache"
	"def-gateway/src/server/documents"
	"def-gateway/src/server/repl"
	"def-gateway/src/server/resolve"
)

// AccessMode names the caller's scheduling context explicitly instead of
// inferring it from ambient thread identity.
type AccessMode int

const (
	// Foreground callers are latency-sensitive: they never wait on a
	// future and must return promptly.
	Foreground AccessMode = iota

	// Background callers tolerate a bounded wait on the coalesced future.
	Background
)

const (
	// DefaultWaitCeiling caps a background caller's wait on a future.
	DefaultWaitCeiling = 3 * time.Second

	// DefaultPollTick is the cancellation-check interval of the background
	// wait loop.
	DefaultPollTick = 50 * time.Millisecond
)

// Resolver is the single entry point for definition resolution.
type Resolver struct {
	store    *cache.Store
	pipeline *resolve.Pipeline
	docs     documents.Provider
	sessions repl.Registry

	waitCeiling time.Duration
	pollTick    time.Duration
}

// NewResolver wires the gate to its collaborators. Non-positive durations
// select the defaults.
func NewResolver(store *cache.Store, pipeline *resolve.Pipeline, docs documents.Provider, sessions repl.Registry, waitCeiling, pollTick time.Duration) *Resolver {
	if waitCeiling <= 0 {
		waitCeiling = DefaultWaitCeiling
	}
	if pollTick <= 0 {
		pollTick = DefaultPollTick
	}
	return &Resolver{
		store:       store,
		pipeline:    pipeline,
		docs:        docs,
		sessions:    sessions,
		waitCeiling: waitCeiling,
		pollTick:    pollTick,
	}
}

// Resolve maps a reference occurrence to its definition location. The error
// return is non-nil only for context cancellation; every resolution outcome
// is a Result. Each step is preceded by a cancellation checkpoint.
func (r *Resolver) Resolve(ctx context.Context, file uri.URI, ref types.NamedElementRef, mode AccessMode) (types.Result, error) {
	if err := ctx.Err(); err != nil {
		return types.Result{}, err
	}

	// Owning module is best-effort: an unknown module still resolves.
	module, _ := r.docs.ModuleName(ctx, file)

	if err := ctx.Err(); err != nil {
		return types.Result{}, err
	}
	key := types.Key{File: file, Module: module, Ref: ref}

	if err := ctx.Err(); err != nil {
		return types.Result{}, err
	}
	if mode == Foreground {
		return r.resolveForeground(ctx, key)
	}
	return r.resolveBackground(ctx, key)
}

// resolveForeground serves latency-sensitive callers: snapshot reads only,
// one inline pipeline round trip on a miss, and cache population handed off
// so the caller is never slowed by the write.
func (r *Resolver) resolveForeground(ctx context.Context, key types.Key) (types.Result, error) {
	if session, ok := r.sessions.SessionFor(key.File); ok && !session.IsLoaded() {
		return types.NoInfoResult("", types.NoInfo{
			Kind: types.ModuleNotLoaded,
			File: key.File.Filename(),
		}), nil
	}

	if hit, ok := r.store.GetIfPresent(key); ok {
		if hit.IsLocation() {
			return r.revalidated(ctx, key, hit), nil
		}
		// Cached failures are returned as-is; they need no revalidation.
		return hit, nil
	}

	result, err := r.pipeline.Compute(ctx, key)
	if err != nil {
		return types.Result{}, err
	}

	switch {
	case result.IsLocation():
		go r.store.Put(key, result)
	case result.IsTransient():
		r.store.Invalidate(key)
	}
	return result, nil
}

// resolveBackground joins the coalesced future for the key and waits with a
// short poll up to the ceiling. Reaching the ceiling gives up without
// cancelling the computation: it may still complete for later callers.
func (r *Resolver) resolveBackground(ctx context.Context, key types.Key) (types.Result, error) {
	future := r.store.Get(key, func(loadCtx context.Context) (types.Result, error) {
		return r.pipeline.Compute(loadCtx, key)
	})

	deadline := time.Now().Add(r.waitCeiling)
	ticker := time.NewTicker(r.pollTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return types.Result{}, ctx.Err()
		case <-future.Done():
			return r.finish(ctx, key, future.Result()), nil
		case <-ticker.C:
			if err := ctx.Err(); err != nil {
				return types.Result{}, err
			}
			if time.Now().After(deadline) {
				common.ResolverLogger.Debug("Background wait ceiling reached for %s", key.File)
				return types.NoInfoResult("", types.NoInfo{
					Kind: types.ReplNotAvailable,
					File: key.File.Filename(),
				}), nil
			}
		}
	}
}

// finish applies the shared post-read rules: successes are revalidated,
// transient failures are purged from the store.
func (r *Resolver) finish(ctx context.Context, key types.Key, result types.Result) types.Result {
	if result.IsLocation() {
		return r.revalidated(ctx, key, result)
	}
	if result.IsTransient() {
		r.store.Invalidate(key)
	}
	return result
}

// revalidated confirms a cached success is still live: the target element
// must be valid and still spell the name recorded at resolution time. A
// stale or unreadable target evicts the entry. Failures during the
// revalidation read count as stale rather than guessed around.
func (r *Resolver) revalidated(ctx context.Context, key types.Key, result types.Result) types.Result {
	loc := result.Location

	valid, err := r.docs.IsValid(ctx, loc.Element)
	if err == nil && valid {
		var name string
		name, err = r.docs.Name(ctx, loc.Element)
		if err == nil && name == loc.Name {
			return result
		}
	}
	if err != nil {
		common.ResolverLogger.Debug("Revalidation failed for %s, evicting: %v", loc.Name, err)
	}

	r.store.Invalidate(key)
	return types.NoInfoResult(result.Identifier, types.NoInfo{
		Kind:   types.NoInfoAvailable,
		File:   key.File.Filename(),
		Detail: "cached definition is stale",
	})
}
