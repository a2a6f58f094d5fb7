package cache

import (
	"context"

	"go.lsp.dev/uri"
	"golang.org/x/sync/errgroup"

	"def-gateway/src/internal/common"
	"def-gateway/src/internal/types"
	"def-gateway/src/server/documents"
	"def-gateway/src/utils"
)

// Invalidator removes cache entries whose key or resolved target is no
// longer valid. All removal predicates work on store snapshots and bounded
// provider reads; the host's live state is never mutated during a scan.
type Invalidator struct {
	store *Store
	docs  documents.Provider
}

// NewInvalidator wires the invalidation engine to the store and the
// document provider used for revalidation reads.
func NewInvalidator(store *Store, docs documents.Provider) *Invalidator {
	return &Invalidator{
		store: store,
		docs:  docs,
	}
}

// InvalidateRefs removes every entry keyed by one of the given reference
// handles. Used when the host reports a batch of upstream invalidations.
func (iv *Invalidator) InvalidateRefs(refs []types.NamedElementRef) int {
	if len(refs) == 0 {
		return 0
	}

	stale := make(map[uint64]struct{}, len(refs))
	for _, ref := range refs {
		if ref != nil {
			stale[ref.RefID()] = struct{}{}
		}
	}

	removed := iv.store.InvalidateMatching(func(e Entry) bool {
		if e.Key.Ref == nil {
			return false
		}
		_, ok := stale[e.Key.Ref.RefID()]
		return ok
	})
	if removed > 0 {
		common.CacheLogger.Debug("Removed %d entries for %d invalidated refs", removed, len(refs))
	}
	return removed
}

// FileChanged rescans the cache after an edit to file: once for entries
// keyed by the file (forward) and once for entries whose resolved target
// lives in it (backward). The two scans share one snapshot and run
// concurrently.
func (iv *Invalidator) FileChanged(ctx context.Context, file uri.URI) error {
	snapshot := iv.store.Snapshot()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return iv.scanForward(ctx, snapshot, file) })
	g.Go(func() error { return iv.scanBackward(ctx, snapshot, file) })
	return g.Wait()
}

// scanForward drops entries keyed by the changed file unless the key's
// reference is still valid under its recorded name. Stored failures are
// never trusted across an edit.
func (iv *Invalidator) scanForward(ctx context.Context, snapshot []Entry, file uri.URI) error {
	for _, e := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.Key.File != file {
			continue
		}
		if e.Result.IsNoInfo() {
			iv.store.Invalidate(e.Key)
			continue
		}
		if !iv.refStillCurrent(ctx, e.Key.Ref, e.Result.Identifier) {
			iv.store.Invalidate(e.Key)
		}
	}
	return nil
}

// scanBackward drops successful entries whose resolved element lives in the
// changed file and no longer carries the name recorded at resolution time.
func (iv *Invalidator) scanBackward(ctx context.Context, snapshot []Entry, file uri.URI) error {
	for _, e := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		loc := e.Result.Location
		if loc == nil || loc.Kind != types.LocalModuleLocation || loc.File != file {
			continue
		}
		if !iv.refStillCurrent(ctx, loc.Element, loc.Name) {
			iv.store.Invalidate(e.Key)
		}
	}
	return nil
}

// refStillCurrent reports whether ref is still valid and still spells
// wantName. Any failure during the revalidation read counts as stale: evict
// and log rather than guess.
func (iv *Invalidator) refStillCurrent(ctx context.Context, ref types.NamedElementRef, wantName string) bool {
	if ref == nil {
		return false
	}

	valid, err := iv.docs.IsValid(ctx, ref)
	if err != nil {
		common.CacheLogger.Debug("Revalidation read failed, evicting: %v", err)
		return false
	}
	if !valid {
		return false
	}

	name, err := iv.docs.Name(ctx, ref)
	if err != nil {
		common.CacheLogger.Debug("Revalidation name read failed, evicting: %v", err)
		return false
	}
	return name == wantName
}

// ProjectClosed removes every entry whose key file or resolved local target
// belongs to the closed project.
func (iv *Invalidator) ProjectClosed(root string) int {
	removed := iv.store.InvalidateMatching(func(e Entry) bool {
		if utils.IsUnderRoot(e.Key.File, root) {
			return true
		}
		loc := e.Result.Location
		return loc != nil && loc.Kind == types.LocalModuleLocation && utils.IsUnderRoot(loc.File, root)
	})
	if removed > 0 {
		common.CacheLogger.Info("Project closed, removed %d entries under %s", removed, root)
	}
	return removed
}
