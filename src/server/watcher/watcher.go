// Package watcher bridges filesystem change notifications into cache
// invalidation and document refresh.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"def-gateway/src/internal/common"
	"def-gateway/src/internal/project"
	"def-gateway/src/internal/types"
	"def-gateway/src/server/cache"
	"def-gateway/src/server/documents"
	"def-gateway/src/utils"
)

// DefaultDebounce coalesces editor save bursts into a single invalidation
// pass per file.
const DefaultDebounce = 200 * time.Millisecond

// Watcher observes source files under a workspace root and drives the
// invalidation engine when they change on disk.
type Watcher struct {
	mu      sync.Mutex
	fs      *fsnotify.Watcher
	started bool

	docs        *documents.Store
	invalidator *cache.Invalidator
	modules     *project.ModuleIndex
	extensions  []string
	debounce    time.Duration

	pending map[string]*time.Timer
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewWatcher builds a watcher over the given collaborators. A non-positive
// debounce selects the default.
func NewWatcher(docs *documents.Store, invalidator *cache.Invalidator, modules *project.ModuleIndex, extensions []string, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		docs:        docs,
		invalidator: invalidator,
		modules:     modules,
		extensions:  extensions,
		debounce:    debounce,
		pending:     make(map[string]*time.Timer),
	}
}

// Start begins watching every directory under the module index root.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return nil
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	root := w.modules.Root()
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return fs.Add(path)
		}
		return nil
	})
	if err != nil {
		fs.Close()
		return err
	}

	w.fs = fs
	w.done = make(chan struct{})
	w.started = true
	w.wg.Add(1)
	go w.run()

	common.ResolverLogger.Info("File watcher started for %s", root)
	return nil
}

// Stop shuts the watcher down and cancels pending debounce timers.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = false
	close(w.done)
	fs := w.fs
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()

	err := fs.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			common.ResolverLogger.Warn("File watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.fs.Add(event.Name); err != nil {
				common.ResolverLogger.Warn("Cannot watch new directory %s: %v", event.Name, err)
			}
			return
		}
	}

	if !matchesExtension(event.Name, w.extensions) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	removed := event.Op&(fsnotify.Remove|fsnotify.Rename) != 0
	w.schedule(event.Name, removed)
}

// schedule arms (or re-arms) the per-file debounce timer.
func (w *Watcher) schedule(path string, removed bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return
	}
	if timer, ok := w.pending[path]; ok {
		timer.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		alive := w.started
		w.mu.Unlock()
		if alive {
			w.fire(path, removed)
		}
	})
}

// fire applies one settled filesystem change: refresh the document snapshot,
// drop handles the edit orphaned, then run the forward and backward scans.
func (w *Watcher) fire(path string, removed bool) {
	ctx := context.Background()
	file := utils.FilePathToURI(path)

	var orphaned []types.NamedElementRef
	if removed {
		orphaned = w.docs.Close(file)
		w.modules.Forget(file)
	} else {
		content, err := os.ReadFile(path)
		if err != nil {
			// Gone between the event and the read; treat as removed.
			orphaned = w.docs.Close(file)
			w.modules.Forget(file)
		} else {
			orphaned = w.docs.Update(file, string(content))
			if name, ok := w.docs.ModuleName(ctx, file); ok {
				w.modules.Register(name, file)
			}
		}
	}

	if n := w.invalidator.InvalidateRefs(orphaned); n > 0 {
		common.CacheLogger.Debug("Dropped %d entries for stale handles in %s", n, path)
	}
	if err := w.invalidator.FileChanged(ctx, file); err != nil {
		common.CacheLogger.Warn("Invalidation scan for %s aborted: %v", path, err)
	}
}

func matchesExtension(path string, extensions []string) bool {
	ext := filepath.Ext(path)
	for _, want := range extensions {
		if strings.EqualFold(ext, want) {
			return true
		}
	}
	return false
}
