// Package project maintains workspace-level metadata: the map from dotted
// module names to the files defining them.
package project

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"go.lsp.dev/uri"

	"def-gateway/src/internal/common"
	"def-gateway/src/utils"
)

var moduleDecl = regexp.MustCompile(`(?m)^module\s+([A-Za-z][A-Za-z0-9_.']*)`)

// ModuleIndex answers "which file defines module X.Y" with a definitive
// found / not-found. Safe for concurrent use.
type ModuleIndex struct {
	mu     sync.RWMutex
	root   string
	byName map[string]uri.URI
	byFile map[uri.URI]string
}

// NewModuleIndex creates an empty index rooted at the workspace directory.
func NewModuleIndex(root string) *ModuleIndex {
	return &ModuleIndex{
		root:   filepath.Clean(root),
		byName: make(map[string]uri.URI),
		byFile: make(map[uri.URI]string),
	}
}

// Root returns the workspace root directory.
func (ix *ModuleIndex) Root() string {
	return ix.root
}

// Register records that file defines the named module, replacing any
// previous mapping for either side.
func (ix *ModuleIndex) Register(name string, file uri.URI) {
	if name == "" {
		return
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if old, ok := ix.byFile[file]; ok {
		delete(ix.byName, old)
	}
	ix.byName[name] = file
	ix.byFile[file] = name
}

// Lookup returns the file defining the named module. The false return is a
// definitive not-found, not a transient condition.
func (ix *ModuleIndex) Lookup(name string) (uri.URI, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	file, ok := ix.byName[name]
	return file, ok
}

// Forget drops any mapping involving file.
func (ix *ModuleIndex) Forget(file uri.URI) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if name, ok := ix.byFile[file]; ok {
		delete(ix.byName, name)
		delete(ix.byFile, file)
	}
}

// ScanWorkspace walks the root directory and registers every file whose
// extension matches and whose text carries a module header. Respects ctx
// cancellation between files.
func (ix *ModuleIndex) ScanWorkspace(ctx context.Context, extensions []string) error {
	return filepath.WalkDir(ix.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			name := d.Name()
			if name != "." && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !matchesExtension(path, extensions) {
			return nil
		}

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			common.ResolverLogger.Warn("Skipping unreadable file %s: %v", path, readErr)
			return nil
		}
		if m := moduleDecl.FindSubmatch(data); m != nil {
			ix.Register(string(m[1]), utils.FilePathToURI(path))
		}
		return nil
	})
}

func matchesExtension(path string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range extensions {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}
