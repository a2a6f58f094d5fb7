package utils

import (
	"path/filepath"
	"strings"

	"go.lsp.dev/uri"
)

// FilePathToURI converts a file system path to a file:// URI
func FilePathToURI(path string) uri.URI {
	return uri.File(filepath.Clean(path))
}

// URIToFilePath converts a file:// URI to a file system path
func URIToFilePath(u uri.URI) string {
	return u.Filename()
}

// IsUnderRoot reports whether the URI's file path is inside the given
// directory root.
func IsUnderRoot(u uri.URI, root string) bool {
	if root == "" {
		return false
	}

	rel, err := filepath.Rel(filepath.Clean(root), u.Filename())
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}
