package serve

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// canonicalizePath resolves symlinks and normalises path. Both the served
// root and every per-request path are run through this same function so
// that prefix comparison in isWithinRoot compares like with like - the
// original implementation compared a canonicalised root against a
// merely-joined, non-canonicalised request path, which let a symlinked
// path segment escape the served root.
func canonicalizePath(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to resolve %q", path)
	}
	return filepath.Clean(resolved), nil
}

// isWithinRoot reports whether candidate is root itself or a descendant of
// it. Both arguments must already be canonicalised.
func isWithinRoot(candidate, root string) bool {
	if candidate == root {
		return true
	}
	return strings.HasPrefix(candidate, root+string(filepath.Separator))
}
