package fsutil

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/zhuguadundan/videowhisper/errors"
)

// IsWithin reports whether candidate, fully resolved (symlinks expanded on
// the deepest existing ancestor), lives under root. Every filesystem write
// the pipeline performs must pass this check against the configured roots.
func IsWithin(root, candidate string) bool {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	rootResolved, err := resolveExisting(rootAbs)
	if err != nil {
		return false
	}
	candAbs, err := filepath.Abs(candidate)
	if err != nil {
		return false
	}
	candResolved, err := resolveExisting(candAbs)
	if err != nil {
		return false
	}

	rel, err := filepath.Rel(rootResolved, candResolved)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// SafeJoin joins parts under root and fails with path_escape when the result
// leaves root. Relative parts must not carry backslashes (Windows-style
// separators are never accepted from clients).
func SafeJoin(root string, parts ...string) (string, error) {
	for _, p := range parts {
		if strings.Contains(p, "\\") {
			return "", errors.E(errors.KindPathEscape, "path contains backslash", nil)
		}
	}
	joined := filepath.Join(append([]string{root}, parts...)...)
	if !IsWithin(root, joined) {
		return "", errors.Ef(errors.KindPathEscape, nil, "path escapes %s", filepath.Base(root))
	}
	return joined, nil
}

// EnsureDir creates dir (and parents) if missing.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// resolveExisting resolves symlinks for the deepest existing ancestor of
// path and re-appends the not-yet-existing remainder, so containment checks
// work for paths about to be created.
func resolveExisting(path string) (string, error) {
	suffix := ""
	cur := path
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			return filepath.Join(resolved, suffix), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", err
		}
		suffix = filepath.Join(filepath.Base(cur), suffix)
		cur = parent
	}
}
