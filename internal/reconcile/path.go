package reconcile

import (
	"fmt"
	"path/filepath"
	"strings"
)

// normalizer canonicalizes paths for identity comparison.
type normalizer struct {
	caseInsensitive bool
}

// normalize converts native separators to forward slashes, strips all
// trailing separators and, under the case-insensitive policy, case-folds
// the whole string.
func (n normalizer) normalize(p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	p = filepath.ToSlash(p)

	for len(p) > 1 && strings.HasSuffix(p, "/") {
		p = p[:len(p)-1]
	}

	if n.caseInsensitive {
		p = strings.ToLower(p)
	}

	return p
}

// isUnder reports whether p is normalize(dir) itself or lies under it.
func (n normalizer) isUnder(dir, p string) bool {
	nd := n.normalize(dir)
	np := n.normalize(p)

	if nd == np {
		return true
	}

	return strings.HasPrefix(np, nd+"/")
}

// relative decomposes p as root/rel with filepath.Rel on the paths as
// given (no case folding), returning rel in slash form.
func (n normalizer) relative(root, p string) (string, error) {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return "", fmt.Errorf("reconcile: failed to compute relative path: %q -> %q (%w)", root, p, err)
	}

	return filepath.ToSlash(rel), nil
}

// join rebuilds a destination-relative path against a new root, matching
// the relative(root, p) + dstRoot/rel idiom used throughout the driver.
func join(root, rel string) string {
	return filepath.Join(root, filepath.FromSlash(rel))
}
