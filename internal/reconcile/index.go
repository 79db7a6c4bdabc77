package reconcile

import (
	"sort"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// destinationIndex is the multimap fingerprint -> destination paths used by
// the move detector. It is built once at run start (strong-hash mode
// only) and thereafter mutated exclusively by the driver, which is
// single-threaded — but it is built on a concurrency-safe map type so a
// future concurrent reader (a progress reporter, say) never forces a
// redesign of this type.
type destinationIndex struct {
	byFingerprint *xsync.MapOf[string, []string]
	bySize        *xsync.MapOf[int64, []string] // diagnostics only (filled under either hash mode); never affects move/overwrite decisions

	mu sync.Mutex // guards the append-to-slice read/modify/write on both maps
}

func newDestinationIndex() *destinationIndex {
	return &destinationIndex{
		byFingerprint: xsync.NewMapOf[string, []string](),
		bySize:        xsync.NewMapOf[int64, []string](),
	}
}

// insert records fp -> path. Absent fingerprints (empty string) are never
// indexed.
func (idx *destinationIndex) insert(fp, path string) {
	if fp == "" {
		return
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	cur, _ := idx.byFingerprint.Load(fp)
	idx.byFingerprint.Store(fp, append(cur, path))
}

// insertSize records size -> path in the diagnostic size-keyed index.
func (idx *destinationIndex) insertSize(size int64, path string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	cur, _ := idx.bySize.Load(size)
	idx.bySize.Store(size, append(cur, path))
}

// find returns the (snapshot) slice of destination paths currently mapped
// from fp, in insertion order.
func (idx *destinationIndex) find(fp string) []string {
	paths, _ := idx.byFingerprint.Load(fp)

	out := make([]string, len(paths))
	copy(out, paths)

	return out
}

// sizeCount reports how many destination entries share the given size.
// It is diagnostic only (surfaced at debug log level) and never
// participates in a move or overwrite decision: the move detector is
// disabled under fast hashing, and the fast-mode overwrite rule is
// mtime-only.
func (idx *destinationIndex) sizeCount(size int64) int {
	paths, _ := idx.bySize.Load(size)

	return len(paths)
}

// remove deletes one occurrence of (fp, path) from the index.
func (idx *destinationIndex) remove(fp, path string) {
	if fp == "" {
		return
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	cur, ok := idx.byFingerprint.Load(fp)
	if !ok {
		return
	}

	idx.byFingerprint.Store(fp, removeOne(cur, path))
}

// removeSubtree deletes every entry whose path is under dir.
func (idx *destinationIndex) removeSubtree(norm normalizer, dir string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.byFingerprint.Range(func(fp string, paths []string) bool {
		kept := paths[:0:0]
		for _, p := range paths {
			if !norm.isUnder(dir, p) {
				kept = append(kept, p)
			}
		}

		if len(kept) == 0 {
			idx.byFingerprint.Delete(fp)
		} else {
			idx.byFingerprint.Store(fp, kept)
		}

		return true
	})
}

func removeOne(paths []string, target string) []string {
	out := paths[:0:0]
	removed := false

	for _, p := range paths {
		if !removed && p == target {
			removed = true

			continue
		}

		out = append(out, p)
	}

	return out
}

// sortedKeys is a small test/debug helper to get deterministic iteration.
func (idx *destinationIndex) sortedKeys() []string {
	var keys []string

	idx.byFingerprint.Range(func(fp string, _ []string) bool {
		keys = append(keys, fp)

		return true
	})

	sort.Strings(keys)

	return keys
}
