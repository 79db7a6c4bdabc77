package reconcile

// ignoreMatcher decides whether a source-side path is excluded, and can
// project that decision onto destination-side candidates.
//
// Generalizes a single fixed mirror/target exclude-list check into
// arbitrary source/destination roots.
type ignoreMatcher struct {
	norm    normalizer
	entries []string // source-side paths, already normalized
}

func newIgnoreMatcher(norm normalizer, entries []string) *ignoreMatcher {
	m := &ignoreMatcher{norm: norm}
	for _, e := range entries {
		m.entries = append(m.entries, norm.normalize(e))
	}

	return m
}

// sourceIgnored reports whether p lies under any ignore entry.
func (m *ignoreMatcher) sourceIgnored(p string) bool {
	np := m.norm.normalize(p)
	for _, e := range m.entries {
		if np == e || m.norm.isUnder(e, np) {
			return true
		}
	}

	return false
}

// destEquivalentIgnored computes the source-side equivalent of a
// destination-side path and tests it against the same ignore rules.
func (m *ignoreMatcher) destEquivalentIgnored(dstRoot, dstEntry, srcRoot string) bool {
	rel, err := m.norm.relative(dstRoot, dstEntry)
	if err != nil {
		return false
	}

	return m.sourceIgnored(join(srcRoot, rel))
}
