// ═══════════════════════════════════════════════════════════════════════════════
// CACHED LAZY SEQUENCES
// ═══════════════════════════════════════════════════════════════════════════════
// The match algebra (match.go) repeatedly re-reads the same underlying
// posting stream through different operator paths: a nested AND may walk
// its operand once per enclosing docId. A plain pull iterator would be
// consumed by the first walk, so every operand stream is a cached
// sequence:
//
//   - elements are realized from the source pull function on demand
//   - realized elements are kept, in order, in a growable cache
//   - re-iterating rewinds to index 0 and replays the cache before
//     pulling anything new
//
// The source is pulled at most once per element no matter how many
// iterators are live, which is what makes the algebra safe on possibly
// unbounded inputs: nothing is realized until some consumer asks for it.
// ═══════════════════════════════════════════════════════════════════════════════

package leif

// matchSequence is the shared cache behind a ComputedMatchVector. All
// iterators over one sequence observe the same realized prefix.
type matchSequence struct {
	pull  func() (ComputedMatch, bool)
	cache []ComputedMatch
	done  bool
}

func newMatchSequence(pull func() (ComputedMatch, bool)) *matchSequence {
	return &matchSequence{pull: pull}
}

// at returns element i, realizing the sequence up through i if needed.
func (s *matchSequence) at(i int) (ComputedMatch, bool) {
	for !s.done && i >= len(s.cache) {
		match, ok := s.pull()
		if !ok {
			s.done = true
			s.pull = nil
			break
		}
		s.cache = append(s.cache, match)
	}
	if i < len(s.cache) {
		return s.cache[i], true
	}
	return ComputedMatch{}, false
}

// MatchIterator walks a ComputedMatchVector from the start. Any number of
// iterators may be live at once; each keeps only its own cursor.
type MatchIterator struct {
	seq  *matchSequence
	next int
}

// Next returns the next match in ascending docId order.
func (it *MatchIterator) Next() (ComputedMatch, bool) {
	match, ok := it.seq.at(it.next)
	if ok {
		it.next++
	}
	return match, ok
}

// Peek returns the next match without advancing.
func (it *MatchIterator) Peek() (ComputedMatch, bool) {
	return it.seq.at(it.next)
}
