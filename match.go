// ═══════════════════════════════════════════════════════════════════════════════
// MATCH-VECTOR ALGEBRA
// ═══════════════════════════════════════════════════════════════════════════════
// Positional queries evaluate over streams of per-document matches. A
// ComputedMatch is everything a query operator knows about one document:
// the docId and one term-instance vector per operand that matched there.
// A ComputedMatchVector is a lazy stream of them in ascending docId
// order, backed by the cached sequence in lazy.go so the same stream can
// feed several enclosing operators.
//
// THE OPERATORS:
// --------------
//
//	And      docs where every operand occurs; vectors concatenated
//	Andnot   docs where the first operand occurs and no other does
//	Before   And, then only position-ascending combinations survive
//	After    And, then only position-descending combinations survive
//	Within   And, then some cross-vector position pair within distance d
//	Minoc    docs where at least n operands occur
//	Scope    instances of the second operand covered by an extent of the
//	         first
//
// All operators align their inputs on docId the same way: advance the
// stream with the least docId until every stream of interest agrees, and
// emit in ascending docId order. Matching docIds emit; otherwise the
// least stream advances.
// ═══════════════════════════════════════════════════════════════════════════════

package leif

// ComputedMatch holds one document's term-instance vectors, one vector per
// contributing operand. A match with no vectors is empty.
type ComputedMatch struct {
	DocID   uint32
	Vectors [][]TermInstance
}

// Empty reports whether the match carries no vectors.
func (m ComputedMatch) Empty() bool { return len(m.Vectors) == 0 }

// ComputedMatchVector is a lazy, restartable stream of ComputedMatches in
// ascending docId order. Realized elements are cached, so re-iterating
// replays from the start without touching the source again.
type ComputedMatchVector struct {
	seq *matchSequence
}

// NewComputedMatchVector wraps a pull function. The function must yield
// matches in ascending docId order and is called at most once per
// element.
func NewComputedMatchVector(pull func() (ComputedMatch, bool)) *ComputedMatchVector {
	return &ComputedMatchVector{seq: newMatchSequence(pull)}
}

// EmptyComputedMatchVector returns the stream with no matches.
func EmptyComputedMatchVector() *ComputedMatchVector {
	return NewComputedMatchVector(func() (ComputedMatch, bool) {
		return ComputedMatch{}, false
	})
}

// ComputedMatchesFromDocReader adapts a posting stream into the algebra:
// each document becomes a match with a single vector holding the term's
// instances there.
func ComputedMatchesFromDocReader(reader DocReader) *ComputedMatchVector {
	return NewComputedMatchVector(func() (ComputedMatch, bool) {
		postings, ok := reader.Next()
		if !ok {
			return ComputedMatch{}, false
		}
		var instances []TermInstance
		for {
			instance, ok := postings.Instances.Next()
			if !ok {
				break
			}
			instances = append(instances, instance)
		}
		return ComputedMatch{DocID: postings.DocID, Vectors: [][]TermInstance{instances}}, true
	})
}

// Iterator starts a walk from the first match.
func (v *ComputedMatchVector) Iterator() *MatchIterator {
	return &MatchIterator{seq: v.seq}
}

// Matches realizes and returns every match. Only sensible on finite
// streams; the algebra itself never calls it.
func (v *ComputedMatchVector) Matches() []ComputedMatch {
	var matches []ComputedMatch
	it := v.Iterator()
	for {
		match, ok := it.Next()
		if !ok {
			return matches
		}
		matches = append(matches, match)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// DOCID ALIGNMENT
// ═══════════════════════════════════════════════════════════════════════════════

// alignment is one docId's view across every operand: matches[i] holds
// operand i's match there, or nil when operand i has nothing for the doc.
type alignment struct {
	docID   uint32
	matches []*ComputedMatch
}

// alignDocIDs merges the operand streams on docId. For every docId held
// by at least one operand, in ascending order, it yields who has it. Each
// operator applies its own presence rule on top.
func alignDocIDs(inputs []*ComputedMatchVector) func() (alignment, bool) {
	iterators := make([]*MatchIterator, len(inputs))
	for i, input := range inputs {
		iterators[i] = input.Iterator()
	}

	return func() (alignment, bool) {
		least := uint32(0)
		found := false
		for _, it := range iterators {
			match, ok := it.Peek()
			if !ok {
				continue
			}
			if !found || match.DocID < least {
				least = match.DocID
				found = true
			}
		}
		if !found {
			return alignment{}, false
		}

		aligned := alignment{docID: least, matches: make([]*ComputedMatch, len(iterators))}
		for i, it := range iterators {
			match, ok := it.Peek()
			if ok && match.DocID == least {
				m := match
				aligned.matches[i] = &m
				it.Next()
			}
		}
		return aligned, true
	}
}

// joinVectors concatenates the vectors of every present match, discarding
// empty-vector slots.
func joinVectors(matches []*ComputedMatch) [][]TermInstance {
	var vectors [][]TermInstance
	for _, match := range matches {
		if match == nil {
			continue
		}
		for _, vector := range match.Vectors {
			if len(vector) > 0 {
				vectors = append(vectors, vector)
			}
		}
	}
	return vectors
}

func countPresent(matches []*ComputedMatch) int {
	count := 0
	for _, match := range matches {
		if match != nil && !match.Empty() {
			count++
		}
	}
	return count
}

// ═══════════════════════════════════════════════════════════════════════════════
// OPERATORS
// ═══════════════════════════════════════════════════════════════════════════════

// And yields the documents every input matches, with all vectors joined.
// Commutative and associative up to vector order.
func And(inputs ...*ComputedMatchVector) *ComputedMatchVector {
	if len(inputs) == 0 {
		return EmptyComputedMatchVector()
	}
	next := alignDocIDs(inputs)
	return NewComputedMatchVector(func() (ComputedMatch, bool) {
		for {
			aligned, ok := next()
			if !ok {
				return ComputedMatch{}, false
			}
			if countPresent(aligned.matches) != len(inputs) {
				continue
			}
			vectors := joinVectors(aligned.matches)
			if len(vectors) == 0 {
				continue
			}
			return ComputedMatch{DocID: aligned.docID, Vectors: vectors}, true
		}
	})
}

// Andnot yields the first input's matches for documents where every other
// input contributes zero vectors. Andnot(x) is x.
func Andnot(inputs ...*ComputedMatchVector) *ComputedMatchVector {
	if len(inputs) == 0 {
		return EmptyComputedMatchVector()
	}
	next := alignDocIDs(inputs)
	return NewComputedMatchVector(func() (ComputedMatch, bool) {
		for {
			aligned, ok := next()
			if !ok {
				return ComputedMatch{}, false
			}
			left := aligned.matches[0]
			if left == nil || left.Empty() {
				continue
			}
			blocked := false
			for _, other := range aligned.matches[1:] {
				if other != nil && !other.Empty() {
					blocked = true
					break
				}
			}
			if blocked {
				continue
			}
			return *left, true
		}
	})
}

// Minoc yields documents matched by at least n of the inputs, with the
// present vectors joined.
func Minoc(n int, inputs ...*ComputedMatchVector) *ComputedMatchVector {
	if len(inputs) == 0 || n <= 0 {
		return EmptyComputedMatchVector()
	}
	next := alignDocIDs(inputs)
	return NewComputedMatchVector(func() (ComputedMatch, bool) {
		for {
			aligned, ok := next()
			if !ok {
				return ComputedMatch{}, false
			}
			if countPresent(aligned.matches) < n {
				continue
			}
			vectors := joinVectors(aligned.matches)
			if len(vectors) == 0 {
				continue
			}
			return ComputedMatch{DocID: aligned.docID, Vectors: vectors}, true
		}
	})
}

// Within runs And and keeps documents where some pair of positions drawn
// from different joined vectors lies within distance d.
func Within(d uint32, inputs ...*ComputedMatchVector) *ComputedMatchVector {
	joined := And(inputs...).Iterator()
	return NewComputedMatchVector(func() (ComputedMatch, bool) {
		for {
			match, ok := joined.Next()
			if !ok {
				return ComputedMatch{}, false
			}
			if somePairWithin(match.Vectors, d) {
				return match, true
			}
		}
	})
}

func somePairWithin(vectors [][]TermInstance, d uint32) bool {
	for i := range vectors {
		for j := i + 1; j < len(vectors); j++ {
			for _, a := range vectors[i] {
				for _, b := range vectors[j] {
					if positionDistance(a.Position, b.Position) <= d {
						return true
					}
				}
			}
		}
	}
	return false
}

func positionDistance(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}

// Before runs And and keeps, per document, the combinations of one
// instance per vector whose positions strictly ascend in operand order.
// Each surviving combination becomes one vector of the emitted match.
func Before(inputs ...*ComputedMatchVector) *ComputedMatchVector {
	return ordered(inputs, func(previous, candidate TermInstance) bool {
		return previous.Position < candidate.Position
	})
}

// After is the mirror of Before: positions strictly descend in operand
// order.
func After(inputs ...*ComputedMatchVector) *ComputedMatchVector {
	return ordered(inputs, func(previous, candidate TermInstance) bool {
		return previous.Position > candidate.Position
	})
}

func ordered(inputs []*ComputedMatchVector, inOrder func(previous, candidate TermInstance) bool) *ComputedMatchVector {
	joined := And(inputs...).Iterator()
	return NewComputedMatchVector(func() (ComputedMatch, bool) {
		for {
			match, ok := joined.Next()
			if !ok {
				return ComputedMatch{}, false
			}
			combinations := orderedCombinations(match.Vectors, inOrder)
			if len(combinations) == 0 {
				continue
			}
			return ComputedMatch{DocID: match.DocID, Vectors: combinations}, true
		}
	})
}

// orderedCombinations is a predicated cartesian product over the vectors:
// a combination is extended one vector at a time and pruned as soon as
// the order predicate fails between neighbors.
func orderedCombinations(vectors [][]TermInstance, inOrder func(previous, candidate TermInstance) bool) [][]TermInstance {
	var results [][]TermInstance
	combination := make([]TermInstance, 0, len(vectors))

	var extend func(depth int)
	extend = func(depth int) {
		if depth == len(vectors) {
			results = append(results, append([]TermInstance(nil), combination...))
			return
		}
		for _, candidate := range vectors[depth] {
			if depth > 0 && !inOrder(combination[depth-1], candidate) {
				continue
			}
			combination = append(combination, candidate)
			extend(depth + 1)
			combination = combination[:len(combination)-1]
		}
	}
	extend(0)
	return results
}

// Scope yields, per document matched by both operands, the scoped
// operand's instances that fall inside the span of some scope instance.
// The emitted matches carry the covered scoped positions only.
func Scope(scope, scoped *ComputedMatchVector) *ComputedMatchVector {
	joined := And(scope, scoped).Iterator()
	return NewComputedMatchVector(func() (ComputedMatch, bool) {
		for {
			match, ok := joined.Next()
			if !ok {
				return ComputedMatch{}, false
			}
			// And joins pairwise: the scope operand's vectors come
			// first, the scoped operand's after them. Term operands
			// carry exactly one vector each.
			if len(match.Vectors) < 2 {
				continue
			}
			scopeVector, scopedVector := match.Vectors[0], match.Vectors[1]

			var covered []TermInstance
			for _, instance := range scopedVector {
				for _, span := range scopeVector {
					if span.Covers(instance.Position) {
						covered = append(covered, instance)
						break
					}
				}
			}
			if len(covered) == 0 {
				continue
			}
			return ComputedMatch{DocID: match.DocID, Vectors: [][]TermInstance{covered}}, true
		}
	})
}
