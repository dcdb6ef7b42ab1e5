// Package leif implements a positional inverted index with geometric
// partitioning
//
// ═══════════════════════════════════════════════════════════════════════════════
// WHAT IS A POSITIONAL INVERTED INDEX?
// ═══════════════════════════════════════════════════════════════════════════════
// An inverted index maps each term to the documents that contain it. A
// positional index additionally records WHERE in each document the term
// occurs, so queries can reason about order and distance:
//
//	term 7 → Doc 3: positions [0, 14], Doc 9: positions [2]
//	term 8 → Doc 3: positions [1]
//
// This allows us to:
// 1. Find documents containing a term instantly (without scanning all docs)
// 2. Answer phrase queries by checking position order across terms
// 3. Answer proximity queries by checking position distance
// 4. Answer containment queries using extents (a structural term spans
//    the positions of its subtree)
//
// The index is partitioned: one in-memory head partition absorbs all new
// postings, and a geometric sequence of progressively larger on-disk
// partitions holds everything flushed out of the head. See partition.go,
// external.go and growth.go.
//
// ═══════════════════════════════════════════════════════════════════════════════

package leif

import (
	"sort"

	"github.com/RoaringBitmap/roaring"
)

// TermInstance is one occurrence of a term within a document.
//
// Position is the ordinal position of the occurrence in the analyzed
// document. Extent is the number of following positions the occurrence
// covers: 0 for an atomic token, >0 for a structural term that spans a
// subtree of tokens.
//
// Two TermInstances are the same instance when their Positions are equal;
// Extent never participates in ordering or identity. A set of instances
// within one document therefore holds at most one entry per position.
type TermInstance struct {
	Position uint32
	Extent   uint32
}

// Less orders instances by position only.
func (ti TermInstance) Less(other TermInstance) bool {
	return ti.Position < other.Position
}

// Covers reports whether a position falls inside the span of this instance.
// The span runs from the instance's own position through the Extent
// positions that follow it; both boundaries are covered.
func (ti TermInstance) Covers(position uint32) bool {
	return ti.Position <= position && position <= ti.Position+ti.Extent
}

// ═══════════════════════════════════════════════════════════════════════════════
// PER-TERM POSTING TABLE
// ═══════════════════════════════════════════════════════════════════════════════
// Every termId in a partition points at one DocIDTermInstanceTable: the set
// of documents the term occurs in, and for each document the set of
// positions. The table is the unit of serialization: the codec turns one
// table into one packed region (codec.go).
//
// HYBRID STORAGE:
// ---------------
// The docId set is a roaring bitmap, the per-document instances are sorted
// slices:
//
//	DocIDTermInstanceTable
//	├── docIDs: roaring.Bitmap          [3, 9, 214, ...]
//	└── instances: map[docId][]TermInstance (position-sorted, unique)
//
// The bitmap gives ascending docId iteration for the codec and the readers,
// a constant-time document count for the table headers, and a cheap
// membership test for deletes.
// ═══════════════════════════════════════════════════════════════════════════════

// DocIDTermInstanceTable maps document ids to position-unique instance sets
// for a single term.
type DocIDTermInstanceTable struct {
	docIDs    *roaring.Bitmap
	instances map[uint32][]TermInstance
	count     int
}

// NewDocIDTermInstanceTable creates an empty posting table.
func NewDocIDTermInstanceTable() *DocIDTermInstanceTable {
	return &DocIDTermInstanceTable{
		docIDs:    roaring.NewBitmap(),
		instances: make(map[uint32][]TermInstance),
	}
}

// Insert records one term instance for docID.
//
// Instances are unique per position: inserting a second instance at an
// occupied position replaces the previous one (the later write wins, which
// only matters for structural terms whose extents were re-analyzed).
// The per-document slice stays sorted by position.
func (t *DocIDTermInstanceTable) Insert(docID uint32, instance TermInstance) {
	instances := t.instances[docID]
	i := sort.Search(len(instances), func(i int) bool {
		return instances[i].Position >= instance.Position
	})
	if i < len(instances) && instances[i].Position == instance.Position {
		instances[i] = instance
		return
	}

	instances = append(instances, TermInstance{})
	copy(instances[i+1:], instances[i:])
	instances[i] = instance
	t.instances[docID] = instances
	t.docIDs.Add(docID)
	t.count++
}

// DeleteDoc removes all instances recorded for docID.
func (t *DocIDTermInstanceTable) DeleteDoc(docID uint32) {
	instances, ok := t.instances[docID]
	if !ok {
		return
	}
	t.count -= len(instances)
	delete(t.instances, docID)
	t.docIDs.Remove(docID)
}

// Contains reports whether docID has any instances in the table.
func (t *DocIDTermInstanceTable) Contains(docID uint32) bool {
	return t.docIDs.Contains(docID)
}

// DocIDCount returns the number of documents in the table.
func (t *DocIDTermInstanceTable) DocIDCount() int {
	return int(t.docIDs.GetCardinality())
}

// TermInstanceCount returns the total number of instances across all
// documents. The invariant DocIDCount ≤ TermInstanceCount always holds:
// a document is only a member while it has at least one instance.
func (t *DocIDTermInstanceTable) TermInstanceCount() int {
	return t.count
}

// Instances returns the position-sorted instance slice for docID, or nil.
func (t *DocIDTermInstanceTable) Instances(docID uint32) []TermInstance {
	return t.instances[docID]
}

// Reader iterates the table as (docId, instances) pairs in ascending docId
// order. The reader observes the table at call time; mutating the table
// while a reader is live is not supported.
func (t *DocIDTermInstanceTable) Reader() DocReader {
	return &tableReader{table: t, docIDs: t.docIDs.Iterator()}
}

// tableReader streams a memory-resident posting table. The roaring iterator
// supplies the ascending docId walk.
type tableReader struct {
	table  *DocIDTermInstanceTable
	docIDs roaring.IntPeekable
}

func (r *tableReader) Next() (DocPostings, bool) {
	if !r.docIDs.HasNext() {
		return DocPostings{}, false
	}
	docID := r.docIDs.Next()
	return DocPostings{
		DocID:     docID,
		Instances: &sliceInstanceReader{instances: r.table.instances[docID]},
	}, true
}

// sliceInstanceReader yields instances from a sorted in-memory slice.
type sliceInstanceReader struct {
	instances []TermInstance
	next      int
}

func (r *sliceInstanceReader) Next() (TermInstance, bool) {
	if r.next >= len(r.instances) {
		return TermInstance{}, false
	}
	ti := r.instances[r.next]
	r.next++
	return ti, true
}
