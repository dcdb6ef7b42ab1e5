package leif

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
)

// ═══════════════════════════════════════════════════════════════════════════════
// REVERSE INDEX TESTS
// ═══════════════════════════════════════════════════════════════════════════════

// flatDoc builds an analyzed document with one single-entry term per
// position.
func flatDoc(docID uint32, termIDs ...uint32) *AnalyzedDocument {
	doc := &AnalyzedDocument{DocID: docID}
	for _, termID := range termIDs {
		doc.AppendTerm(AnalyzedTerm{{TermID: termID}})
	}
	return doc
}

func testIndexOptions(t *testing.T, key string) IndexOptions {
	t.Helper()
	options := DefaultIndexOptions()
	options.Path = t.TempDir()
	options.Prefix = "test"
	options.IndexKey = key
	return options
}

func TestReverseIndex_PostAndLookup(t *testing.T) {
	ri, err := NewReverseIndex(testIndexOptions(t, ""))
	require.NoError(t, err)
	defer ri.Close()

	require.NoError(t, ri.Post(flatDoc(7, 100, 101, 102)))
	require.NoError(t, ri.Post(flatDoc(9, 101, 100, 102)))
	require.NoError(t, ri.Checkpoint())

	require.Equal(t, uint32(3), ri.TermCount())
	require.Equal(t, map[uint32][]TermInstance{
		7: {{Position: 0}},
		9: {{Position: 1}},
	}, drainReader(t, ri.LookupTermID(100)))
	require.Equal(t, map[uint32][]TermInstance{
		7: {{Position: 1}},
		9: {{Position: 0}},
	}, drainReader(t, ri.LookupTermID(101)))

	_, ok := ri.LookupTermID(999).Next()
	require.False(t, ok, "unknown terms yield the empty reader")
}

func TestReverseIndex_StructuralExtents(t *testing.T) {
	ri, err := NewReverseIndex(testIndexOptions(t, ""))
	require.NoError(t, err)
	defer ri.Close()

	// A structural term shares position 0 with the first token and spans
	// three following positions.
	doc := &AnalyzedDocument{DocID: 5}
	doc.AppendTerm(AnalyzedTerm{{TermID: 200, Extent: 3}, {TermID: 300}})
	doc.AppendTerm(AnalyzedTerm{{TermID: 301}})
	doc.AppendTerm(AnalyzedTerm{{TermID: 302}})
	doc.AppendTerm(AnalyzedTerm{{TermID: 303}})
	require.NoError(t, ri.Post(doc))
	require.NoError(t, ri.Checkpoint())

	require.Equal(t, map[uint32][]TermInstance{
		5: {{Position: 0, Extent: 3}},
	}, drainReader(t, ri.LookupTermID(200)))
	require.Equal(t, map[uint32][]TermInstance{
		5: {{Position: 0}},
	}, drainReader(t, ri.LookupTermID(300)))
}

// Scenario: with b=2 and r=3, eight postings over four terms cascade
// through the hierarchy: the head flushes into a new partition of
// capacity 4 after the second posting, partitions 0+1 flush into a new
// partition of capacity 12 after the sixth, and the final flush leaves
// everything in partition 2.
func TestReverseIndex_FlushCascade(t *testing.T) {
	options := testIndexOptions(t, "")
	options.BufferSize = 2
	options.GrowthFactor = 3

	ri, err := NewReverseIndex(options)
	require.NoError(t, err)
	defer ri.Close()

	require.NoError(t, ri.Post(flatDoc(1, 100, 101)))
	require.NoError(t, ri.Post(flatDoc(2, 102, 103)))
	require.NoError(t, ri.Post(flatDoc(3, 100, 102)))
	require.NoError(t, ri.Post(flatDoc(4, 101, 103)))
	require.NoError(t, ri.Checkpoint())

	require.Equal(t, []int{0, 0, 8}, ri.PartitionInstanceCounts())

	require.Equal(t, map[uint32][]TermInstance{
		1: {{Position: 0}},
		3: {{Position: 0}},
	}, drainReader(t, ri.LookupTermID(100)))
	require.Equal(t, map[uint32][]TermInstance{
		1: {{Position: 1}},
		4: {{Position: 0}},
	}, drainReader(t, ri.LookupTermID(101)))
	require.Equal(t, map[uint32][]TermInstance{
		2: {{Position: 0}},
		3: {{Position: 1}},
	}, drainReader(t, ri.LookupTermID(102)))
	require.Equal(t, map[uint32][]TermInstance{
		2: {{Position: 1}},
		4: {{Position: 1}},
	}, drainReader(t, ri.LookupTermID(103)))
}

func TestReverseIndex_CrossPartitionLookup(t *testing.T) {
	options := testIndexOptions(t, "")
	options.BufferSize = 2
	options.GrowthFactor = 3

	ri, err := NewReverseIndex(options)
	require.NoError(t, err)
	defer ri.Close()

	// Two postings flush term 100's early positions to disk; the next
	// posting for the same (term, doc) lands in the head. Lookup must
	// union them under one docId.
	require.NoError(t, ri.Post(flatDoc(1, 100, 100)))
	require.NoError(t, ri.Checkpoint())
	require.NoError(t, ri.Post(flatDoc(1, 101, 101, 100)))
	require.NoError(t, ri.Checkpoint())

	got := drainReader(t, ri.LookupTermID(100))
	require.Equal(t, map[uint32][]TermInstance{
		1: {{Position: 0}, {Position: 1}, {Position: 2}},
	}, got)
}

// Scenario: an index created with key "k1" refuses to reopen with "k2"
// and reopens cleanly with "k1", answering the same lookups.
func TestReverseIndex_ReopenWithKey(t *testing.T) {
	options := testIndexOptions(t, "k1")

	ri, err := NewReverseIndex(options)
	require.NoError(t, err)
	require.NoError(t, ri.Post(flatDoc(7, 100, 101)))
	require.NoError(t, ri.Close())

	wrong := options
	wrong.IndexKey = "k2"
	_, err = NewReverseIndex(wrong)
	require.ErrorIs(t, err, ErrKeyMismatch)

	reopened, err := NewReverseIndex(options)
	require.NoError(t, err)
	defer reopened.Close()

	require.Equal(t, uint32(2), reopened.TermCount())
	require.Equal(t, map[uint32][]TermInstance{
		7: {{Position: 0}},
	}, drainReader(t, reopened.LookupTermID(100)))
	require.Equal(t, map[uint32][]TermInstance{
		7: {{Position: 1}},
	}, drainReader(t, reopened.LookupTermID(101)))
}

func TestReverseIndex_ReopenAfterFlush(t *testing.T) {
	options := testIndexOptions(t, "")
	options.BufferSize = 2
	options.GrowthFactor = 3

	ri, err := NewReverseIndex(options)
	require.NoError(t, err)
	require.NoError(t, ri.Post(flatDoc(1, 100, 101)))
	require.NoError(t, ri.Post(flatDoc(2, 100, 102)))
	require.NoError(t, ri.Close())

	reopened, err := NewReverseIndex(options)
	require.NoError(t, err)
	defer reopened.Close()

	require.Equal(t, map[uint32][]TermInstance{
		1: {{Position: 0}},
		2: {{Position: 0}},
	}, drainReader(t, reopened.LookupTermID(100)))
}

func TestMergeDocReaders_InterleavesAndConcatenates(t *testing.T) {
	left := buildTable(map[uint32][]TermInstance{
		1: {{Position: 0}},
		5: {{Position: 2}},
	})
	right := buildTable(map[uint32][]TermInstance{
		3: {{Position: 1}},
		5: {{Position: 7}},
	})

	merged := MergeDocReaders(left.Reader(), right.Reader())

	var docIDs []uint32
	var doc5 []TermInstance
	for {
		postings, ok := merged.Next()
		if !ok {
			break
		}
		docIDs = append(docIDs, postings.DocID)
		if postings.DocID == 5 {
			for {
				instance, ok := postings.Instances.Next()
				if !ok {
					break
				}
				doc5 = append(doc5, instance)
			}
		}
	}

	if !reflect.DeepEqual(docIDs, []uint32{1, 3, 5}) {
		t.Fatalf("merged docIDs = %v, want [1 3 5]", docIDs)
	}
	// Duplicate docIds concatenate their instances in input order.
	if !reflect.DeepEqual(doc5, []TermInstance{{Position: 2}, {Position: 7}}) {
		t.Fatalf("doc 5 instances = %v, want [2 7]", doc5)
	}
}

func TestReverseIndex_PostAfterClose(t *testing.T) {
	ri, err := NewReverseIndex(testIndexOptions(t, ""))
	require.NoError(t, err)
	require.NoError(t, ri.Close())

	if err := ri.Post(flatDoc(1, 100)); !errors.Is(err, ErrIndexClosed) {
		t.Fatalf("Post after Close error = %v, want ErrIndexClosed", err)
	}
}
