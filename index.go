// ═══════════════════════════════════════════════════════════════════════════════
// REVERSE INDEX
// ═══════════════════════════════════════════════════════════════════════════════
// The ReverseIndex is the façade that owns everything: the partition
// hierarchy, the lexicon, the growth strategy, and the ingest pipeline.
//
// INGEST PIPELINE:
// ----------------
// Two long-running workers connected by bounded queues:
//
//	Post(doc) ─▶ documentQueue ─▶ document worker ─▶ postingQueue ─▶ posting worker ─▶ head
//
// The document worker explodes an AnalyzedDocument into posting tuples,
// assigning internal termIds through the lexicon as it goes. The posting
// worker adds tuples to the memory head and, when an add fills the head,
// runs the geometric flush before taking the next tuple. The workers are
// the sole mutators of the head, the lexicon and the term count; queries
// and merges share the index mutex with them.
//
// THE LEXICON:
// ------------
// Producers speak external termIds (assigned by whatever analyzed the
// documents). The first time an external id is seen it is mapped to the
// next dense internal id, and only internal ids appear inside partitions.
// The mapping is persisted with the rest of the index state.
// ═══════════════════════════════════════════════════════════════════════════════

package leif

import (
	"container/heap"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Package errors, comparable with errors.Is.
var (
	ErrNoPostingList  = errors.New("no posting list exists for term")
	ErrKeyMismatch    = errors.New("index opened with incorrect index key")
	ErrCorruptRegion  = errors.New("corrupt posting region")
	ErrQueryMalformed = errors.New("malformed query expression")
	ErrScopeArity     = errors.New("scope operator takes exactly two arguments")
	ErrScopeOperand   = errors.New("scope arguments must be terms")
	ErrIndexClosed    = errors.New("index is closed")
)

// Index file suffixes under <path>/<prefix>.
const (
	headPartitionSuffix     = ".MMP"
	externalPartitionSuffix = ".EXP"
	lexiconSuffix           = ".LEX"
)

// posting is one tuple on the posting queue.
type posting struct {
	termID   uint32 // internal
	docID    uint32
	position uint32
	extent   uint32
}

// reverseIndexState is the <prefix>.LEX wire form.
type reverseIndexState struct {
	ExternalPartitionCount int
	Lexicon                map[uint32]uint32
	TermCount              uint32
	IndexKey               string
}

// ReverseIndex owns a non-empty ordered list of partitions (the memory
// head at index 0, external partitions from smallest to largest after it),
// the external→internal lexicon, and the ingest workers.
type ReverseIndex struct {
	options IndexOptions
	growth  GrowthStrategy

	mu         sync.Mutex
	partitions []Partition
	lexicon    map[uint32]uint32
	termCount  uint32

	documentQueue chan *AnalyzedDocument
	postingQueue  chan posting
	pending       atomic.Int64
	workers       *errgroup.Group
	closed        atomic.Bool
}

// NewReverseIndex opens (or creates) the index described by options and
// starts the ingest workers. Existing state under options.Path is loaded
// and validated against options.IndexKey; a key mismatch fails before any
// data is touched.
func NewReverseIndex(options IndexOptions) (*ReverseIndex, error) {
	options = options.withDefaults()

	ri := &ReverseIndex{
		options:       options,
		growth:        NewFixedBufferGrowthStrategy(options.BufferSize, options.GrowthFactor),
		lexicon:       make(map[uint32]uint32),
		documentQueue: make(chan *AnalyzedDocument, options.DocumentQueueDepth),
		postingQueue:  make(chan posting, options.PostingQueueDepth),
	}

	externalPartitionCount := 0
	lexiconPath := ri.filePath(lexiconSuffix)
	fp, err := os.Open(lexiconPath)
	if err == nil {
		slog.Info("reverse index state found", slog.String("path", lexiconPath))
		var state reverseIndexState
		decodeErr := gob.NewDecoder(fp).Decode(&state)
		fp.Close()
		switch {
		case decodeErr != nil:
			slog.Error("unable to load reverse index state, starting empty",
				slog.String("path", lexiconPath), slog.String("error", decodeErr.Error()))
		case options.IndexKey != "" && state.IndexKey != "" && options.IndexKey != state.IndexKey:
			return nil, fmt.Errorf("leif: reverse index state %s: %w", lexiconPath, ErrKeyMismatch)
		default:
			externalPartitionCount = state.ExternalPartitionCount
			if state.Lexicon != nil {
				ri.lexicon = state.Lexicon
			}
			ri.termCount = state.TermCount
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("leif: open reverse index state %s: %w", lexiconPath, err)
	}

	head, err := OpenMemoryPartition("MMP", ri.filePath(headPartitionSuffix), options.IndexKey)
	if err != nil {
		return nil, err
	}
	head.SetTermInstanceLimit(options.BufferSize)
	ri.partitions = append(ri.partitions, head)

	for k := 1; k <= externalPartitionCount; k++ {
		external, err := OpenExternalPartition(
			fmt.Sprintf("EXP%d", k),
			ri.filePath(fmt.Sprintf("%s%d", externalPartitionSuffix, k)),
			options.IndexKey)
		if err != nil {
			return nil, err
		}
		if external.TermInstanceLimit() == 0 {
			external.SetTermInstanceLimit(ri.growth.PartitionLimit(k))
		}
		ri.partitions = append(ri.partitions, external)
	}

	ri.workers = new(errgroup.Group)
	ri.workers.Go(ri.documentWorker)
	ri.workers.Go(ri.postingWorker)
	return ri, nil
}

func (ri *ReverseIndex) filePath(suffix string) string {
	return filepath.Join(ri.options.Path, ri.options.Prefix+suffix)
}

// TermCount returns the number of distinct terms the index has seen.
func (ri *ReverseIndex) TermCount() uint32 {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	return ri.termCount
}

// PartitionInstanceCounts returns the per-partition instance counts, head
// first.
func (ri *ReverseIndex) PartitionInstanceCounts() []int {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	counts := make([]int, len(ri.partitions))
	for i, partition := range ri.partitions {
		counts[i] = partition.TermInstanceCount()
	}
	return counts
}

// ═══════════════════════════════════════════════════════════════════════════════
// INGEST
// ═══════════════════════════════════════════════════════════════════════════════

// Post enqueues an analyzed document for indexing. It blocks when the
// document queue is full, which is the index's only backpressure.
func (ri *ReverseIndex) Post(doc *AnalyzedDocument) error {
	if ri.closed.Load() {
		return ErrIndexClosed
	}
	if doc == nil {
		return nil
	}
	ri.pending.Add(1)
	ri.documentQueue <- doc
	return nil
}

// documentWorker explodes analyzed documents into posting tuples. The
// position of an analyzed term is its index in the document's sequence.
func (ri *ReverseIndex) documentWorker() error {
	for doc := range ri.documentQueue {
		for position, analyzedTerm := range doc.Terms {
			for _, entry := range analyzedTerm {
				internal := ri.internTermID(entry.TermID)
				ri.pending.Add(1)
				ri.postingQueue <- posting{
					termID:   internal,
					docID:    doc.DocID,
					position: uint32(position),
					extent:   entry.Extent,
				}
			}
		}
		ri.pending.Add(-1)
	}
	close(ri.postingQueue)
	return nil
}

// internTermID maps an external termId to its dense internal id, assigning
// the next id on first sight.
func (ri *ReverseIndex) internTermID(externalTermID uint32) uint32 {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	if internal, ok := ri.lexicon[externalTermID]; ok {
		return internal
	}
	internal := uint32(len(ri.lexicon))
	ri.lexicon[externalTermID] = internal
	ri.termCount++
	return internal
}

// postingWorker drains the posting queue into the head partition, running
// the geometric flush whenever an add fills the head. A failed flush is
// logged and ingest continues; the next add retries it.
func (ri *ReverseIndex) postingWorker() error {
	for post := range ri.postingQueue {
		ri.mu.Lock()
		head := ri.partitions[0].(*MemoryPartition)
		head.AddTermInstance(post.termID, post.docID, post.position, post.extent)
		if head.ReachedTermInstanceLimit() {
			if err := ri.flushHead(); err != nil {
				slog.Error("head flush failed", slog.String("error", err.Error()))
			}
		}
		ri.mu.Unlock()
		ri.pending.Add(-1)
	}
	return nil
}

// flushHead merges partitions 0..k−1 into the partition the growth
// strategy selects, creating it first when the hierarchy must grow.
// Called with the index mutex held; queries block for the duration.
func (ri *ReverseIndex) flushHead() error {
	counts := make([]int, len(ri.partitions))
	for i, partition := range ri.partitions {
		counts[i] = partition.TermInstanceCount()
	}

	k := ri.growth.SelectPartition(counts)
	if k == len(ri.partitions) {
		external, err := OpenExternalPartition(
			fmt.Sprintf("EXP%d", k),
			ri.filePath(fmt.Sprintf("%s%d", externalPartitionSuffix, k)),
			ri.options.IndexKey)
		if err != nil {
			return err
		}
		external.SetTermInstanceLimit(ri.growth.PartitionLimit(k))
		ri.partitions = append(ri.partitions, external)
	}
	destination := ri.partitions[k].(*ExternalPartition)
	sources := ri.partitions[:k]

	slog.Info("head flush",
		slog.Int("destination", k),
		slog.Int("limit", destination.TermInstanceLimit()),
		slog.Int("headInstances", counts[0]))

	all := make([]Partition, 0, k+1)
	all = append(all, sources...)
	all = append(all, destination)
	if err := destination.MergePartitions(mergedTermIDList(all), sources...); err != nil {
		return err
	}
	for _, source := range sources {
		if err := source.ZeroAllData(); err != nil {
			return err
		}
	}
	return nil
}

// mergedTermIDList unions the termIds of the given partitions, ascending.
func mergedTermIDList(partitions []Partition) []uint32 {
	seen := make(map[uint32]struct{})
	for _, partition := range partitions {
		for _, termID := range partition.TermIDs() {
			seen[termID] = struct{}{}
		}
	}
	termIDs := make([]uint32, 0, len(seen))
	for termID := range seen {
		termIDs = append(termIDs, termID)
	}
	sort.Slice(termIDs, func(i, j int) bool { return termIDs[i] < termIDs[j] })
	return termIDs
}

// ═══════════════════════════════════════════════════════════════════════════════
// LOOKUP
// ═══════════════════════════════════════════════════════════════════════════════

// LookupTermID streams every posting for an external termId across all
// partitions, in ascending docId order. Per-docId positions are
// concatenated from the largest (oldest) partition down to the head, so a
// document posted once yields its positions in ascending order. Unknown
// terms yield an empty reader.
//
// The returned reader observes the partitions at call time: it must be
// drained before the next merge, which invalidates external mappings.
func (ri *ReverseIndex) LookupTermID(externalTermID uint32) DocReader {
	ri.mu.Lock()
	defer ri.mu.Unlock()

	internal, ok := ri.lexicon[externalTermID]
	if !ok {
		return NullDocReader()
	}
	readers := make([]DocReader, 0, len(ri.partitions))
	for i := len(ri.partitions) - 1; i >= 0; i-- {
		readers = append(readers, ri.partitions[i].LookupTermID(internal))
	}
	return MergeDocReaders(readers...)
}

// MergeDocReaders interleaves sorted posting streams into one: a k-way
// merge keyed on docId over a min-heap. When several streams carry the
// same docId, their instances are concatenated in input order and yielded
// as one DocPostings.
func MergeDocReaders(readers ...DocReader) DocReader {
	merged := &mergedDocReader{}
	for i, reader := range readers {
		if postings, ok := reader.Next(); ok {
			merged.heap = append(merged.heap, mergeEntry{postings: postings, reader: reader, source: i})
		}
	}
	heap.Init(&merged.heap)
	return merged
}

type mergeEntry struct {
	postings DocPostings
	reader   DocReader
	source   int
}

type mergeHeap []mergeEntry

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	if h[i].postings.DocID != h[j].postings.DocID {
		return h[i].postings.DocID < h[j].postings.DocID
	}
	return h[i].source < h[j].source
}
func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x any)   { *h = append(*h, x.(mergeEntry)) }
func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	*h = old[:n-1]
	return entry
}

type mergedDocReader struct {
	heap mergeHeap
}

func (r *mergedDocReader) Next() (DocPostings, bool) {
	if r.heap.Len() == 0 {
		return DocPostings{}, false
	}

	docID := r.heap[0].postings.DocID
	var instanceReaders []InstanceReader
	for r.heap.Len() > 0 && r.heap[0].postings.DocID == docID {
		entry := heap.Pop(&r.heap).(mergeEntry)
		instanceReaders = append(instanceReaders, entry.postings.Instances)
		if postings, ok := entry.reader.Next(); ok {
			heap.Push(&r.heap, mergeEntry{postings: postings, reader: entry.reader, source: entry.source})
		}
	}

	if len(instanceReaders) == 1 {
		return DocPostings{DocID: docID, Instances: instanceReaders[0]}, true
	}
	return DocPostings{DocID: docID, Instances: &chainedInstanceReader{readers: instanceReaders}}, true
}

// chainedInstanceReader concatenates instance streams in input order.
type chainedInstanceReader struct {
	readers []InstanceReader
	current int
}

func (r *chainedInstanceReader) Next() (TermInstance, bool) {
	for r.current < len(r.readers) {
		if instance, ok := r.readers[r.current].Next(); ok {
			return instance, true
		}
		r.current++
	}
	return TermInstance{}, false
}

// ═══════════════════════════════════════════════════════════════════════════════
// CHECKPOINT AND SHUTDOWN
// ═══════════════════════════════════════════════════════════════════════════════

// Checkpoint blocks until both ingest queues drain, then persists the
// lexicon, the partition count, and every partition's own state.
func (ri *ReverseIndex) Checkpoint() error {
	ri.drain()

	ri.mu.Lock()
	defer ri.mu.Unlock()

	for _, partition := range ri.partitions {
		if err := partition.WriteToDisk(); err != nil {
			return err
		}
	}
	return ri.writeLexicon()
}

// drain spins until every posted document has fully landed in the head.
func (ri *ReverseIndex) drain() {
	for ri.pending.Load() != 0 {
		time.Sleep(time.Millisecond)
	}
}

// writeLexicon persists the <prefix>.LEX state. Called with the mutex
// held.
func (ri *ReverseIndex) writeLexicon() error {
	lexiconPath := ri.filePath(lexiconSuffix)
	fp, err := os.Create(lexiconPath)
	if err != nil {
		return fmt.Errorf("leif: create reverse index state %s: %w", lexiconPath, err)
	}
	defer fp.Close()

	state := reverseIndexState{
		ExternalPartitionCount: len(ri.partitions) - 1,
		Lexicon:                ri.lexicon,
		TermCount:              ri.termCount,
		IndexKey:               ri.options.IndexKey,
	}
	if err := gob.NewEncoder(fp).Encode(&state); err != nil {
		return fmt.Errorf("leif: write reverse index state %s: %w", lexiconPath, err)
	}
	return nil
}

// Close checkpoints the index, stops the workers, and releases every
// external mapping. The index accepts no posts afterwards.
func (ri *ReverseIndex) Close() error {
	if ri.closed.Swap(true) {
		return nil
	}
	if err := ri.Checkpoint(); err != nil {
		return err
	}
	close(ri.documentQueue)
	if err := ri.workers.Wait(); err != nil {
		return err
	}

	ri.mu.Lock()
	defer ri.mu.Unlock()
	for _, partition := range ri.partitions {
		if external, ok := partition.(*ExternalPartition); ok {
			if err := external.Close(); err != nil {
				return err
			}
		}
	}
	return nil
}
