// ═══════════════════════════════════════════════════════════════════════════════
// INDEX PARTITIONS
// ═══════════════════════════════════════════════════════════════════════════════
// A partition is a self-contained slice of the index: a map from internal
// termId to one posting table. The index owns an ordered list of them:
//
//	partitions[0]   MemoryPartition   the "head", absorbs every new posting
//	partitions[1:]  ExternalPartition on-disk segments, smallest to largest
//
// Both variants speak the same interface so the merge machinery and the
// cross-partition reader never care which kind they are holding. A
// MemoryPartition owns its tables directly; an ExternalPartition (see
// external.go) owns a memory-mapped file of packed tables plus a header
// map.
// ═══════════════════════════════════════════════════════════════════════════════

package leif

import (
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
)

// MemoryPartitionPathPrefix marks a partition path as memory-resident.
// The remainder of the path, if any, names an optional checkpoint file.
const MemoryPartitionPathPrefix = ":memory:"

// Partition is the contract shared by the memory head and the on-disk
// segments.
type Partition interface {
	// Name identifies the partition in logs.
	Name() string

	// Contains reports whether the partition holds postings for termID.
	Contains(termID uint32) bool

	// TermIDs returns the partition's termIds in ascending order.
	TermIDs() []uint32

	// LookupTermID streams the partition's postings for termID in
	// ascending docId order. Unknown terms yield an empty reader.
	LookupTermID(termID uint32) DocReader

	// DeleteTermID drops the partition's slot for termID. On-disk bytes
	// are not reclaimed until the next merge rewrites the file.
	DeleteTermID(termID uint32)

	// CompressTermIDData returns the packed form of the termID's table
	// together with its header. The header offset is meaningless to the
	// caller; length and counts are authoritative.
	CompressTermIDData(termID uint32) (TableHeader, []byte, error)

	// EstimateSizeOnDisk returns an upper bound on the bytes needed to
	// hold every table in packed form.
	EstimateSizeOnDisk() int64

	// TermInstanceCount returns the total posting count.
	TermInstanceCount() int

	// TermInstanceLimit returns the configured capacity, 0 for unlimited.
	TermInstanceLimit() int

	// SetTermInstanceLimit configures the capacity.
	SetTermInstanceLimit(limit int)

	// ReachedTermInstanceLimit reports count >= limit for a set limit.
	ReachedTermInstanceLimit() bool

	// ZeroAllData empties the partition and removes its on-disk data.
	ZeroAllData() error

	// WriteToDisk persists the partition's recoverable state.
	WriteToDisk() error
}

// OpenIndexPartition creates the appropriate partition for a path. Paths
// beginning with ":memory:" open a MemoryPartition (the remainder of the
// path names its optional checkpoint file); anything else opens an
// ExternalPartition.
func OpenIndexPartition(name, path, indexKey string) (Partition, error) {
	if strings.HasPrefix(path, MemoryPartitionPathPrefix) {
		return OpenMemoryPartition(name, strings.TrimPrefix(path, MemoryPartitionPathPrefix), indexKey)
	}
	return OpenExternalPartition(name, path, indexKey)
}

// ═══════════════════════════════════════════════════════════════════════════════
// MEMORY PARTITION
// ═══════════════════════════════════════════════════════════════════════════════

// MemoryPartition keeps all of its posting tables in RAM. It can be backed
// by a checkpoint file which is loaded when the partition opens and
// rewritten by WriteToDisk.
type MemoryPartition struct {
	name              string
	path              string // checkpoint file, "" for none
	indexKey          string
	termInstanceLimit int
	termIDHash        map[uint32]*DocIDTermInstanceTable
}

// memoryPartitionState is the checkpoint wire form. Tables flatten to
// plain maps so the checkpoint stays readable by gob across refactors of
// the in-memory representation.
type memoryPartitionState struct {
	TermInstanceLimit int
	TermIDHash        map[uint32]map[uint32][]TermInstance
	IndexKey          string
}

// OpenMemoryPartition opens a memory partition, loading the checkpoint at
// path if one exists. A caller-supplied indexKey that does not match the
// checkpointed key fails with ErrKeyMismatch before any data is touched.
func OpenMemoryPartition(name, path, indexKey string) (*MemoryPartition, error) {
	p := &MemoryPartition{
		name:       name,
		path:       path,
		indexKey:   indexKey,
		termIDHash: make(map[uint32]*DocIDTermInstanceTable),
	}
	if path == "" {
		return p, nil
	}

	fp, err := os.Open(path)
	if os.IsNotExist(err) {
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("leif: open memory partition checkpoint %s: %w", path, err)
	}
	defer fp.Close()

	slog.Info("memory partition data found", slog.String("partition", name), slog.String("path", path))

	var state memoryPartitionState
	if err := gob.NewDecoder(fp).Decode(&state); err != nil {
		// Corrupt checkpoints are regenerated from nothing; the head
		// partition's postings are recoverable from the source stream.
		slog.Error("unable to load memory partition data, starting empty",
			slog.String("path", path), slog.String("error", err.Error()))
		return p, nil
	}
	if indexKey != "" && state.IndexKey != "" && indexKey != state.IndexKey {
		return nil, fmt.Errorf("leif: memory partition %s: %w", path, ErrKeyMismatch)
	}
	if state.IndexKey != "" {
		p.indexKey = state.IndexKey
	}

	p.termInstanceLimit = state.TermInstanceLimit
	for termID, docs := range state.TermIDHash {
		table := NewDocIDTermInstanceTable()
		for docID, instances := range docs {
			for _, instance := range instances {
				table.Insert(docID, instance)
			}
		}
		p.termIDHash[termID] = table
	}
	return p, nil
}

func (p *MemoryPartition) Name() string { return p.name }

// AddTermInstance records one posting. Only the index's posting worker
// calls this; the partition itself is not synchronized.
func (p *MemoryPartition) AddTermInstance(termID, docID, position, extent uint32) {
	table, ok := p.termIDHash[termID]
	if !ok {
		table = NewDocIDTermInstanceTable()
		p.termIDHash[termID] = table
	}
	table.Insert(docID, TermInstance{Position: position, Extent: extent})
}

func (p *MemoryPartition) Contains(termID uint32) bool {
	_, ok := p.termIDHash[termID]
	return ok
}

func (p *MemoryPartition) TermIDs() []uint32 {
	termIDs := make([]uint32, 0, len(p.termIDHash))
	for termID := range p.termIDHash {
		termIDs = append(termIDs, termID)
	}
	sort.Slice(termIDs, func(i, j int) bool { return termIDs[i] < termIDs[j] })
	return termIDs
}

func (p *MemoryPartition) LookupTermID(termID uint32) DocReader {
	if table, ok := p.termIDHash[termID]; ok {
		return table.Reader()
	}
	return NullDocReader()
}

func (p *MemoryPartition) DeleteTermID(termID uint32) {
	delete(p.termIDHash, termID)
}

// DeleteDocID removes docID's instances from termID's table.
func (p *MemoryPartition) DeleteDocID(termID, docID uint32) {
	if table, ok := p.termIDHash[termID]; ok {
		table.DeleteDoc(docID)
	}
}

func (p *MemoryPartition) CompressTermIDData(termID uint32) (TableHeader, []byte, error) {
	table, ok := p.termIDHash[termID]
	if !ok {
		return TableHeader{}, nil, fmt.Errorf("leif: partition %s term %d: %w", p.name, termID, ErrNoPostingList)
	}
	header, data := CompressTable(table)
	return header, data, nil
}

func (p *MemoryPartition) EstimateSizeOnDisk() int64 {
	var size int64
	for _, table := range p.termIDHash {
		size += EstimateTableSize(table)
	}
	return size
}

func (p *MemoryPartition) TermInstanceCount() int {
	count := 0
	for _, table := range p.termIDHash {
		count += table.TermInstanceCount()
	}
	return count
}

func (p *MemoryPartition) TermInstanceLimit() int { return p.termInstanceLimit }

func (p *MemoryPartition) SetTermInstanceLimit(limit int) { p.termInstanceLimit = limit }

func (p *MemoryPartition) ReachedTermInstanceLimit() bool {
	return p.termInstanceLimit != 0 && p.TermInstanceCount() >= p.termInstanceLimit
}

// ZeroAllData empties the partition and unlinks its checkpoint file.
func (p *MemoryPartition) ZeroAllData() error {
	p.termIDHash = make(map[uint32]*DocIDTermInstanceTable)
	if p.path != "" {
		if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("leif: remove memory partition checkpoint %s: %w", p.path, err)
		}
	}
	return nil
}

// WriteToDisk checkpoints the partition to its backing file. Partitions
// without one are a no-op.
func (p *MemoryPartition) WriteToDisk() error {
	if p.path == "" {
		return nil
	}

	state := memoryPartitionState{
		TermInstanceLimit: p.termInstanceLimit,
		TermIDHash:        make(map[uint32]map[uint32][]TermInstance, len(p.termIDHash)),
		IndexKey:          p.indexKey,
	}
	for termID, table := range p.termIDHash {
		docs := make(map[uint32][]TermInstance, table.DocIDCount())
		docIDs := table.docIDs.Iterator()
		for docIDs.HasNext() {
			docID := docIDs.Next()
			docs[docID] = append([]TermInstance(nil), table.instances[docID]...)
		}
		state.TermIDHash[termID] = docs
	}

	fp, err := os.Create(p.path)
	if err != nil {
		return fmt.Errorf("leif: create memory partition checkpoint %s: %w", p.path, err)
	}
	defer fp.Close()
	if err := gob.NewEncoder(fp).Encode(&state); err != nil {
		return fmt.Errorf("leif: write memory partition checkpoint %s: %w", p.path, err)
	}
	return nil
}
