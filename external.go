// ═══════════════════════════════════════════════════════════════════════════════
// EXTERNAL PARTITION
// ═══════════════════════════════════════════════════════════════════════════════
// An ExternalPartition stores packed posting tables (codec.go) in a single
// backing file and keeps only enough in memory to find them again: a map
// from termId to {offset, length, docIdCount, termInstanceCount}. The
// header map lives in a sidecar metadata file ("<path>.meta") and must be
// written explicitly; the backing file is read through a read-only memory
// map that is re-created after every size change.
//
// MERGE:
// ------
// Merging folds several source partitions into this one in four steps:
//
//  1. GROW the backing file by the sources' combined estimated size
//     (seek to end, write one zero byte at end+B−1, sparse on
//     filesystems that support it).
//  2. RELOCATE the existing tables to the tail of the grown file, walking
//     headers in descending termId order with the write position rewinding
//     from the end. Afterwards the low region of the file is free.
//  3. APPEND merged regions in termIdList order, starting back at offset
//     0. A term held by exactly one source is copied verbatim; a term held
//     by several is decoded into a fresh table and re-encoded. Self always
//     comes last among the sources for a term, and source slots are
//     dropped as soon as the destination has accepted them.
//  4. TRUNCATE to the final write offset and re-map.
//
// Step 3's forward writes never catch the unconsumed tail: the bytes
// appended for termIds below t can never exceed the file size minus the
// relocated bytes still pending for termIds at or above t, and every
// region is copied out of the map into a heap buffer before the write that
// could clobber it. The merge is not crash-consistent: a crash mid-merge
// leaves a file whose metadata predates the write, and the partition must
// be regenerated from its sources (which still hold their data until the
// merge completes).
// ═══════════════════════════════════════════════════════════════════════════════

package leif

import (
	"encoding/gob"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/edsrzf/mmap-go"
)

// DefaultMetadataFileSuffix names the sidecar metadata file.
const DefaultMetadataFileSuffix = ".meta"

// ExternalPartition is an on-disk, memory-mapped index partition.
type ExternalPartition struct {
	name              string
	path              string
	metadataSuffix    string
	indexKey          string
	termInstanceLimit int
	termIDHash        map[uint32]*TableHeader

	mapped mmap.MMap
	fp     *os.File
}

// externalPartitionState is the metadata wire form.
type externalPartitionState struct {
	TermInstanceLimit int
	TermIDHash        map[uint32]*TableHeader
	IndexKey          string
}

// OpenExternalPartition opens the partition at path, loading the sidecar
// metadata if present and mapping the backing file if it exists. A
// caller-supplied indexKey that does not match the persisted one fails
// with ErrKeyMismatch; unreadable metadata is regenerated as empty.
func OpenExternalPartition(name, path, indexKey string) (*ExternalPartition, error) {
	p := &ExternalPartition{
		name:           name,
		path:           path,
		metadataSuffix: DefaultMetadataFileSuffix,
		indexKey:       indexKey,
		termIDHash:     make(map[uint32]*TableHeader),
	}

	metadataPath := path + p.metadataSuffix
	fp, err := os.Open(metadataPath)
	if err == nil {
		slog.Info("external partition metadata found",
			slog.String("partition", name), slog.String("path", metadataPath))
		var state externalPartitionState
		decodeErr := gob.NewDecoder(fp).Decode(&state)
		fp.Close()
		switch {
		case decodeErr != nil:
			slog.Error("unable to load external partition metadata, starting empty",
				slog.String("path", metadataPath), slog.String("error", decodeErr.Error()))
		case indexKey != "" && state.IndexKey != "" && indexKey != state.IndexKey:
			return nil, fmt.Errorf("leif: external partition metadata %s: %w", metadataPath, ErrKeyMismatch)
		default:
			p.termInstanceLimit = state.TermInstanceLimit
			p.termIDHash = state.TermIDHash
			if p.termIDHash == nil {
				p.termIDHash = make(map[uint32]*TableHeader)
			}
			if state.IndexKey != "" {
				p.indexKey = state.IndexKey
			}
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("leif: open external partition metadata %s: %w", metadataPath, err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := p.mapFile(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *ExternalPartition) Name() string { return p.name }

// mapFile opens the backing file and maps it read-only. It must be called
// after every size change; the previous mapping, if any, is released
// first. A zero-length file is left unmapped (mmap of an empty file is an
// error on every platform we care about).
func (p *ExternalPartition) mapFile() error {
	if err := p.unmapFile(); err != nil {
		return err
	}

	info, err := os.Stat(p.path)
	if err != nil {
		return fmt.Errorf("leif: stat external partition %s: %w", p.path, err)
	}
	if info.Size() == 0 {
		return nil
	}

	fp, err := os.Open(p.path)
	if err != nil {
		return fmt.Errorf("leif: open external partition %s: %w", p.path, err)
	}
	mapped, err := mmap.Map(fp, mmap.RDONLY, 0)
	if err != nil {
		fp.Close()
		return fmt.Errorf("leif: map external partition %s: %w", p.path, err)
	}
	p.fp = fp
	p.mapped = mapped
	return nil
}

func (p *ExternalPartition) unmapFile() error {
	if p.mapped != nil {
		if err := p.mapped.Unmap(); err != nil {
			return fmt.Errorf("leif: unmap external partition %s: %w", p.path, err)
		}
		p.mapped = nil
	}
	if p.fp != nil {
		p.fp.Close()
		p.fp = nil
	}
	return nil
}

// Close releases the mapping. Lookup readers must not outlive it.
func (p *ExternalPartition) Close() error {
	return p.unmapFile()
}

// region returns the mapped bytes for a header.
func (p *ExternalPartition) region(header *TableHeader) []byte {
	return p.mapped[header.Offset : header.Offset+header.Length]
}

func (p *ExternalPartition) Contains(termID uint32) bool {
	_, ok := p.termIDHash[termID]
	return ok
}

func (p *ExternalPartition) TermIDs() []uint32 {
	termIDs := make([]uint32, 0, len(p.termIDHash))
	for termID := range p.termIDHash {
		termIDs = append(termIDs, termID)
	}
	sort.Slice(termIDs, func(i, j int) bool { return termIDs[i] < termIDs[j] })
	return termIDs
}

func (p *ExternalPartition) LookupTermID(termID uint32) DocReader {
	header, ok := p.termIDHash[termID]
	if !ok {
		return NullDocReader()
	}
	return NewRegionReader(p.region(header))
}

// DeleteTermID drops the lookup slot only; the packed bytes stay in the
// file until a merge rewrites it.
func (p *ExternalPartition) DeleteTermID(termID uint32) {
	delete(p.termIDHash, termID)
}

// CompressTermIDData returns a copy of the term's packed region. The copy
// matters: merge writes back into the same file the mapping covers.
func (p *ExternalPartition) CompressTermIDData(termID uint32) (TableHeader, []byte, error) {
	header, ok := p.termIDHash[termID]
	if !ok {
		return TableHeader{}, nil, fmt.Errorf("leif: partition %s term %d: %w", p.name, termID, ErrNoPostingList)
	}
	data := make([]byte, header.Length)
	copy(data, p.region(header))
	return *header, data, nil
}

func (p *ExternalPartition) EstimateSizeOnDisk() int64 {
	var size int64
	for _, header := range p.termIDHash {
		size += header.Length
	}
	return size
}

func (p *ExternalPartition) TermInstanceCount() int {
	count := 0
	for _, header := range p.termIDHash {
		count += header.TermInstanceCount
	}
	return count
}

func (p *ExternalPartition) TermInstanceLimit() int { return p.termInstanceLimit }

func (p *ExternalPartition) SetTermInstanceLimit(limit int) { p.termInstanceLimit = limit }

func (p *ExternalPartition) ReachedTermInstanceLimit() bool {
	return p.termInstanceLimit != 0 && p.TermInstanceCount() >= p.termInstanceLimit
}

// ZeroAllData drops every slot, removes the metadata file, and truncates
// the backing file to nothing. The file itself stays on disk so the
// partition keeps its place in the hierarchy.
func (p *ExternalPartition) ZeroAllData() error {
	p.termIDHash = make(map[uint32]*TableHeader)
	metadataPath := p.path + p.metadataSuffix
	if err := os.Remove(metadataPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("leif: remove external partition metadata %s: %w", metadataPath, err)
	}
	if err := p.unmapFile(); err != nil {
		return err
	}
	fp, err := os.Create(p.path)
	if err != nil {
		return fmt.Errorf("leif: truncate external partition %s: %w", p.path, err)
	}
	return fp.Close()
}

// WriteToDisk persists the header map to the sidecar metadata file.
func (p *ExternalPartition) WriteToDisk() error {
	metadataPath := p.path + p.metadataSuffix
	fp, err := os.Create(metadataPath)
	if err != nil {
		return fmt.Errorf("leif: create external partition metadata %s: %w", metadataPath, err)
	}
	defer fp.Close()

	state := externalPartitionState{
		TermInstanceLimit: p.termInstanceLimit,
		TermIDHash:        p.termIDHash,
		IndexKey:          p.indexKey,
	}
	if err := gob.NewEncoder(fp).Encode(&state); err != nil {
		return fmt.Errorf("leif: write external partition metadata %s: %w", metadataPath, err)
	}
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// MERGE
// ═══════════════════════════════════════════════════════════════════════════════

// MergePartitions folds the sources into this partition. termIDList must
// hold, in ascending order, every termId present in any source or in the
// destination; the merged partition ends up with exactly one region per
// listed term that anyone held. Source slots are dropped as their data is
// accepted; callers ZeroAllData the sources afterwards to reclaim their
// files.
func (p *ExternalPartition) MergePartitions(termIDList []uint32, sources ...Partition) error {
	spaceNeeded := int64(0)
	for _, source := range sources {
		spaceNeeded += source.EstimateSizeOnDisk()
	}

	if err := p.growPartitionFile(spaceNeeded); err != nil {
		return err
	}
	if err := p.relocateTablesToTail(); err != nil {
		return err
	}

	wp, err := os.OpenFile(p.path, os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("leif: open external partition %s for merge: %w", p.path, err)
	}
	defer wp.Close()

	writeOffset := int64(0)
	for _, termID := range termIDList {
		var holders []Partition
		for _, source := range sources {
			if source.Contains(termID) {
				holders = append(holders, source)
			}
		}
		// Self always comes last: its region is already in the tail and
		// re-enters in place.
		if p.Contains(termID) {
			holders = append(holders, p)
		}
		if len(holders) == 0 {
			continue
		}

		var header TableHeader
		var data []byte
		if len(holders) == 1 {
			// Verbatim copy straight from the single holder.
			header, data, err = holders[0].CompressTermIDData(termID)
			if err != nil {
				return err
			}
		} else {
			// Several holders: union into a fresh table and re-encode.
			table := NewDocIDTermInstanceTable()
			for _, holder := range holders {
				reader := holder.LookupTermID(termID)
				for {
					postings, ok := reader.Next()
					if !ok {
						break
					}
					for {
						instance, ok := postings.Instances.Next()
						if !ok {
							break
						}
						table.Insert(postings.DocID, instance)
					}
				}
				if regionReader, ok := reader.(*RegionReader); ok {
					if err := regionReader.Err(); err != nil {
						return err
					}
				}
			}
			header, data = CompressTable(table)
		}

		if _, err := wp.WriteAt(data, writeOffset); err != nil {
			return fmt.Errorf("leif: write merged region for term %d: %w", termID, err)
		}
		header.Offset = writeOffset
		header.Length = int64(len(data))
		writeOffset += header.Length
		p.termIDHash[termID] = &header

		for _, holder := range holders {
			if holder != Partition(p) {
				holder.DeleteTermID(termID)
			}
		}
	}

	if err := wp.Truncate(writeOffset); err != nil {
		return fmt.Errorf("leif: truncate external partition %s: %w", p.path, err)
	}
	slog.Info("external partition truncated",
		slog.String("partition", p.name), slog.Int64("size", writeOffset))

	return p.mapFile()
}

// growPartitionFile extends the backing file by howMuch bytes and
// re-maps. The extension writes a single zero byte at the new end, which
// is a sparse extension on filesystems that support holes.
func (p *ExternalPartition) growPartitionFile(howMuch int64) error {
	var fp *os.File
	var err error
	if _, statErr := os.Stat(p.path); os.IsNotExist(statErr) {
		slog.Info("creating external partition", slog.String("path", p.path))
		fp, err = os.Create(p.path)
	} else {
		slog.Info("extending external partition", slog.String("path", p.path))
		fp, err = os.OpenFile(p.path, os.O_RDWR, 0o644)
	}
	if err != nil {
		return fmt.Errorf("leif: grow external partition %s: %w", p.path, err)
	}
	defer fp.Close()

	previousSize, err := fp.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("leif: grow external partition %s: %w", p.path, err)
	}
	if howMuch > 0 {
		if _, err := fp.WriteAt([]byte{0}, previousSize+howMuch-1); err != nil {
			return fmt.Errorf("leif: grow external partition %s: %w", p.path, err)
		}
	}
	slog.Info("external partition grew",
		slog.String("partition", p.name),
		slog.Int64("bytes", howMuch),
		slog.Int64("size", previousSize+howMuch))

	return p.mapFile()
}

// relocateTablesToTail copies every existing region to the moving tail of
// the grown file, in descending termId order, updating each header as it
// lands. Every copy is staged through a heap buffer, so a region whose
// destination overlaps its source cannot corrupt itself.
func (p *ExternalPartition) relocateTablesToTail() error {
	if len(p.termIDHash) == 0 {
		return nil
	}

	wp, err := os.OpenFile(p.path, os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("leif: open external partition %s for relocation: %w", p.path, err)
	}
	defer wp.Close()

	tail, err := wp.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("leif: relocate external partition %s: %w", p.path, err)
	}

	termIDs := p.TermIDs()
	for i := len(termIDs) - 1; i >= 0; i-- {
		header := p.termIDHash[termIDs[i]]
		data := make([]byte, header.Length)
		copy(data, p.region(header))

		tail -= header.Length
		if _, err := wp.WriteAt(data, tail); err != nil {
			return fmt.Errorf("leif: relocate region for term %d: %w", termIDs[i], err)
		}
		header.Offset = tail
	}
	return nil
}
