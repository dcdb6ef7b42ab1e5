// ═══════════════════════════════════════════════════════════════════════════════
// BINARY POSTING-LIST CODEC
// ═══════════════════════════════════════════════════════════════════════════════
// One posting table serializes to one packed region: a back-to-back run of
// per-document blocks in ascending docId order.
//
// BLOCK LAYOUT (all fields big-endian uint32):
// --------------------------------------------
//
//	┌────────────┬────────┬───────┬────────┬───────┬────────┬─────┐
//	│ skipOffset │ docId  │ pos_0 │ ext_0  │ pos_1 │ ext_1  │ ... │
//	└────────────┴────────┴───────┴────────┴───────┴────────┴─────┘
//
// skipOffset is the byte distance from the start of the docId field to the
// start of the next block: 4 + 8·n for a block of n instances. A reader
// that does not care about a document's positions hops straight to the
// next block with one addition.
//
// The codec is the identity "compressor": the layout reserves no room for
// an encoding scheme and the bytes on disk are the raw values. Any future
// codec must keep producing the same table headers and must keep the
// blocks streamable.
// ═══════════════════════════════════════════════════════════════════════════════

package leif

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Disk layout constants. Positions and extents share a width, which the
// block reader relies on when converting a skipOffset into an instance
// count.
const (
	skipOffsetSizeInBytes   = 4
	docIDSizeInBytes        = 4
	positionSizeInBytes     = 4
	extentSizeInBytes       = 4
	termInstanceSizeInBytes = positionSizeInBytes + extentSizeInBytes
	blockHeaderSizeInBytes  = skipOffsetSizeInBytes + docIDSizeInBytes
)

// TableHeader locates one packed posting table inside a partition file and
// carries the counts a partition needs without touching the bytes.
type TableHeader struct {
	Offset            int64
	Length            int64
	DocIDCount        int
	TermInstanceCount int
}

// DocPostings is one document's slice of a posting stream: the docId and a
// lazy reader over its term instances. The pair is deliberately opaque:
// consumers pull instances on demand and flattening operators never expand
// it.
type DocPostings struct {
	DocID     uint32
	Instances InstanceReader
}

// InstanceReader streams TermInstances in ascending position order.
type InstanceReader interface {
	Next() (TermInstance, bool)
}

// DocReader streams (docId, instances) pairs in ascending docId order.
type DocReader interface {
	Next() (DocPostings, bool)
}

// EstimateTableSize returns an upper bound on the packed size of a table:
// one block header plus one instance record per posting. The identity
// codec meets the bound exactly; a smarter codec may come in under it.
func EstimateTableSize(table *DocIDTermInstanceTable) int64 {
	return int64(table.DocIDCount())*blockHeaderSizeInBytes +
		int64(table.TermInstanceCount())*termInstanceSizeInBytes
}

// CompressTable packs a posting table into its on-disk form.
//
// Documents are emitted in ascending docId order and instances in
// ascending position order within each document. The returned header
// carries the region length and counts; the offset is left zero for the
// caller to fill in once it knows where the bytes land.
func CompressTable(table *DocIDTermInstanceTable) (TableHeader, []byte) {
	var buf bytes.Buffer
	buf.Grow(int(EstimateTableSize(table)))

	docIDs := table.docIDs.Iterator()
	for docIDs.HasNext() {
		docID := docIDs.Next()
		instances := table.instances[docID]
		writeBlock(&buf, docID, instances)
	}

	header := TableHeader{
		Length:            int64(buf.Len()),
		DocIDCount:        table.DocIDCount(),
		TermInstanceCount: table.TermInstanceCount(),
	}
	return header, buf.Bytes()
}

// writeBlock emits one per-document block. instances must already be
// position-sorted, which DocIDTermInstanceTable.Insert guarantees.
func writeBlock(buf *bytes.Buffer, docID uint32, instances []TermInstance) {
	skipOffset := uint32(docIDSizeInBytes + len(instances)*termInstanceSizeInBytes)

	var word [4]byte
	binary.BigEndian.PutUint32(word[:], skipOffset)
	buf.Write(word[:])
	binary.BigEndian.PutUint32(word[:], docID)
	buf.Write(word[:])
	for _, instance := range instances {
		binary.BigEndian.PutUint32(word[:], instance.Position)
		buf.Write(word[:])
		binary.BigEndian.PutUint32(word[:], instance.Extent)
		buf.Write(word[:])
	}
}

// DecompressTable rebuilds an in-memory posting table from a packed
// region. Used on the merge path when several sources hold the same term
// and their regions must be unioned before re-encoding.
func DecompressTable(region []byte) (*DocIDTermInstanceTable, error) {
	table := NewDocIDTermInstanceTable()
	reader := NewRegionReader(region)
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
	if err := reader.Err(); err != nil {
		return nil, err
	}
	return table, nil
}

// RegionReader walks the blocks of a packed region, yielding one
// DocPostings per block. The skipOffset field drives the walk; position
// data is only decoded if the caller pulls on the instance reader.
type RegionReader struct {
	region []byte
	offset int
	err    error
}

// NewRegionReader reads packed blocks from region, which is typically a
// sub-slice of a memory-mapped partition file.
func NewRegionReader(region []byte) *RegionReader {
	return &RegionReader{region: region}
}

func (r *RegionReader) Next() (DocPostings, bool) {
	if r.err != nil || r.offset >= len(r.region) {
		return DocPostings{}, false
	}
	if len(r.region)-r.offset < blockHeaderSizeInBytes {
		r.err = fmt.Errorf("leif: truncated posting block header at offset %d: %w", r.offset, ErrCorruptRegion)
		return DocPostings{}, false
	}

	skipOffset := binary.BigEndian.Uint32(r.region[r.offset:])
	docID := binary.BigEndian.Uint32(r.region[r.offset+skipOffsetSizeInBytes:])

	instanceBytes := int(skipOffset) - docIDSizeInBytes
	if instanceBytes < 0 || instanceBytes%termInstanceSizeInBytes != 0 {
		r.err = fmt.Errorf("leif: bad skipOffset %d at offset %d: %w", skipOffset, r.offset, ErrCorruptRegion)
		return DocPostings{}, false
	}
	start := r.offset + blockHeaderSizeInBytes
	if start+instanceBytes > len(r.region) {
		r.err = fmt.Errorf("leif: truncated posting block at offset %d: %w", r.offset, ErrCorruptRegion)
		return DocPostings{}, false
	}

	// skipOffset is measured from the docId field.
	r.offset += skipOffsetSizeInBytes + int(skipOffset)

	return DocPostings{
		DocID:     docID,
		Instances: &regionInstanceReader{data: r.region[start : start+instanceBytes]},
	}, true
}

// Err reports a malformed region encountered during the walk. A clean
// end-of-region returns nil.
func (r *RegionReader) Err() error {
	return r.err
}

// regionInstanceReader decodes (position, extent) pairs straight out of the
// mapped bytes, one pair per pull.
type regionInstanceReader struct {
	data   []byte
	offset int
}

func (r *regionInstanceReader) Next() (TermInstance, bool) {
	if r.offset+termInstanceSizeInBytes > len(r.data) {
		return TermInstance{}, false
	}
	instance := TermInstance{
		Position: binary.BigEndian.Uint32(r.data[r.offset:]),
		Extent:   binary.BigEndian.Uint32(r.data[r.offset+positionSizeInBytes:]),
	}
	r.offset += termInstanceSizeInBytes
	return instance, true
}

// emptyDocReader is the reader for a term the index has never seen.
type emptyDocReader struct{}

func (emptyDocReader) Next() (DocPostings, bool) { return DocPostings{}, false }

// NullDocReader returns a reader that yields nothing. Lookups on unknown
// terms return it so callers never branch on a missing posting list.
func NullDocReader() DocReader { return emptyDocReader{} }
