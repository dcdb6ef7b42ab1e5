package leif

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// ═══════════════════════════════════════════════════════════════════════════════
// MEMORY PARTITION TESTS
// ═══════════════════════════════════════════════════════════════════════════════

func TestMemoryPartition_AddAndLookup(t *testing.T) {
	p, err := OpenMemoryPartition("head", "", "")
	require.NoError(t, err)

	p.AddTermInstance(0, 9, 7, 0)
	p.AddTermInstance(0, 3, 2, 0)
	p.AddTermInstance(0, 3, 0, 1)
	p.AddTermInstance(1, 3, 5, 0)

	got := drainReader(t, p.LookupTermID(0))
	require.Equal(t, map[uint32][]TermInstance{
		3: {{Position: 0, Extent: 1}, {Position: 2}},
		9: {{Position: 7}},
	}, got)

	require.Equal(t, 4, p.TermInstanceCount())
	require.Equal(t, []uint32{0, 1}, p.TermIDs())
}

func TestMemoryPartition_LookupUnknownTerm(t *testing.T) {
	p, err := OpenMemoryPartition("head", "", "")
	require.NoError(t, err)

	_, ok := p.LookupTermID(42).Next()
	require.False(t, ok)
}

func TestMemoryPartition_ReachedTermInstanceLimit(t *testing.T) {
	p, err := OpenMemoryPartition("head", "", "")
	require.NoError(t, err)

	if p.ReachedTermInstanceLimit() {
		t.Fatal("no limit set, limit cannot be reached")
	}
	p.SetTermInstanceLimit(2)
	p.AddTermInstance(0, 1, 0, 0)
	if p.ReachedTermInstanceLimit() {
		t.Fatal("one instance of two, limit not reached")
	}
	p.AddTermInstance(0, 1, 1, 0)
	if !p.ReachedTermInstanceLimit() {
		t.Fatal("two instances of two, limit reached")
	}
}

func TestMemoryPartition_CheckpointRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "head.MMP")

	p, err := OpenMemoryPartition("head", path, "k1")
	require.NoError(t, err)
	p.SetTermInstanceLimit(64)
	p.AddTermInstance(0, 7, 0, 0)
	p.AddTermInstance(0, 7, 3, 2)
	p.AddTermInstance(5, 9, 1, 0)
	require.NoError(t, p.WriteToDisk())

	reopened, err := OpenMemoryPartition("head", path, "k1")
	require.NoError(t, err)
	require.Equal(t, 64, reopened.TermInstanceLimit())
	require.Equal(t, 3, reopened.TermInstanceCount())
	require.Equal(t, map[uint32][]TermInstance{
		7: {{Position: 0}, {Position: 3, Extent: 2}},
	}, drainReader(t, reopened.LookupTermID(0)))
}

func TestMemoryPartition_CheckpointKeyMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "head.MMP")

	p, err := OpenMemoryPartition("head", path, "k1")
	require.NoError(t, err)
	p.AddTermInstance(0, 1, 0, 0)
	require.NoError(t, p.WriteToDisk())

	_, err = OpenMemoryPartition("head", path, "k2")
	require.ErrorIs(t, err, ErrKeyMismatch)
}

func TestMemoryPartition_ZeroAllData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "head.MMP")

	p, err := OpenMemoryPartition("head", path, "")
	require.NoError(t, err)
	p.AddTermInstance(0, 1, 0, 0)
	require.NoError(t, p.WriteToDisk())
	require.NoError(t, p.ZeroAllData())

	require.Equal(t, 0, p.TermInstanceCount())
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err), "checkpoint file should be unlinked")
}

func TestMemoryPartition_EstimateSizeOnDisk(t *testing.T) {
	p, err := OpenMemoryPartition("head", "", "")
	require.NoError(t, err)
	p.AddTermInstance(0, 1, 0, 0)
	p.AddTermInstance(0, 1, 1, 0)
	p.AddTermInstance(0, 2, 0, 0)
	p.AddTermInstance(3, 1, 0, 0)

	// term 0: two blocks (8+16, 8+8); term 3: one block (8+8).
	require.Equal(t, int64(56), p.EstimateSizeOnDisk())

	header, data, err := p.CompressTermIDData(0)
	require.NoError(t, err)
	require.Equal(t, int64(40), header.Length)
	require.Len(t, data, 40)
}

func TestOpenIndexPartition_SelectsVariant(t *testing.T) {
	dir := t.TempDir()

	memory, err := OpenIndexPartition("head", ":memory:", "")
	require.NoError(t, err)
	require.IsType(t, &MemoryPartition{}, memory)

	external, err := OpenIndexPartition("EXP1", filepath.Join(dir, "idx.EXP1"), "")
	require.NoError(t, err)
	require.IsType(t, &ExternalPartition{}, external)
}
