package hashtable_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nuclix-bio/k2r/hashtable"
	"github.com/nuclix-bio/k2r/taxonomy"
	"github.com/stretchr/testify/require"
)

// threeGenomeTaxonomy returns a taxonomy where 2 and 3 share parent 1.
func threeGenomeTaxonomy() *taxonomy.Taxonomy {
	return &taxonomy.Taxonomy{
		Nodes: []taxonomy.Node{
			{},
			{ParentID: 0, ExternalID: 1, Rank: "root"},
			{ParentID: 1, ExternalID: 10, Rank: "species"},
			{ParentID: 1, ExternalID: 20, Rank: "species"},
		},
	}
}

func TestHashConfigHeaderRoundTrip(t *testing.T) {
	cfg := hashtable.NewHashConfig(1000, 8, 250)
	path := filepath.Join(t.TempDir(), "hash_config.k2d")
	require.NoError(t, hashtable.WriteHashConfigHeader(path, cfg))

	got, err := hashtable.ReadHashConfigHeader(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Capacity, got.Capacity)
	require.Equal(t, cfg.ValueBits, got.ValueBits)
	require.Equal(t, cfg.HashSize, got.HashSize)
}

func TestSlotForPartitioning(t *testing.T) {
	cfg := hashtable.NewHashConfig(1000, 8, 250)
	for hash := uint64(0); hash < 1000; hash += 37 {
		part, slot := hashtable.SlotFor(hash, 5, cfg)
		require.GreaterOrEqual(t, part, 0)
		require.Less(t, part, cfg.PartitionCount())
		require.Less(t, slot.Idx, cfg.HashSize)
	}
}

func TestCompareAndSetInsertsAndReads(t *testing.T) {
	cfg := hashtable.NewHashConfig(100, 8, 100)
	path := filepath.Join(t.TempDir(), "hash.k2d")

	mut, err := hashtable.NewCHTableMut(path, cfg, 0)
	require.NoError(t, err)

	tax := threeGenomeTaxonomy()
	_, slot := hashtable.SlotFor(42, 1, cfg)
	require.True(t, mut.CompareAndSet(slot, tax))
	require.NoError(t, mut.Close())

	ro, err := hashtable.OpenCHTable(path, 0, 1)
	require.NoError(t, err)
	defer ro.Close()
	require.Equal(t, uint32(1), ro.Get(42))
	require.Equal(t, uint32(0), ro.Get(99999))
}

func TestCompareAndSetMergesOnFingerprintCollision(t *testing.T) {
	cfg := hashtable.NewHashConfig(100, 8, 100)
	path := filepath.Join(t.TempDir(), "hash.k2d")

	mut, err := hashtable.NewCHTableMut(path, cfg, 0)
	require.NoError(t, err)
	tax := threeGenomeTaxonomy()

	_, slotA := hashtable.SlotFor(7, 1, cfg)
	_, slotB := hashtable.SlotFor(7, 2, cfg)
	require.True(t, mut.CompareAndSet(slotA, tax))
	require.True(t, mut.CompareAndSet(slotB, tax))
	require.NoError(t, mut.Close())

	ro, err := hashtable.OpenCHTable(path, 0, 1)
	require.NoError(t, err)
	defer ro.Close()
	require.Equal(t, tax.LCA(1, 2), ro.Get(7))
}

func TestChunkWriterReaderRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "k2_chunk_0.bin")
	w, err := hashtable.CreateChunkWriter(path, 3, 10)
	require.NoError(t, err)

	want := []hashtable.Slot{{Idx: 1, Payload: 100}, {Idx: 2, Payload: 200}, {Idx: 3, Payload: 300}}
	for _, s := range want {
		require.NoError(t, w.WriteSlot(s))
	}
	require.NoError(t, w.Close())

	r, err := hashtable.OpenChunkReader(path)
	require.NoError(t, err)
	defer r.Close()
	require.Equal(t, 3, r.PartitionIndex())
	require.Equal(t, uint64(10), r.ChunkCellCount())

	var got []hashtable.Slot
	for {
		s, ok, err := r.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, s)
	}
	require.Equal(t, want, got)
}

func TestOpenCHTableRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.k2d")
	require.NoError(t, os.WriteFile(path, make([]byte, 64), 0o644))
	_, err := hashtable.OpenCHTable(path, 0, 1)
	require.Error(t, err)
}
