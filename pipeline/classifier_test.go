package pipeline_test

import (
	"path/filepath"
	"testing"

	"github.com/nuclix-bio/k2r/hashtable"
	"github.com/nuclix-bio/k2r/meros"
	"github.com/nuclix-bio/k2r/pipeline"
	"github.com/nuclix-bio/k2r/scanner"
	"github.com/nuclix-bio/k2r/seqio"
	"github.com/nuclix-bio/k2r/taxonomy"
	"github.com/stretchr/testify/require"
)

// buildTestTable scans seq for its minimizers and inserts all of them
// under taxid, returning a read-only table ready for Classifier use.
func buildTestTable(t *testing.T, seq string, taxid uint32, m meros.Meros) *hashtable.CHTable {
	t.Helper()
	cfg := hashtable.NewHashConfig(10007, 8, 10007)
	path := filepath.Join(t.TempDir(), "hash.k2d")

	mut, err := hashtable.NewCHTableMut(path, cfg, 0)
	require.NoError(t, err)

	tax := &taxonomy.Taxonomy{Nodes: []taxonomy.Node{
		{ParentID: 0, ExternalID: 0},
		{ParentID: 0, ExternalID: 100},
	}}
	for _, h := range scanner.New([]byte(seq), m).All() {
		_, slot := hashtable.SlotFor(h, taxid, cfg)
		require.True(t, mut.CompareAndSet(slot, tax))
	}
	require.NoError(t, mut.Close())

	ro, err := hashtable.OpenCHTable(path, 0, 1)
	require.NoError(t, err)
	t.Cleanup(func() { ro.Close() })
	return ro
}

func twoGenomeTaxonomy() *taxonomy.Taxonomy {
	return &taxonomy.Taxonomy{Nodes: []taxonomy.Node{
		{ParentID: 0, ExternalID: 0},
		{ParentID: 0, ExternalID: 100},
	}}
}

func TestClassifyRecordExactMatch(t *testing.T) {
	m := meros.Meros{K: 12, L: 8}
	seq := "ACGTACGTACGTACGTACGTACGT"
	table := buildTestTable(t, seq, 1, m)
	taxo := twoGenomeTaxonomy()

	c := pipeline.NewClassifier(table, taxo, pipeline.ClassifyOptions{
		Meros:      m,
		Confidence: 0,
	})
	res := c.ClassifyRecord(seqio.Record{ID: "read1", Seq: []byte(seq)})
	require.Equal(t, uint32(1), res.Call)
	require.Equal(t, "read1", res.DNAID)
	require.Greater(t, res.TotalKmers, 0)
}

func TestClassifyRecordUnknownSequenceIsUnclassified(t *testing.T) {
	m := meros.Meros{K: 12, L: 8}
	table := buildTestTable(t, "ACGTACGTACGTACGTACGTACGT", 1, m)
	taxo := twoGenomeTaxonomy()

	c := pipeline.NewClassifier(table, taxo, pipeline.ClassifyOptions{Meros: m, Confidence: 0})
	res := c.ClassifyRecord(seqio.Record{ID: "read2", Seq: []byte("TTTTTTTTTTTTTTTTTTTTTTTT")})
	require.Equal(t, uint32(0), res.Call)
}

func TestClassifyRecordRespectsMinimumHitGroups(t *testing.T) {
	m := meros.Meros{K: 12, L: 8}
	seq := "ACGTACGTACGTACGTACGTACGT"
	table := buildTestTable(t, seq, 1, m)
	taxo := twoGenomeTaxonomy()

	c := pipeline.NewClassifier(table, taxo, pipeline.ClassifyOptions{
		Meros:            m,
		Confidence:       0,
		MinimumHitGroups: 1000, // unreachable
	})
	res := c.ClassifyRecord(seqio.Record{ID: "read1", Seq: []byte(seq)})
	require.Equal(t, uint32(0), res.Call)
}

func TestClassifyPairDoesNotResetLastMinimizerAtBoundary(t *testing.T) {
	m := meros.Meros{K: 8, L: 6}
	seq := "ACGTACGTACGT"
	table := buildTestTable(t, seq, 1, m)
	taxo := twoGenomeTaxonomy()

	c := pipeline.NewClassifier(table, taxo, pipeline.ClassifyOptions{Meros: m, Confidence: 0})
	// Identical mates whose minimizer list starts and ends with the same hash:
	// with last_minimizer carried across the mate boundary, mate2's first hash
	// repeats mate1's last and is not a fresh hit group, so the pair counts one
	// group fewer than twice a single mate (a reset would give exactly twice).
	resPaired := c.ClassifyPair(
		seqio.Record{ID: "r1/1", Seq: []byte(seq)},
		seqio.Record{ID: "r1/2", Seq: []byte(seq)},
	)
	resSingle := c.ClassifyRecord(seqio.Record{ID: "r1/1", Seq: []byte(seq)})
	require.Equal(t, 2*resSingle.HitGroups-1, resPaired.HitGroups)
	require.Equal(t, "r1", resPaired.DNAID)
}

func TestFormatOutputLine(t *testing.T) {
	taxo := twoGenomeTaxonomy()
	classified := pipeline.FormatOutputLine(pipeline.ClassifyResult{DNAID: "read1", Call: 1}, taxo)
	require.Equal(t, "C\tread1\t100", classified)

	unclassified := pipeline.FormatOutputLine(pipeline.ClassifyResult{DNAID: "read2", Call: 0}, taxo)
	require.Equal(t, "U\tread2\t0", unclassified)
}

func TestFormatOutputLineWithHitlist(t *testing.T) {
	taxo := twoGenomeTaxonomy()
	res := pipeline.ClassifyResult{DNAID: "read1", Call: 1, HitList: "1:3 0:1"}
	require.Equal(t, "C\tread1\t100\t1:3 0:1", pipeline.FormatOutputLine(res, taxo))
}
