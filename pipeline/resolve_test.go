package pipeline_test

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/nuclix-bio/k2r/hashtable"
	"github.com/nuclix-bio/k2r/meros"
	"github.com/nuclix-bio/k2r/pipeline"
	"github.com/nuclix-bio/k2r/scanner"
	"github.com/nuclix-bio/k2r/taxonomy"
	"github.com/stretchr/testify/require"
)

func TestSplitThenResolveClassifiesAKnownRead(t *testing.T) {
	dir := t.TempDir()
	m := meros.Meros{K: 12, L: 8}
	seq := "ACGTACGTACGTACGTACGTACGT"

	cfg := hashtable.NewHashConfig(4001, 8, 4001)
	hashPath := filepath.Join(dir, "hash.k2d")
	mut, err := hashtable.NewCHTableMut(hashPath, cfg, 0)
	require.NoError(t, err)
	tax := &taxonomy.Taxonomy{Nodes: []taxonomy.Node{
		{ParentID: 0, ExternalID: 0},
		{ParentID: 0, ExternalID: 100},
	}}
	inserted := 0
	for _, h := range scanner.New([]byte(seq), m).All() {
		_, slot := hashtable.SlotFor(h, 1, cfg)
		if mut.CompareAndSet(slot, tax) {
			inserted++
		}
	}
	require.NoError(t, mut.Close())
	require.Greater(t, inserted, 0)

	path := writeFastaFile(t, dir, "reads.fa", map[string]string{"read1": seq})
	sp := pipeline.NewSplitPipeline(pipeline.SplitOptions{
		Meros:      m,
		ChunkDir:   dir,
		HashConfig: cfg,
	})
	require.NoError(t, sp.RunUnpaired([]string{path}))

	fileIndices, err := pipeline.ListFileIndices(filepath.Join(dir, "sample_file.map"))
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, fileIndices)

	rp := pipeline.NewResolvePipeline(pipeline.ResolveOptions{
		ChunkDir:     dir,
		HashFilename: hashPath,
	}, tax)
	results, err := rp.Run(fileIndices, 1)
	require.NoError(t, err)

	lines := results[1]
	require.Len(t, lines, 1)
	require.True(t, strings.HasPrefix(lines[0], "C\tread1\t100"))
}
