package pipeline_test

import (
	"path/filepath"
	"testing"

	"github.com/nuclix-bio/k2r/hashtable"
	"github.com/nuclix-bio/k2r/meros"
	"github.com/nuclix-bio/k2r/pipeline"
	"github.com/nuclix-bio/k2r/scanner"
	"github.com/nuclix-bio/k2r/taxonomy"
	"github.com/stretchr/testify/require"
)

func smallBuildTaxonomy() *taxonomy.Taxonomy {
	return &taxonomy.Taxonomy{Nodes: []taxonomy.Node{
		{ParentID: 0, ExternalID: 0},
		{ParentID: 0, ExternalID: 1000},
		{ParentID: 1, ExternalID: 2000},
	}}
}

func TestBuildPipelineEndToEnd(t *testing.T) {
	dir := t.TempDir()
	tax := smallBuildTaxonomy()

	opts := pipeline.BuildOptions{
		Meros:           meros.Meros{K: 12, L: 8},
		Capacity:        4001,
		RequestedBits:   8,
		ChunkSize:       4001, // single partition
		ChunkDir:        dir,
		ChunkPrefix:     "chunk",
		HashFilename:    filepath.Join(dir, "hash.k2d"),
		OptionsFilename: filepath.Join(dir, "opts.k2d"),
	}
	bp := pipeline.NewBuildPipeline(opts, tax)

	genomes := []pipeline.SourceGenome{
		{ID: "genomeA", Seq: []byte("ACGTACGTACGTACGTACGTACGTACGT")},
		{ID: "genomeB", Seq: []byte("TTTTGGGGCCCCAAAATTTTGGGGCCCC")},
	}
	idToTaxon := map[string]uint32{"genomeA": 1, "genomeB": 2}

	require.NoError(t, bp.Run(genomes, idToTaxon))

	gotOpts, err := meros.ReadIndexOptions(opts.OptionsFilename)
	require.NoError(t, err)
	require.Equal(t, 12, gotOpts.Meros.K)

	cfg, err := hashtable.ReadHashConfigHeader(filepath.Join(dir, "hash_config.k2d"))
	require.NoError(t, err)
	require.Equal(t, opts.Capacity, cfg.Capacity)

	table, err := hashtable.OpenCHTable(opts.HashFilename, 0, 1)
	require.NoError(t, err)
	defer table.Close()

	// At least one minimizer from genomeA should resolve to taxid 1.
	var found bool
	for _, h := range scanner.New(genomes[0].Seq, opts.Meros).All() {
		if table.Get(h) == 1 {
			found = true
			break
		}
	}
	require.True(t, found)
}
