package pipeline_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nuclix-bio/k2r/hashtable"
	"github.com/nuclix-bio/k2r/meros"
	"github.com/nuclix-bio/k2r/pipeline"
	"github.com/stretchr/testify/require"
)

func writeFastaFile(t *testing.T, dir, name string, records map[string]string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	var body string
	for id, seq := range records {
		body += ">" + id + "\n" + seq + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func writeFastqFile(t *testing.T, dir, name string, id, seq string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	qual := make([]byte, len(seq))
	for i := range qual {
		qual[i] = 'I'
	}
	body := "@" + id + "\n" + seq + "\n+\n" + string(qual) + "\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestGetLatestFileIndexMissingFile(t *testing.T) {
	idx, err := pipeline.GetLatestFileIndex(filepath.Join(t.TempDir(), "sample_file.map"))
	require.NoError(t, err)
	require.Equal(t, 0, idx)
}

func TestSplitPipelineRunUnpairedWritesChunksAndIDMap(t *testing.T) {
	dir := t.TempDir()
	path := writeFastaFile(t, dir, "reads.fa", map[string]string{
		"read1": "ACGTACGTACGTACGTACGTACGT",
	})

	cfg := hashtable.NewHashConfig(4001, 8, 4001)
	sp := pipeline.NewSplitPipeline(pipeline.SplitOptions{
		Meros:      meros.Meros{K: 12, L: 8},
		ChunkDir:   dir,
		HashConfig: cfg,
	})
	require.NoError(t, sp.RunUnpaired([]string{path}))

	idx, err := pipeline.GetLatestFileIndex(filepath.Join(dir, "sample_file.map"))
	require.NoError(t, err)
	require.Equal(t, 1, idx)

	idMapBytes, err := os.ReadFile(filepath.Join(dir, "sample_id_1.map"))
	require.NoError(t, err)
	require.Contains(t, string(idMapBytes), "read1")

	reader, err := hashtable.OpenChunkReader(filepath.Join(dir, "sample_0.bin"))
	require.NoError(t, err)
	defer reader.Close()
	_, ok, err := reader.Next()
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSplitPipelineRunPairedRejectsOddFileCount(t *testing.T) {
	dir := t.TempDir()
	cfg := hashtable.NewHashConfig(4001, 8, 4001)
	sp := pipeline.NewSplitPipeline(pipeline.SplitOptions{
		Meros:      meros.Meros{K: 12, L: 8},
		ChunkDir:   dir,
		HashConfig: cfg,
	})
	err := sp.RunPaired([]string{"only_one.fq"})
	require.Error(t, err)
}

func TestSplitPipelineRunPairedWritesOneSeqIDPerPair(t *testing.T) {
	dir := t.TempDir()
	seq := "ACGTACGTACGTACGTACGTACGT"
	p1 := writeFastqFile(t, dir, "r_1.fq", "pair1/1", seq)
	p2 := writeFastqFile(t, dir, "r_2.fq", "pair1/2", seq)

	cfg := hashtable.NewHashConfig(4001, 8, 4001)
	sp := pipeline.NewSplitPipeline(pipeline.SplitOptions{
		Meros:               meros.Meros{K: 12, L: 8},
		PairedEndProcessing: true,
		ChunkDir:            dir,
		HashConfig:          cfg,
	})
	require.NoError(t, sp.RunPaired([]string{p1, p2}))

	idMapBytes, err := os.ReadFile(filepath.Join(dir, "sample_id_1.map"))
	require.NoError(t, err)
	require.Contains(t, string(idMapBytes), "pair1")
	require.Equal(t, 1, strings.Count(string(idMapBytes), "\n"))

	reader, err := hashtable.OpenChunkReader(filepath.Join(dir, "sample_0.bin"))
	require.NoError(t, err)
	defer reader.Close()
	count := 0
	for {
		_, ok, err := reader.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		count++
	}
	require.Greater(t, count, 0)
}

func TestSplitPipelineResumesFileIndexAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	path1 := writeFastaFile(t, dir, "batch1.fa", map[string]string{"a": "ACGTACGTACGTACGTACGTACGT"})
	cfg := hashtable.NewHashConfig(4001, 8, 4001)
	sp := pipeline.NewSplitPipeline(pipeline.SplitOptions{
		Meros:      meros.Meros{K: 12, L: 8},
		ChunkDir:   dir,
		HashConfig: cfg,
	})
	require.NoError(t, sp.RunUnpaired([]string{path1}))

	path2 := writeFastaFile(t, dir, "batch2.fa", map[string]string{"b": "TTTTGGGGCCCCAAAATTTTGGGG"})
	require.NoError(t, sp.RunUnpaired([]string{path2}))

	idx, err := pipeline.GetLatestFileIndex(filepath.Join(dir, "sample_file.map"))
	require.NoError(t, err)
	require.Equal(t, 2, idx)

	_, err = os.Stat(filepath.Join(dir, "sample_id_2.map"))
	require.NoError(t, err)
}
