package pipeline

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"

	"github.com/nuclix-bio/k2r/hashtable"
	"github.com/nuclix-bio/k2r/taxonomy"
)

// ResolveOptions parameters the final, partitioned taxonomy-resolution pass
// over a split sample directory.
type ResolveOptions struct {
	Confidence       float64
	MinimumHitGroups int
	ChunkDir         string
	HashFilename     string
}

// sampleRead accumulates what a resolve pass knows about one seq_id: its
// source dna_id, its total k-mer count, and its per-taxon hit counts.
type sampleRead struct {
	dnaID      string
	totalKmers int
	hits       map[uint32]uint64
}

// ResolvePipeline re-derives each split read's taxon calls by joining its
// partitioned minimizer-hash records against the finished compact hash
// table, one partition at a time, then applying ResolveTree per seq_id.
type ResolvePipeline struct {
	opts ResolveOptions
	taxo *taxonomy.Taxonomy
}

// NewResolvePipeline builds a ResolvePipeline over an already-loaded taxonomy.
func NewResolvePipeline(opts ResolveOptions, taxo *taxonomy.Taxonomy) *ResolvePipeline {
	return &ResolvePipeline{opts: opts, taxo: taxo}
}

// readIDMap loads a sample_id_<fileIndex>.map file: index, dna_id, kmer_count.
func readIDMap(path string) (map[uint64]sampleRead, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pipeline: open %s: %w", path, err)
	}
	defer f.Close()

	reads := make(map[uint64]sampleRead)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) != 3 {
			continue
		}
		localIdx, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			continue
		}
		kmerCount, err := strconv.Atoi(fields[2])
		if err != nil {
			continue
		}
		reads[localIdx] = sampleRead{dnaID: fields[1], totalKmers: kmerCount, hits: map[uint32]uint64{}}
	}
	return reads, scanner.Err()
}

// CountValues folds one partition's sample_<i>.bin records into a running
// seq_id -> per-taxon hit-count accumulator, looking each minimizer hash up
// in that partition's slice of the finished table.
func CountValues(chunkPath string, table *hashtable.CHTable, byFileIndex map[uint64]map[uint64]sampleRead) error {
	reader, err := hashtable.OpenChunkReader(chunkPath)
	if err != nil {
		return err
	}
	defer reader.Close()

	for {
		slot, ok, err := reader.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		taxid := table.Get(slot.Idx)
		if taxid == 0 {
			continue
		}
		seqID := slot.Payload
		fileIndex := seqID >> 32
		localIdx := seqID & 0xFFFFFFFF

		fileReads, ok := byFileIndex[fileIndex]
		if !ok {
			continue
		}
		read, ok := fileReads[localIdx]
		if !ok {
			continue
		}
		read.hits[taxid]++
		fileReads[localIdx] = read
	}
	return nil
}

// Run processes every sample_<i>.bin partition against the finished table
// and returns one classification line per read, keyed by file_index so
// results can be written out in the original per-file order.
func (p *ResolvePipeline) Run(fileIndices []uint64, partitionCount int) (map[uint64][]string, error) {
	byFileIndex := make(map[uint64]map[uint64]sampleRead, len(fileIndices))
	for _, fi := range fileIndices {
		idMapPath := fmt.Sprintf("%s/sample_id_%d.map", p.opts.ChunkDir, fi)
		reads, err := readIDMap(idMapPath)
		if err != nil {
			return nil, err
		}
		byFileIndex[fi] = reads
	}

	bar := progressbar.NewOptions(partitionCount,
		progressbar.OptionSetDescription("resolve: folding partitions"),
		progressbar.OptionSetVisibility(isTTY(os.Stderr)),
	)
	for i := 0; i < partitionCount; i++ {
		chunkPath := fmt.Sprintf("%s/sample_%d.bin", p.opts.ChunkDir, i)
		table, err := hashtable.OpenCHTable(p.opts.HashFilename, i, 1)
		if err != nil {
			return nil, err
		}
		err = CountValues(chunkPath, table, byFileIndex)
		table.Close()
		if err != nil {
			return nil, err
		}
		bar.Add(1)
		klog.V(1).Infof("pipeline: resolve folded partition %d", i)
	}

	out := make(map[uint64][]string, len(fileIndices))
	for fi, reads := range byFileIndex {
		lines := make([]string, 0, len(reads))
		for _, read := range reads {
			call := ResolveTree(read.hits, p.taxo, read.totalKmers, p.opts.Confidence)
			if call != 0 && len(read.hits) < p.opts.MinimumHitGroups {
				call = 0
			}
			lines = append(lines, FormatOutputLine(ClassifyResult{DNAID: read.dnaID, Call: call}, p.taxo))
		}
		out[fi] = lines
	}
	return out, nil
}
