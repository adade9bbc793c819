package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	concurrently "github.com/tejzpr/ordered-concurrently/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"

	"github.com/nuclix-bio/k2r/hashtable"
	"github.com/nuclix-bio/k2r/meros"
	"github.com/nuclix-bio/k2r/metrics"
	"github.com/nuclix-bio/k2r/scanner"
	"github.com/nuclix-bio/k2r/taxonomy"
)

// BuildOptions parameters the index build.
type BuildOptions struct {
	Meros           meros.Meros
	Capacity        uint64
	RequestedBits   int
	ChunkSize       uint64
	ChunkDir        string
	ChunkPrefix     string
	OnlyK2          bool
	HashFilename    string
	OptionsFilename string
	// Workers bounds the reference-scanning worker pool in Phase1. 0 means
	// runtime.NumCPU(), mirroring the teacher's "-w 0 means all cores"
	// convention.
	Workers int
}

// SourceGenome is a single reference sequence awaiting minimizer extraction.
type SourceGenome struct {
	ID  string // key into the id-to-taxon map
	Seq []byte
}

// BuildPipeline runs the two-phase index build: FASTA references to k2
// partition chunk files, then chunk files folded into the compact hash
// table, one partition at a time.
type BuildPipeline struct {
	opts BuildOptions
	taxo *taxonomy.Taxonomy
}

// NewBuildPipeline prepares a build over an already-resolved taxonomy.
func NewBuildPipeline(opts BuildOptions, taxo *taxonomy.Taxonomy) *BuildPipeline {
	return &BuildPipeline{opts: opts, taxo: taxo}
}

// partitionCount returns ⌈capacity/chunk_size⌉.
func (p *BuildPipeline) partitionCount() int {
	return int((p.opts.Capacity + p.opts.ChunkSize - 1) / p.opts.ChunkSize)
}

func (p *BuildPipeline) valueBits() (uint32, error) {
	return hashtable.GetBitsForTaxid(p.opts.RequestedBits, float64(p.taxo.NodeCount()))
}

// checkFileLimit refuses to proceed if partitionCount would exceed the
// process's open-file limit, mirroring the original's get_file_limit guard.
func checkFileLimit(partitionCount int) error {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return fmt.Errorf("pipeline: read RLIMIT_NOFILE: %w", err)
	}
	if uint64(partitionCount) >= rlim.Cur {
		return fmt.Errorf("pipeline: partition count %d exceeds open-file limit %d", partitionCount, rlim.Cur)
	}
	return nil
}

func chunkPath(dir, prefix string, i int) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%d.k2", prefix, i))
}

// genomeSlot is one (partition, Slot) pair produced by a reference-scanning
// worker, destined for that partition's k2 chunk writer.
type genomeSlot struct {
	partitionIndex int
	slot           hashtable.Slot
}

// genomeScanWorker scans one reference genome's minimizers and routes each
// into its partition slot, independently of every other genome in flight.
type genomeScanWorker struct {
	taxid uint32
	seq   []byte
	meros meros.Meros
	cfg   hashtable.HashConfig
}

func (w genomeScanWorker) Run(ctx context.Context) interface{} {
	hashes := scanner.New(w.seq, w.meros).All()
	slots := make([]genomeSlot, 0, len(hashes))
	for _, h := range hashes {
		metrics.MinimizersScanned.WithLabelValues("build").Inc()
		partitionIndex, slot := hashtable.SlotFor(h, w.taxid, w.cfg)
		slots = append(slots, genomeSlot{partitionIndex, slot})
	}
	return slots
}

// Phase1 scans every genome's minimizers and routes them into per-partition
// k2 chunk files. idToTaxon maps a genome's id to its internal taxid.
//
// Scanning runs on a bounded worker pool (one worker per reference in
// flight, sized by Workers); a single consumer goroutine drains completed
// results and performs every WriteSlot call, so partition files are never
// written to concurrently from more than one goroutine.
func (p *BuildPipeline) Phase1(genomes []SourceGenome, idToTaxon map[string]uint32) error {
	start := time.Now()
	defer func() {
		metrics.BuildPhaseDuration.WithLabelValues("fasta_to_chunks").Observe(time.Since(start).Seconds())
	}()

	n := p.partitionCount()
	if err := checkFileLimit(n); err != nil {
		return err
	}

	cfg := hashtable.NewHashConfig(p.opts.Capacity, 0, p.opts.ChunkSize)
	writers := make([]*hashtable.ChunkWriter, n)
	for i := 0; i < n; i++ {
		w, err := hashtable.CreateChunkWriter(chunkPath(p.opts.ChunkDir, p.opts.ChunkPrefix, i), i, cfg.HashSize)
		if err != nil {
			return err
		}
		writers[i] = w
	}
	defer func() {
		for _, w := range writers {
			w.Close()
		}
	}()

	valueBits, err := p.valueBits()
	if err != nil {
		return err
	}
	cfg.ValueBits = valueBits
	cfg.ValueMask = uint32((uint64(1) << valueBits) - 1)

	numWorkers := p.opts.Workers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	workerInputChan := make(chan concurrently.WorkFunction, numWorkers)
	outputChan := concurrently.Process(context.Background(), workerInputChan, &concurrently.Options{
		PoolSize:         numWorkers,
		OutChannelBuffer: numWorkers,
	})

	bar := progressbar.NewOptions(len(genomes),
		progressbar.OptionSetDescription("build: scanning references"),
		progressbar.OptionSetVisibility(isTTY(os.Stderr)),
	)

	var writeErr error
	var writeErrOnce sync.Once
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for result := range outputChan {
			for _, gs := range result.Value.([]genomeSlot) {
				if err := writers[gs.partitionIndex].WriteSlot(gs.slot); err != nil {
					writeErrOnce.Do(func() { writeErr = err })
				}
			}
			bar.Add(1)
		}
	}()

	for _, genome := range genomes {
		taxid, ok := idToTaxon[genome.ID]
		if !ok {
			klog.Warningf("pipeline: no taxon mapping for sequence id %q, skipping", genome.ID)
			bar.Add(1)
			continue
		}
		workerInputChan <- genomeScanWorker{taxid: taxid, seq: genome.Seq, meros: p.opts.Meros, cfg: cfg}
	}
	close(workerInputChan)
	<-drained
	if writeErr != nil {
		return writeErr
	}

	klog.Infof("pipeline: phase 1 wrote %d partitions in %s", n, time.Since(start))
	return nil
}

// Phase2 folds every partition's k2 chunk file into the compact hash table.
// Partitions are collapsed concurrently; a failure in one partition does
// not stop the others, and the first error returned is surfaced at the end.
func (p *BuildPipeline) Phase2() error {
	start := time.Now()
	defer func() {
		metrics.BuildPhaseDuration.WithLabelValues("chunks_to_table").Observe(time.Since(start).Seconds())
	}()

	n := p.partitionCount()
	valueBits, err := p.valueBits()
	if err != nil {
		return err
	}
	cfg := hashtable.NewHashConfig(p.opts.Capacity, valueBits, p.opts.ChunkSize)

	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			return p.collapsePartition(i, cfg, chunkPath(p.opts.ChunkDir, p.opts.ChunkPrefix, i))
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("pipeline: phase 2: %w", err)
	}
	klog.Infof("pipeline: phase 2 collapsed %d partitions in %s", n, time.Since(start))
	return nil
}

func (p *BuildPipeline) collapsePartition(i int, cfg hashtable.HashConfig, chunkFile string) error {
	reader, err := hashtable.OpenChunkReader(chunkFile)
	if err != nil {
		return err
	}
	defer reader.Close()

	mut, err := hashtable.NewCHTableMut(p.opts.HashFilename, cfg, i)
	if err != nil {
		return err
	}
	defer mut.Close()

	dropped := 0
	for {
		slot, ok, err := reader.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if !mut.CompareAndSet(slot, p.taxo) {
			dropped++
		}
	}
	if dropped > 0 {
		klog.Warningf("pipeline: partition %d full, dropped %d inserts; grow --required-capacity", i, dropped)
	}
	metrics.TableOccupancy.WithLabelValues(fmt.Sprintf("%d", i)).Set(mut.Occupancy())
	return nil
}

// Run executes both phases (skipping phase 1 when OnlyK2 is set) and writes
// the IndexOptions artifact.
func (p *BuildPipeline) Run(genomes []SourceGenome, idToTaxon map[string]uint32) error {
	if !p.opts.OnlyK2 {
		if err := p.Phase1(genomes, idToTaxon); err != nil {
			return err
		}
	}
	if err := p.Phase2(); err != nil {
		return err
	}

	idxOpts := meros.FromMeros(p.opts.Meros)
	if err := idxOpts.WriteToFile(p.opts.OptionsFilename); err != nil {
		return err
	}

	valueBits, err := p.valueBits()
	if err != nil {
		return err
	}
	cfg := hashtable.NewHashConfig(p.opts.Capacity, valueBits, p.opts.ChunkSize)
	return hashtable.WriteHashConfigHeader(filepath.Join(filepath.Dir(p.opts.HashFilename), "hash_config.k2d"), cfg)
}
