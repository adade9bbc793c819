package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	concurrently "github.com/tejzpr/ordered-concurrently/v3"
	"k8s.io/klog/v2"

	"github.com/nuclix-bio/k2r/hashtable"
	"github.com/nuclix-bio/k2r/meros"
	"github.com/nuclix-bio/k2r/metrics"
	"github.com/nuclix-bio/k2r/readahead"
	"github.com/nuclix-bio/k2r/scanner"
	"github.com/nuclix-bio/k2r/seqio"
)

// SplitOptions parameters the read-splitting phase that precedes a
// partitioned resolve.
type SplitOptions struct {
	Meros               meros.Meros
	PairedEndProcessing bool
	MinimumQualityScore int
	ChunkDir            string
	HashConfig          hashtable.HashConfig
	// Workers bounds the per-record minimizer-scanning worker pool. 0 means
	// runtime.NumCPU().
	Workers int
}

func (p *SplitPipeline) numWorkers() int {
	if p.opts.Workers > 0 {
		return p.opts.Workers
	}
	return runtime.NumCPU()
}

// SplitPipeline assigns a monotonic file_index to each input file (or
// mate pair), scans every read's minimizers, and routes them into
// per-partition "sample" chunk files alongside a read-id map the resolver
// joins back against.
type SplitPipeline struct {
	opts SplitOptions
}

// NewSplitPipeline builds a SplitPipeline.
func NewSplitPipeline(opts SplitOptions) *SplitPipeline {
	return &SplitPipeline{opts: opts}
}

func (p *SplitPipeline) partitionCount() int {
	return p.opts.HashConfig.PartitionCount()
}

// GetLatestFileIndex reads sample_file.map and returns the highest
// recorded file_index, or 0 if the map doesn't exist yet or is empty.
func GetLatestFileIndex(path string) (int, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("pipeline: open %s: %w", path, err)
	}
	defer f.Close()

	max := 0
	scanr := bufio.NewScanner(f)
	for scanr.Scan() {
		fields := strings.SplitN(scanr.Text(), "\t", 2)
		if len(fields) == 0 {
			continue
		}
		n, err := strconv.Atoi(fields[0])
		if err == nil && n > max {
			max = n
		}
	}
	return max, scanr.Err()
}

// ListFileIndices reads sample_file.map and returns every recorded
// file_index, in ascending order, for a resolve pass to join against.
func ListFileIndices(path string) ([]uint64, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pipeline: open %s: %w", path, err)
	}
	defer f.Close()

	var indices []uint64
	scanr := bufio.NewScanner(f)
	for scanr.Scan() {
		fields := strings.SplitN(scanr.Text(), "\t", 2)
		if len(fields) == 0 {
			continue
		}
		n, err := strconv.ParseUint(fields[0], 10, 64)
		if err == nil {
			indices = append(indices, n)
		}
	}
	return indices, scanr.Err()
}

// appendSampleFileMap records the file_index -> source paths association.
func appendSampleFileMap(path string, fileIndex int, sources []string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("pipeline: open %s: %w", path, err)
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "%d\t%s\n", fileIndex, strings.Join(sources, ","))
	return err
}

func (p *SplitPipeline) sampleChunkWriters(dir string, n int) ([]*hashtable.ChunkWriter, error) {
	writers := make([]*hashtable.ChunkWriter, n)
	for i := 0; i < n; i++ {
		path := filepath.Join(dir, fmt.Sprintf("sample_%d.bin", i))
		if st, err := os.Stat(path); err == nil && st.Size() > 0 {
			// Existing, non-empty partition: reopen for append without
			// rewriting the header, matching the original's resumability.
			f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				return nil, err
			}
			writers[i] = hashtable.WrapChunkAppender(f, i, p.opts.HashConfig.HashSize)
			continue
		}
		w, err := hashtable.CreateChunkWriter(path, i, p.opts.HashConfig.HashSize)
		if err != nil {
			return nil, err
		}
		writers[i] = w
	}
	return writers, nil
}

// RunUnpaired splits a list of independent (non mate-paired) input files.
func (p *SplitPipeline) RunUnpaired(paths []string) error {
	n := p.partitionCount()
	writers, err := p.sampleChunkWriters(p.opts.ChunkDir, n)
	if err != nil {
		return err
	}
	defer closeAll(writers)

	fileMapPath := filepath.Join(p.opts.ChunkDir, "sample_file.map")
	nextIndex, err := GetLatestFileIndex(fileMapPath)
	if err != nil {
		return err
	}

	for _, path := range paths {
		nextIndex++
		if err := p.splitOneFile(path, nextIndex, writers); err != nil {
			return err
		}
		if err := appendSampleFileMap(fileMapPath, nextIndex, []string{path}); err != nil {
			return err
		}
	}
	return nil
}

// RunPaired splits a list of mate-pair files. len(paths) must be even.
func (p *SplitPipeline) RunPaired(paths []string) error {
	if len(paths)%2 != 0 {
		return fmt.Errorf("pipeline: paired-end processing requires an even number of input files, got %d", len(paths))
	}

	n := p.partitionCount()
	writers, err := p.sampleChunkWriters(p.opts.ChunkDir, n)
	if err != nil {
		return err
	}
	defer closeAll(writers)

	fileMapPath := filepath.Join(p.opts.ChunkDir, "sample_file.map")
	nextIndex, err := GetLatestFileIndex(fileMapPath)
	if err != nil {
		return err
	}

	for i := 0; i < len(paths); i += 2 {
		nextIndex++
		if err := p.splitOnePair(paths[i], paths[i+1], nextIndex, writers); err != nil {
			return err
		}
		if err := appendSampleFileMap(fileMapPath, nextIndex, []string{paths[i], paths[i+1]}); err != nil {
			return err
		}
	}
	return nil
}

// readScanResult is one read's (or mate pair's) minimizer hash list, ready
// to be routed into partition sample files and recorded in the id map.
type readScanResult struct {
	seqID  uint64
	dnaID  string
	hashes []uint64
}

type readScanWorker struct {
	seqID uint64
	dnaID string
	seq   []byte
	meros meros.Meros
}

func (w readScanWorker) Run(ctx context.Context) interface{} {
	return readScanResult{seqID: w.seqID, dnaID: w.dnaID, hashes: scanner.New(w.seq, w.meros).All()}
}

type pairScanWorker struct {
	seqID      uint64
	dnaID      string
	seq1, seq2 []byte
	meros      meros.Meros
}

func (w pairScanWorker) Run(ctx context.Context) interface{} {
	h1 := scanner.New(w.seq1, w.meros).All()
	h2 := scanner.New(w.seq2, w.meros).All()
	return readScanResult{seqID: w.seqID, dnaID: w.dnaID, hashes: append(h1, h2...)}
}

// drainScanResults consumes a worker pool's output, writing each read's
// slots and id-map line as results arrive. It is the pipeline's single
// writer: every WriteSlot and id-map append happens on this one goroutine.
func (p *SplitPipeline) drainScanResults(outputChan <-chan concurrently.OrderedOutput, idw *bufio.Writer, writers []*hashtable.ChunkWriter) <-chan error {
	errc := make(chan error, 1)
	go func() {
		var firstErr error
		for result := range outputChan {
			r := result.Value.(readScanResult)
			if err := p.writeSlots(r.hashes, r.seqID, writers); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			if _, err := fmt.Fprintf(idw, "%d\t%s\t%d\n", r.seqID&0xFFFFFFFF, seqio.TrimPairInfo(r.dnaID), len(r.hashes)); err != nil {
				if firstErr == nil {
					firstErr = err
				}
			}
		}
		errc <- firstErr
	}()
	return errc
}

func (p *SplitPipeline) splitOneFile(path string, fileIndex int, writers []*hashtable.ChunkWriter) error {
	f, err := readahead.NewCachingReader(path, 0)
	if err != nil {
		return fmt.Errorf("pipeline: open %s: %w", path, err)
	}
	defer f.Close()

	reader, err := seqio.Open(f)
	if err != nil {
		return err
	}

	idMapPath := filepath.Join(p.opts.ChunkDir, fmt.Sprintf("sample_id_%d.map", fileIndex))
	idMap, err := os.Create(idMapPath)
	if err != nil {
		return err
	}
	defer idMap.Close()
	idw := bufio.NewWriter(idMap)
	defer idw.Flush()

	numWorkers := p.numWorkers()
	workerInputChan := make(chan concurrently.WorkFunction, numWorkers)
	outputChan := concurrently.Process(context.Background(), workerInputChan, &concurrently.Options{
		PoolSize:         numWorkers,
		OutChannelBuffer: numWorkers,
	})
	errc := p.drainScanResults(outputChan, idw, writers)

	var localIdx uint64
	var readErr error
	for {
		rec, ok, err := reader.Next()
		if err != nil {
			readErr = err
			break
		}
		if !ok {
			break
		}
		seqID := (uint64(fileIndex) << 32) | localIdx
		localIdx++
		workerInputChan <- readScanWorker{seqID: seqID, dnaID: rec.ID, seq: rec.SeqX(p.opts.MinimumQualityScore), meros: p.opts.Meros}
	}
	close(workerInputChan)
	writeErr := <-errc
	if readErr != nil {
		return readErr
	}
	return writeErr
}

func (p *SplitPipeline) splitOnePair(path1, path2 string, fileIndex int, writers []*hashtable.ChunkWriter) error {
	f1, err := readahead.NewCachingReader(path1, 0)
	if err != nil {
		return err
	}
	defer f1.Close()
	f2, err := readahead.NewCachingReader(path2, 0)
	if err != nil {
		return err
	}
	defer f2.Close()

	pr := seqio.NewPairReader(f1, f2)

	idMapPath := filepath.Join(p.opts.ChunkDir, fmt.Sprintf("sample_id_%d.map", fileIndex))
	idMap, err := os.Create(idMapPath)
	if err != nil {
		return err
	}
	defer idMap.Close()
	idw := bufio.NewWriter(idMap)
	defer idw.Flush()

	numWorkers := p.numWorkers()
	workerInputChan := make(chan concurrently.WorkFunction, numWorkers)
	outputChan := concurrently.Process(context.Background(), workerInputChan, &concurrently.Options{
		PoolSize:         numWorkers,
		OutChannelBuffer: numWorkers,
	})
	errc := p.drainScanResults(outputChan, idw, writers)

	var localIdx uint64
	var readErr error
	for {
		mate1, mate2, ok, err := pr.Next()
		if err != nil {
			readErr = err
			break
		}
		if !ok {
			break
		}
		seqID := (uint64(fileIndex) << 32) | localIdx
		localIdx++
		workerInputChan <- pairScanWorker{
			seqID: seqID,
			dnaID: mate1.ID,
			seq1:  mate1.SeqX(p.opts.MinimumQualityScore),
			seq2:  mate2.SeqX(p.opts.MinimumQualityScore),
			meros: p.opts.Meros,
		}
	}
	close(workerInputChan)
	writeErr := <-errc
	if readErr != nil {
		return readErr
	}
	return writeErr
}

func (p *SplitPipeline) writeSlots(hashes []uint64, seqID uint64, writers []*hashtable.ChunkWriter) error {
	for _, h := range hashes {
		metrics.MinimizersScanned.WithLabelValues("split").Inc()
		partitionIndex, slot := hashtable.SlotForRead(h, seqID, p.opts.HashConfig)
		if err := writers[partitionIndex].WriteSlot(slot); err != nil {
			return err
		}
	}
	return nil
}

func closeAll(writers []*hashtable.ChunkWriter) {
	for _, w := range writers {
		if w != nil {
			if err := w.Close(); err != nil {
				klog.Warningf("pipeline: close chunk writer: %v", err)
			}
		}
	}
}
