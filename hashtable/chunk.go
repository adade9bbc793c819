package hashtable

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/valyala/bytebufferpool"

	"github.com/nuclix-bio/k2r/metrics"
)

const chunkHeaderSize = 16 // partition_index u64 + chunk_cell_count u64
const slotRecordSize = 16  // idx u64 + payload u64

// ChunkWriter appends Slot records to a single partition's k2 chunk file.
// Safe for concurrent use by multiple scanner goroutines feeding the same
// partition.
type ChunkWriter struct {
	mu             sync.Mutex
	f              *os.File
	w              *bufio.Writer
	partitionIndex int
	chunkCellCount uint64
}

// CreateChunkWriter creates (or truncates) the chunk file at path for the
// given partition. chunkCellCount is the partition's cell count, recorded
// in the header so a reader can check the cell-index-within-partition
// invariant of every record that follows.
func CreateChunkWriter(path string, partitionIndex int, chunkCellCount uint64) (*ChunkWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("hashtable: create chunk %s: %w", path, err)
	}
	w := bufio.NewWriterSize(f, 1<<20)

	hdr := make([]byte, chunkHeaderSize)
	binary.LittleEndian.PutUint64(hdr[0:8], uint64(partitionIndex))
	binary.LittleEndian.PutUint64(hdr[8:16], chunkCellCount)
	if _, err := w.Write(hdr); err != nil {
		f.Close()
		return nil, fmt.Errorf("hashtable: write chunk header %s: %w", path, err)
	}

	return &ChunkWriter{f: f, w: w, partitionIndex: partitionIndex, chunkCellCount: chunkCellCount}, nil
}

// WriteSlot appends one Slot record. The wire buffer is drawn from a shared
// pool rather than allocated per call, since this is the per-partition
// flush path every build/split worker result passes through.
func (cw *ChunkWriter) WriteSlot(s Slot) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	var rec [slotRecordSize]byte
	binary.LittleEndian.PutUint64(rec[0:8], s.Idx)
	binary.LittleEndian.PutUint64(rec[8:16], s.Payload)
	buf.Write(rec[:])

	cw.mu.Lock()
	_, err := cw.w.Write(buf.B)
	cw.mu.Unlock()
	if err != nil {
		return fmt.Errorf("hashtable: write slot: %w", err)
	}
	metrics.SlotsWritten.WithLabelValues(fmt.Sprintf("%d", cw.partitionIndex)).Inc()
	return nil
}

// Close flushes buffered records and closes the file.
func (cw *ChunkWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if err := cw.w.Flush(); err != nil {
		cw.f.Close()
		return fmt.Errorf("hashtable: flush chunk: %w", err)
	}
	return cw.f.Close()
}

// WrapChunkAppender adapts an already-open, already-headered file (opened
// O_APPEND by the caller) into a ChunkWriter, so a resumed split can keep
// appending to a partition's sample file without rewriting its header.
func WrapChunkAppender(f *os.File, partitionIndex int, chunkCellCount uint64) *ChunkWriter {
	return &ChunkWriter{f: f, w: bufio.NewWriterSize(f, 1<<20), partitionIndex: partitionIndex, chunkCellCount: chunkCellCount}
}

// ChunkReader streams Slot records back out of a k2 chunk file in the
// order they were written.
type ChunkReader struct {
	f              *os.File
	r              *bufio.Reader
	partitionIndex int
	chunkCellCount uint64
}

// OpenChunkReader opens path and reads its header.
func OpenChunkReader(path string) (*ChunkReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("hashtable: open chunk %s: %w", path, err)
	}
	r := bufio.NewReaderSize(f, 1<<20)

	hdr := make([]byte, chunkHeaderSize)
	if _, err := io.ReadFull(r, hdr); err != nil {
		f.Close()
		return nil, fmt.Errorf("hashtable: read chunk header %s: %w", path, err)
	}

	return &ChunkReader{
		f:              f,
		r:              r,
		partitionIndex: int(binary.LittleEndian.Uint64(hdr[0:8])),
		chunkCellCount: binary.LittleEndian.Uint64(hdr[8:16]),
	}, nil
}

// PartitionIndex returns the partition this chunk file belongs to.
func (cr *ChunkReader) PartitionIndex() int {
	return cr.partitionIndex
}

// ChunkCellCount returns the partition cell count recorded in the header.
// For a build-phase k2 chunk every record's Idx is a cell-index-within-
// partition strictly less than this value. Split-phase sample chunks
// record the same per-partition cell count here for format conformance,
// but their Idx field carries a full minimizer hash rather than a local
// cell index; see DESIGN.md's split/resolve reconciliation note.
func (cr *ChunkReader) ChunkCellCount() uint64 {
	return cr.chunkCellCount
}

// Next returns the next Slot record, or (Slot{}, false, nil) at EOF.
func (cr *ChunkReader) Next() (Slot, bool, error) {
	var buf [slotRecordSize]byte
	_, err := io.ReadFull(cr.r, buf[:])
	if err == io.EOF {
		return Slot{}, false, nil
	}
	if err != nil {
		return Slot{}, false, fmt.Errorf("hashtable: read slot: %w", err)
	}
	return Slot{
		Idx:     binary.LittleEndian.Uint64(buf[0:8]),
		Payload: binary.LittleEndian.Uint64(buf[8:16]),
	}, true, nil
}

// Close closes the underlying file.
func (cr *ChunkReader) Close() error {
	return cr.f.Close()
}
