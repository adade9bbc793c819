package hashtable

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"golang.org/x/exp/mmap"
)

// CHTable is a read-only, memory-mapped view over a contiguous range of
// partitions of a compact hash table, used at classify time.
type CHTable struct {
	r              *mmap.ReaderAt
	cfg            HashConfig
	partitionStart int
	partitionCount int
}

// OpenCHTable opens path and scopes lookups to the half-open partition
// range [partitionStart, partitionStart+partitionCount). A Get for a hash
// outside that range returns 0 (ambiguous/unclassified), letting callers
// shard a single logical table across multiple resolver processes.
func OpenCHTable(path string, partitionStart, partitionCount int) (*CHTable, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("hashtable: mmap open %s: %w", path, err)
	}

	hdr := make([]byte, headerSize)
	if _, err := r.ReadAt(hdr, 0); err != nil {
		r.Close()
		return nil, fmt.Errorf("hashtable: read header of %s: %w", path, err)
	}
	cfg, err := readCHTHeader(bytes.NewReader(hdr))
	if err != nil {
		r.Close()
		return nil, err
	}

	return &CHTable{
		r:              r,
		cfg:            cfg,
		partitionStart: partitionStart,
		partitionCount: partitionCount,
	}, nil
}

// Config returns the table's HashConfig.
func (t *CHTable) Config() HashConfig {
	return t.cfg
}

// Get returns the taxid stored for hash, or 0 if absent, out of the
// partition range this handle serves, or the probe chain runs dry.
func (t *CHTable) Get(hash uint64) uint32 {
	cfg := t.cfg
	cell := hash % cfg.Capacity
	partitionIndex := int(cell / cfg.HashSize)
	if partitionIndex < t.partitionStart || partitionIndex >= t.partitionStart+t.partitionCount {
		return 0
	}
	localIdx := cell % cfg.HashSize
	fpBits := cfg.FingerprintBits()
	fingerprint := uint32((hash >> 32) & ((uint64(1) << fpBits) - 1))

	n := cfg.HashSize
	var buf [4]byte
	for probe := uint64(0); probe < n; probe++ {
		idx := (localIdx + probe) % n
		off := cellOffset(partitionIndex, idx, cfg.HashSize)
		if _, err := t.r.ReadAt(buf[:], off); err != nil {
			return 0
		}
		cellVal := binary.LittleEndian.Uint32(buf[:])
		if cellVal == 0 {
			return 0
		}
		curFp, curVal := unpackCell(cellVal, cfg.ValueBits, cfg.ValueMask)
		if curFp == fingerprint {
			return curVal
		}
	}
	return 0
}

// Close unmaps the table.
func (t *CHTable) Close() error {
	return t.r.Close()
}
