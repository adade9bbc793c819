package hashtable

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"github.com/edsrzf/mmap-go"
	"github.com/nuclix-bio/k2r/metrics"
	"github.com/nuclix-bio/k2r/taxonomy"
)

// CHTableMut is a writable, memory-mapped view of one partition of a
// compact hash table, used during the build pipeline's second phase.
type CHTableMut struct {
	f              *os.File
	mm             mmap.MMap
	region         []byte
	cfg            HashConfig
	partitionIndex int
}

// NewCHTableMut opens (creating and sizing if necessary) the CHT file at
// path and returns a writable handle scoped to partitionIndex's cells.
func NewCHTableMut(path string, cfg HashConfig, partitionIndex int) (*CHTableMut, error) {
	if err := EnsureCHTFile(path, cfg); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("hashtable: open %s: %w", path, err)
	}

	m, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("hashtable: mmap %s: %w", path, err)
	}

	start := cellOffset(partitionIndex, 0, cfg.HashSize)
	end := cellOffset(partitionIndex+1, 0, cfg.HashSize)
	if end > int64(len(m)) {
		m.Unmap()
		f.Close()
		return nil, fmt.Errorf("hashtable: partition %d out of range for %s", partitionIndex, path)
	}

	return &CHTableMut{
		f:              f,
		mm:             m,
		region:         m[start:end],
		cfg:            cfg,
		partitionIndex: partitionIndex,
	}, nil
}

func (ct *CHTableMut) cellPtr(localIdx uint64) *uint32 {
	off := localIdx * 4
	return (*uint32)(unsafe.Pointer(&ct.region[off]))
}

// CompareAndSet stores value under the cell chain starting at slot.Idx.
// If an existing cell carries the same fingerprint, the stored value is
// replaced with the LCA of the existing and incoming taxids rather than
// overwritten, so repeated insertion of a shared minimizer converges on
// the lowest common ancestor of every genome that contains it. Returns
// false only when every cell in the partition's open-addressing chain is
// occupied by a different fingerprint (the partition is full).
func (ct *CHTableMut) CompareAndSet(slot Slot, taxo *taxonomy.Taxonomy) bool {
	n := ct.cfg.HashSize
	fingerprint, newValue := unpackCell(uint32(slot.Payload), ct.cfg.ValueBits, ct.cfg.ValueMask)

	for probe := uint64(0); probe < n; probe++ {
		idx := (slot.Idx + probe) % n
		ptr := ct.cellPtr(idx)

		for {
			cur := atomic.LoadUint32(ptr)
			if cur == 0 {
				if atomic.CompareAndSwapUint32(ptr, 0, packCell(fingerprint, newValue, ct.cfg.ValueBits)) {
					metrics.CompareAndSetAttempts.WithLabelValues("inserted").Inc()
					return true
				}
				metrics.CompareAndSetAttempts.WithLabelValues("probe_retry").Inc()
				continue
			}

			curFp, curVal := unpackCell(cur, ct.cfg.ValueBits, ct.cfg.ValueMask)
			if curFp != fingerprint {
				break // different fingerprint occupies this cell, advance the probe
			}

			merged := taxo.LCA(curVal, newValue)
			if merged == curVal {
				return true // already the ancestor (or equal); nothing to write
			}
			newCell := packCell(fingerprint, merged, ct.cfg.ValueBits)
			if atomic.CompareAndSwapUint32(ptr, cur, newCell) {
				metrics.CompareAndSetAttempts.WithLabelValues("merged").Inc()
				return true
			}
			metrics.CompareAndSetAttempts.WithLabelValues("probe_retry").Inc()
		}
	}

	metrics.CompareAndSetAttempts.WithLabelValues("table_full").Inc()
	return false
}

// Occupancy scans the partition and returns the fraction of non-empty
// cells. Intended for periodic metrics reporting, not the hot path.
func (ct *CHTableMut) Occupancy() float64 {
	n := ct.cfg.HashSize
	if n == 0 {
		return 0
	}
	var used uint64
	for i := uint64(0); i < n; i++ {
		if atomic.LoadUint32(ct.cellPtr(i)) != 0 {
			used++
		}
	}
	return float64(used) / float64(n)
}

// Flush writes dirty pages back to disk without unmapping.
func (ct *CHTableMut) Flush() error {
	return ct.mm.Flush()
}

// Close flushes and unmaps the table, then closes the underlying file.
func (ct *CHTableMut) Close() error {
	if err := ct.mm.Flush(); err != nil {
		ct.mm.Unmap()
		ct.f.Close()
		return fmt.Errorf("hashtable: flush: %w", err)
	}
	if err := ct.mm.Unmap(); err != nil {
		ct.f.Close()
		return fmt.Errorf("hashtable: unmap: %w", err)
	}
	return ct.f.Close()
}
