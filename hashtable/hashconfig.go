// Package hashtable implements the partitioned compact hash table (CHT):
// a fixed-capacity, open-addressed table whose 32-bit cells pack a
// minimizer fingerprint together with a taxid, built out-of-core via
// disk-backed partitions and looked up read-only after build.
package hashtable

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// HashConfigMagic identifies the hash_config.k2d header format.
var HashConfigMagic = [8]byte{'K', '2', 'R', 'H', 'C', 'F', 'G', '1'}

// HashConfig carries the capacity, value-bit width and per-partition chunk
// size that a CHT was built with.
type HashConfig struct {
	Capacity  uint64
	ValueBits uint32
	ValueMask uint32
	HashSize  uint64 // cells per partition; 0 until fixed by the caller
}

// NewHashConfig derives ValueMask from ValueBits. It does not range-check
// ValueBits; GetBitsForTaxid is where a bit width is validated.
func NewHashConfig(capacity uint64, valueBits uint32, hashSize uint64) HashConfig {
	return HashConfig{
		Capacity:  capacity,
		ValueBits: valueBits,
		ValueMask: uint32((uint64(1) << valueBits) - 1),
		HashSize:  hashSize,
	}
}

// WithHashSize returns a copy of c with HashSize set.
func (c HashConfig) WithHashSize(hashSize uint64) HashConfig {
	c.HashSize = hashSize
	return c
}

// PartitionCount returns ⌈capacity/hash_size⌉, or 0 if HashSize is unset.
func (c HashConfig) PartitionCount() int {
	if c.HashSize == 0 {
		return 0
	}
	return int((c.Capacity + c.HashSize - 1) / c.HashSize)
}

// FingerprintBits returns 32 - value_bits, the width of the fingerprint
// stored alongside the value in each packed cell.
func (c HashConfig) FingerprintBits() uint32 {
	return 32 - c.ValueBits
}

// GetBitsForTaxid returns the minimum value_bits that can hold nodeCount
// distinct taxids, honoring a caller-requested floor.
func GetBitsForTaxid(requested int, nodeCount float64) (uint32, error) {
	needed := 1
	for (uint64(1) << uint(needed)) < uint64(nodeCount) {
		needed++
	}
	if requested > needed {
		needed = requested
	}
	if needed < 1 || needed > 31 {
		return 0, fmt.Errorf("hashtable: value_bits %d out of range [1,31]", needed)
	}
	return uint32(needed), nil
}

const hashConfigHeaderSize = 8 + 8 + 4 + 8 + 4 + 4 // magic + capacity + value_bits + hash_size + reserved + pad

// WriteHashConfigHeader writes cfg to path as the hash_config.k2d artifact.
func WriteHashConfigHeader(path string, cfg HashConfig) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("hashtable: create %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, hashConfigHeaderSize)
	copy(buf[0:8], HashConfigMagic[:])
	binary.LittleEndian.PutUint64(buf[8:16], cfg.Capacity)
	binary.LittleEndian.PutUint32(buf[16:20], cfg.ValueBits)
	binary.LittleEndian.PutUint64(buf[20:28], cfg.HashSize)
	_, err = f.Write(buf)
	return err
}

// ReadHashConfigHeader reads hash_config.k2d from path.
func ReadHashConfigHeader(path string) (HashConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return HashConfig{}, fmt.Errorf("hashtable: open %s: %w", path, err)
	}
	defer f.Close()
	return decodeHashConfigHeader(bufio.NewReader(f))
}

func decodeHashConfigHeader(r io.Reader) (HashConfig, error) {
	buf := make([]byte, hashConfigHeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return HashConfig{}, fmt.Errorf("hashtable: read header: %w", err)
	}
	var magic [8]byte
	copy(magic[:], buf[0:8])
	if magic != HashConfigMagic {
		return HashConfig{}, fmt.Errorf("hashtable: %w", ErrBadMagic)
	}
	cfg := NewHashConfig(
		binary.LittleEndian.Uint64(buf[8:16]),
		binary.LittleEndian.Uint32(buf[16:20]),
		binary.LittleEndian.Uint64(buf[20:28]),
	)
	return cfg, nil
}
