package hashtable

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// CHTMagic identifies the hash.k2d body format: a fixed header followed by
// capacity packed 32-bit cells.
var CHTMagic = [8]byte{'K', '2', 'R', 'H', 'A', 'S', 'H', '1'}

// headerSize is the byte length of the fixed CHT header, chosen to be a
// multiple of 8 so every cell offset that follows stays 4-byte aligned.
const headerSize = 40

// EnsureCHTFile creates path if it doesn't exist, sized to hold the header
// plus cfg.Capacity cells, and writes the header. If the file already
// exists with a matching header, it is left untouched.
func EnsureCHTFile(path string, cfg HashConfig) error {
	if cfg.HashSize == 0 {
		return fmt.Errorf("hashtable: HashSize must be set before creating %s", path)
	}

	if existing, err := os.Open(path); err == nil {
		h, herr := readCHTHeader(existing)
		existing.Close()
		if herr == nil && h.Capacity == cfg.Capacity && h.ValueBits == cfg.ValueBits && h.HashSize == cfg.HashSize {
			return nil
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("hashtable: create %s: %w", path, err)
	}
	defer f.Close()

	if err := writeCHTHeader(f, cfg); err != nil {
		return err
	}

	total := int64(headerSize) + int64(cfg.Capacity)*4
	if err := f.Truncate(total); err != nil {
		return fmt.Errorf("hashtable: truncate %s to %d bytes: %w", path, total, err)
	}
	return nil
}

func writeCHTHeader(w io.Writer, cfg HashConfig) error {
	buf := make([]byte, headerSize)
	copy(buf[0:8], CHTMagic[:])
	binary.LittleEndian.PutUint64(buf[8:16], cfg.Capacity)
	binary.LittleEndian.PutUint32(buf[16:20], cfg.ValueBits)
	binary.LittleEndian.PutUint32(buf[20:24], uint32(cfg.PartitionCount()))
	binary.LittleEndian.PutUint64(buf[24:32], cfg.HashSize)
	_, err := w.Write(buf)
	return err
}

func readCHTHeader(r io.Reader) (HashConfig, error) {
	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return HashConfig{}, fmt.Errorf("hashtable: %w", ErrTruncated)
	}
	var magic [8]byte
	copy(magic[:], buf[0:8])
	if magic != CHTMagic {
		return HashConfig{}, fmt.Errorf("hashtable: %w", ErrBadMagic)
	}
	cfg := NewHashConfig(
		binary.LittleEndian.Uint64(buf[8:16]),
		binary.LittleEndian.Uint32(buf[16:20]),
		binary.LittleEndian.Uint64(buf[24:32]),
	)
	return cfg, nil
}

func cellOffset(partitionIndex int, localIdx uint64, hashSize uint64) int64 {
	return int64(headerSize) + int64(partitionIndex)*int64(hashSize)*4 + int64(localIdx)*4
}
