package readahead

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

const (
	KiB = 1024
	MiB = 1024 * KiB
)

const DefaultChunkSize = 12 * MiB

type CachingReader struct {
	file      io.ReadCloser
	buffer    *bufio.Reader
	chunkSize int
}

// NewCachingReader returns a reader that reads from the given file in large,
// page-aligned chunks. FASTA and FASTQ inputs are read start to end exactly
// once per pipeline run, so the kernel is told to expect sequential access.
func NewCachingReader(filePath string, chunkSize int) (*CachingReader, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	chunkSize = alignValueToPageSize(chunkSize)
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	if err := unix.Fadvise(int(file.Fd()), 0, 0, unix.FADV_SEQUENTIAL); err != nil {
		// Not fatal: some filesystems (tmpfs, overlayfs variants) reject the hint.
		_ = err
	}
	return &CachingReader{file: file, buffer: bufio.NewReaderSize(file, chunkSize), chunkSize: chunkSize}, nil
}

func NewCachingReaderFromReader(file io.ReadCloser, chunkSize int) (*CachingReader, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	chunkSize = alignValueToPageSize(chunkSize)
	return &CachingReader{file: file, buffer: bufio.NewReaderSize(file, chunkSize), chunkSize: chunkSize}, nil
}

func alignValueToPageSize(value int) int {
	pageSize := os.Getpagesize()
	return (value + pageSize - 1) &^ (pageSize - 1)
}

func (cr *CachingReader) Read(p []byte) (int, error) {
	if cr.file == nil {
		return 0, fmt.Errorf("file not open")
	}
	if len(p) == 0 {
		return 0, nil
	}
	return cr.buffer.Read(p)
}

func (cr *CachingReader) Close() error {
	return cr.file.Close()
}
