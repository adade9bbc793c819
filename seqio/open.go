package seqio

import (
	"bufio"
	"fmt"
	"io"
)

// Open peeks the first non-whitespace byte of r to pick a FASTA or FASTQ
// reader. r must support Peek-friendly buffering; Open wraps it if needed.
func Open(r io.Reader) (Reader, error) {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReaderSize(r, 1<<16)
	}

	for {
		b, err := br.Peek(1)
		if err != nil {
			return nil, fmt.Errorf("seqio: detect format: %w", err)
		}
		switch b[0] {
		case '>':
			return NewFastaReader(br), nil
		case '@':
			return NewFastqReader(br), nil
		case '\n', '\r', ' ', '\t':
			if _, err := br.ReadByte(); err != nil {
				return nil, err
			}
			continue
		default:
			return nil, ErrFormat{Got: b[0]}
		}
	}
}
