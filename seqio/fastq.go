package seqio

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// FastqReader reads single-line-per-field FASTQ records from a stream.
type FastqReader struct {
	r *bufio.Reader
}

// NewFastqReader wraps r. The caller is expected to have already confirmed
// the stream starts with '@'.
func NewFastqReader(r io.Reader) *FastqReader {
	return &FastqReader{r: bufio.NewReaderSize(r, 1<<16)}
}

// Next returns the next record, or (Record{}, false, nil) at EOF.
func (f *FastqReader) Next() (Record, bool, error) {
	header, err := f.readLine()
	if err == io.EOF {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("seqio: read fastq header: %w", err)
	}
	if !strings.HasPrefix(header, "@") {
		return Record{}, false, fmt.Errorf("seqio: expected '@' header, got %q", header)
	}

	seq, err := f.readLine()
	if err != nil {
		return Record{}, false, fmt.Errorf("seqio: read fastq sequence: %w", err)
	}
	plus, err := f.readLine()
	if err != nil {
		return Record{}, false, fmt.Errorf("seqio: read fastq separator: %w", err)
	}
	if !strings.HasPrefix(plus, "+") {
		return Record{}, false, fmt.Errorf("seqio: expected '+' separator, got %q", plus)
	}
	qual, err := f.readLine()
	if err != nil {
		return Record{}, false, fmt.Errorf("seqio: read fastq quality: %w", err)
	}
	if len(qual) != len(seq) {
		return Record{}, false, fmt.Errorf("seqio: quality length %d != sequence length %d", len(qual), len(seq))
	}

	return Record{ID: idField(header[1:]), Seq: []byte(seq), Qual: []byte(qual)}, true, nil
}

func (f *FastqReader) readLine() (string, error) {
	line, err := f.r.ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if err != nil {
		if err == io.EOF && line != "" {
			return line, nil
		}
		return "", err
	}
	return line, nil
}

// PairReader reads two FASTQ streams in lockstep, as mate 1 / mate 2 of a
// paired-end run.
type PairReader struct {
	r1, r2 *FastqReader
}

// NewPairReader opens mate-pair readers over r1 and r2.
func NewPairReader(r1, r2 io.Reader) *PairReader {
	return &PairReader{r1: NewFastqReader(r1), r2: NewFastqReader(r2)}
}

// Next returns the next mate pair, or (Record{}, Record{}, false, nil) when
// either stream is exhausted.
func (p *PairReader) Next() (Record, Record, bool, error) {
	rec1, ok1, err := p.r1.Next()
	if err != nil {
		return Record{}, Record{}, false, err
	}
	rec2, ok2, err := p.r2.Next()
	if err != nil {
		return Record{}, Record{}, false, err
	}
	if !ok1 || !ok2 {
		return Record{}, Record{}, false, nil
	}
	return rec1, rec2, true, nil
}
