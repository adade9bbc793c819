// Package seqio reads FASTA and FASTQ records, applies FASTQ quality
// masking, and can turn a record (or a paired pair of records) into a
// SeqReads holding its ordered minimizer hash lists.
package seqio

import "fmt"

// Record is a single sequence read. Qual is nil for FASTA input.
type Record struct {
	ID   string
	Seq  []byte
	Qual []byte
}

// SeqX applies FASTQ quality masking: bases whose phred score
// (qual byte - '!') falls below minQual are replaced with 'x', which the
// minimizer scanner treats as an ambiguous base just like 'N'. FASTA
// records (Qual == nil) and minQual <= 0 pass through unchanged.
func (r Record) SeqX(minQual int) []byte {
	if minQual <= 0 || r.Qual == nil {
		return r.Seq
	}
	out := make([]byte, len(r.Seq))
	for i, base := range r.Seq {
		score := int(r.Qual[i]) - '!'
		if score < minQual {
			out[i] = 'x'
		} else {
			out[i] = base
		}
	}
	return out
}

// Reader yields Records one at a time until exhausted.
type Reader interface {
	Next() (Record, bool, error)
}

// TrimPairInfo strips a trailing "/1" or "/2" mate marker from a read id,
// the way paired FASTQ files conventionally suffix mate 1 and mate 2.
func TrimPairInfo(id string) string {
	if len(id) > 2 && id[len(id)-2] == '/' && (id[len(id)-1] == '1' || id[len(id)-1] == '2') {
		return id[:len(id)-2]
	}
	return id
}

// ErrFormat is returned when a stream's first byte is neither '>' nor '@'.
type ErrFormat struct {
	Got byte
}

func (e ErrFormat) Error() string {
	return fmt.Sprintf("seqio: unrecognized sequence format, first byte %q", e.Got)
}
