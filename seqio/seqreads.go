package seqio

import (
	"github.com/nuclix-bio/k2r/meros"
	"github.com/nuclix-bio/k2r/scanner"
)

// SeqReads is one read (or mate pair) reduced to its ordered minimizer hash
// lists, keyed by its read id with any /1 or /2 mate suffix trimmed.
type SeqReads struct {
	DNAID     string
	SeqPaired [][]uint64 // one entry per mate; unpaired reads have exactly one
}

// ToSeqReads scans a single unpaired record into a SeqReads.
func ToSeqReads(rec Record, minQual int, m meros.Meros) SeqReads {
	hashes := scanner.New(rec.SeqX(minQual), m).All()
	return SeqReads{DNAID: TrimPairInfo(rec.ID), SeqPaired: [][]uint64{hashes}}
}

// ToPairedSeqReads scans a mate pair into a single SeqReads with two
// minimizer lists, preserving mate order.
func ToPairedSeqReads(mate1, mate2 Record, minQual int, m meros.Meros) SeqReads {
	h1 := scanner.New(mate1.SeqX(minQual), m).All()
	h2 := scanner.New(mate2.SeqX(minQual), m).All()
	return SeqReads{DNAID: TrimPairInfo(mate1.ID), SeqPaired: [][]uint64{h1, h2}}
}

// Paired reports whether this read has two mates.
func (s SeqReads) Paired() bool {
	return len(s.SeqPaired) == 2
}
