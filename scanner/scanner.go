// Package scanner implements the canonical minimizer extraction pipeline:
// a sliding-window scan over 2-bit-encoded DNA that emits the lexicographically
// smallest hashed ℓ-mer within each window of k-ℓ+1 positions.
package scanner

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/nuclix-bio/k2r/meros"
)

type dequeEntry struct {
	ord  int
	hash uint64
}

// MinimizerScanner produces a finite, non-restartable, left-to-right
// sequence of 64-bit minimizer hashes over a DNA buffer.
type MinimizerScanner struct {
	m   meros.Meros
	seq []byte
	pos int

	w        int
	codeMask uint64
	revShift uint
	dataMask uint64

	fwd, rev   uint64
	validBases int
	ord        int

	deque []dequeEntry

	hasLast bool
	last    uint64
}

// New builds a scanner over seq using the given minimizer parameters. seq
// should already have FASTQ quality filtering applied (low-quality bases
// replaced with an ambiguous byte) by the caller.
func New(seq []byte, m meros.Meros) *MinimizerScanner {
	l := m.L
	var codeMask uint64
	if l >= 32 {
		codeMask = ^uint64(0)
	} else {
		codeMask = (uint64(1) << uint(2*l)) - 1
	}

	seedMask := m.SpacedSeedMask
	if seedMask == 0 {
		seedMask = (uint64(1) << uint(l)) - 1
	}

	return &MinimizerScanner{
		m:        m,
		seq:      seq,
		w:        m.Window(),
		codeMask: codeMask,
		revShift: uint(2 * (l - 1)),
		dataMask: expandSeedMask(seedMask, l),
	}
}

// expandSeedMask turns a bit-per-position spaced-seed mask into a
// two-bits-per-position data mask matching the 2-bit DNA encoding.
func expandSeedMask(mask uint64, l int) uint64 {
	var out uint64
	for i := 0; i < l; i++ {
		if mask&(uint64(1)<<uint(i)) != 0 {
			out |= uint64(0b11) << uint(2*i)
		}
	}
	return out
}

func baseCode(b byte) (uint64, bool) {
	switch b {
	case 'A', 'a':
		return 0, true
	case 'C', 'c':
		return 1, true
	case 'G', 'g':
		return 2, true
	case 'T', 't':
		return 3, true
	default:
		return 0, false
	}
}

func (s *MinimizerScanner) resetRun() {
	s.fwd, s.rev = 0, 0
	s.validBases = 0
	s.ord = 0
	s.deque = s.deque[:0]
	s.hasLast = false
}

func mix64(code uint64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], code)
	return xxhash.Sum64(buf[:])
}

func canonicalHash(maskedFwd, maskedRev, toggle uint64) uint64 {
	hf, hr := mix64(maskedFwd), mix64(maskedRev)
	h := hf
	if hr < hf {
		h = hr
	}
	return h ^ toggle
}

// Next returns the next minimizer hash, or (0, false) when the buffer is
// exhausted. Consecutive duplicate minimizers collapse to a single emission.
func (s *MinimizerScanner) Next() (uint64, bool) {
	for s.pos < len(s.seq) {
		b := s.seq[s.pos]
		s.pos++

		code, ok := baseCode(b)
		if !ok {
			s.resetRun()
			continue
		}

		s.fwd = ((s.fwd << 2) | code) & s.codeMask
		comp := 3 - code
		s.rev = (s.rev >> 2) | (comp << s.revShift)
		s.validBases++

		if s.validBases < s.m.L {
			continue
		}
		s.ord++

		h := canonicalHash(s.fwd&s.dataMask, s.rev&s.dataMask, s.m.ToggleMask)

		for len(s.deque) > 0 && s.deque[len(s.deque)-1].hash >= h {
			s.deque = s.deque[:len(s.deque)-1]
		}
		s.deque = append(s.deque, dequeEntry{ord: s.ord, hash: h})
		for len(s.deque) > 0 && s.deque[0].ord <= s.ord-s.w {
			s.deque = s.deque[1:]
		}

		if s.ord < s.w {
			continue
		}

		raw := s.deque[0].hash
		if s.hasLast && s.last == raw {
			continue
		}
		s.hasLast = true
		s.last = raw

		cand := raw
		if s.m.MinClearHashValue != nil && cand < *s.m.MinClearHashValue {
			cand = 0
		}
		return cand, true
	}
	return 0, false
}

// All drains the scanner into a slice. Convenience for callers (tests,
// in-memory classification) that don't need streaming behavior.
func (s *MinimizerScanner) All() []uint64 {
	var out []uint64
	for {
		h, ok := s.Next()
		if !ok {
			return out
		}
		out = append(out, h)
	}
}
