// Package meros holds the minimizer/k-mer parameters fixed at index build
// time, plus the on-disk IndexOptions blob that carries them between the
// build and classify/split/resolve phases.
package meros

import (
	"fmt"
	"os"

	"github.com/nuclix-bio/k2r/indexmeta"
)

// Meros is the set of parameters controlling minimizer extraction.
type Meros struct {
	K int // k-mer length
	L int // minimizer (ℓ-mer) length, L <= K

	SpacedSeedMask uint64 // bit i = 1 -> keep position i of the ℓ-mer
	ToggleMask     uint64 // XORed into the canonical hash

	// MinClearHashValue, when non-nil, sub-samples minimizers: hashes below
	// this value are reported as 0 by the scanner.
	MinClearHashValue *uint64
}

// Window returns w = k - l + 1, the number of ℓ-mers per sliding window.
func (m Meros) Window() int {
	return m.K - m.L + 1
}

// Validate checks the structural invariants spec.md requires of Meros.
func (m Meros) Validate() error {
	if m.L <= 0 || m.K <= 0 {
		return fmt.Errorf("meros: k and l must be positive (k=%d, l=%d)", m.K, m.L)
	}
	if m.L > m.K {
		return fmt.Errorf("meros: l (%d) must be <= k (%d)", m.L, m.K)
	}
	if m.L > 32 {
		return fmt.Errorf("meros: l (%d) exceeds the 2-bit-per-base 64-bit word limit of 32", m.L)
	}
	return nil
}

// IndexOptions is the persisted opts.k2d artifact: Meros plus a DNA/protein
// discriminator. Protein scoring is a documented non-goal; DNADB is always
// true in this implementation but is preserved so opts.k2d round-trips with
// files produced by the original tool.
type IndexOptions struct {
	Meros Meros
	DNADB bool
}

var (
	keyK          = []byte("k")
	keyL          = []byte("l")
	keySeedMask   = []byte("spaced_seed_mask")
	keyToggleMask = []byte("toggle_mask")
	keyMinClear   = []byte("min_clear_hash_value")
	keyDNADB      = []byte("dna_db")
)

// AsMeros returns the Meros embedded in these options.
func (o IndexOptions) AsMeros() Meros {
	return o.Meros
}

// FromMeros builds IndexOptions for a DNA index from the given parameters.
func FromMeros(m Meros) IndexOptions {
	return IndexOptions{Meros: m, DNADB: true}
}

// WriteToFile encodes the options as an indexmeta.Meta blob and writes it.
func (o IndexOptions) WriteToFile(path string) error {
	var meta indexmeta.Meta
	if err := meta.AddUint64(keyK, uint64(o.Meros.K)); err != nil {
		return err
	}
	if err := meta.AddUint64(keyL, uint64(o.Meros.L)); err != nil {
		return err
	}
	if err := meta.AddUint64(keySeedMask, o.Meros.SpacedSeedMask); err != nil {
		return err
	}
	if err := meta.AddUint64(keyToggleMask, o.Meros.ToggleMask); err != nil {
		return err
	}
	if o.Meros.MinClearHashValue != nil {
		if err := meta.AddUint64(keyMinClear, *o.Meros.MinClearHashValue); err != nil {
			return err
		}
	}
	dnaFlag := byte(0)
	if o.DNADB {
		dnaFlag = 1
	}
	if err := meta.Add(keyDNADB, []byte{dnaFlag}); err != nil {
		return err
	}

	return os.WriteFile(path, meta.Bytes(), 0o644)
}

// ReadIndexOptions decodes a previously written opts.k2d file.
func ReadIndexOptions(path string) (IndexOptions, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return IndexOptions{}, fmt.Errorf("meros: read %s: %w", path, err)
	}
	var meta indexmeta.Meta
	if err := meta.UnmarshalBinary(b); err != nil {
		return IndexOptions{}, fmt.Errorf("meros: decode %s: %w", path, err)
	}

	var o IndexOptions
	k, _ := meta.GetUint64(keyK)
	l, _ := meta.GetUint64(keyL)
	o.Meros.K = int(k)
	o.Meros.L = int(l)
	o.Meros.SpacedSeedMask, _ = meta.GetUint64(keySeedMask)
	o.Meros.ToggleMask, _ = meta.GetUint64(keyToggleMask)
	if v, ok := meta.GetUint64(keyMinClear); ok {
		o.Meros.MinClearHashValue = &v
	}
	if dnaBytes, ok := meta.Get(keyDNADB); ok && len(dnaBytes) == 1 {
		o.DNADB = dnaBytes[0] == 1
	}
	return o, nil
}
