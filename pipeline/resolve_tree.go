package pipeline

import (
	"math"

	"github.com/nuclix-bio/k2r/taxonomy"
)

// ResolveTree picks the most specific taxon whose ancestor-weighted score
// meets confidence*totalMinimizers, climbing toward the root until one
// does (or returning 0, the unclassified/root call).
func ResolveTree(hits map[uint32]uint64, taxo *taxonomy.Taxonomy, totalMinimizers int, confidence float64) uint32 {
	if len(hits) == 0 {
		return 0
	}
	requiredScore := uint64(math.Ceil(confidence * float64(totalMinimizers)))

	maxTaxon, maxScore := bestCandidate(hits, taxo)
	// The tie-break above may have replaced maxTaxon with an LCA that never
	// received a direct hit, so maxScore no longer describes it. Reset to
	// its raw hit count before climbing.
	maxScore = hits[maxTaxon]

	for maxTaxon != 0 && maxScore < requiredScore {
		maxScore = scoreFor(maxTaxon, hits, taxo)
		if maxScore >= requiredScore {
			break
		}
		maxTaxon = taxo.Parent(maxTaxon)
	}
	return maxTaxon
}

// bestCandidate scores every taxon that received a direct hit and returns
// the highest-scoring one, breaking ties by folding candidates together
// via LCA (deterministic regardless of map iteration order).
func bestCandidate(hits map[uint32]uint64, taxo *taxonomy.Taxonomy) (uint32, uint64) {
	var maxTaxon uint32
	var maxScore uint64
	for taxon := range hits {
		score := scoreFor(taxon, hits, taxo)
		switch {
		case maxTaxon == 0 || score > maxScore:
			maxTaxon, maxScore = taxon, score
		case score == maxScore:
			maxTaxon = taxo.LCA(maxTaxon, taxon)
		}
	}
	return maxTaxon, maxScore
}

// scoreFor sums hits[t] over every t for which taxon is an ancestor,
// crediting a candidate with all of its descendants' hits plus its own.
func scoreFor(taxon uint32, hits map[uint32]uint64, taxo *taxonomy.Taxonomy) uint64 {
	if taxon == 0 {
		return 0
	}
	var score uint64
	for t, count := range hits {
		if taxo.IsAncestorOf(taxon, t) {
			score += count
		}
	}
	return score
}
