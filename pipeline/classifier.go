// Package pipeline wires minimizer scanning, the compact hash table and
// the taxonomy together into the four end-to-end operations: building an
// index, splitting reads into partitioned k2r files, resolving a
// partitioned split, and classifying directly from memory.
package pipeline

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/nuclix-bio/k2r/hashtable"
	"github.com/nuclix-bio/k2r/meros"
	"github.com/nuclix-bio/k2r/metrics"
	"github.com/nuclix-bio/k2r/scanner"
	"github.com/nuclix-bio/k2r/seqio"
	"github.com/nuclix-bio/k2r/taxonomy"
)

// Sentinel taxon ids used only by the optional hit-list encoding, chosen
// from the top of the uint32 range so they never collide with a real
// (internal) taxid.
const (
	TaxidMax            = math.MaxUint32 - 1
	MatePairBorderTaxon = TaxidMax
	ReadingFrameBorder  = TaxidMax - 1
	AmbiguousSpanTaxon  = TaxidMax - 2
)

// ClassifyOptions parameters a single classification decision.
type ClassifyOptions struct {
	Meros               meros.Meros
	Confidence          float64
	MinimumHitGroups    int
	MinimumQualityScore int
	ReportKmerData      bool
}

// ClassifyResult is the outcome of classifying one read or mate pair.
type ClassifyResult struct {
	DNAID       string
	Call        uint32 // internal taxid, 0 = unclassified
	TotalKmers  int
	HitGroups   int
	HitList     string // only populated when ReportKmerData is set
}

// Classifier looks up minimizers directly against a read-only CHTable,
// without the partitioned split/resolve round-trip. It is the fast path
// for single-process classification of small-to-medium read sets.
type Classifier struct {
	table *hashtable.CHTable
	taxo  *taxonomy.Taxonomy
	opts  ClassifyOptions
}

// NewClassifier builds a Classifier over an already-open table and taxonomy.
func NewClassifier(table *hashtable.CHTable, taxo *taxonomy.Taxonomy, opts ClassifyOptions) *Classifier {
	return &Classifier{table: table, taxo: taxo, opts: opts}
}

// ClassifyRecord classifies a single unpaired read.
func (c *Classifier) ClassifyRecord(rec seqio.Record) ClassifyResult {
	defer observeClassifyLatency(time.Now(), "false")
	hashes := scanHashes(rec, c.opts)
	return c.classifyHashLists([][]uint64{hashes}, seqio.TrimPairInfo(rec.ID))
}

// ClassifyPair classifies a mate pair. Minimizers from both mates are
// scanned independently and walked as one continuous hit-group sequence,
// without resetting last_minimizer at the mate boundary.
func (c *Classifier) ClassifyPair(mate1, mate2 seqio.Record) ClassifyResult {
	defer observeClassifyLatency(time.Now(), "true")
	h1 := scanHashes(mate1, c.opts)
	h2 := scanHashes(mate2, c.opts)
	return c.classifyHashLists([][]uint64{h1, h2}, seqio.TrimPairInfo(mate1.ID))
}

func observeClassifyLatency(start time.Time, paired string) {
	metrics.ClassifyLatencyHistogram.WithLabelValues(paired).Observe(time.Since(start).Seconds())
}

func scanHashes(rec seqio.Record, opts ClassifyOptions) []uint64 {
	return scanner.New(rec.SeqX(opts.MinimumQualityScore), opts.Meros).All()
}

// classifyHashLists implements classify_sequence: walk every minimizer in
// order across all mates, tally per-taxon hit counts, and resolve.
func (c *Classifier) classifyHashLists(mates [][]uint64, dnaID string) ClassifyResult {
	hitCounts := make(map[uint32]uint64)
	var totalKmers int
	var hitGroups int
	lastMinimizer := uint64(math.MaxUint64)

	var hitlist strings.Builder
	var runTaxon uint32
	var runLen int
	flushRun := func() {
		if runLen == 0 {
			return
		}
		writeHitlistRun(&hitlist, runTaxon, runLen)
		runLen = 0
	}

	for mateIdx, hashes := range mates {
		if mateIdx > 0 && c.opts.ReportKmerData {
			flushRun()
			writeHitlistRun(&hitlist, MatePairBorderTaxon, 1)
		}
		for _, h := range hashes {
			totalKmers++

			var taxid uint32
			if c.opts.Meros.MinClearHashValue == nil || h >= *c.opts.Meros.MinClearHashValue {
				taxid = c.table.Get(h)
			}

			if h != lastMinimizer && taxid > 0 {
				hitGroups++
			}
			lastMinimizer = h

			if taxid > 0 {
				hitCounts[taxid]++
			}

			if c.opts.ReportKmerData {
				if taxid == runTaxon && runLen > 0 {
					runLen++
				} else {
					flushRun()
					runTaxon = taxid
					runLen = 1
				}
			}
		}
	}
	if c.opts.ReportKmerData {
		flushRun()
	}

	call := ResolveTree(hitCounts, c.taxo, totalKmers, c.opts.Confidence)
	if call > 0 && hitGroups < c.opts.MinimumHitGroups {
		call = 0
	}
	if call > 0 {
		metrics.ReadsClassified.WithLabelValues("classified").Inc()
	} else {
		metrics.ReadsClassified.WithLabelValues("unclassified").Inc()
	}

	res := ClassifyResult{DNAID: dnaID, Call: call, TotalKmers: totalKmers, HitGroups: hitGroups}
	if c.opts.ReportKmerData {
		res.HitList = hitlist.String()
	}
	return res
}

func writeHitlistRun(b *strings.Builder, taxon uint32, count int) {
	if b.Len() > 0 {
		b.WriteByte(' ')
	}
	switch taxon {
	case MatePairBorderTaxon:
		b.WriteString("|:|")
	case ReadingFrameBorder:
		b.WriteString("-:-")
	case AmbiguousSpanTaxon:
		fmt.Fprintf(b, "A:%d", count)
	default:
		fmt.Fprintf(b, "%d:%d", taxon, count)
	}
}

// FormatOutputLine renders a ClassifyResult the way the classify/resolve
// commands write it: "C|U \t read_id \t external_taxid", with an optional
// fourth hit-list column.
func FormatOutputLine(res ClassifyResult, taxo *taxonomy.Taxonomy) string {
	tag := "U"
	var externalID uint32
	if res.Call > 0 {
		tag = "C"
		externalID = taxo.Nodes[res.Call].ExternalID
	}
	line := fmt.Sprintf("%s\t%s\t%d", tag, res.DNAID, externalID)
	if res.HitList != "" {
		line += "\t" + res.HitList
	}
	return line
}
