package seqio_test

import (
	"strings"
	"testing"

	"github.com/nuclix-bio/k2r/meros"
	"github.com/nuclix-bio/k2r/seqio"
	"github.com/stretchr/testify/require"
)

func TestFastaReaderMultiLine(t *testing.T) {
	data := ">read1 description here\nACGT\nACGT\n>read2\nTTTT\n"
	r, err := seqio.Open(strings.NewReader(data))
	require.NoError(t, err)

	rec1, ok, err := r.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "read1", rec1.ID)
	require.Equal(t, "ACGTACGT", string(rec1.Seq))

	rec2, ok, err := r.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "read2", rec2.ID)
	require.Equal(t, "TTTT", string(rec2.Seq))

	_, ok, err = r.Next()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFastqReader(t *testing.T) {
	data := "@read1/1\nACGTACGT\n+\nIIIIIIII\n"
	r, err := seqio.Open(strings.NewReader(data))
	require.NoError(t, err)

	rec, ok, err := r.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "read1/1", rec.ID)
	require.Equal(t, "ACGTACGT", string(rec.Seq))
	require.Equal(t, "IIIIIIII", string(rec.Qual))
}

func TestSeqXMasksLowQualityBases(t *testing.T) {
	// '!' = score 0, 'I' = score 40.
	rec := seqio.Record{Seq: []byte("ACGTACGT"), Qual: []byte("IIII!!!!")}
	masked := rec.SeqX(20)
	require.Equal(t, "ACGTxxxx", string(masked))
}

func TestSeqXPassThroughForFasta(t *testing.T) {
	rec := seqio.Record{Seq: []byte("ACGT")}
	require.Equal(t, "ACGT", string(rec.SeqX(20)))
}

func TestTrimPairInfo(t *testing.T) {
	require.Equal(t, "read1", seqio.TrimPairInfo("read1/1"))
	require.Equal(t, "read1", seqio.TrimPairInfo("read1/2"))
	require.Equal(t, "read1", seqio.TrimPairInfo("read1"))
	require.Equal(t, "/1", seqio.TrimPairInfo("/1"))
}

func TestOpenRejectsUnknownFormat(t *testing.T) {
	_, err := seqio.Open(strings.NewReader("not a sequence file"))
	require.Error(t, err)
}

func TestPairReaderLockstep(t *testing.T) {
	mate1 := "@r1/1\nACGTACGT\n+\nIIIIIIII\n"
	mate2 := "@r1/2\nTTTTAAAA\n+\nIIIIIIII\n"
	pr := seqio.NewPairReader(strings.NewReader(mate1), strings.NewReader(mate2))

	rec1, rec2, ok, err := pr.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "r1/1", rec1.ID)
	require.Equal(t, "r1/2", rec2.ID)

	_, _, ok, err = pr.Next()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestToSeqReadsTrimsMateSuffix(t *testing.T) {
	m := meros.Meros{K: 8, L: 6}
	rec := seqio.Record{ID: "r1/1", Seq: []byte("ACGTACGTACGT")}
	sr := seqio.ToSeqReads(rec, 0, m)
	require.Equal(t, "r1", sr.DNAID)
	require.False(t, sr.Paired())
}

func TestToPairedSeqReadsProducesTwoLists(t *testing.T) {
	m := meros.Meros{K: 8, L: 6}
	mate1 := seqio.Record{ID: "r1/1", Seq: []byte("ACGTACGTACGT")}
	mate2 := seqio.Record{ID: "r1/2", Seq: []byte("TTTTACGTACGT")}
	sr := seqio.ToPairedSeqReads(mate1, mate2, 0, m)
	require.Equal(t, "r1", sr.DNAID)
	require.True(t, sr.Paired())
	require.Len(t, sr.SeqPaired, 2)
}
