package taxonomy_test

import (
	"bytes"
	"testing"

	"github.com/nuclix-bio/k2r/taxonomy"
	"github.com/stretchr/testify/require"
)

// six-node tree:
//
//	1 (root)
//	├─ 5
//	│  ├─ 10
//	│  └─ 20
//	└─ 3
func sixNodeTree() *taxonomy.Taxonomy {
	nodes := []taxonomy.Node{
		{}, // 0: null
		{ParentID: 0, ExternalID: 1, Name: "root"},           // 1
		{ParentID: 1, ExternalID: 3, Name: "other"},           // 2
		{ParentID: 1, ExternalID: 5, Name: "clade"},           // 3
		{ParentID: 3, ExternalID: 10, Name: "species-a"},      // 4
		{ParentID: 3, ExternalID: 20, Name: "species-b"},      // 5
	}
	return &taxonomy.Taxonomy{Nodes: nodes}
}

func TestIsAncestorOf(t *testing.T) {
	tax := sixNodeTree()
	require.True(t, tax.IsAncestorOf(1, 4))
	require.True(t, tax.IsAncestorOf(3, 4))
	require.True(t, tax.IsAncestorOf(4, 4))
	require.False(t, tax.IsAncestorOf(4, 5))
	require.False(t, tax.IsAncestorOf(2, 4))
}

func TestLCA(t *testing.T) {
	tax := sixNodeTree()

	require.Equal(t, uint32(3), tax.LCA(4, 5))
	require.Equal(t, uint32(1), tax.LCA(2, 4))
	require.Equal(t, uint32(4), tax.LCA(4, 4))
	require.Equal(t, uint32(4), tax.LCA(0, 4))
	require.Equal(t, uint32(4), tax.LCA(4, 0))

	for a := uint32(0); a <= 5; a++ {
		for b := uint32(0); b <= 5; b++ {
			require.Equal(t, tax.LCA(a, b), tax.LCA(b, a), "lca(%d,%d) not commutative", a, b)
		}
	}

	// Starts at 2: the root's parent is the null node 0, and LCA(x, 0) = x.
	for a := uint32(2); a <= 5; a++ {
		p := tax.Parent(a)
		require.Equal(t, p, tax.LCA(a, p))
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tax := sixNodeTree()
	// fill in child bookkeeping the way GenerateTaxonomy does.
	for id := uint32(1); id < uint32(len(tax.Nodes)); id++ {
		p := tax.Nodes[id].ParentID
		if tax.Nodes[p].ChildCount == 0 {
			tax.Nodes[p].FirstChild = id
		}
		tax.Nodes[p].ChildCount++
	}

	var buf bytes.Buffer
	require.NoError(t, tax.Encode(&buf))

	decoded, err := taxonomy.Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, tax.Nodes, decoded.Nodes)

	id, ok := decoded.InternalID(20)
	require.True(t, ok)
	require.Equal(t, uint32(5), id)
}

func TestDecodeBadMagic(t *testing.T) {
	_, err := taxonomy.Decode(bytes.NewReader([]byte("not a taxonomy dump at all")))
	require.ErrorIs(t, err, taxonomy.ErrBadMagic)
}
