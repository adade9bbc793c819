// Package taxonomy holds the packed taxonomic tree used to resolve
// minimizer hits to a lowest common ancestor.
package taxonomy

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Magic identifies the binary taxonomy dump format.
var Magic = [8]byte{'K', '2', 'R', 'T', 'A', 'X', 'O', '1'}

// Node is a single taxonomic node. Index 0 is the synthetic null/unclassified
// node; index 1 is the root. parent_id < self_id holds for every node above
// the root.
type Node struct {
	ParentID    uint32
	FirstChild  uint32
	ChildCount  uint32
	Name        string
	Rank        string
	ExternalID  uint32
	GodparentID uint32
}

// Taxonomy is an immutable, densely indexed tree loaded once from disk.
type Taxonomy struct {
	Nodes []Node

	// extToInternal maps the public NCBI taxid to this tree's dense index.
	extToInternal map[uint32]uint32
}

// NodeCount returns the number of nodes, including the synthetic null node 0.
func (t *Taxonomy) NodeCount() int {
	return len(t.Nodes)
}

// InternalID looks up the dense internal id for a public NCBI taxid.
func (t *Taxonomy) InternalID(external uint32) (uint32, bool) {
	id, ok := t.extToInternal[external]
	return id, ok
}

// Parent returns the parent's internal id, or 0 for the root.
func (t *Taxonomy) Parent(id uint32) uint32 {
	if id == 0 || int(id) >= len(t.Nodes) {
		return 0
	}
	return t.Nodes[id].ParentID
}

// IsAncestorOf reports whether a is an ancestor of (or equal to) b, walking
// b's parent chain until it reaches a (true) or the null node (false).
func (t *Taxonomy) IsAncestorOf(a, b uint32) bool {
	for b != 0 {
		if b == a {
			return true
		}
		b = t.Parent(b)
	}
	return a == 0
}

func (t *Taxonomy) depth(id uint32) int {
	d := 0
	for id != 0 {
		id = t.Parent(id)
		d++
	}
	return d
}

// LCA returns the lowest common ancestor of a and b: climb the deeper node
// to align depths, then climb both in lock-step until they meet.
func (t *Taxonomy) LCA(a, b uint32) uint32 {
	if a == 0 {
		return b
	}
	if b == 0 {
		return a
	}
	if a == b {
		return a
	}

	da, db := t.depth(a), t.depth(b)
	for da > db {
		a = t.Parent(a)
		da--
	}
	for db > da {
		b = t.Parent(b)
		db--
	}
	for a != b {
		a = t.Parent(a)
		b = t.Parent(b)
	}
	return a
}

const nodeRecordSize = 36

// FromFile loads a taxonomy from its binary dump, failing on a truncated
// file or a bad magic.
func FromFile(path string) (*Taxonomy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("taxonomy: open %s: %w", path, err)
	}
	defer f.Close()
	return Decode(bufio.NewReader(f))
}

// Decode reads the binary taxonomy dump format from r.
func Decode(r io.Reader) (*Taxonomy, error) {
	var magic [8]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("taxonomy: read magic: %w", err)
	}
	if magic != Magic {
		return nil, fmt.Errorf("taxonomy: %w", ErrBadMagic)
	}

	var header [24]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("taxonomy: read header: %w", err)
	}
	nodeCount := binary.LittleEndian.Uint64(header[0:8])
	namePoolLen := binary.LittleEndian.Uint64(header[8:16])
	rankPoolLen := binary.LittleEndian.Uint64(header[16:24])

	raw := make([]byte, nodeCount*nodeRecordSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("taxonomy: read nodes: %w", err)
	}

	namePool := make([]byte, namePoolLen)
	if _, err := io.ReadFull(r, namePool); err != nil {
		return nil, fmt.Errorf("taxonomy: read name pool: %w", err)
	}
	rankPool := make([]byte, rankPoolLen)
	if _, err := io.ReadFull(r, rankPool); err != nil {
		return nil, fmt.Errorf("taxonomy: read rank pool: %w", err)
	}

	nodes := make([]Node, nodeCount)
	extToInternal := make(map[uint32]uint32, nodeCount)
	for i := uint64(0); i < nodeCount; i++ {
		rec := raw[i*nodeRecordSize : (i+1)*nodeRecordSize]
		n := Node{
			ParentID:    binary.LittleEndian.Uint32(rec[0:4]),
			FirstChild:  binary.LittleEndian.Uint32(rec[4:8]),
			ChildCount:  binary.LittleEndian.Uint32(rec[8:12]),
			ExternalID:  binary.LittleEndian.Uint32(rec[28:32]),
			GodparentID: binary.LittleEndian.Uint32(rec[32:36]),
		}
		nameOff := binary.LittleEndian.Uint32(rec[12:16])
		nameLen := binary.LittleEndian.Uint32(rec[16:20])
		rankOff := binary.LittleEndian.Uint32(rec[20:24])
		rankLen := binary.LittleEndian.Uint32(rec[24:28])
		if uint64(nameOff)+uint64(nameLen) > namePoolLen {
			return nil, fmt.Errorf("taxonomy: node %d: %w", i, ErrTruncated)
		}
		if uint64(rankOff)+uint64(rankLen) > rankPoolLen {
			return nil, fmt.Errorf("taxonomy: node %d: %w", i, ErrTruncated)
		}
		n.Name = string(namePool[nameOff : nameOff+nameLen])
		n.Rank = string(rankPool[rankOff : rankOff+rankLen])
		nodes[i] = n
		if i > 0 {
			extToInternal[n.ExternalID] = uint32(i)
		}
	}

	return &Taxonomy{Nodes: nodes, extToInternal: extToInternal}, nil
}

// WriteToFile serializes the tree back to the binary dump format.
func (t *Taxonomy) WriteToFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("taxonomy: create %s: %w", path, err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if err := t.Encode(w); err != nil {
		return err
	}
	return w.Flush()
}

// Encode writes the binary dump format to w.
func (t *Taxonomy) Encode(w io.Writer) error {
	var namePool, rankPool []byte
	nameOffsets := make([]uint32, len(t.Nodes))
	nameLens := make([]uint32, len(t.Nodes))
	rankOffsets := make([]uint32, len(t.Nodes))
	rankLens := make([]uint32, len(t.Nodes))

	for i, n := range t.Nodes {
		nameOffsets[i] = uint32(len(namePool))
		nameLens[i] = uint32(len(n.Name))
		namePool = append(namePool, n.Name...)

		rankOffsets[i] = uint32(len(rankPool))
		rankLens[i] = uint32(len(n.Rank))
		rankPool = append(rankPool, n.Rank...)
	}

	if _, err := w.Write(Magic[:]); err != nil {
		return err
	}
	var header [24]byte
	binary.LittleEndian.PutUint64(header[0:8], uint64(len(t.Nodes)))
	binary.LittleEndian.PutUint64(header[8:16], uint64(len(namePool)))
	binary.LittleEndian.PutUint64(header[16:24], uint64(len(rankPool)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}

	rec := make([]byte, nodeRecordSize)
	for i, n := range t.Nodes {
		binary.LittleEndian.PutUint32(rec[0:4], n.ParentID)
		binary.LittleEndian.PutUint32(rec[4:8], n.FirstChild)
		binary.LittleEndian.PutUint32(rec[8:12], n.ChildCount)
		binary.LittleEndian.PutUint32(rec[12:16], nameOffsets[i])
		binary.LittleEndian.PutUint32(rec[16:20], nameLens[i])
		binary.LittleEndian.PutUint32(rec[20:24], rankOffsets[i])
		binary.LittleEndian.PutUint32(rec[24:28], rankLens[i])
		binary.LittleEndian.PutUint32(rec[28:32], n.ExternalID)
		binary.LittleEndian.PutUint32(rec[32:36], n.GodparentID)
		if _, err := w.Write(rec); err != nil {
			return err
		}
	}
	if _, err := w.Write(namePool); err != nil {
		return err
	}
	if _, err := w.Write(rankPool); err != nil {
		return err
	}
	return nil
}
