package taxonomy

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type dmpNode struct {
	parent uint32
	rank   string
}

// ReadIDToTaxonMap parses a two-column, tab-separated file mapping reference
// sequence accessions to external NCBI taxids.
func ReadIDToTaxonMap(path string) (map[string]uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("taxonomy: open id-to-taxon map %s: %w", path, err)
	}
	defer f.Close()

	out := make(map[string]uint32)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			continue
		}
		taxid, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			continue
		}
		out[fields[0]] = uint32(taxid)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("taxonomy: read id-to-taxon map: %w", err)
	}
	return out, nil
}

func parseNodesDmp(path string) (map[uint32]dmpNode, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("taxonomy: open %s: %w", path, err)
	}
	defer f.Close()

	nodes := make(map[uint32]dmpNode)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		cols := splitDmpLine(sc.Text())
		if len(cols) < 3 {
			continue
		}
		id, err := strconv.ParseUint(cols[0], 10, 32)
		if err != nil {
			continue
		}
		parent, err := strconv.ParseUint(cols[1], 10, 32)
		if err != nil {
			continue
		}
		nodes[uint32(id)] = dmpNode{parent: uint32(parent), rank: cols[2]}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("taxonomy: read nodes.dmp: %w", err)
	}
	return nodes, nil
}

func parseNamesDmp(path string) (map[uint32]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("taxonomy: open %s: %w", path, err)
	}
	defer f.Close()

	names := make(map[uint32]string)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		cols := splitDmpLine(sc.Text())
		if len(cols) < 4 {
			continue
		}
		if cols[3] != "scientific name" {
			continue
		}
		id, err := strconv.ParseUint(cols[0], 10, 32)
		if err != nil {
			continue
		}
		names[uint32(id)] = cols[1]
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("taxonomy: read names.dmp: %w", err)
	}
	return names, nil
}

// splitDmpLine splits an NCBI .dmp line on the "\t|\t" / "\t|" separators.
func splitDmpLine(line string) []string {
	parts := strings.Split(line, "\t|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimPrefix(p, "\t")
		p = strings.TrimSpace(p)
		if p == "" && len(out) == len(parts)-1 {
			// trailing empty field from the line's closing "\t|\n"
			continue
		}
		out = append(out, p)
	}
	return out
}

// GenerateTaxonomy builds a dense taxonomy tree from NCBI nodes.dmp/names.dmp
// restricted to the external ids named by idToTaxonMap plus their ancestors,
// and writes it to outPath.
func GenerateTaxonomy(ncbiDir, outPath string, idToTaxonMap map[string]uint32) (*Taxonomy, error) {
	nodesByExt, err := parseNodesDmp(filepath.Join(ncbiDir, "nodes.dmp"))
	if err != nil {
		return nil, err
	}
	namesByExt, err := parseNamesDmp(filepath.Join(ncbiDir, "names.dmp"))
	if err != nil {
		return nil, err
	}

	needed := make(map[uint32]bool)
	for _, extID := range idToTaxonMap {
		id := extID
		for {
			if needed[id] {
				break
			}
			needed[id] = true
			n, ok := nodesByExt[id]
			if !ok || n.parent == id {
				break
			}
			id = n.parent
		}
	}

	root := findRoot(nodesByExt, needed)
	children := make(map[uint32][]uint32)
	for id := range needed {
		if id == root {
			continue
		}
		p := nodesByExt[id].parent
		children[p] = append(children[p], id)
	}

	// BFS assigns internal ids level by level, so every parent's internal id
	// is assigned strictly before any of its children's.
	extOrder := []uint32{root}
	queue := []uint32{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		kids := children[cur]
		for _, k := range kids {
			extOrder = append(extOrder, k)
			queue = append(queue, k)
		}
	}

	extToInternal := make(map[uint32]uint32, len(extOrder)+1)
	nodes := make([]Node, len(extOrder)+1) // +1 for the synthetic null node 0
	for i, ext := range extOrder {
		extToInternal[ext] = uint32(i + 1)
	}

	for i, ext := range extOrder {
		internalID := uint32(i + 1)
		info := nodesByExt[ext]
		parentInternal := uint32(0)
		if ext != root {
			parentInternal = extToInternal[info.parent]
		}
		nodes[internalID] = Node{
			ParentID:   parentInternal,
			ExternalID: ext,
			Name:       namesByExt[ext],
			Rank:       info.rank,
		}
	}

	for id := uint32(1); id < uint32(len(nodes)); id++ {
		p := nodes[id].ParentID
		if nodes[p].ChildCount == 0 {
			nodes[p].FirstChild = id
		}
		nodes[p].ChildCount++
	}

	t := &Taxonomy{Nodes: nodes, extToInternal: extToInternal}
	if outPath != "" {
		if err := t.WriteToFile(outPath); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// findRoot returns the NCBI root (a node whose parent is itself, normally
// taxid 1) if it was pulled into the needed set, else the shallowest needed
// node whose parent lies outside the needed set.
func findRoot(nodesByExt map[uint32]dmpNode, needed map[uint32]bool) uint32 {
	for id := range needed {
		if n, ok := nodesByExt[id]; ok && n.parent == id {
			return id
		}
	}
	for id := range needed {
		if n, ok := nodesByExt[id]; !ok || !needed[n.parent] {
			return id
		}
	}
	var root uint32
	first := true
	for id := range needed {
		if first || id < root {
			root = id
			first = false
		}
	}
	return root
}
