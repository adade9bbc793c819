package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	"github.com/nuclix-bio/k2r/continuity"
	"github.com/nuclix-bio/k2r/meros"
	"github.com/nuclix-bio/k2r/pipeline"
	"github.com/nuclix-bio/k2r/readahead"
	"github.com/nuclix-bio/k2r/seqio"
	"github.com/nuclix-bio/k2r/taxonomy"
)

func newCmd_Build() *cli.Command {
	return &cli.Command{
		Name:  "build",
		Usage: "Build a compact hash table index from reference sequences.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "source", Required: true, Usage: "FASTA file of reference sequences"},
			&cli.StringFlag{Name: "id-to-taxon-map-filename", Required: true, Usage: "two-column TSV mapping sequence id to external taxid"},
			&cli.StringFlag{Name: "ncbi-taxonomy-directory", Usage: "directory containing nodes.dmp/names.dmp (skipped if --taxonomy-filename already exists)"},
			&cli.StringFlag{Name: "taxonomy-filename", Required: true, Usage: "taxo.k2d path, read if present, generated otherwise"},
			&cli.StringFlag{Name: "hashtable-filename", Value: "hash.k2d"},
			&cli.StringFlag{Name: "options-filename", Value: "opts.k2d"},
			&cli.Uint64Flag{Name: "required-capacity", Required: true, Usage: "number of cells in the compact hash table"},
			&cli.IntFlag{Name: "requested-bits-for-taxid", Value: 0},
			&cli.IntFlag{Name: "threads", Value: 1},
			&cli.StringFlag{Name: "chunk-dir", Value: "."},
			&cli.Uint64Flag{Name: "chunk-size", Value: 1 << 30, Usage: "bytes per partition chunk, in [1GiB, 4GiB+1]"},
			&cli.StringFlag{Name: "chunk-prefix", Value: "chunk"},
			&cli.BoolFlag{Name: "only-k2", Usage: "skip phase 1, collapse existing chunk files only"},
			&cli.BoolFlag{Name: "keep-chunks", Usage: "do not delete k2 chunk files after a successful build"},
		},
		Action: runBuild,
	}
}

func runBuild(c *cli.Context) error {
	const gib = uint64(1) << 30
	chunkSize := c.Uint64("chunk-size")
	if chunkSize < gib || chunkSize > 4*gib+1 {
		return cli.Exit(fmt.Sprintf("--chunk-size must be in [%s, %s]", humanize.IBytes(gib), humanize.IBytes(4*gib+1)), 1)
	}

	var taxo *taxonomy.Taxonomy
	var idToTaxon map[string]uint32

	err := continuity.New().
		Thenf("load id-to-taxon map", func() error {
			m, err := taxonomy.ReadIDToTaxonMap(c.String("id-to-taxon-map-filename"))
			idToTaxon = m
			return err
		}).
		Thenf("load or generate taxonomy", func() error {
			taxoPath := c.String("taxonomy-filename")
			if _, statErr := os.Stat(taxoPath); statErr == nil {
				t, err := taxonomy.FromFile(taxoPath)
				taxo = t
				return err
			}
			ncbiDir := c.String("ncbi-taxonomy-directory")
			if ncbiDir == "" {
				return fmt.Errorf("--ncbi-taxonomy-directory is required when --taxonomy-filename does not already exist")
			}
			t, err := taxonomy.GenerateTaxonomy(ncbiDir, taxoPath, idToTaxon)
			taxo = t
			return err
		}).
		Err()
	if err != nil {
		return cli.Exit(err, 1)
	}

	internalIDToTaxon := make(map[string]uint32, len(idToTaxon))
	for seqID, ext := range idToTaxon {
		internal, ok := taxo.InternalID(ext)
		if !ok {
			klog.Warningf("cmd-build: sequence %q maps to unknown external taxid %d, skipping", seqID, ext)
			continue
		}
		internalIDToTaxon[seqID] = internal
	}

	genomes, err := loadSourceGenomes(c.String("source"))
	if err != nil {
		return cli.Exit(err, 1)
	}

	chunkDir := c.String("chunk-dir")
	if err := os.MkdirAll(chunkDir, 0o755); err != nil {
		return cli.Exit(err, 1)
	}

	bp := pipeline.NewBuildPipeline(pipeline.BuildOptions{
		Meros:           meros.Meros{K: 35, L: 31},
		Capacity:        c.Uint64("required-capacity"),
		RequestedBits:   c.Int("requested-bits-for-taxid"),
		ChunkSize:       chunkSize,
		ChunkDir:        chunkDir,
		ChunkPrefix:     c.String("chunk-prefix"),
		OnlyK2:          c.Bool("only-k2"),
		HashFilename:    c.String("hashtable-filename"),
		OptionsFilename: c.String("options-filename"),
		Workers:         c.Int("threads"),
	}, taxo)

	if err := bp.Run(genomes, internalIDToTaxon); err != nil {
		return cli.Exit(err, 1)
	}

	if !c.Bool("keep-chunks") && !c.Bool("only-k2") {
		n := int((c.Uint64("required-capacity") + chunkSize - 1) / chunkSize)
		for i := 0; i < n; i++ {
			os.Remove(filepath.Join(chunkDir, fmt.Sprintf("%s_%d.k2", c.String("chunk-prefix"), i)))
		}
	}

	klog.Infof("build: wrote %s and %s", c.String("hashtable-filename"), c.String("options-filename"))
	return nil
}

func loadSourceGenomes(path string) ([]pipeline.SourceGenome, error) {
	f, err := readahead.NewCachingReader(path, 0)
	if err != nil {
		return nil, fmt.Errorf("cmd-build: open %s: %w", path, err)
	}
	defer f.Close()

	reader, err := seqio.Open(f)
	if err != nil {
		return nil, err
	}

	var genomes []pipeline.SourceGenome
	for {
		rec, ok, err := reader.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		genomes = append(genomes, pipeline.SourceGenome{ID: rec.ID, Seq: rec.Seq})
	}
	return genomes, nil
}
