package main

import (
	"path/filepath"

	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	"github.com/nuclix-bio/k2r/hashtable"
	"github.com/nuclix-bio/k2r/meros"
	"github.com/nuclix-bio/k2r/pipeline"
)

func newCmd_Splitr() *cli.Command {
	return &cli.Command{
		Name:      "splitr",
		Usage:     "Scan read files and route their minimizers into partitioned chunk files.",
		ArgsUsage: "<fasta/fastq files...>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "hash-dir", Required: true, Usage: "directory holding hash_config.k2d and opts.k2d from a prior build"},
			&cli.BoolFlag{Name: "paired-end-processing", Aliases: []string{"P"}},
			&cli.BoolFlag{Name: "single-file-pairs", Aliases: []string{"S"}},
			&cli.IntFlag{Name: "minimum-quality-score", Aliases: []string{"Q"}, Value: 0},
			&cli.IntFlag{Name: "num-threads", Aliases: []string{"p"}, Value: 10},
			&cli.StringFlag{Name: "chunk-dir", Value: "."},
		},
		Action: runSplitr,
	}
}

func runSplitr(c *cli.Context) error {
	files := c.Args().Slice()
	if len(files) == 0 {
		return cli.Exit("splitr: at least one input file is required", 1)
	}

	hashDir := c.String("hash-dir")
	cfg, err := hashtable.ReadHashConfigHeader(filepath.Join(hashDir, "hash_config.k2d"))
	if err != nil {
		return cli.Exit(err, 1)
	}
	idxOpts, err := meros.ReadIndexOptions(filepath.Join(hashDir, "opts.k2d"))
	if err != nil {
		return cli.Exit(err, 1)
	}

	sp := pipeline.NewSplitPipeline(pipeline.SplitOptions{
		Meros:               idxOpts.AsMeros(),
		PairedEndProcessing: c.Bool("paired-end-processing"),
		MinimumQualityScore: c.Int("minimum-quality-score"),
		ChunkDir:            c.String("chunk-dir"),
		HashConfig:          cfg,
		Workers:             c.Int("num-threads"),
	})

	if c.Bool("paired-end-processing") && !c.Bool("single-file-pairs") {
		if err := sp.RunPaired(files); err != nil {
			return cli.Exit(err, 1)
		}
	} else {
		if err := sp.RunUnpaired(files); err != nil {
			return cli.Exit(err, 1)
		}
	}

	klog.Infof("splitr: routed %d files into %s", len(files), c.String("chunk-dir"))
	return nil
}
