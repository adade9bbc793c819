package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	"github.com/nuclix-bio/k2r/hashtable"
	"github.com/nuclix-bio/k2r/pipeline"
	"github.com/nuclix-bio/k2r/taxonomy"
)

func newCmd_Resolve() *cli.Command {
	return &cli.Command{
		Name:  "resolve",
		Usage: "Resolve a split sample directory's partitioned minimizer hits into taxon calls.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "hash-dir", Required: true, Usage: "directory holding hash.k2d, hash_config.k2d and taxo.k2d from a prior build"},
			&cli.StringFlag{Name: "chunk-dir", Value: ".", Usage: "directory holding sample_*.bin and sample_id_*.map from a prior splitr run"},
			&cli.Float64Flag{Name: "confidence-threshold", Aliases: []string{"T"}, Value: 0.0},
			&cli.IntFlag{Name: "minimum-hit-groups", Aliases: []string{"g"}, Value: 2},
			&cli.Uint64Flag{Name: "batch-size", Value: 8 << 20},
			&cli.StringFlag{Name: "output-dir", Usage: "if set, one output file per split input is written here; stdout otherwise"},
		},
		Action: runResolve,
	}
}

func runResolve(c *cli.Context) error {
	hashDir := c.String("hash-dir")
	chunkDir := c.String("chunk-dir")

	taxo, err := taxonomy.FromFile(filepath.Join(hashDir, "taxo.k2d"))
	if err != nil {
		return cli.Exit(err, 1)
	}
	cfg, err := hashtable.ReadHashConfigHeader(filepath.Join(hashDir, "hash_config.k2d"))
	if err != nil {
		return cli.Exit(err, 1)
	}
	fileIndices, err := pipeline.ListFileIndices(filepath.Join(chunkDir, "sample_file.map"))
	if err != nil {
		return cli.Exit(err, 1)
	}
	if len(fileIndices) == 0 {
		return cli.Exit("resolve: no split files found in "+chunkDir, 1)
	}

	rp := pipeline.NewResolvePipeline(pipeline.ResolveOptions{
		Confidence:       c.Float64("confidence-threshold"),
		MinimumHitGroups: c.Int("minimum-hit-groups"),
		ChunkDir:         chunkDir,
		HashFilename:     filepath.Join(hashDir, "hash.k2d"),
	}, taxo)

	results, err := rp.Run(fileIndices, cfg.PartitionCount())
	if err != nil {
		return cli.Exit(err, 1)
	}

	outputDir := c.String("output-dir")
	if outputDir != "" {
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return cli.Exit(err, 1)
		}
	}

	for _, fi := range fileIndices {
		lines := results[fi]
		if outputDir == "" {
			for _, line := range lines {
				fmt.Println(line)
			}
			continue
		}
		outPath := filepath.Join(outputDir, fmt.Sprintf("sample_%d.kraken", fi))
		if err := writeLines(outPath, lines); err != nil {
			return cli.Exit(err, 1)
		}
	}

	klog.Infof("resolve: classified %d split files", len(fileIndices))
	return nil
}

func writeLines(path string, lines []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return w.Flush()
}
