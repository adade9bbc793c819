package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	"github.com/nuclix-bio/k2r/hashtable"
	"github.com/nuclix-bio/k2r/meros"
	"github.com/nuclix-bio/k2r/pipeline"
	"github.com/nuclix-bio/k2r/readahead"
	"github.com/nuclix-bio/k2r/seqio"
	"github.com/nuclix-bio/k2r/taxonomy"
)

func newCmd_Classify() *cli.Command {
	return &cli.Command{
		Name:      "classify",
		Usage:     "Classify reads directly against an in-memory compact hash table, no split/resolve round-trip.",
		ArgsUsage: "<fasta/fastq files...>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "index-filename", Aliases: []string{"H"}, Required: true},
			&cli.StringFlag{Name: "taxonomy-filename", Aliases: []string{"t"}, Required: true},
			&cli.StringFlag{Name: "options-filename", Aliases: []string{"o"}, Required: true},
			&cli.Float64Flag{Name: "confidence-threshold", Aliases: []string{"T"}, Value: 0.0},
			&cli.IntFlag{Name: "num-threads", Aliases: []string{"p"}, Value: 1},
			&cli.IntFlag{Name: "minimum-hit-groups", Aliases: []string{"g"}, Value: 2},
			&cli.BoolFlag{Name: "paired-end-processing", Aliases: []string{"P"}},
			&cli.BoolFlag{Name: "single-file-pairs", Aliases: []string{"S"}},
			&cli.StringFlag{Name: "kraken-output-filename", Aliases: []string{"O"}},
			&cli.IntFlag{Name: "minimum-quality-score", Aliases: []string{"Q"}, Value: 0},
			&cli.BoolFlag{Name: "report-kmer-data", Usage: "append a fourth column listing each k-mer's taxon run"},
		},
		Action: runClassify,
	}
}

func runClassify(c *cli.Context) error {
	files := c.Args().Slice()
	if len(files) == 0 {
		return cli.Exit("classify: at least one input file is required", 1)
	}

	idxOpts, err := meros.ReadIndexOptions(c.String("options-filename"))
	if err != nil {
		return cli.Exit(err, 1)
	}
	m := idxOpts.AsMeros()
	hashConfigPath := filepath.Join(filepath.Dir(c.String("index-filename")), "hash_config.k2d")
	cfg, err := hashtable.ReadHashConfigHeader(hashConfigPath)
	if err != nil {
		return cli.Exit(err, 1)
	}
	table, err := hashtable.OpenCHTable(c.String("index-filename"), 0, cfg.PartitionCount())
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer table.Close()
	if tc := table.Config(); tc.ValueBits != cfg.ValueBits || tc.HashSize != cfg.HashSize {
		return cli.Exit(fmt.Sprintf("classify: %s (value_bits=%d, hash_size=%d) does not match %s (value_bits=%d, hash_size=%d)",
			c.String("index-filename"), tc.ValueBits, tc.HashSize, hashConfigPath, cfg.ValueBits, cfg.HashSize), 1)
	}

	taxo, err := taxonomy.FromFile(c.String("taxonomy-filename"))
	if err != nil {
		return cli.Exit(err, 1)
	}

	classifier := pipeline.NewClassifier(table, taxo, pipeline.ClassifyOptions{
		Meros:               m,
		Confidence:          c.Float64("confidence-threshold"),
		MinimumHitGroups:    c.Int("minimum-hit-groups"),
		MinimumQualityScore: c.Int("minimum-quality-score"),
		ReportKmerData:      c.Bool("report-kmer-data"),
	})

	out := os.Stdout
	if path := c.String("kraken-output-filename"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return cli.Exit(err, 1)
		}
		defer f.Close()
		out = f
	}
	w := bufio.NewWriter(out)
	defer w.Flush()

	paired := c.Bool("paired-end-processing") && !c.Bool("single-file-pairs")
	if paired && len(files)%2 != 0 {
		return cli.Exit("classify: paired-end processing requires an even number of input files", 1)
	}

	classified, total := 0, 0
	if paired {
		for i := 0; i < len(files); i += 2 {
			n, k, err := classifyPairFile(classifier, taxo, files[i], files[i+1], w)
			if err != nil {
				return cli.Exit(err, 1)
			}
			classified += n
			total += k
		}
	} else {
		for _, path := range files {
			n, k, err := classifyFile(classifier, taxo, path, w)
			if err != nil {
				return cli.Exit(err, 1)
			}
			classified += n
			total += k
		}
	}

	klog.Infof("classify: %d/%d reads classified", classified, total)
	return nil
}

func classifyFile(c *pipeline.Classifier, taxo *taxonomy.Taxonomy, path string, w *bufio.Writer) (classified, total int, err error) {
	f, err := readahead.NewCachingReader(path, 0)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	reader, err := seqio.Open(f)
	if err != nil {
		return 0, 0, err
	}
	for {
		rec, ok, err := reader.Next()
		if err != nil {
			return classified, total, err
		}
		if !ok {
			break
		}
		res := c.ClassifyRecord(rec)
		total++
		if res.Call > 0 {
			classified++
		}
		if _, err := fmt.Fprintln(w, pipeline.FormatOutputLine(res, taxo)); err != nil {
			return classified, total, err
		}
	}
	return classified, total, nil
}

func classifyPairFile(c *pipeline.Classifier, taxo *taxonomy.Taxonomy, path1, path2 string, w *bufio.Writer) (classified, total int, err error) {
	f1, err := readahead.NewCachingReader(path1, 0)
	if err != nil {
		return 0, 0, err
	}
	defer f1.Close()
	f2, err := readahead.NewCachingReader(path2, 0)
	if err != nil {
		return 0, 0, err
	}
	defer f2.Close()

	pr := seqio.NewPairReader(f1, f2)
	for {
		mate1, mate2, ok, err := pr.Next()
		if err != nil {
			return classified, total, err
		}
		if !ok {
			break
		}
		res := c.ClassifyPair(mate1, mate2)
		total++
		if res.Call > 0 {
			classified++
		}
		if _, err := fmt.Fprintln(w, pipeline.FormatOutputLine(res, taxo)); err != nil {
			return classified, total, err
		}
	}
	return classified, total, nil
}
