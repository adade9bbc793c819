package main

import (
	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	"github.com/nuclix-bio/k2r/taxonomy"
)

func newCmd_Ncbi() *cli.Command {
	return &cli.Command{
		Name:  "ncbi",
		Usage: "Build a taxo.k2d file from a local NCBI taxonomy dump and an id-to-taxon map.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "taxonomy-directory", Required: true, Usage: "directory containing nodes.dmp and names.dmp"},
			&cli.StringFlag{Name: "id-to-taxon-map-filename", Required: true},
			&cli.StringFlag{Name: "output", Value: "taxo.k2d"},
		},
		Action: runNcbi,
	}
}

func runNcbi(c *cli.Context) error {
	idToTaxon, err := taxonomy.ReadIDToTaxonMap(c.String("id-to-taxon-map-filename"))
	if err != nil {
		return cli.Exit(err, 1)
	}

	taxo, err := taxonomy.GenerateTaxonomy(c.String("taxonomy-directory"), c.String("output"), idToTaxon)
	if err != nil {
		return cli.Exit(err, 1)
	}

	klog.Infof("ncbi: wrote %s with %d nodes", c.String("output"), taxo.NodeCount())
	return nil
}
