package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sort"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	"github.com/nuclix-bio/k2r/metrics"
)

var gitCommitSHA = ""

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics.Version.WithLabelValues(time.Now().Format(time.RFC3339), "", gitCommitSHA, runtime.Version(), runtime.GOARCH, runtime.GOOS).Set(1)

	go func() {
		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, syscall.SIGTERM, syscall.SIGINT)

		select {
		case <-interrupt:
			fmt.Println()
			klog.Info("received interrupt signal")
			cancel()
		case <-ctx.Done():
		}

		signal.Stop(interrupt)
	}()

	app := &cli.App{
		Name:        "k2r",
		Version:     gitCommitSHA,
		Description: "Build and query a partitioned compact hash table for metagenomic minimizer classification.",
		Flags:       NewKlogFlagSet(),
		Commands: []*cli.Command{
			newCmd_Build(),
			newCmd_Splitr(),
			newCmd_Resolve(),
			newCmd_Classify(),
			newCmd_Ncbi(),
			newCmd_Version(),
		},
	}

	sort.Sort(cli.FlagsByName(app.Flags))
	sort.Sort(cli.CommandsByName(app.Commands))

	if err := app.RunContext(ctx, os.Args); err != nil {
		klog.Fatal(err)
	}
}
