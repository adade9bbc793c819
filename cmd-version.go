package main

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/urfave/cli/v2"
)

func newCmd_Version() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version information of this binary.",
		Action: func(c *cli.Context) error {
			printVersion()
			return nil
		},
	}
}

func printVersion() {
	fmt.Println("K2R CLI")
	fmt.Printf("Commit: %s\n", gitCommitSHA)
	if info, ok := debug.ReadBuildInfo(); ok {
		fmt.Println("More info:")
		for _, setting := range info.Settings {
			switch setting.Key {
			case "-compiler", "GOARCH", "GOOS", "GOAMD64", "vcs.revision", "vcs.time", "vcs.modified":
				fmt.Printf("  %s: %s\n", setting.Key, setting.Value)
			}
		}
	}
	fmt.Println("Date:", time.Now().Format(time.RFC3339))
	fmt.Println("Go version:", runtime.Version())
	fmt.Println("Num CPU:", runtime.NumCPU())
}
