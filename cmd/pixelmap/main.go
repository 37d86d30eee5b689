package main

import (
	"fmt"
	"os"

	"pixelmap/internal/cli"
	"pixelmap/internal/config"
	"pixelmap/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	root := cli.NewRootCmd(cfg, log)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
