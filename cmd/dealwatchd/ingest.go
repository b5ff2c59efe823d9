package main

import (
	"context"
	"fmt"

	"github.com/mohammad-safakhou/dealwatch/config"
	"github.com/mohammad-safakhou/dealwatch/internal/ingest"
	"github.com/mohammad-safakhou/dealwatch/internal/registry"
	"github.com/spf13/cobra"
)

func ingestCMD() *cobra.Command {
	var cfgPath string
	var cmd = &cobra.Command{
		Use:   "ingest",
		Short: "Process the capture backlog once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)

			st := registry.New(cfg.Registry.Path, cfg.Registry.HistoryCap)
			loop := ingest.New(ingest.Config{
				WatchDir:      cfg.Ingest.WatchDir,
				QuarantineDir: cfg.Ingest.QuarantineDir,
				SummaryPath:   cfg.Ingest.SummaryPath,
			}, ingest.JSONRowsParser{}, st)

			n := loop.Drain(context.Background())
			fmt.Printf("processed %d files\n", n)
			return nil
		},
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return cmd
}
