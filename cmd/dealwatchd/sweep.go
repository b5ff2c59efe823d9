package main

import (
	"fmt"

	"github.com/mohammad-safakhou/dealwatch/config"
	"github.com/mohammad-safakhou/dealwatch/internal/registry"
	"github.com/spf13/cobra"
)

func sweepCMD() *cobra.Command {
	var cfgPath string
	var cmd = &cobra.Command{
		Use:   "sweep",
		Short: "Remove stale products from the registry once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			if cfg.Registry.Retention.MaxAge <= 0 {
				return fmt.Errorf("registry.retention.max_age is not set")
			}

			st := registry.New(cfg.Registry.Path, cfg.Registry.HistoryCap)
			removed, err := st.Sweep(cfg.Registry.Retention.MaxAge)
			if err != nil {
				return err
			}
			fmt.Printf("removed %d stale products\n", removed)
			return nil
		},
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return cmd
}
