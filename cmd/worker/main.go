package main

import (
	"os"

	"github.com/spf13/cobra"

	_ "time/tzdata"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "worker",
		Short:         "Background jobs for herd alerts: reminder emails and expiry",
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	root.AddCommand(runCommand(&configPath), onceCommand(&configPath))

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
