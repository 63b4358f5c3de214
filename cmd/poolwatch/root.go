package main

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "poolwatch",
	Short: "Health-check supervisor for mining pool web and stratum endpoints",
	Long: `poolwatch probes pool web APIs and stratum ports on a schedule,
compares reported hashrate against per-coin thresholds and restarts the
responsible process when a target is unreachable or underperforming.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./poolwatch.yaml or /etc/poolwatch/poolwatch.yaml)")
	rootCmd.AddCommand(runCmd, onceCmd, validateCmd)
}
