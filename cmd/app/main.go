package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

// rootCmd is the base command of the signal engine binary.
var rootCmd = &cobra.Command{
	Use:   "signalengine",
	Short: "Trading signal generation, evaluation and notification engine",
	Long: `signalengine turns AI analysis output and market snapshots into trading
signals, scores and classifies them, keeps their history with accuracy
tracking, and notifies subscribed users.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
