package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mediaflow",
	Short: "Generation job tracking backend",
	Long:  `mediaflow tracks long-running AI generation operations as durable jobs, polled to completion by background workers.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
