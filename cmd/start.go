package cmd

import (
	"github.com/spf13/cobra"

	"github.com/anvh2/sentiment-trading/internal/server"
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start sentiment-trading service",
	Long:  "Start sentiment-trading service",
	RunE: func(cmd *cobra.Command, args []string) error {
		server := server.New()
		return server.Start()
	},
}

func init() {
	RootCmd.AddCommand(startCmd)
}
