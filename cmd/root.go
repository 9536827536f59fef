package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X github.com/devstz/autoposter-node/cmd.Version=v1.0.0"
var Version = "dev"

var envFile string

var rootCmd = &cobra.Command{
	Use:   "autoposter-node",
	Short: "autoposter-node — multi-bot broadcast scheduler",
	Long:  "autoposter-node runs one node of the distributed posting engine: the heartbeat/lifecycle loop and the posting scheduler over a shared Postgres store.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "path to a .env file to load before reading the environment")

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("autoposter-node %s\n", Version)
		},
	}
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
