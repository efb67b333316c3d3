package main

import (
	"fmt"
	"io"
	"os"

	"github.com/google/logger"
	"github.com/spf13/cobra"

	"ticketlottery/internal/config"
)

var version = "dev"

var configDir string

var rootCmd = &cobra.Command{
	Use:           "ticketlottery",
	Short:         "Lottery ticket sales and drawing service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "ticketlottery", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", ".", "Directory containing config.yaml")
	rootCmd.AddCommand(serveCmd, drawCmd, versionCmd)
}

// loadConfig reads the configuration and initializes logging from it. The
// returned function closes the log file.
func loadConfig() (*config.Config, func(), error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, nil, err
	}

	var logFile io.Writer = io.Discard
	var closeFile func() error
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o660)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logFile = f
		closeFile = f.Close
	}

	l := logger.Init("ticketlottery", cfg.Log.Verbose, false, logFile)
	return cfg, func() {
		l.Close()
		if closeFile != nil {
			_ = closeFile()
		}
	}, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
