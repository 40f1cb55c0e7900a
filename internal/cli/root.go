// Package cli wires the configuration, storage and bot packages into
// the synctube command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cynwrig/synctube/internal/config"
)

var flagConfig string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "synctube",
		Short: "Bot client for cytube-style synchronized media channels",
	}

	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "config file (default synctube.yaml)")

	root.AddCommand(
		newRunCmd(),
		newSayCmd(),
		newStatsCmd(),
		newTokenCmd(),
	)

	return root
}

// Execute runs the CLI.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger builds the process logger from the configured level,
// falling back to info on an unknown name.
func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}
