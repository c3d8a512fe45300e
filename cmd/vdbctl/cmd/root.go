// Package cmd provides the CLI commands for vdbctl.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ares-vector/vdb/internal/config"
	"github.com/ares-vector/vdb/internal/logging"
	"github.com/ares-vector/vdb/internal/vectordb"
	"github.com/ares-vector/vdb/pkg/version"
)

var (
	dataPath       string
	noColor        bool
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the vdbctl CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "vdbctl",
		Short:   "Administer an embedded vector database",
		Long:    `vdbctl creates, inspects, and queries collections in a vdb data directory.`,
		Version: version.Version,
	}
	cmd.SetVersionTemplate("vdbctl version {{.Version}}\n")

	defaultData := filepath.Join(defaultHome(), ".vdb", "data")
	cmd.PersistentFlags().StringVar(&dataPath, "data", defaultData, "data directory")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging to ~/.vdb/logs/")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newCreateCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newDropCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newCompactCmd())
	cmd.AddCommand(newInsertCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newLogCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func defaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.TempDir()
	}
	return home
}

func startLogging(_ *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Info("debug logging enabled", slog.String("log_file", logging.DefaultLogPath()))
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// openDB opens a persistent database rooted at the --data flag value.
func openDB() (*vectordb.Database, error) {
	return vectordb.Open(config.Persistent(dataPath))
}

// closeDB persists and releases db via Database.Close. A close error,
// including a failed final persist, is printed to stderr as a warning
// and does not change the command's exit status.
func closeDB(ctx context.Context, db *vectordb.Database) {
	if err := db.Close(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to close database: %v\n", err)
	}
}
