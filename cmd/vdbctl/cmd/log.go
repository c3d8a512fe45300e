package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ares-vector/vdb/internal/logging"
)

func newLogCmd() *cobra.Command {
	var explicit string

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Print the path to the debug log file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := logging.FindLogFile(explicit)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.Flags().StringVar(&explicit, "file", "", "explicit log file path")
	return cmd
}
