package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ares-vector/vdb/pkg/distance"
)

func newCreateCmd() *cobra.Command {
	var metricName string

	cmd := &cobra.Command{
		Use:   "create <collection> <dimensions>",
		Short: "Create a new collection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dim, err := parseIntArg(args[1])
			if err != nil {
				return fmt.Errorf("invalid dimensions: %w", err)
			}
			metric, ok := distance.ParseMetric(metricName)
			if !ok {
				return fmt.Errorf("unknown metric %q", metricName)
			}

			db, err := openDB()
			if err != nil {
				return err
			}
			defer closeDB(cmd.Context(), db)

			if err := db.CreateCollection(args[0], dim, metric); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created collection %q (dim=%d, metric=%s)\n", args[0], dim, metric)
			return nil
		},
	}

	cmd.Flags().StringVar(&metricName, "metric", "cosine", "distance metric: cosine, l2, inner_product, l1")
	return cmd
}
