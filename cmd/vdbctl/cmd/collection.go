package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ares-vector/vdb/internal/cliui"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer closeDB(cmd.Context(), db)

			names := db.ListCollections()
			sort.Strings(names)

			styles := cliui.GetStyles(cmd.OutOrStdout(), noColor)
			if len(names) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), styles.Dim.Render("(no collections)"))
				return nil
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func newDropCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drop <collection>",
		Short: "Delete a collection and all its vectors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer closeDB(cmd.Context(), db)

			if err := db.DeleteCollection(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "dropped collection %q\n", args[0])
			return nil
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <collection>",
		Short: "Show a collection's statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer closeDB(cmd.Context(), db)

			stats, err := db.CollectionStats(args[0])
			if err != nil {
				return err
			}

			styles := cliui.GetStyles(cmd.OutOrStdout(), noColor)
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, styles.Header.Render(stats.Name))
			fmt.Fprintf(w, "  vectors:     %d\n", stats.VectorCount)
			fmt.Fprintf(w, "  tombstones:  %d\n", stats.TombstoneCount)
			fmt.Fprintf(w, "  dimensions:  %d\n", stats.Dimensions)
			fmt.Fprintf(w, "  metric:      %s\n", stats.Metric)
			fmt.Fprintf(w, "  memory:      %d bytes\n", stats.MemoryBytes)
			fmt.Fprintf(w, "  tombstone %%: %.1f%%\n", stats.TombstoneFraction()*100)
			return nil
		},
	}
}

func newCompactCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "compact [collection]",
		Short: "Rebuild a collection's index, discarding tombstones",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer closeDB(cmd.Context(), db)

			if all {
				return db.CompactAll(cmd.Context())
			}
			if len(args) != 1 {
				return fmt.Errorf("specify a collection name or pass --all")
			}
			if err := db.Compact(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "compacted %q\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "compact every collection over its tombstone threshold")
	return cmd
}
