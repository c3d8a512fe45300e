package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ares-vector/vdb/internal/vecstore"
)

func newInsertCmd() *cobra.Command {
	var vectorStr string

	cmd := &cobra.Command{
		Use:   "insert <collection> <id>",
		Short: "Insert a vector into a collection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			vector, err := parseVector(vectorStr)
			if err != nil {
				return fmt.Errorf("invalid --vector: %w", err)
			}

			db, err := openDB()
			if err != nil {
				return err
			}
			defer closeDB(cmd.Context(), db)

			col, err := db.GetCollection(args[0])
			if err != nil {
				return err
			}
			if err := col.Insert(args[1], vector, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "inserted %q into %q\n", args[1], args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&vectorStr, "vector", "", "comma-separated vector components, e.g. 0.1,0.2,0.3")
	_ = cmd.MarkFlagRequired("vector")
	return cmd
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <collection> <id>",
		Short: "Fetch a vector by id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer closeDB(cmd.Context(), db)

			col, err := db.GetCollection(args[0])
			if err != nil {
				return err
			}
			vector, metadata, ok := col.Get(args[1])
			if !ok {
				return fmt.Errorf("vector not found: %s", args[1])
			}
			return printJSON(cmd, struct {
				ID       string            `json:"id"`
				Vector   []float32         `json:"vector"`
				Metadata vecstore.Metadata `json:"metadata,omitempty"`
			}{ID: args[1], Vector: vector, Metadata: metadata})
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <collection> <id>",
		Short: "Delete a vector by id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer closeDB(cmd.Context(), db)

			col, err := db.GetCollection(args[0])
			if err != nil {
				return err
			}
			if !col.Delete(args[1]) {
				return fmt.Errorf("vector not found: %s", args[1])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %q from %q\n", args[1], args[0])
			return nil
		},
	}
}

func newSearchCmd() *cobra.Command {
	var vectorStr string
	var k int
	var minScore float32

	cmd := &cobra.Command{
		Use:   "search <collection>",
		Short: "Search for the nearest neighbors of a query vector",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := parseVector(vectorStr)
			if err != nil {
				return fmt.Errorf("invalid --vector: %w", err)
			}

			db, err := openDB()
			if err != nil {
				return err
			}
			defer closeDB(cmd.Context(), db)

			col, err := db.GetCollection(args[0])
			if err != nil {
				return err
			}
			hits, err := col.SearchWithThreshold(query, k, minScore)
			if err != nil {
				return err
			}
			return printJSON(cmd, hits)
		},
	}

	cmd.Flags().StringVar(&vectorStr, "vector", "", "comma-separated query vector components")
	cmd.Flags().IntVar(&k, "k", 10, "number of results to return")
	cmd.Flags().Float32Var(&minScore, "min-score", 0, "drop results scoring below this threshold")
	_ = cmd.MarkFlagRequired("vector")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
