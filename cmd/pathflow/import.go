package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/pathflow/internal/graph"
)

func newImportCmd() *cobra.Command {
	var model, db string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Build the code graph from a YAML source model and store it in SQLite",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if model == "" || db == "" {
				return errors.New("both --graph and --db are required")
			}
			m, err := graph.LoadModel(model)
			if err != nil {
				return err
			}
			g, err := graph.Build(m)
			if err != nil {
				return err
			}
			store, err := graph.OpenSQLite(cmd.Context(), db)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Save(cmd.Context(), g); err != nil {
				return err
			}
			// Save loads deferred types, so the count includes them.
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d vertices into %s\n", g.VertexCount(), db)
			return nil
		},
	}
	cmd.Flags().StringVarP(&model, "graph", "g", "", "YAML source model")
	cmd.Flags().StringVar(&db, "db", "", "SQLite database to write")
	return cmd
}
