package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the state of the index",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		app, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer app.close()

		stats, err := app.pipeline.Stats(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Indexed chunks:  %d\n", stats.Documents)
		fmt.Printf("Dimension:       %d\n", stats.Dimension)
		fmt.Printf("Search type:     %s\n", stats.SearchType)
		fmt.Printf("Top-K:           %d\n", stats.K)
		fmt.Printf("Materials dir:   %s\n", app.cfg.MaterialsDir)
		fmt.Printf("Session store:   %s\n", app.cfg.SessionStore)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
