package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resetYes bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the vector index",
	Long:  `Removes every indexed chunk. Session history is untouched; use /reset inside chat for that.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !resetYes {
			return fmt.Errorf("this deletes the whole index; re-run with --yes to confirm")
		}

		ctx := cmd.Context()
		app, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer app.close()

		if err := app.pipeline.Reset(ctx); err != nil {
			return err
		}
		fmt.Println("Index cleared. Run \"studygraph index\" to rebuild it.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetYes, "yes", false, "confirm deletion")
	rootCmd.AddCommand(resetCmd)
}
