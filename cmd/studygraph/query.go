package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var queryLevel string

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Ask a single question against the indexed materials",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		app, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer app.close()

		if err := app.requireLLM(); err != nil {
			return err
		}

		question := strings.Join(args, " ")
		result, err := app.pipeline.Query(ctx, question, queryLevel)
		if err != nil {
			return err
		}

		fmt.Println(result.Answer)
		printCitations(result.Sources)
		return nil
	},
}

func init() {
	queryCmd.Flags().StringVar(&queryLevel, "level", "", "student level: beginner, intermediate, or advanced (default intermediate)")
	rootCmd.AddCommand(queryCmd)
}
