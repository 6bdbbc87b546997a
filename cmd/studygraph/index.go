package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/studygraph/studygraph/rag"
)

var (
	indexForce  bool
	indexEnrich bool
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index the course materials directory",
	Long: `Loads every supported file under the materials directory, splits it
into chunks, embeds them, and stores the vectors. Files already indexed are
skipped unless --force is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		app, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer app.close()

		fmt.Printf("Indexing %s ...\n", app.cfg.MaterialsDir)

		report, err := app.pipeline.Process(ctx, rag.ProcessOptions{
			ForceReprocess:   indexForce,
			EnableEnrichment: indexEnrich,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Files loaded:   %d\n", report.FilesLoaded)
		fmt.Printf("Files skipped:  %d\n", report.FilesSkipped)
		fmt.Printf("Documents:      %d\n", report.Documents)
		fmt.Printf("Chunks indexed: %d\n", report.ChunksIndexed)
		for _, failure := range report.Failures {
			fmt.Printf("Failed: %s: %s\n", failure.Path, failure.Err)
		}
		return nil
	},
}

func init() {
	indexCmd.Flags().BoolVar(&indexForce, "force", false, "reset the index and re-process everything")
	indexCmd.Flags().BoolVar(&indexEnrich, "enrich", false, "annotate chunks with headings before indexing")
	rootCmd.AddCommand(indexCmd)
}
