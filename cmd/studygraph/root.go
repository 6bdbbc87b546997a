package main

import (
	"github.com/spf13/cobra"

	"github.com/studygraph/studygraph/log"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "studygraph",
	Short: "Course material assistant",
	Long: `studygraph indexes course materials and answers questions about them.

Point STUDYGRAPH_MATERIALS_DIR at a directory of notes (text, markdown,
PDF, spreadsheets), run "studygraph index", then ask questions with
"studygraph query" or hold a conversation with "studygraph chat".`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			log.SetLogLevel(log.LogLevelDebug)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}
