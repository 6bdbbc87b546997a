package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/tools"

	"github.com/studygraph/studygraph/agent"
	"github.com/studygraph/studygraph/rag"
)

var (
	chatUser    string
	chatSession string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Hold a conversation about the indexed materials",
	Long: `Starts an interactive session with the study assistant. The assistant
searches the indexed materials when it needs to, cites its sources, and
remembers the conversation across restarts for the same --user and --session.

Commands inside the session:
  /reset    forget this session's history
  /sources  show the citations behind the last answer
  /exit     leave`,
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

		checkpoints, closeStore, err := newCheckpointStore(ctx, app.cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		retrieval := rag.NewRetrievalTool(app.pipeline, app.logger)
		assistant, err := agent.NewAgent(app.llm, []tools.Tool{retrieval}, checkpoints,
			agent.WithAgentLogger(app.logger))
		if err != nil {
			return err
		}

		fmt.Printf("Chatting as %s (session %s). Type /exit to leave.\n\n", chatUser, chatSession)

		var lastCitations []rag.SourceCitation
		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("you> ")
			if !scanner.Scan() {
				fmt.Println("\nGoodbye!")
				return scanner.Err()
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			if strings.HasPrefix(line, "/") {
				switch line {
				case "/exit", "/quit":
					fmt.Println("Goodbye!")
					return nil
				case "/reset":
					if err := assistant.ClearSession(ctx, chatUser, chatSession); err != nil {
						fmt.Println("Could not reset the session:", err)
						continue
					}
					lastCitations = nil
					fmt.Println("Session cleared.")
					continue
				case "/sources":
					if len(lastCitations) == 0 {
						fmt.Println("No sources for the last answer.")
						continue
					}
					printCitations(lastCitations)
					continue
				default:
					fmt.Println("Unknown command. Available: /reset, /sources, /exit")
					continue
				}
			}

			resp, err := assistant.Chat(ctx, chatUser, chatSession, line)
			if err != nil {
				fmt.Println("Something went wrong:", err)
				continue
			}
			lastCitations = resp.Citations

			fmt.Printf("\n%s\n", resp.Answer)
			printCitations(resp.Citations)
			fmt.Println()
		}
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatUser, "user", "local", "user id for session memory")
	chatCmd.Flags().StringVar(&chatSession, "session", "default", "session id for session memory")
	rootCmd.AddCommand(chatCmd)
}

// printCitations lists the sources behind an answer, one per line.
func printCitations(citations []rag.SourceCitation) {
	if len(citations) == 0 {
		return
	}
	fmt.Println("\nSources:")
	for _, c := range citations {
		fmt.Printf("  - %s (chunk %d, score %.3f)\n", c.Source, c.ChunkIndex, c.Score)
	}
}
