package cmd

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question against the knowledge base",
	Long: `Ask retrieves the stored passages most similar to the question and has
the configured Ollama model answer from them. The passages used are listed
after the answer, most relevant first.

The question and answer are remembered, so a wrong answer can be corrected
right away with 'lore learn --answer "..."'.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	question := strings.Join(args, " ")

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	answer, err := a.system.Query(ctx, question)
	if err != nil {
		return friendly(err)
	}

	cmd.Println(answer.Text)

	if len(answer.Sources) > 0 {
		cmd.Println()
		cmd.Println("Sources:")
		for i, src := range answer.Sources {
			label := src.Metadata["source"]
			if label == "" {
				label = "unknown"
			}
			cmd.Printf("  %d. [%.2f] %s: %s\n", i+1, src.Similarity, label, excerpt(src.Text, 80))
		}
	}

	if err := saveSession(session{
		Question: question,
		Answer:   answer.Text,
		AskedAt:  time.Now().UTC(),
	}); err != nil {
		a.logger.Warn("saving session", "error", err)
	}
	return nil
}

// excerpt returns the first line of text, capped at n runes.
func excerpt(text string, n int) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	return string([]rune(text)[:n]) + "..."
}
