package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	learnQuestion string
	learnAnswer   string
)

var learnCmd = &cobra.Command{
	Use:   "learn",
	Short: "Teach the knowledge base a verified answer",
	Long: `Learn stores a question together with its verified answer as new
knowledge, so the next time the question comes up the correct answer is
retrieved alongside your documents.

Without flags, learn confirms the answer from the last 'lore ask'.
Pass --answer to correct it, or both --question and --answer to teach
something unrelated to the last ask.`,
	Args: cobra.NoArgs,
	RunE: runLearn,
}

func init() {
	learnCmd.Flags().StringVarP(&learnQuestion, "question", "q", "", "the question being answered")
	learnCmd.Flags().StringVarP(&learnAnswer, "answer", "a", "", "the verified answer")
	rootCmd.AddCommand(learnCmd)
}

func runLearn(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	question, answer := learnQuestion, learnAnswer
	if question == "" || answer == "" {
		last, err := loadSession()
		if errors.Is(err, errNoSession) {
			return fmt.Errorf("%w: ask a question first, or pass --question and --answer", err)
		}
		if err != nil {
			return err
		}
		if question == "" {
			question = last.Question
		}
		if answer == "" {
			answer = last.Answer
		}
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	msg, err := a.system.Learn(ctx, question, answer)
	if err != nil {
		return friendly(err)
	}
	if err := a.store.Persist(); err != nil {
		return friendly(err)
	}

	cmd.Println(msg)
	return nil
}
