// Package cmd contains the lore command line interface.
//
// Following the pattern used by kubectl, hugo and other standard Go CLI
// tools, all application logic lives here and main.go stays a minimal
// entry point. Subcommands register themselves in their own files.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "lore",
	Short: "lore - a local, self-learning knowledge base",
	Long: `lore answers questions from your own documents.

Feed it text files or web pages, then ask questions; answers are generated
by a local Ollama model from the most relevant passages. When an answer is
wrong, teach it the right one with 'lore learn' and it will remember.

Everything stays on your machine: documents, embeddings and models.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Interrupts cancel the command context so
// in-flight model calls stop promptly.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}
