package cmd

import (
	"strings"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of the knowledge base and model provider",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	state, reason := a.system.State()
	cmd.Printf("State:       %s\n", state)
	if reason != nil {
		cmd.Printf("Reason:      %v\n", reason)
	}
	cmd.Printf("Store:       %s\n", a.cfg.DataDir)
	cmd.Printf("Records:     %d\n", a.store.Count())
	if a.store.Exists() {
		m := a.store.Manifest()
		cmd.Printf("Embedder:    %s (dimension %d)\n", m.EmbedderModel, m.Dimension)
		cmd.Printf("Created:     %s\n", m.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	}
	cmd.Printf("Ollama:      %s\n", a.cfg.OllamaHost)
	cmd.Printf("Chat model:  %s\n", a.cfg.ChatModel)

	models, err := a.client.ListModels(ctx)
	if err != nil {
		cmd.Println("\nThe Ollama server did not respond; model availability unknown.")
		return nil
	}
	for _, want := range []string{a.cfg.ChatModel, a.cfg.EmbedderModel} {
		if !hasModel(models, want) {
			cmd.Printf("\nWarning: model %q is not available on the server. Pull it with:\n  ollama pull %s\n", want, want)
		}
	}
	return nil
}

// hasModel matches configured names against the server's tag list; a bare
// name matches any tag of that model.
func hasModel(models []string, name string) bool {
	for _, m := range models {
		if m == name {
			return true
		}
		if base, _, found := strings.Cut(m, ":"); found && base == name {
			return true
		}
	}
	return false
}
