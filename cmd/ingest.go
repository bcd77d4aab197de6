package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lorekb/lore/internal/source"
)

var (
	ingestURL  string
	ingestTags []string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Add a document to the knowledge base",
	Long: `Ingest reads a UTF-8 text file (or a web page with --url), splits it
into overlapping chunks, embeds them and stores them for retrieval.

Re-ingesting the same document adds new records; nothing is deduplicated.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestURL, "url", "", "ingest the readable text of a web page instead of a file")
	ingestCmd.Flags().StringArrayVar(&ingestTags, "tag", nil, "metadata tag in key=value form (repeatable)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if ingestURL == "" && len(args) == 0 {
		return fmt.Errorf("nothing to ingest: pass a file path or --url")
	}
	if ingestURL != "" && len(args) > 0 {
		return fmt.Errorf("pass either a file path or --url, not both")
	}

	metadata, err := parseTags(ingestTags)
	if err != nil {
		return err
	}

	var text string
	if ingestURL != "" {
		page, err := source.FromURL(ingestURL, source.DefaultFetchTimeout)
		if err != nil {
			return err
		}
		text = page.Text
		setIfAbsent(metadata, "source", ingestURL)
		if page.Title != "" {
			setIfAbsent(metadata, "title", page.Title)
		}
	} else {
		text, err = source.ReadFile(args[0])
		if err != nil {
			return err
		}
		setIfAbsent(metadata, "source", filepath.Base(args[0]))
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	n, err := a.system.Ingest(ctx, text, metadata)
	if err != nil {
		return friendly(err)
	}
	if n == 0 {
		cmd.Println("The document is empty; nothing was ingested.")
		return nil
	}

	if err := a.store.Persist(); err != nil {
		return friendly(err)
	}

	cmd.Printf("Successfully processed %d chunks. The knowledge base now holds %d records.\n",
		n, a.store.Count())
	return nil
}

// setIfAbsent fills in a metadata default without clobbering an explicit
// --tag of the same name.
func setIfAbsent(metadata map[string]string, key, value string) {
	if _, ok := metadata[key]; !ok {
		metadata[key] = value
	}
}

func parseTags(tags []string) (map[string]string, error) {
	metadata := make(map[string]string, len(tags)+2)
	for _, tag := range tags {
		key, value, ok := strings.Cut(tag, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid tag %q, want key=value", tag)
		}
		metadata[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return metadata, nil
}
