// Package source acquires document text for ingestion: local files and web
// pages. Acquisition stays out of the core pipeline, which only ever sees
// plain text.
package source

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	readability "github.com/go-shiori/go-readability"
)

// ErrNotText indicates a file that is not valid UTF-8 text.
var ErrNotText = errors.New("file is not valid UTF-8 text")

// utf8BOM is the byte order mark some editors prepend to UTF-8 files.
const utf8BOM = "\xef\xbb\xbf"

// DefaultFetchTimeout bounds web page retrieval.
const DefaultFetchTimeout = 30 * time.Second

// ReadFile reads a local text file, validating UTF-8 and stripping a
// leading byte order mark.
func ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}

	text := strings.TrimPrefix(string(data), utf8BOM)
	if !utf8.ValidString(text) {
		return "", fmt.Errorf("%w: %s", ErrNotText, path)
	}
	return text, nil
}

// Page is the readable content extracted from a web page.
type Page struct {
	Title string
	Text  string
}

// FromURL fetches a web page and extracts its readable text, discarding
// navigation, ads and markup.
func FromURL(pageURL string, timeout time.Duration) (*Page, error) {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}

	article, err := readability.FromURL(pageURL, timeout)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", pageURL, err)
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return nil, fmt.Errorf("no readable text at %s", pageURL)
	}
	return &Page{Title: article.Title, Text: text}, nil
}
