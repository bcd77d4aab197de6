package cmd

import (
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/lorekb/lore/internal/rag"
	"github.com/lorekb/lore/internal/store"
)

func TestSetIfAbsent(t *testing.T) {
	t.Parallel()

	metadata := map[string]string{"source": "curated-name"}
	setIfAbsent(metadata, "source", "notes.txt")
	setIfAbsent(metadata, "title", "Field Notes")

	if metadata["source"] != "curated-name" {
		t.Errorf("explicit source clobbered by default: %q", metadata["source"])
	}
	if metadata["title"] != "Field Notes" {
		t.Errorf("missing title not defaulted: %q", metadata["title"])
	}
}

func TestParseTags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		tags    []string
		want    map[string]string
		wantErr bool
	}{
		{
			name: "no tags",
			want: map[string]string{},
		},
		{
			name: "single tag",
			tags: []string{"topic=animals"},
			want: map[string]string{"topic": "animals"},
		},
		{
			name: "value containing equals",
			tags: []string{"note=k=v pairs"},
			want: map[string]string{"note": "k=v pairs"},
		},
		{
			name: "trimmed whitespace",
			tags: []string{" topic = animals "},
			want: map[string]string{"topic": "animals"},
		},
		{
			name:    "missing separator",
			tags:    []string{"topic"},
			wantErr: true,
		},
		{
			name:    "empty key",
			tags:    []string{"=value"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseTags(tt.tags)
			if tt.wantErr {
				if err == nil {
					t.Fatal("parseTags succeeded, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseTags: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseTags = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("parseTags[%q] = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestExcerpt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"first line\nsecond line", 80, "first line"},
		{"exactly-ten", 11, "exactly-ten"},
		{"a longer line that overflows", 8, "a longer..."},
		{"héllo wörld", 5, "héllo..."},
	}
	for _, tt := range tests {
		if got := excerpt(tt.in, tt.n); got != tt.want {
			t.Errorf("excerpt(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestHasModel(t *testing.T) {
	t.Parallel()

	models := []string{"qwen2.5-coder:3b", "nomic-embed-text:latest"}

	if !hasModel(models, "qwen2.5-coder:3b") {
		t.Error("exact tag match failed")
	}
	if !hasModel(models, "nomic-embed-text") {
		t.Error("bare name should match any tag")
	}
	if hasModel(models, "llama3") {
		t.Error("absent model reported present")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"nonsense", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFriendly(t *testing.T) {
	t.Parallel()

	connectivity := rag.ErrConnectivity
	got := friendly(connectivity)
	if !errors.Is(got, rag.ErrConnectivity) {
		t.Error("friendly lost the error kind")
	}
	if !strings.Contains(got.Error(), "ollama serve") {
		t.Errorf("friendly(%v) = %q, want a start hint", connectivity, got)
	}

	empty := friendly(store.ErrEmptyStore)
	if !strings.Contains(empty.Error(), "lore ingest") {
		t.Errorf("friendly(ErrEmptyStore) = %q, want an ingest hint", empty)
	}

	other := errors.New("something else")
	if friendly(other) != other {
		t.Error("friendly rewrote an unrelated error")
	}
}

func TestSessionRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if _, err := loadSession(); !errors.Is(err, errNoSession) {
		t.Fatalf("loadSession on fresh home = %v, want errNoSession", err)
	}

	want := session{
		Question: "How deep are gopher burrows?",
		Answer:   "Up to six feet.",
		AskedAt:  time.Now().UTC().Truncate(time.Second),
	}
	if err := saveSession(want); err != nil {
		t.Fatalf("saveSession: %v", err)
	}

	got, err := loadSession()
	if err != nil {
		t.Fatalf("loadSession: %v", err)
	}
	if got.Question != want.Question || got.Answer != want.Answer {
		t.Errorf("loadSession = %+v, want %+v", got, want)
	}
	if !got.AskedAt.Equal(want.AskedAt) {
		t.Errorf("AskedAt = %v, want %v", got.AskedAt, want.AskedAt)
	}
}
