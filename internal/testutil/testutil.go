// Package testutil provides shared test helpers for content directories and engines.
package testutil

import (
	"log/slog"
	"os"
	"testing"

	"github.com/starford/justwrite/internal/resource"
	"github.com/starford/justwrite/internal/storage"
)

// Policies matching the default pages and tags collections.
var (
	PagePolicy = resource.Policy{
		RequiredFields: []string{"content", "title"},
		Timestamp:      true,
		TagField:       "tags",
	}
	TagPolicy = resource.Policy{
		RequiredFields: []string{"name", "slug"},
		UniqueFields:   []string{"slug"},
	}
)

// Logger returns a logger that only reports errors.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// TestContent creates a temporary content directory seeded with files
// (name → contents) and a storage provider rooted at it.
func TestContent(t *testing.T, files map[string]string) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	for name, content := range files {
		if err := store.Write(name, []byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	return dir, store
}

// TestRegistry creates pages and tags engines over a temporary content
// directory seeded with the given collection contents ("" means empty).
func TestRegistry(t *testing.T, pages, tags string, opts ...resource.Option) (*resource.Registry, *storage.FS) {
	t.Helper()
	if pages == "" {
		pages = "[]"
	}
	if tags == "" {
		tags = "[]"
	}
	_, store := TestContent(t, map[string]string{
		"pages.json": pages,
		"tags.json":  tags,
	})
	opts = append([]resource.Option{resource.WithLogger(Logger())}, opts...)
	reg, err := resource.NewRegistry(
		resource.New("pages", "pages.json", store, PagePolicy, opts...),
		resource.New("tags", "tags.json", store, TagPolicy, opts...),
	)
	if err != nil {
		t.Fatal(err)
	}
	return reg, store
}
