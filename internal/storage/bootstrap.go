package storage

import (
	"fmt"
	"log/slog"
	"os"
)

// emptyCollection is the persisted form of a collection with no records.
var emptyCollection = []byte("[]\n")

// Bootstrap makes sure root exists and that every file in files is present,
// writing an empty JSON array for each missing one. It returns a provider
// rooted at root.
func Bootstrap(root string, files []string, logger *slog.Logger) (*FS, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := os.Stat(root); os.IsNotExist(err) {
		logger.Info("Building content folder", slog.String("path", root))
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create content dir: %w", err)
	}
	store, err := NewFS(root)
	if err != nil {
		return nil, err
	}
	for _, name := range files {
		ok, err := store.Exists(name)
		if err != nil {
			return nil, err
		}
		if ok {
			continue
		}
		logger.Info("Creating collection file", slog.String("file", name))
		if err := store.Write(name, emptyCollection); err != nil {
			return nil, fmt.Errorf("storage: create %s: %w", name, err)
		}
	}
	return store, nil
}
