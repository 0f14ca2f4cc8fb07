package storage

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func tempContent(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	store, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return store
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestWriteAndRead(t *testing.T) {
	s := tempContent(t)
	content := []byte(`[{"id":"a"}]`)
	if err := s.Write("pages.json", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("pages.json")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestReadMissing(t *testing.T) {
	s := tempContent(t)
	if _, err := s.Read("nope.json"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestExists(t *testing.T) {
	s := tempContent(t)
	ok, err := s.Exists("tags.json")
	if err != nil || ok {
		t.Fatalf("Exists before write = %v, %v", ok, err)
	}
	_ = s.Write("tags.json", []byte("[]"))
	ok, err = s.Exists("tags.json")
	if err != nil || !ok {
		t.Fatalf("Exists after write = %v, %v", ok, err)
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempContent(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.json",
		"/etc/shadow",
		"",
	}
	for _, p := range cases {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := s.Write(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
	}
}

func TestAtomicWriteNoLeftovers(t *testing.T) {
	s := tempContent(t)
	_ = s.Write("atomic.json", []byte("[]"))

	updated := []byte(`[{"id":"x"}]`)
	if err := s.Write("atomic.json", updated); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("atomic.json")
	if string(got) != string(updated) {
		t.Errorf("expected updated content, got %q", got)
	}

	matches, _ := filepath.Glob(filepath.Join(s.root, tmpPattern))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestIsTemp(t *testing.T) {
	if !IsTemp("/x/.justwrite-tmp-12345") {
		t.Error("temp file not recognised")
	}
	if IsTemp("/x/pages.json") {
		t.Error("collection file flagged as temp")
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS(filepath.Join(t.TempDir(), "does-not-exist"))
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp(t.TempDir(), "justwrite-test-*")
	_ = f.Close()
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}

func TestBootstrap_CreatesDirAndFiles(t *testing.T) {
	root := filepath.Join(t.TempDir(), "content")
	s, err := Bootstrap(root, []string{"pages.json", "tags.json"}, quietLogger())
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	for _, name := range []string{"pages.json", "tags.json"} {
		got, err := s.Read(name)
		if err != nil {
			t.Fatalf("Read %s: %v", name, err)
		}
		if string(got) != "[]\n" {
			t.Errorf("%s = %q, want empty array", name, got)
		}
	}
}

func TestBootstrap_KeepsExistingFiles(t *testing.T) {
	root := t.TempDir()
	existing := []byte(`[{"id":"t1"}]`)
	if err := os.WriteFile(filepath.Join(root, "tags.json"), existing, 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := Bootstrap(root, []string{"pages.json", "tags.json"}, quietLogger())
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	got, _ := s.Read("tags.json")
	if string(got) != string(existing) {
		t.Errorf("existing file overwritten: %q", got)
	}
	if ok, _ := s.Exists("pages.json"); !ok {
		t.Error("missing file not created")
	}
}
