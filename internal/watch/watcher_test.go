package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/justwrite/internal/record"
	"github.com/starford/justwrite/internal/resource"
	"github.com/starford/justwrite/internal/testutil"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) cb(collection string) {
	r.mu.Lock()
	r.events = append(r.events, collection)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func startWatcher(t *testing.T) (string, *resource.Engine, *recorder) {
	t.Helper()
	dir, store := testutil.TestContent(t, map[string]string{
		"tags.json": `[{"id":"t1","name":"Tag1","slug":"tag1"}]`,
	})
	e := resource.New("tags", "tags.json", store, testutil.TagPolicy, resource.WithLogger(testutil.Logger()))
	reg, err := resource.NewRegistry(e)
	if err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := Watch(ctx, reg, store, store.Root(), testutil.Logger(), rec.cb); err != nil {
			t.Errorf("Watch: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	time.Sleep(100 * time.Millisecond)
	return dir, e, rec
}

func TestWatcher_ExternalEditInvalidates(t *testing.T) {
	dir, e, rec := startWatcher(t)
	ctx := context.Background()

	if got, _ := e.List(ctx, nil); len(got) != 1 {
		t.Fatalf("initial len = %d", len(got))
	}

	_ = os.WriteFile(filepath.Join(dir, "tags.json"), []byte(`[]`), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		got, _ := e.List(ctx, nil)
		return len(got) == 0
	}, "external edit not picked up")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		return rec.count() > 0
	}, "callback not called")
}

func TestWatcher_IgnoresOwnWrites(t *testing.T) {
	_, e, rec := startWatcher(t)
	ctx := context.Background()

	if _, _, err := e.Create(ctx, record.Record{"name": "Tag2", "slug": "tag2"}); err != nil {
		t.Fatal(err)
	}

	time.Sleep(3 * settle)
	if n := rec.count(); n != 0 {
		t.Errorf("callback fired %d times for engine write", n)
	}
	if e.Checksum() == "" {
		t.Error("engine cache dropped after its own write")
	}
}

func TestWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	dir, _, rec := startWatcher(t)

	_ = os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644)

	time.Sleep(3 * settle)
	if n := rec.count(); n != 0 {
		t.Errorf("callback fired %d times for unrelated file", n)
	}
}

func TestWatch_MissingRoot(t *testing.T) {
	reg, _ := resource.NewRegistry()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	err := Watch(context.Background(), reg, nil, filepath.Join(t.TempDir(), "absent"), logger, nil)
	if err == nil {
		t.Error("expected error for missing root")
	}
}
