package channel

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"hls-orchestrator/internal/bundle"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestNewProgram_filtersExtensionsAndOrder(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.mp4"))
	writeFile(t, filepath.Join(root, "b.txt"))
	writeFile(t, filepath.Join(root, "sub", "c.mkv"))

	def := Definition{Type: TypeSequential, Slug: "ch1", Name: "Ch1", Paths: []string{root}}
	p := NewProgram(def, discardLogger())

	if len(p.Queue()) != 2 {
		t.Fatalf("expected 2 supported files, got %d: %+v", len(p.Queue()), p.Queue())
	}
	for _, item := range p.Queue() {
		if item.Fingerprint == "" {
			t.Errorf("expected fingerprint to be set for %q", item.Path)
		}
	}
	// Sequential channels keep the lexical walk order.
	if p.Queue()[0].Path != filepath.Join(root, "a.mp4") || p.Queue()[1].Path != filepath.Join(root, "sub", "c.mkv") {
		t.Errorf("expected walk order [a.mp4, sub/c.mkv], got %+v", p.Queue())
	}
}

func TestNewProgram_missingRoot_emptyQueue(t *testing.T) {
	def := Definition{Type: TypeSequential, Slug: "ch1", Name: "Ch1", Paths: []string{"/does/not/exist"}}
	p := NewProgram(def, discardLogger())

	if len(p.Queue()) != 0 {
		t.Errorf("expected empty queue, got %d", len(p.Queue()))
	}
}

func TestProgram_Start_idempotent(t *testing.T) {
	def := Definition{Type: TypeSequential, Slug: "ch1", Name: "Ch1", Paths: nil}
	p := NewProgram(def, discardLogger())

	t1 := time.Now()
	p.Start(t1)
	started, epoch := p.Started()
	if !started || !epoch.Equal(t1) {
		t.Fatalf("expected started at %v, got started=%v epoch=%v", t1, started, epoch)
	}

	p.Start(t1.Add(time.Hour))
	_, epoch2 := p.Started()
	if !epoch2.Equal(t1) {
		t.Errorf("Start should be a no-op once started: epoch changed to %v", epoch2)
	}
}

func TestProgram_CurrentManifest_notStarted(t *testing.T) {
	def := Definition{Type: TypeSequential, Slug: "ch1", Name: "Ch1", Paths: nil}
	p := NewProgram(def, discardLogger())

	_, ok := p.CurrentManifest(time.Now())
	if ok {
		t.Error("expected not-started channel to report ok=false")
	}
}

func TestProgram_Compile_excludesIncompleteAndConcatenates(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "movie1.mp4"))
	writeFile(t, filepath.Join(root, "movie2.mp4"))

	def := Definition{Type: TypeSequential, Slug: "ch1", Name: "Ch1", Paths: []string{root}}
	p := NewProgram(def, discardLogger())
	if len(p.Queue()) != 2 {
		t.Fatalf("expected 2 items, got %d", len(p.Queue()))
	}

	cacheRoot := t.TempDir()
	store, err := bundle.NewFSStore(cacheRoot)
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}

	// Only seal a complete bundle for the first item; the second stays
	// absent and must be excluded from the compiled program.
	first := p.Queue()[0]
	dir, err := store.Create("ch1", first.Fingerprint)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	segs := []bundle.Segment{{Filename: "segment_00000.ts", Duration: 4.0}}
	writeFile(t, filepath.Join(dir, segs[0].Filename))
	if err := bundle.WriteIndex(filepath.Join(dir, "index.m3u8"), segs); err != nil {
		t.Fatalf("WriteIndex: %v", err)
	}
	if err := store.SaveMetadata("ch1", first.Fingerprint, bundle.Metadata{OriginalPath: first.Path}); err != nil {
		t.Fatalf("SaveMetadata: %v", err)
	}

	p.Compile(store)
	compiled := p.Compiled()

	if compiled.Len() != 1 {
		t.Fatalf("expected 1 segment from the one complete bundle, got %d", compiled.Len())
	}
	if compiled.Segments[0].VideoIndex != 0 {
		t.Errorf("expected VideoIndex 0 (the first queue item), got %d", compiled.Segments[0].VideoIndex)
	}
}

func TestProgram_PendingSources(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "movie1.mp4"))
	writeFile(t, filepath.Join(root, "movie2.mp4"))

	def := Definition{Type: TypeSequential, Slug: "ch1", Name: "Ch1", Paths: []string{root}}
	p := NewProgram(def, discardLogger())

	cacheRoot := t.TempDir()
	store, err := bundle.NewFSStore(cacheRoot)
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}

	pending := p.PendingSources(store)
	if len(pending) != 2 {
		t.Fatalf("expected both items pending, got %d", len(pending))
	}
}
