package bundle

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *FSStore {
	t.Helper()
	root := t.TempDir()
	s, err := NewFSStore(root)
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	return s
}

func TestFSStore_Exists_absent(t *testing.T) {
	s := newTestStore(t)
	if got := s.Exists("ch1", "abc123"); got != Absent {
		t.Errorf("expected Absent, got %v", got)
	}
}

func TestFSStore_Create_idempotent(t *testing.T) {
	s := newTestStore(t)
	dir1, err := s.Create("ch1", "abc123")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	dir2, err := s.Create("ch1", "abc123")
	if err != nil {
		t.Fatalf("Create (again): %v", err)
	}
	if dir1 != dir2 {
		t.Errorf("Create should be idempotent: %q vs %q", dir1, dir2)
	}
	if _, err := os.Stat(dir1); err != nil {
		t.Errorf("bundle dir should exist: %v", err)
	}
}

func sealCompleteBundle(t *testing.T, s *FSStore, slug, fp string) string {
	t.Helper()
	dir, err := s.Create(slug, fp)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	segs := []Segment{
		{Filename: "segment_00000.ts", Duration: 6.0},
		{Filename: "segment_00001.ts", Duration: 6.0},
	}
	for _, seg := range segs {
		if err := os.WriteFile(filepath.Join(dir, seg.Filename), []byte("data"), 0o644); err != nil {
			t.Fatalf("write segment: %v", err)
		}
	}
	if err := WriteIndex(filepath.Join(dir, indexFilename), segs); err != nil {
		t.Fatalf("WriteIndex: %v", err)
	}
	if err := s.SaveMetadata(slug, fp, Metadata{
		OriginalPath: "/media/movie.mp4",
		VideoHash:    fp,
		GeneratedAt:  time.Now().UTC(),
		Duration:     12.0,
	}); err != nil {
		t.Fatalf("SaveMetadata: %v", err)
	}
	return dir
}

func TestFSStore_Exists_complete(t *testing.T) {
	s := newTestStore(t)
	sealCompleteBundle(t, s, "ch1", "fp1")

	if got := s.Exists("ch1", "fp1"); got != Complete {
		t.Errorf("expected Complete, got %v", got)
	}
}

func TestFSStore_Open_complete(t *testing.T) {
	s := newTestStore(t)
	sealCompleteBundle(t, s, "ch1", "fp1")

	segments, meta, err := s.Open("ch1", "fp1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(segments) != 2 {
		t.Errorf("expected 2 segments, got %d", len(segments))
	}
	if meta.OriginalPath != "/media/movie.mp4" {
		t.Errorf("unexpected metadata: %+v", meta)
	}
}

// TestFSStore_Exists_partial_missing_endlist_and_segment covers the first
// half of S5 (Partial, not the reap): a directory whose index is missing
// the end-of-list marker and whose one referenced segment file is absent.
func TestFSStore_Exists_partial_missing_endlist_and_segment(t *testing.T) {
	s := newTestStore(t)
	dir, err := s.Create("ch1", "fp1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	// index.m3u8 without #EXT-X-ENDLIST and referencing a segment that
	// does not exist on disk.
	idx := "#EXTM3U\n#EXT-X-VERSION:3\n#EXTINF:6.000000,\nsegment_00000.ts\n"
	if err := os.WriteFile(filepath.Join(dir, indexFilename), []byte(idx), 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}

	if got := s.Exists("ch1", "fp1"); got != Partial {
		t.Errorf("expected Partial, got %v", got)
	}
}

func TestFSStore_Exists_partial_missing_metadata(t *testing.T) {
	s := newTestStore(t)
	dir, err := s.Create("ch1", "fp1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	segs := []Segment{{Filename: "segment_00000.ts", Duration: 6.0}}
	if err := os.WriteFile(filepath.Join(dir, segs[0].Filename), []byte("data"), 0o644); err != nil {
		t.Fatalf("write segment: %v", err)
	}
	if err := WriteIndex(filepath.Join(dir, indexFilename), segs); err != nil {
		t.Fatalf("WriteIndex: %v", err)
	}
	// no metadata.json written

	if got := s.Exists("ch1", "fp1"); got != Partial {
		t.Errorf("expected Partial, got %v", got)
	}
}

func TestFSStore_Exists_partial_missing_index(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Create("ch1", "fp1"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got := s.Exists("ch1", "fp1"); got != Partial {
		t.Errorf("expected Partial, got %v", got)
	}
}

func TestFSStore_Reap_thenAbsent(t *testing.T) {
	s := newTestStore(t)
	sealCompleteBundle(t, s, "ch1", "fp1")

	if err := s.Reap("ch1", "fp1"); err != nil {
		t.Fatalf("Reap: %v", err)
	}
	if got := s.Exists("ch1", "fp1"); got != Absent {
		t.Errorf("expected Absent after reap, got %v", got)
	}
}

func TestFSStore_Manifest_roundtrip(t *testing.T) {
	s := newTestStore(t)

	m, err := s.LoadManifest("ch1")
	if err != nil {
		t.Fatalf("LoadManifest (missing): %v", err)
	}
	if len(m) != 0 {
		t.Errorf("expected empty manifest, got %v", m)
	}

	m["fp1"] = ManifestEntry{OriginalPath: "/media/a.mp4", Filename: "a.mp4", AddedAt: 1000}
	if err := s.SaveManifest("ch1", m); err != nil {
		t.Fatalf("SaveManifest: %v", err)
	}

	got, err := s.LoadManifest("ch1")
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if got["fp1"].OriginalPath != "/media/a.mp4" {
		t.Errorf("unexpected manifest: %+v", got)
	}
}
