package bundle

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

const (
	indexFilename    = "index.m3u8"
	metadataFilename = "metadata.json"
	manifestFilename = "manifest.json"
	endOfListMarker  = "#EXT-X-ENDLIST"
)

// extinfPattern matches the duration field of an #EXTINF line per spec:
// the following non-comment line is taken as the segment filename.
var extinfPattern = regexp.MustCompile(`#EXTINF:([0-9]+(\.[0-9]+)?)`)

// ErrPartialBundle is returned by Open when the bundle addressed is not
// Complete; callers should treat it the same as Absent.
var ErrPartialBundle = errors.New("bundle: partial or absent bundle")

// Store is the contract for the Segment Bundle Store (spec §4.A). FSStore is
// the only implementation; the interface exists so callers in other packages
// depend on a narrow contract rather than a concrete filesystem layout.
type Store interface {
	Exists(channelSlug, fingerprint string) State
	Reap(channelSlug, fingerprint string) error
	Open(channelSlug, fingerprint string) ([]Segment, Metadata, error)
	Create(channelSlug, fingerprint string) (string, error)
	SaveMetadata(channelSlug, fingerprint string, meta Metadata) error
	LoadManifest(channelSlug string) (Manifest, error)
	SaveManifest(channelSlug string, m Manifest) error
}

// FSStore is a filesystem-backed Store rooted at a configured cache
// directory, laid out as documented in spec §6:
//
//	channels/<slug>/videos/<fingerprint>/index.m3u8
//	channels/<slug>/videos/<fingerprint>/segment_NNNNN.ts
//	channels/<slug>/videos/<fingerprint>/metadata.json
//	channels/<slug>/manifest.json
type FSStore struct {
	root string
}

// NewFSStore returns a Store rooted at root. root is created if it does not
// exist; a failure to do so is the one core error that is fatal at startup
// (spec §7).
func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("bundle: create cache root: %w", err)
	}
	return &FSStore{root: root}, nil
}

func (s *FSStore) bundleDir(channelSlug, fingerprint string) string {
	return filepath.Join(s.root, "channels", channelSlug, "videos", fingerprint)
}

func (s *FSStore) channelDir(channelSlug string) string {
	return filepath.Join(s.root, "channels", channelSlug)
}

// Exists implements the four-clause completeness check of spec §3/§4.A:
// the index is present, contains the end-of-list marker, lists at least one
// segment, every listed segment file exists, and the metadata record is
// present. Any bundle directory that exists but fails a clause is Partial;
// a bundle directory that does not exist at all is Absent.
func (s *FSStore) Exists(channelSlug, fingerprint string) State {
	dir := s.bundleDir(channelSlug, fingerprint)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return Absent
	}

	segments, complete, err := parseIndex(filepath.Join(dir, indexFilename))
	if err != nil {
		return Partial
	}
	if !complete || len(segments) == 0 {
		return Partial
	}
	for _, seg := range segments {
		if _, err := os.Stat(filepath.Join(dir, seg.Filename)); err != nil {
			return Partial
		}
	}
	if _, err := os.Stat(filepath.Join(dir, metadataFilename)); err != nil {
		return Partial
	}
	return Complete
}

// Reap deletes a partial bundle's files and directory, best-effort per spec
// §4.B ("must be reaped before invocation").
func (s *FSStore) Reap(channelSlug, fingerprint string) error {
	return os.RemoveAll(s.bundleDir(channelSlug, fingerprint))
}

// Create idempotently creates and returns the writable bundle directory for
// a source item, for the Transcode Worker to write into.
func (s *FSStore) Create(channelSlug, fingerprint string) (string, error) {
	dir := s.bundleDir(channelSlug, fingerprint)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("bundle: create %s/%s: %w", channelSlug, fingerprint, err)
	}
	return dir, nil
}

// Open parses a complete bundle's segment index and metadata record. Callers
// should have already confirmed Complete via Exists; Open does not repeat
// the full completeness check, only what it needs to parse.
func (s *FSStore) Open(channelSlug, fingerprint string) ([]Segment, Metadata, error) {
	dir := s.bundleDir(channelSlug, fingerprint)

	segments, complete, err := parseIndex(filepath.Join(dir, indexFilename))
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("bundle: open index: %w", err)
	}
	if !complete || len(segments) == 0 {
		return nil, Metadata{}, ErrPartialBundle
	}

	meta, err := readMetadata(filepath.Join(dir, metadataFilename))
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("bundle: open metadata: %w", err)
	}

	return segments, meta, nil
}

// SaveMetadata writes the metadata.json record for a completed transcode.
func (s *FSStore) SaveMetadata(channelSlug, fingerprint string, meta Metadata) error {
	dir := s.bundleDir(channelSlug, fingerprint)
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("bundle: marshal metadata: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, metadataFilename), b, 0o644)
}

// LoadManifest reads a channel's manifest.json, returning an empty Manifest
// if the file does not yet exist.
func (s *FSStore) LoadManifest(channelSlug string) (Manifest, error) {
	path := filepath.Join(s.channelDir(channelSlug), manifestFilename)
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Manifest{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bundle: read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("bundle: parse manifest: %w", err)
	}
	return m, nil
}

// SaveManifest writes a channel's manifest.json.
func (s *FSStore) SaveManifest(channelSlug string, m Manifest) error {
	dir := s.channelDir(channelSlug)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("bundle: create channel dir: %w", err)
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("bundle: marshal manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, manifestFilename), b, 0o644)
}

// parseIndex reads an HLS-style segment index, returning the ordered
// segments and whether the end-of-list marker was present. For each
// #EXTINF:<d>, line the following non-comment line is taken as the segment
// filename, per spec §4.A.
func parseIndex(path string) ([]Segment, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	var segments []Segment
	var pendingDuration float64
	havePending := false
	complete := false

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == endOfListMarker {
			complete = true
			continue
		}
		if m := extinfPattern.FindStringSubmatch(line); m != nil {
			d, err := strconv.ParseFloat(m[1], 64)
			if err != nil || d < 0 {
				return nil, false, fmt.Errorf("bundle: invalid duration in %q", line)
			}
			pendingDuration = d
			havePending = true
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		if havePending {
			segments = append(segments, Segment{Filename: line, Duration: pendingDuration})
			havePending = false
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, false, err
	}

	return segments, complete, nil
}

// ReadSegments parses the segment index at dir/index.m3u8 without requiring
// metadata.json to be present, returning the segments and whether the
// end-of-list marker was seen. It is used by the Transcode Worker to
// validate and total a freshly produced bundle before writing its metadata
// record (the last of the four completeness clauses).
func ReadSegments(dir string) ([]Segment, bool, error) {
	return parseIndex(filepath.Join(dir, indexFilename))
}

func readMetadata(path string) (Metadata, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, err
	}
	var meta Metadata
	if err := json.Unmarshal(b, &meta); err != nil {
		return Metadata{}, err
	}
	return meta, nil
}

// WriteIndex writes a sealed HLS v3 media playlist for a bundle: standard
// header, one #EXTINF/filename pair per segment, and the end-of-list
// marker. Used by the Transcode Worker's test doubles and by any
// finalization step that needs to (re)seal an index.
func WriteIndex(path string, segments []Segment) error {
	var b strings.Builder
	b.WriteString("#EXTM3U\n#EXT-X-VERSION:3\n")
	target := 0.0
	for _, seg := range segments {
		if seg.Duration > target {
			target = seg.Duration
		}
	}
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", int(target+0.999999))
	for _, seg := range segments {
		fmt.Fprintf(&b, "#EXTINF:%.6f,\n%s\n", seg.Duration, seg.Filename)
	}
	b.WriteString(endOfListMarker + "\n")
	return os.WriteFile(path, []byte(b.String()), 0o644)
}
