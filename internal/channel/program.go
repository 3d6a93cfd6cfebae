package channel

import (
	"io/fs"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"hls-orchestrator/internal/bundle"
	"hls-orchestrator/internal/playlist"
)

// epochState is the Channel Runtime State of spec §3: (started, epoch),
// published as a single value so readers never observe a torn pair.
type epochState struct {
	started bool
	epoch   time.Time
}

// Program is a channel's in-memory ordered Source Item queue plus its
// Compiled Program and runtime broadcast state. A Program is built once per
// Definition and rebuilt wholesale (a fresh Program replaces the old one) on
// definitions reload or when the queue's contents need re-walking.
type Program struct {
	Definition Definition

	queue []SourceItem

	epoch    atomic.Pointer[epochState]
	compiled atomic.Pointer[playlist.CompiledProgram]
}

// NewProgram builds a Program from a Definition: it recursively walks the
// definition's root paths, retains supported-extension files, and applies
// the definition's ordering policy, per spec §4.D steps 1-4.
func NewProgram(def Definition, log *slog.Logger) *Program {
	queue := buildQueue(def, log)
	p := &Program{Definition: def, queue: queue}
	empty := playlist.NewCompiledProgram(nil)
	p.compiled.Store(&empty)
	return p
}

func buildQueue(def Definition, log *slog.Logger) []SourceItem {
	var items []SourceItem

	for _, root := range def.Paths {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			log.Warn("channel root path missing, channel will run with an empty queue for it",
				slog.String("slug", def.Slug), slog.String("path", root))
			continue
		}

		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil // best-effort walk; skip unreadable entries
			}
			if d.IsDir() {
				return nil
			}
			ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
			if !SupportedExtensions[ext] {
				return nil
			}
			items = append(items, SourceItem{Path: path, Fingerprint: Fingerprint(path)})
			return nil
		})
	}

	if def.Type == TypeShuffle {
		rand.Shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })
	}

	if len(items) == 0 {
		log.Warn("channel has no supported source files", slog.String("slug", def.Slug))
	}

	return items
}

// Queue returns the channel's ordered Source Items.
func (p *Program) Queue() []SourceItem {
	return p.queue
}

// PendingSources returns every Source Item whose bundle is not Complete,
// preserving channel order — the input to the Pre-Generation Scheduler.
func (p *Program) PendingSources(store bundle.Store) []SourceItem {
	var pending []SourceItem
	for _, item := range p.queue {
		if store.Exists(p.Definition.Slug, item.Fingerprint) != bundle.Complete {
			pending = append(pending, item)
		}
	}
	return pending
}

// Compile rebuilds the channel's Compiled Program by concatenating complete
// bundle indices in channel-defined order (spec §3, §9's "ambient
// filesystem operations" note: only the Bundle Store touches bundle
// directories, so Compile only ever calls Store methods). Bundles that are
// missing or unreadable at compile time are silently excluded; the channel
// continues broadcasting with the rest (spec §4.E, §7).
func (p *Program) Compile(store bundle.Store) {
	var segments []playlist.SegmentRecord
	cumulative := 0.0

	for videoIndex, item := range p.queue {
		if store.Exists(p.Definition.Slug, item.Fingerprint) != bundle.Complete {
			continue
		}
		segs, _, err := store.Open(p.Definition.Slug, item.Fingerprint)
		if err != nil {
			continue
		}
		for _, seg := range segs {
			segments = append(segments, playlist.SegmentRecord{
				VideoIndex:          videoIndex,
				Duration:            seg.Duration,
				RelativeURL:         relativeSegmentURL(p.Definition.Slug, item.Fingerprint, seg.Filename),
				CumulativeTimestamp: cumulative,
			})
			cumulative += seg.Duration
		}
	}

	compiled := playlist.NewCompiledProgram(segments)
	p.compiled.Store(&compiled)
}

func relativeSegmentURL(slug, fingerprint, filename string) string {
	return "channels/" + slug + "/videos/" + fingerprint + "/" + filename
}

// Start sets started=true and captures epoch=now(), publishing the pair
// atomically. Calling Start more than once on an already-started Program is
// a no-op: the Channel Runtime State is created once and never updated
// thereafter, per spec §3.
func (p *Program) Start(now time.Time) {
	if state := p.epoch.Load(); state != nil && state.started {
		return
	}
	p.epoch.Store(&epochState{started: true, epoch: now})
}

// StartIfBroadcastable starts the channel if it is not already started and
// its Compiled Program has a positive total duration (so at least one
// segment, and not only zero-length ones). Per spec §2/§3, a
// channel becomes broadcastable the moment it has at least one complete
// bundle; callers should invoke Compile first so this sees fresh state.
// Reports whether it started the channel.
func (p *Program) StartIfBroadcastable(now time.Time) bool {
	if started, _ := p.Started(); started {
		return false
	}
	if p.compiled.Load().TotalDuration() <= 0 {
		return false
	}
	p.Start(now)
	return true
}

// Started reports whether the channel has begun broadcasting and, if so,
// its epoch instant.
func (p *Program) Started() (bool, time.Time) {
	state := p.epoch.Load()
	if state == nil {
		return false, time.Time{}
	}
	return state.started, state.epoch
}

// CurrentManifest renders the live manifest for the channel at wall-clock
// instant now, or (_, false) if the channel has not started. It performs no
// I/O and no locking beyond the two atomic loads, so it is safe to call
// concurrently from any number of request handlers (spec §4.D).
func (p *Program) CurrentManifest(now time.Time) (string, bool) {
	state := p.epoch.Load()
	if state == nil || !state.started {
		return "", false
	}

	offsetSeconds := now.Sub(state.epoch).Seconds()
	if offsetSeconds < 0 {
		// Clock regression: clamp to 0 and synthesize as if at phase 0.
		offsetSeconds = 0
	}

	compiled := p.compiled.Load()
	return playlist.Synthesize(*compiled, offsetSeconds), true
}

// Compiled returns the channel's current Compiled Program, for the Program
// Guide Builder.
func (p *Program) Compiled() playlist.CompiledProgram {
	return *p.compiled.Load()
}
