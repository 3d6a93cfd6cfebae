// Package definitions implements the Channel Definitions Watcher: it polls
// the channel-definitions file's modification time, and on change rebuilds
// the whole channel set atomically, per spec §4.H.
package definitions

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"hls-orchestrator/internal/bundle"
	"hls-orchestrator/internal/channel"
	"hls-orchestrator/internal/scheduler"
)

// pollSchedule is the cron expression for the watcher's poll period, per
// spec §4.H: "every 5 minutes". Polling, not filesystem notification, is
// intentional — robustness across networked filesystems is worth the
// latency.
const pollSchedule = "@every 5m"

// Set is the atomically-published channel set: readers observe either the
// old set in full or the new set in full, never a partially rebuilt one.
type Set map[string]*channel.Program

// Watcher polls path's modification time and, on change, rebuilds every
// Channel Program and re-enqueues the Pre-Generation Scheduler.
type Watcher struct {
	Path      string
	Store     bundle.Store
	Scheduler *scheduler.Scheduler
	Log       *slog.Logger

	lastModTime time.Time
	loaded      bool
	current     atomic.Pointer[Set]
	cron        *cron.Cron
}

// NewWatcher constructs a Watcher and performs the initial load so Current
// is populated before Start is called.
func NewWatcher(path string, store bundle.Store, sched *scheduler.Scheduler, log *slog.Logger) *Watcher {
	w := &Watcher{Path: path, Store: store, Scheduler: sched, Log: log}
	empty := Set{}
	w.current.Store(&empty)
	w.Poll()
	return w
}

// Current returns the latest published channel set.
func (w *Watcher) Current() Set {
	return *w.current.Load()
}

// Poll checks the definitions file's modification time and rebuilds the
// channel set if it changed (or on first call). A missing file falls back
// to the built-in default definition, per spec §6.
func (w *Watcher) Poll() {
	modTime, defs, err := w.load()
	if err != nil {
		w.Log.Error("definitions watcher: failed to load definitions, keeping current channel set",
			slog.String("path", w.Path), slog.String("error", err.Error()))
		return
	}

	unchanged := w.loaded && modTime.Equal(w.lastModTime)
	if unchanged {
		return
	}
	w.lastModTime = modTime
	w.loaded = true

	next := make(Set, len(defs))
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			w.Log.Error("definitions watcher: skipping invalid channel definition",
				slog.String("error", err.Error()))
			continue
		}
		prog := channel.NewProgram(def, w.Log)
		prog.Compile(w.Store)
		prog.StartIfBroadcastable(time.Now())
		next[def.Slug] = prog

		if pending := prog.PendingSources(w.Store); len(pending) > 0 {
			w.Scheduler.Enqueue(def.Slug, pending)
		}
	}

	w.current.Store(&next)
	w.Log.Info("definitions watcher: republished channel set", slog.Int("channels", len(next)))
}

// load reads and decodes the definitions file, or falls back to
// DefaultDefinitions if the file does not exist.
func (w *Watcher) load() (time.Time, []channel.Definition, error) {
	info, err := os.Stat(w.Path)
	if os.IsNotExist(err) {
		return time.Time{}, channel.DefaultDefinitions(), nil
	}
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("stat definitions file: %w", err)
	}

	b, err := os.ReadFile(w.Path)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("read definitions file: %w", err)
	}

	var defs []channel.Definition
	if err := json.Unmarshal(b, &defs); err != nil {
		return time.Time{}, nil, fmt.Errorf("decode definitions file: %w", err)
	}

	return info.ModTime(), defs, nil
}

// Start begins the 5-minute poll schedule.
func (w *Watcher) Start() error {
	w.cron = cron.New()
	_, err := w.cron.AddFunc(pollSchedule, w.Poll)
	if err != nil {
		return err
	}
	w.cron.Start()
	return nil
}

// Stop halts the poll schedule, waiting for any in-flight poll to finish.
func (w *Watcher) Stop() {
	if w.cron != nil {
		<-w.cron.Stop().Done()
	}
}
