// Package scheduler implements the Pre-Generation Scheduler: a round-robin
// queue across channels, executed serially through a single Transcode
// Worker invocation at a time (spec §4.C, §5).
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"hls-orchestrator/internal/bundle"
	"hls-orchestrator/internal/channel"
	"hls-orchestrator/internal/platform/metrics"
	"hls-orchestrator/internal/timemodel"
	"hls-orchestrator/internal/transcode"
)

// Transcoder is the narrow contract the Scheduler needs from the Transcode
// Worker, so tests can supply a fake without spawning real processes.
type Transcoder interface {
	Transcode(ctx context.Context, sourcePath, channelSlug string) (transcode.Result, error)
}

// ProgramLookup returns the current channel program set, mirroring
// guide.ChannelProvider. It lets the Scheduler reach a channel's Program
// after one of its bundles finishes, to recompile and, once broadcastable,
// start it (spec §3's lifecycle clause: programs rebuild "whenever
// definitions change or a new bundle completes").
type ProgramLookup func() map[string]*channel.Program

// Job is one flattened unit of pre-generation work.
type Job struct {
	ChannelSlug string
	SourceItem  channel.SourceItem
}

// Progress is a point-in-time snapshot of scheduler state, published
// lock-free so status reporting never blocks or is blocked by Run.
type Progress struct {
	CurrentIndex    int
	TotalVideos     int
	IsGenerating    bool
	PercentComplete float64
}

// Scheduler holds per-channel FIFO sub-queues and flattens them via
// round-robin: repeatedly taking the head of each non-empty sub-queue in
// the order channels were added, so every channel becomes playable after a
// bounded prefix of work rather than starving behind a long first channel.
type Scheduler struct {
	worker Transcoder
	log    *slog.Logger

	store    bundle.Store
	programs ProgramLookup
	clock    timemodel.Clock
	metrics  *metrics.Metrics

	mu           sync.Mutex
	channelOrder []string
	queues       map[string][]channel.SourceItem

	running  atomic.Bool
	progress atomic.Pointer[Progress]
}

// New returns a Scheduler that drives worker.
func New(worker Transcoder, log *slog.Logger) *Scheduler {
	s := &Scheduler{
		worker: worker,
		log:    log,
		queues: make(map[string][]channel.SourceItem),
	}
	s.progress.Store(&Progress{})
	return s
}

// WireChannels gives the Scheduler what it needs to recompile a channel's
// Compiled Program after one of its bundles finishes transcoding, and to
// start the channel broadcasting the moment it becomes broadcastable. Call
// once during startup wiring, after the Channel Definitions Watcher exists.
func (s *Scheduler) WireChannels(store bundle.Store, programs ProgramLookup, clock timemodel.Clock) {
	s.store = store
	s.programs = programs
	s.clock = clock
}

// WireMetrics attaches the metrics sink Run reports transcode outcomes and
// queue depth through.
func (s *Scheduler) WireMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Enqueue adds every item to channelSlug's sub-queue, preserving order.
// Channels are round-robin ordered by the sequence in which they are first
// enqueued.
func (s *Scheduler) Enqueue(channelSlug string, items []channel.SourceItem) {
	if len(items) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.queues[channelSlug]; !seen {
		s.channelOrder = append(s.channelOrder, channelSlug)
	}
	s.queues[channelSlug] = append(s.queues[channelSlug], items...)
}

// buildFlat drains every sub-queue by round-robin interleaving and returns
// the ordered flat work list.
func (s *Scheduler) buildFlat() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	var flat []Job
	for {
		progressed := false
		for _, slug := range s.channelOrder {
			q := s.queues[slug]
			if len(q) == 0 {
				continue
			}
			flat = append(flat, Job{ChannelSlug: slug, SourceItem: q[0]})
			s.queues[slug] = q[1:]
			progressed = true
		}
		if !progressed {
			break
		}
	}
	return flat
}

// Run processes the flattened queue sequentially, awaiting each Transcode
// invocation before starting the next (the sole point of serialization for
// the single heavy external resource, spec §5). Run is not reentrant: a
// concurrent call while Run is already in progress returns immediately.
func (s *Scheduler) Run(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	defer s.running.Store(false)

	flat := s.buildFlat()
	total := len(flat)
	s.publishProgress(0, total)
	s.reportQueueDepth(total)

	for i, job := range flat {
		select {
		case <-ctx.Done():
			return
		default:
		}

		result, err := s.worker.Transcode(ctx, job.SourceItem.Path, job.ChannelSlug)
		outcome := "complete"
		switch {
		case err != nil:
			outcome = "error"
			s.log.Error("transcode worker error, skipping item",
				slog.String("channel", job.ChannelSlug),
				slog.String("source", job.SourceItem.Path),
				slog.String("error", err.Error()))
		case result.Outcome == transcode.Failed:
			outcome = "failed"
			s.log.Error("transcode failed, skipping item",
				slog.String("channel", job.ChannelSlug),
				slog.String("source", job.SourceItem.Path),
				slog.Int("exit_code", result.ExitCode),
				slog.String("diagnostic_tail", result.DiagnosticTail))
		default:
			s.recompileChannel(job.ChannelSlug)
		}

		if s.metrics != nil {
			s.metrics.IncTranscodeJobs(outcome)
		}
		s.publishProgress(i+1, total)
		s.reportQueueDepth(total - (i + 1))
	}
}

// recompileChannel rebuilds channelSlug's Compiled Program from the bundle
// store now that one of its bundles has finished, and starts the channel
// broadcasting the moment it has its first complete bundle (spec §2/§3).
// A no-op until WireChannels has been called.
func (s *Scheduler) recompileChannel(channelSlug string) {
	if s.programs == nil {
		return
	}
	prog, ok := s.programs()[channelSlug]
	if !ok {
		return
	}
	prog.Compile(s.store)

	now := time.Now()
	if s.clock != nil {
		now = s.clock.Now()
	}
	prog.StartIfBroadcastable(now)
}

func (s *Scheduler) reportQueueDepth(n int) {
	if s.metrics != nil {
		s.metrics.SetPregenerationQueueDepth(n)
	}
}

func (s *Scheduler) publishProgress(current, total int) {
	percent := 0.0
	if total > 0 {
		percent = float64(current) / float64(total) * 100
	}
	s.progress.Store(&Progress{
		CurrentIndex:    current,
		TotalVideos:     total,
		IsGenerating:    current < total,
		PercentComplete: percent,
	})
}

// Progress returns the current progress snapshot.
func (s *Scheduler) Progress() Progress {
	return *s.progress.Load()
}
