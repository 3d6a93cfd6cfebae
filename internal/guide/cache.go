package guide

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"hls-orchestrator/internal/bundle"
	"hls-orchestrator/internal/channel"
	"hls-orchestrator/internal/platform/metrics"
	"hls-orchestrator/internal/timemodel"
)

// ChannelProvider returns the current channel set. It is called on every
// rebuild rather than captured once, so the cache always reflects the
// latest atomically-published set from the Channel Definitions Watcher.
type ChannelProvider func() map[string]*channel.Program

// Cache recomputes every channel's Schedule Entries on a fixed period and
// serves the last computed snapshot instantly to requesters, per spec §5's
// "requesters never compute the guide synchronously on the hot path, except
// as a cold-start fallback on the very first request."
type Cache struct {
	channels ChannelProvider
	store    bundle.Store
	clock    timemodel.Clock
	log      *slog.Logger
	metrics  *metrics.Metrics

	snapshot atomic.Pointer[map[string][]ScheduleEntry]
	cron     *cron.Cron
}

// NewCache constructs a Cache. The clock is an injectable seam so tests can
// control "now" without sleeping.
func NewCache(channels ChannelProvider, store bundle.Store, clock timemodel.Clock, log *slog.Logger) *Cache {
	return &Cache{channels: channels, store: store, clock: clock, log: log}
}

// WireMetrics attaches the metrics sink Rebuild reports its duration
// through.
func (c *Cache) WireMetrics(m *metrics.Metrics) {
	c.metrics = m
}

// Rebuild recomputes every started channel's Schedule Entries and publishes
// the new snapshot as a single atomic pointer swap, so readers never observe
// a partially rebuilt guide.
func (c *Cache) Rebuild() {
	rebuildStarted := time.Now()
	now := c.clock.Now()
	result := make(map[string][]ScheduleEntry)

	for slug, prog := range c.channels() {
		started, epoch := prog.Started()
		if !started {
			continue
		}
		manifest, err := c.store.LoadManifest(slug)
		if err != nil {
			c.log.Warn("guide rebuild: failed to load manifest, using queue paths only",
				slog.String("channel", slug), slog.String("error", err.Error()))
			manifest = nil
		}
		result[slug] = Build(prog.Compiled(), prog.Queue(), manifest, prog.Definition, now, epoch)
	}

	c.snapshot.Store(&result)

	if c.metrics != nil {
		c.metrics.ObserveGuideRebuildDuration(time.Since(rebuildStarted).Seconds())
	}
}

// Get returns the Schedule Entries for a channel from the last built
// snapshot, building synchronously if no snapshot exists yet (cold start).
func (c *Cache) Get(slug string) ([]ScheduleEntry, bool) {
	snap := c.snapshot.Load()
	if snap == nil {
		c.Rebuild()
		snap = c.snapshot.Load()
	}
	entries, ok := (*snap)[slug]
	return entries, ok
}

// Start begins the 60-second rebuild schedule, per spec §4.G. It rebuilds
// once immediately so the cache is warm before the first tick.
func (c *Cache) Start() error {
	c.Rebuild()

	c.cron = cron.New()
	_, err := c.cron.AddFunc("@every 60s", c.Rebuild)
	if err != nil {
		return err
	}
	c.cron.Start()
	return nil
}

// Stop halts the rebuild schedule, waiting for any in-flight rebuild to
// finish.
func (c *Cache) Stop() {
	if c.cron != nil {
		<-c.cron.Stop().Done()
	}
}
