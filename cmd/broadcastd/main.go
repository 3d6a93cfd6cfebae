// Command broadcastd runs the channel broadcast engine: the Pre-Generation
// Scheduler, the Channel Definitions Watcher, the Program Guide Cache, and
// the read-only HTTP surface, all against one cancellation context.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"hls-orchestrator/internal/bundle"
	"hls-orchestrator/internal/channel"
	"hls-orchestrator/internal/definitions"
	"hls-orchestrator/internal/guide"
	"hls-orchestrator/internal/httpapi"
	"hls-orchestrator/internal/platform/config"
	"hls-orchestrator/internal/platform/logger"
	"hls-orchestrator/internal/platform/metrics"
	"hls-orchestrator/internal/scheduler"
	"hls-orchestrator/internal/timemodel"
	"hls-orchestrator/internal/transcode"
)

const (
	shutdownTimeout    = 10 * time.Second
	schedulerIdleSleep = 2 * time.Second
)

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	cacheDir := config.GetEnv("CACHE_DIR", "./cache")
	channelList := config.GetEnv("CHANNEL_LIST", "./channels.json")
	segmentSeconds := config.GetEnvInt("HLS_SEGMENT_LENGTH_SECONDS", 6)
	dims := config.GetEnvDimensions("DIMENSIONS", config.Dimensions{Width: 1280, Height: 720})
	videoCodec := config.GetEnv("VIDEO_CODEC", "")
	preset := config.GetEnv("PRESET", "")
	quality := config.GetEnv("QUALITY", "")
	filter := config.GetEnv("VIDEO_FILTER", "")
	transcoderPath := config.GetEnv("TRANSCODER_PATH", "ffmpeg")
	ffprobePath := config.GetEnv("FFPROBE_PATH", "ffprobe")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")

	log := logger.New(logLevel, logFormat)

	store, err := bundle.NewFSStore(cacheDir)
	if err != nil {
		log.Error("failed to initialize cache root", "error", err)
		os.Exit(1)
	}

	worker := &transcode.Worker{
		TranscoderPath: transcoderPath,
		ArgBuilder: transcode.DefaultArgBuilder{Config: transcode.Config{
			SegmentSeconds: segmentSeconds,
			Width:          dims.Width,
			Height:         dims.Height,
			VideoCodec:     videoCodec,
			Preset:         preset,
			Quality:        quality,
			Filter:         filter,
		}},
		Prober: transcode.FFProbe{BinaryPath: ffprobePath},
		Store:  store,
		Log:    log,
	}

	sched := scheduler.New(worker, log)
	watcher := definitions.NewWatcher(channelList, store, sched, log)
	channelProvider := func() map[string]*channel.Program { return watcher.Current() }
	sched.WireChannels(store, channelProvider, timemodel.SystemClock{})

	met := metrics.New()
	sched.WireMetrics(met)

	guideCache := guide.NewCache(channelProvider, store, timemodel.SystemClock{}, log)
	guideCache.WireMetrics(met)

	h := httpapi.NewHandler(watcher, guideCache, cacheDir, log, met)
	activeChannels := func() int {
		n := 0
		for _, prog := range watcher.Current() {
			if started, _ := prog.Started(); started {
				n++
			}
		}
		return n
	}
	router := httpapi.NewRouter(h, log, met, activeChannels)

	srv := &http.Server{Addr: ":" + port, Handler: router}

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		runSchedulerLoop(ctx, sched, log)
	}()

	if err := watcher.Start(); err != nil {
		log.Error("failed to start definitions watcher", "error", err)
		os.Exit(1)
	}
	if err := guideCache.Start(); err != nil {
		log.Error("failed to start guide cache", "error", err)
		os.Exit(1)
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("broadcastd starting",
		"port", port,
		"cache_dir", cacheDir,
		"channel_list", channelList,
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	cancel()
	watcher.Stop()
	guideCache.Stop()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("broadcastd stopped")
}

// runSchedulerLoop repeatedly drains the Pre-Generation Scheduler's queue.
// Scheduler.Run processes whatever is queued and returns; new work arrives
// via the Definitions Watcher's re-enqueue on reload, so this loop just
// re-invokes Run on an idle timer between drains.
func runSchedulerLoop(ctx context.Context, sched *scheduler.Scheduler, log *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		sched.Run(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(schedulerIdleSleep):
		}
	}
}
