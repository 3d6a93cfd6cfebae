package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"hls-orchestrator/internal/platform/logger"
	"hls-orchestrator/internal/platform/metrics"
)

// NewRouter builds the chi router for the broadcast engine's HTTP surface,
// in the same shape as the teacher's cmd/server wiring: request logging and
// metrics middleware, a Prometheus scrape endpoint, then the domain routes.
func NewRouter(h *Handler, log *slog.Logger, met *metrics.Metrics, activeChannels func() int) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetActiveChannels(activeChannels()) }).ServeHTTP(w, r)
	})

	r.Get("/channels", h.ListChannels)
	r.Route("/channels/{slug}", func(r chi.Router) {
		r.Get("/live.m3u8", h.LiveManifest)
		r.Get("/guide", h.GuideEntries)
		r.Get("/videos/*", h.SegmentFiles)
	})

	return r
}
