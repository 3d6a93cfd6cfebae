// Package httpapi wires the broadcast engine's read-only HTTP surface: the
// live manifest, the program guide, channel listing, and the Prometheus
// scrape endpoint. It is a thin boundary — the core packages never import
// net/http, and this package never touches the filesystem beyond serving
// already-sealed segment bytes.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"hls-orchestrator/internal/channel"
	"hls-orchestrator/internal/definitions"
	"hls-orchestrator/internal/guide"
	"hls-orchestrator/internal/platform/metrics"
)

const playlistContentType = "application/vnd.apple.mpegurl"

// ErrChannelNotFound and ErrChannelNotStarted are the sentinel errors this
// boundary maps to HTTP status codes, per spec §7's request-for-a-slug
// disposition.
var (
	ErrChannelNotFound   = errors.New("httpapi: channel not found")
	ErrChannelNotStarted = errors.New("httpapi: channel not started")
)

// Handler exposes the broadcast engine's HTTP endpoints using go-chi, in
// the same shape as the teacher's orchestrator Handler.
type Handler struct {
	Channels  *definitions.Watcher
	Guide     *guide.Cache
	CacheRoot string
	Log       *slog.Logger
	Metrics   *metrics.Metrics

	fileServer http.Handler
}

// NewHandler returns a Handler serving the given channel set, guide cache,
// and on-disk cache root.
func NewHandler(channels *definitions.Watcher, guideCache *guide.Cache, cacheRoot string, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		Channels:   channels,
		Guide:      guideCache,
		CacheRoot:  cacheRoot,
		Log:        log,
		Metrics:    m,
		fileServer: http.FileServer(http.Dir(cacheRoot)),
	}
}

type channelSummary struct {
	Slug    string `json:"slug"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Started bool   `json:"started"`
}

// ListChannels handles GET /channels.
func (h *Handler) ListChannels(w http.ResponseWriter, r *http.Request) {
	current := h.Channels.Current()
	summaries := make([]channelSummary, 0, len(current))
	for _, prog := range current {
		started, _ := prog.Started()
		summaries = append(summaries, channelSummary{
			Slug:    prog.Definition.Slug,
			Name:    prog.Definition.Name,
			Type:    string(prog.Definition.Type),
			Started: started,
		})
	}
	writeJSON(w, http.StatusOK, summaries)
}

// resolveChannel looks up a channel by slug, returning ErrChannelNotFound
// if it is not in the current published set.
func (h *Handler) resolveChannel(slug string) (*channel.Program, error) {
	prog, ok := h.Channels.Current()[slug]
	if !ok {
		return nil, ErrChannelNotFound
	}
	return prog, nil
}

// statusFor maps a sentinel error to its HTTP status code, the way the
// teacher's Handler maps ErrStreamEnded/ErrRenditionEnded.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrChannelNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrChannelNotStarted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// LiveManifest handles GET /channels/{slug}/live.m3u8.
func (h *Handler) LiveManifest(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	prog, err := h.resolveChannel(slug)
	if err != nil {
		h.Log.Info("live manifest request failed", slog.String("slug", slug), slog.String("error", err.Error()))
		w.WriteHeader(statusFor(err))
		return
	}

	manifest, started := prog.CurrentManifest(time.Now())
	if !started {
		h.Log.Warn("live manifest requested before channel started", slog.String("slug", slug))
		w.WriteHeader(statusFor(ErrChannelNotStarted))
		return
	}

	if h.Metrics != nil {
		h.Metrics.IncManifestRequests()
	}
	w.Header().Set("Content-Type", playlistContentType)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(manifest))
}

// GuideEntries handles GET /channels/{slug}/guide.
func (h *Handler) GuideEntries(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	if _, err := h.resolveChannel(slug); err != nil {
		w.WriteHeader(statusFor(err))
		return
	}

	entries, _ := h.Guide.Get(slug)
	writeJSON(w, http.StatusOK, entries)
}

// SegmentFiles handles GET /channels/{slug}/videos/*, serving already-sealed
// segment bytes directly off disk. Raw segment serving is explicitly an
// external, out-of-scope concern (spec §1); this is the minimal amount of
// plumbing needed to make the core runnable end to end.
func (h *Handler) SegmentFiles(w http.ResponseWriter, r *http.Request) {
	h.fileServer.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
