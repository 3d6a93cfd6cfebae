// Package playlist implements the Live-Playlist Synthesizer: the pure,
// filesystem-free function that turns a channel's Compiled Program and a
// wall-clock offset into a rolling HLS media playlist.
package playlist

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Default window sizes, per spec: windowBehind items immediately preceding
// the current index, windowAhead items from the current index forward,
// wrapping across the loop boundary.
const (
	DefaultWindowBehind = 30
	DefaultWindowAhead  = 2000
)

// SegmentRecord is one synthesized entry of a channel's Compiled Program.
type SegmentRecord struct {
	// VideoIndex identifies which source item this segment came from.
	// Consecutive records with different VideoIndex get a discontinuity
	// marker between them.
	VideoIndex int
	Duration   float64
	RelativeURL string
	// CumulativeTimestamp is the running sum of durations of all earlier
	// records in the program, starting at 0.
	CumulativeTimestamp float64
}

// CompiledProgram is the ordered vector of SegmentRecords for a channel,
// built by concatenating complete bundle indices in channel-defined order.
type CompiledProgram struct {
	Segments      []SegmentRecord
	totalDuration float64
}

// NewCompiledProgram computes and caches the program's total duration from
// its last segment's end time.
func NewCompiledProgram(segments []SegmentRecord) CompiledProgram {
	var total float64
	if n := len(segments); n > 0 {
		last := segments[n-1]
		total = last.CumulativeTimestamp + last.Duration
	}
	return CompiledProgram{Segments: segments, totalDuration: total}
}

// Len returns the program size L.
func (c CompiledProgram) Len() int { return len(c.Segments) }

// TotalDuration returns the program's total duration T in seconds.
func (c CompiledProgram) TotalDuration() float64 { return c.totalDuration }

// Synthesize renders the live manifest for offset seconds since channel
// epoch, using the default window sizes.
func Synthesize(compiled CompiledProgram, offset float64) string {
	return SynthesizeWithWindow(compiled, offset, DefaultWindowBehind, DefaultWindowAhead)
}

// SynthesizeWithWindow is Synthesize with explicit window sizes, exposed so
// callers (and tests) can exercise the windowing algorithm at a scale
// smaller than the 2000-segment production default.
func SynthesizeWithWindow(compiled CompiledProgram, offset float64, windowBehind, windowAhead int) string {
	l := compiled.Len()
	if l == 0 {
		return "#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-ENDLIST\n"
	}

	if offset < 0 {
		offset = 0
	}

	t := compiled.TotalDuration()
	var phase float64
	var loopCount int64
	if t > 0 {
		phase = math.Mod(offset, t)
		loopCount = int64(math.Floor(offset / t))
	}

	k := currentIndex(compiled, phase)

	behindCount := windowBehind
	if k < behindCount {
		behindCount = k
	}
	if behindCount < 0 {
		behindCount = 0
	}

	window := make([]SegmentRecord, 0, behindCount+windowAhead)
	for i := k - behindCount; i < k; i++ {
		window = append(window, compiled.Segments[i])
	}
	for step := 0; step < windowAhead; step++ {
		idx := (k + step) % l
		window = append(window, compiled.Segments[idx])
	}

	mediaSequence := loopCount*int64(l) + int64(k-behindCount)

	return render(window, mediaSequence)
}

// currentIndex implements spec step 2: the smallest index whose cumulative
// timestamp is strictly greater than phase, or 0 if no such index exists.
func currentIndex(compiled CompiledProgram, phase float64) int {
	segments := compiled.Segments
	idx := sort.Search(len(segments), func(i int) bool {
		return segments[i].CumulativeTimestamp > phase
	})
	if idx == len(segments) {
		return 0
	}
	return idx
}

// render implements spec steps 4-7: the header (media sequence, target
// duration) and body (EXTINF/URL pairs with discontinuity markers), with no
// end-of-list marker and no playlist-type declaration.
func render(window []SegmentRecord, mediaSequence int64) string {
	var b strings.Builder

	targetDuration := 2.0
	for _, seg := range window {
		if seg.Duration > targetDuration {
			targetDuration = seg.Duration
		}
	}

	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", int(math.Ceil(targetDuration)))
	fmt.Fprintf(&b, "#EXT-X-MEDIA-SEQUENCE:%d\n", mediaSequence)

	for i, seg := range window {
		if i > 0 && seg.VideoIndex != window[i-1].VideoIndex {
			b.WriteString("#EXT-X-DISCONTINUITY\n")
		}
		fmt.Fprintf(&b, "#EXTINF:%.6f,\n", seg.Duration)
		b.WriteString(seg.RelativeURL)
		b.WriteString("\n")
	}

	return b.String()
}
