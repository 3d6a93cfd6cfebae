// Package guide implements the Program Guide Builder: it derives a
// human-readable schedule from a channel's Compiled Program and time model,
// per spec §4.G. Build performs no filesystem I/O; every input is passed in
// by the caller. Cache reads each channel's manifest through the bundle
// Store before calling Build.
package guide

import (
	"path/filepath"
	"strings"
	"time"

	"hls-orchestrator/internal/bundle"
	"hls-orchestrator/internal/channel"
	"hls-orchestrator/internal/playlist"
	"hls-orchestrator/internal/timemodel"
)

// mergeThreshold is the "< 20 minutes" cutoff for collapsing consecutive
// same-title entries in the merge pass (spec §4.G step 5).
const mergeThreshold = 20 * time.Minute

// ScheduleEntry is a derived, never-persisted guide row (spec glossary).
type ScheduleEntry struct {
	Title           string
	StartInstant    time.Time
	EndInstant      time.Time
	DurationSeconds float64
	IsCurrent       bool
}

// show is one maximal same-videoIndex run in the Compiled Program, before
// wall-clock projection.
type show struct {
	videoIndex int
	startSec   float64
	durSec     float64
}

// Build implements spec §4.G's six numbered steps and returns the Schedule
// Entries covering [previous3am(now), next3am(now)).
func Build(compiled playlist.CompiledProgram, queue []channel.SourceItem, manifest bundle.Manifest, def channel.Definition, now, epoch time.Time) []ScheduleEntry {
	total := compiled.TotalDuration()
	if compiled.Len() == 0 || total <= 0 {
		return nil
	}

	shows := groupShows(compiled)

	phase := timemodel.Phase(now.Sub(epoch).Seconds(), total)
	loopStart := now.Add(-time.Duration(phase * float64(time.Second)))

	from := timemodel.Previous3AM(now)
	to := timemodel.Next3AM(now)

	// Step 3: walk backwards until the running loop start precedes `from`,
	// then forward across loops until reaching `to`, keeping every
	// show-instance whose interval overlaps [from, to).
	loopDuration := time.Duration(total * float64(time.Second))

	earliestLoopStart := loopStart
	for earliestLoopStart.After(from) {
		earliestLoopStart = earliestLoopStart.Add(-loopDuration)
	}

	var entries []ScheduleEntry
	for ls := earliestLoopStart; ls.Before(to); ls = ls.Add(loopDuration) {
		for _, sh := range shows {
			start := ls.Add(time.Duration(sh.startSec * float64(time.Second)))
			end := start.Add(time.Duration(sh.durSec * float64(time.Second)))
			if !end.After(from) || !start.Before(to) {
				continue
			}
			entries = append(entries, ScheduleEntry{
				Title:           deriveTitle(sh.videoIndex, queue, manifest, def),
				StartInstant:    start,
				EndInstant:      end,
				DurationSeconds: sh.durSec,
				IsCurrent:       isCurrent(start, end, now),
			})
		}
	}

	return mergeRuns(entries)
}

// groupShows implements step 1: one (videoIndex, startSec, durationSec)
// group per maximal same-videoIndex run.
func groupShows(compiled playlist.CompiledProgram) []show {
	var shows []show
	for _, seg := range compiled.Segments {
		n := len(shows)
		if n > 0 && shows[n-1].videoIndex == seg.VideoIndex {
			shows[n-1].durSec += seg.Duration
			continue
		}
		shows = append(shows, show{
			videoIndex: seg.VideoIndex,
			startSec:   seg.CumulativeTimestamp,
			durSec:     seg.Duration,
		})
	}
	return shows
}

// deriveTitle implements step 4. The current source path is read from the
// per-channel Manifest when an entry exists for the item's fingerprint,
// otherwise from the queue directly.
func deriveTitle(videoIndex int, queue []channel.SourceItem, manifest bundle.Manifest, def channel.Definition) string {
	if videoIndex < 0 || videoIndex >= len(queue) {
		return ""
	}
	item := queue[videoIndex]

	sourcePath := item.Path
	if manifest != nil {
		if entry, ok := manifest[item.Fingerprint]; ok && entry.OriginalPath != "" {
			sourcePath = entry.OriginalPath
		}
	}

	for _, root := range def.Paths {
		if strings.HasPrefix(sourcePath, root) {
			return filepath.Base(root)
		}
	}
	return filepath.Base(filepath.Dir(sourcePath))
}

// isCurrent implements step 6: inclusive on the left, exclusive on the
// right, compared against now (not a future-buffered time).
func isCurrent(start, end, now time.Time) bool {
	return !now.Before(start) && now.Before(end)
}

// mergeRuns implements step 5: find each maximal run of consecutive entries
// that share a title where every entry in the run is shorter than
// mergeThreshold, and collapse each such run into one entry. Membership in
// a run is decided from each entry's own original duration, not the
// growing duration of the collapsed result, so a run of four 10-minute
// entries collapses into a single 40-minute entry even though 40 minutes
// itself exceeds the threshold.
func mergeRuns(entries []ScheduleEntry) []ScheduleEntry {
	var merged []ScheduleEntry

	i := 0
	for i < len(entries) {
		j := i
		for j+1 < len(entries) && isShort(entries[j]) && isShort(entries[j+1]) && entries[j].Title == entries[j+1].Title {
			j++
		}

		run := entries[i : j+1]
		e := run[0]
		e.EndInstant = run[len(run)-1].EndInstant
		e.DurationSeconds = e.EndInstant.Sub(e.StartInstant).Seconds()
		for _, r := range run {
			e.IsCurrent = e.IsCurrent || r.IsCurrent
		}
		merged = append(merged, e)

		i = j + 1
	}
	return merged
}

func isShort(e ScheduleEntry) bool {
	return time.Duration(e.DurationSeconds*float64(time.Second)) < mergeThreshold
}
