package transcode

import (
	"fmt"
	"path/filepath"
	"strconv"
)

// Config carries the transcoder-facing configuration inputs named in
// spec §6: segment length, target frame dimensions, and codec/preset/
// quality/filter selections. The policy that turns these (plus a
// ProbeResult) into concrete tuning is out of scope for the core (§1); the
// DefaultArgBuilder here just plumbs them through.
type Config struct {
	SegmentSeconds int
	Width, Height  int
	VideoCodec     string
	Preset         string
	Quality        string
	Filter         string
}

// ArgBuilder turns a source path, an output directory, and a probe result
// into the argument list for the external transcoder process.
type ArgBuilder interface {
	BuildArgs(sourcePath, outputDir string, probe ProbeResult) []string
}

// DefaultArgBuilder builds a generic segmenting invocation. GPU-specific
// argument tuning is an external collaborator (spec §1); this builder does
// not branch on probe.Unknown beyond falling back to Config's defaults.
type DefaultArgBuilder struct {
	Config Config
}

func (b DefaultArgBuilder) BuildArgs(sourcePath, outputDir string, probe ProbeResult) []string {
	codec := b.Config.VideoCodec
	if codec == "" && !probe.Unknown && probe.VideoCodec != "" {
		codec = probe.VideoCodec
	}

	args := []string{
		"-y",
		"-i", sourcePath,
		"-c:v", codec,
	}
	if b.Config.Preset != "" {
		args = append(args, "-preset", b.Config.Preset)
	}
	if b.Config.Quality != "" {
		args = append(args, "-crf", b.Config.Quality)
	}

	vf := b.Config.Filter
	if b.Config.Width > 0 && b.Config.Height > 0 {
		scale := fmt.Sprintf("scale=%d:%d", b.Config.Width, b.Config.Height)
		if vf != "" {
			vf = vf + "," + scale
		} else {
			vf = scale
		}
	}
	if vf != "" {
		args = append(args, "-vf", vf)
	}

	args = append(args,
		"-hls_time", strconv.Itoa(b.Config.SegmentSeconds),
		"-hls_list_size", "0",
		"-hls_segment_filename", filepath.Join(outputDir, "segment_%05d.ts"),
		filepath.Join(outputDir, "index.m3u8"),
	)

	return args
}
