package sampler

import (
	"context"

	"webmill/internal/media/ffprobe"
)

// probeMedia is the ffprobe function used by the sampler package.
// It is a package-level variable so tests can override it.
var probeMedia = ffprobe.Inspect

// extractPatch is the ffmpeg patch extraction used by the sampler package.
var extractPatch = runExtract

// SetProbeForTests overrides the ffprobe runner during tests.
func SetProbeForTests(fn func(context.Context, string, string) (ffprobe.Result, error)) func() {
	previous := probeMedia
	probeMedia = fn
	return func() {
		probeMedia = previous
	}
}

// SetExtractForTests overrides the ffmpeg patch extraction during tests.
func SetExtractForTests(fn func(context.Context, string, string, float64, Patch) ([]byte, error)) func() {
	previous := extractPatch
	extractPatch = func(ctx context.Context, binary, path string, offset float64, p patch) ([]byte, error) {
		return fn(ctx, binary, path, offset, Patch(p))
	}
	return func() {
		extractPatch = previous
	}
}

// Patch is the exported view of a sampled region, used by test overrides.
type Patch struct {
	X int
	Y int
	W int
	H int
}
