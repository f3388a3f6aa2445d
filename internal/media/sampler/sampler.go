package sampler

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"webmill/internal/config"
	"webmill/internal/logging"
	"webmill/internal/services"
)

// Detector samples corner patches from a video and averages their pixels.
type Detector struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewDetector constructs a background color detector.
func NewDetector(cfg *config.Config, logger *slog.Logger) *Detector {
	return &Detector{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "sampler"),
	}
}

type patch struct {
	X int
	Y int
	W int
	H int
}

// DetectColor returns the averaged corner color of the video at path as an
// uppercase "0xRRGGBB" string. Probe failures fall back to assumed
// dimensions rather than failing the detection outright; the configured
// default color is returned only when no pixel could be read at all.
func (d *Detector) DetectColor(ctx context.Context, path string) (string, error) {
	width, height, duration := d.probeGeometry(ctx, path)
	patches := d.patchOrigins(width, height)
	offsets := d.sampleOffsets(duration)

	var (
		sumR, sumG, sumB uint64
		pixels           uint64
	)
	for _, offset := range offsets {
		for _, p := range patches {
			data, err := extractPatch(ctx, d.cfg.FFmpegBinary(), path, offset, p)
			if err != nil {
				d.logger.Debug("patch extraction failed",
					logging.String("path", path),
					logging.Float64("offset", offset),
					logging.Error(err))
				continue
			}
			for i := 0; i+2 < len(data); i += 3 {
				sumR += uint64(data[i])
				sumG += uint64(data[i+1])
				sumB += uint64(data[i+2])
				pixels++
			}
		}
	}

	if pixels == 0 {
		d.logger.Warn("no pixels sampled, using default color",
			logging.String("path", path),
			logging.String("color", d.cfg.Detection.DefaultColor))
		return d.cfg.Detection.DefaultColor, nil
	}

	// Integer division truncates, matching the averaging used elsewhere in
	// the pipeline's expectations.
	r := uint8(sumR / pixels)
	g := uint8(sumG / pixels)
	b := uint8(sumB / pixels)
	return fmt.Sprintf("0x%02X%02X%02X", r, g, b), nil
}

// probeGeometry inspects the media and substitutes conservative defaults for
// anything the probe could not determine.
func (d *Detector) probeGeometry(ctx context.Context, path string) (width, height int, duration float64) {
	width, height, duration = 1920, 1080, 1.0

	result, err := probeMedia(ctx, d.cfg.FFprobeBinary(), path)
	if err != nil {
		d.logger.Debug("probe failed, assuming defaults",
			logging.String("path", path),
			logging.Error(err))
		return width, height, duration
	}

	if w, h := result.VideoDimensions(); w > 0 && h > 0 {
		width, height = w, h
	}
	if probed := result.DurationSeconds(); probed > 0 {
		duration = probed
	}
	return width, height, duration
}

// patchOrigins returns the four corner patches inset by the configured
// margin. Both origins and extents are clamped so every patch stays inside
// the frame; tiny frames get shrunken patches instead of failing crops.
func (d *Detector) patchOrigins(width, height int) []patch {
	size := d.cfg.Detection.PatchSize
	margin := d.cfg.Detection.Margin

	w := size
	if w > width {
		w = width
	}
	h := size
	if h > height {
		h = height
	}

	xNear := margin
	if xNear > width-w {
		xNear = width - w
	}
	yNear := margin
	if yNear > height-h {
		yNear = height - h
	}
	xFar := width - margin - w
	if xFar < 0 {
		xFar = 0
	}
	yFar := height - margin - h
	if yFar < 0 {
		yFar = 0
	}

	return []patch{
		{X: xNear, Y: yNear, W: w, H: h},
		{X: xFar, Y: yNear, W: w, H: h},
		{X: xNear, Y: yFar, W: w, H: h},
		{X: xFar, Y: yFar, W: w, H: h},
	}
}

// sampleOffsets converts the configured duration fractions into timestamps.
func (d *Detector) sampleOffsets(duration float64) []float64 {
	if duration <= 0 || len(d.cfg.Detection.Offsets) == 0 {
		return []float64{0.5}
	}
	offsets := make([]float64, 0, len(d.cfg.Detection.Offsets))
	for _, fraction := range d.cfg.Detection.Offsets {
		offsets = append(offsets, duration*fraction)
	}
	return offsets
}

// runExtract shells out to ffmpeg for one raw RGB patch from one frame.
func runExtract(ctx context.Context, binary, path string, offset float64, p patch) ([]byte, error) {
	filter := fmt.Sprintf("crop=%d:%d:%d:%d", p.W, p.H, p.X, p.Y)
	cmd := exec.CommandContext(ctx, binary,
		"-v", "error",
		"-ss", fmt.Sprintf("%.3f", offset),
		"-i", path,
		"-vf", filter,
		"-frames:v", "1",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"pipe:1",
	)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	data, err := cmd.Output()
	if err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return nil, services.Wrap(services.ErrExternalTool, "sampler", "extract patch", detail, err)
	}
	return data, nil
}
