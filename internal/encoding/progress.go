package encoding

import (
	"context"
	"log/slog"
	"os"
	"time"

	"webmill/internal/config"
	"webmill/internal/logging"
)

// The encode phase owns the progress sub-range above the pre-encode steps.
// The ceiling leaves the final write to the orchestrator; only a terminal
// status update may report 100.
const (
	progressFloor   = 30
	progressSpan    = 70
	progressCeiling = 99
)

// ProgressSink persists progress updates. *jobs.Store satisfies it.
type ProgressSink interface {
	SetProgress(ctx context.Context, id string, progress int) error
}

// mapEncodeFraction converts a completion fraction into a job percentage
// within the encode sub-range.
func mapEncodeFraction(fraction float64) int {
	if fraction < 0 {
		fraction = 0
	}
	percent := progressFloor + int(fraction*progressSpan)
	if percent > progressCeiling {
		percent = progressCeiling
	}
	return percent
}

// Reporter maps encode completion fractions onto a job's progress row.
type Reporter struct {
	sink     ProgressSink
	logger   *slog.Logger
	jobID    string
	duration float64
}

// NewReporter builds a progress reporter for one encode. The duration is the
// source media duration in seconds; non-positive durations disable fraction
// mapping and every update reports the floor.
func NewReporter(sink ProgressSink, logger *slog.Logger, jobID string, duration float64) *Reporter {
	return &Reporter{
		sink:     sink,
		logger:   logging.NewComponentLogger(logger, "progress"),
		jobID:    jobID,
		duration: duration,
	}
}

// ReportFraction persists the percentage for a completion fraction. Store
// errors are logged, never propagated; a missed tick should not fail the job.
func (r *Reporter) ReportFraction(ctx context.Context, fraction float64) {
	if err := r.sink.SetProgress(ctx, r.jobID, mapEncodeFraction(fraction)); err != nil {
		r.logger.Warn("progress update failed",
			logging.String(logging.FieldJobID, r.jobID),
			logging.Error(err))
	}
}

// Apply is a Client progress callback that derives the fraction from how much
// of the source timeline ffmpeg has written.
func (r *Reporter) Apply(ctx context.Context) func(ProgressUpdate) {
	return func(update ProgressUpdate) {
		if r.duration <= 0 {
			r.ReportFraction(ctx, 0)
			return
		}
		fraction := update.OutTime.Seconds() / r.duration
		if fraction > 0.99 {
			fraction = 0.99
		}
		r.ReportFraction(ctx, fraction)
	}
}

// SizeMonitor estimates progress from wall-clock time while an output file
// grows. It exists for encoders whose progress stream is unavailable.
type SizeMonitor struct {
	reporter    *Reporter
	outputPath  string
	interval    time.Duration
	ceiling     time.Duration
	speedFactor float64
}

// NewSizeMonitor builds a polling monitor from configuration.
func NewSizeMonitor(cfg *config.Config, reporter *Reporter, outputPath string) *SizeMonitor {
	return &SizeMonitor{
		reporter:    reporter,
		outputPath:  outputPath,
		interval:    time.Duration(cfg.Progress.PollIntervalSeconds) * time.Second,
		ceiling:     time.Duration(cfg.Progress.CeilingSeconds) * time.Second,
		speedFactor: cfg.Progress.EncodeSpeedFactor,
	}
}

// Watch polls until the context is cancelled or the ceiling elapses. The
// estimate assumes the encode runs at speedFactor times real time; a tick
// only reports when the output file has grown since the last one.
func (m *SizeMonitor) Watch(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	start := time.Now()
	// Starting at zero means a merely-created empty output never reports;
	// the first estimate waits for actual bytes on disk.
	var lastSize int64
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			elapsed := now.Sub(start)
			if elapsed >= m.ceiling {
				return
			}
			info, err := os.Stat(m.outputPath)
			if err != nil || info.Size() <= lastSize {
				continue
			}
			lastSize = info.Size()
			if m.reporter.duration <= 0 {
				continue
			}
			fraction := elapsed.Seconds() / (m.reporter.duration * m.speedFactor)
			if fraction > 0.99 {
				fraction = 0.99
			}
			m.reporter.ReportFraction(ctx, fraction)
		}
	}
}
