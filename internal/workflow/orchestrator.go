package workflow

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"webmill/internal/config"
	"webmill/internal/encoding"
	"webmill/internal/jobs"
	"webmill/internal/logging"
	"webmill/internal/media/ffprobe"
	"webmill/internal/media/sampler"
	"webmill/internal/services"
)

// colorDetector abstracts background color detection for testing.
type colorDetector interface {
	DetectColor(ctx context.Context, path string) (string, error)
}

// Orchestrator accepts uploads and drives each one through detection,
// encoding, and the final status write.
type Orchestrator struct {
	cfg      *config.Config
	store    *jobs.Store
	logger   *slog.Logger
	encoder  encoding.Client
	detector colorDetector

	wg sync.WaitGroup
}

// New constructs an orchestrator with the production encoder and detector.
func New(cfg *config.Config, store *jobs.Store, logger *slog.Logger) *Orchestrator {
	return NewWithDependencies(cfg, store, logger, encoding.NewFFmpeg(cfg), sampler.NewDetector(cfg, logger))
}

// NewWithDependencies constructs an orchestrator with injected external
// clients. Tests use it to substitute fakes.
func NewWithDependencies(cfg *config.Config, store *jobs.Store, logger *slog.Logger, encoder encoding.Client, detector colorDetector) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		store:    store,
		logger:   logging.NewComponentLogger(logger, "orchestrator"),
		encoder:  encoder,
		detector: detector,
	}
}

// SubmitRequest carries one upload into the pipeline.
type SubmitRequest struct {
	// ID overrides the generated job identifier when non-empty.
	ID      string
	Source  io.Reader
	Options jobs.Options
}

// Submit stores the upload, creates its job record, and starts processing in
// the background. It returns as soon as the record exists; conversion
// progress is observed through the store.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*jobs.Record, error) {
	if req.Source == nil {
		return nil, services.Wrap(services.ErrValidation, "orchestrator", "submit", "no upload payload", nil)
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	} else if existing, err := o.store.GetByID(ctx, id); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, services.Wrap(services.ErrValidation, "orchestrator", "submit", fmt.Sprintf("job %s already exists", id), nil)
	}

	inputPath := o.inputPath(id)
	if err := writeUpload(inputPath, req.Source); err != nil {
		return nil, services.Wrap(services.ErrTransient, "orchestrator", "submit", "store upload", err)
	}

	record, err := o.store.Create(ctx, jobs.NewRecord(id))
	if err != nil {
		_ = os.Remove(inputPath)
		return nil, err
	}

	opts := req.Options.Normalized()
	o.logger.Info("job accepted",
		logging.String(logging.FieldJobID, id),
		logging.Int("quality", opts.Quality),
		logging.String("audio_bitrate", opts.AudioBitrate),
		logging.Bool("detect_background", opts.DetectBackground))

	o.wg.Add(1)
	go o.process(id, inputPath, opts)

	return record, nil
}

// Wait blocks until every in-flight job has reached a terminal status.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// process runs one job to completion. It is detached from the submit request
// context; an upload's conversion outlives its HTTP request.
func (o *Orchestrator) process(id, inputPath string, opts jobs.Options) {
	defer o.wg.Done()
	ctx := context.Background()
	logger := o.logger.With(logging.String(logging.FieldJobID, id))

	// The upload blob is transient either way: the artifact or the error
	// message is the job's lasting output.
	defer func() {
		if err := os.Remove(inputPath); err != nil && !os.IsNotExist(err) {
			logger.Warn("input cleanup failed", logging.Error(err))
		}
	}()

	if err := o.store.SetProgress(ctx, id, 10); err != nil {
		logger.Warn("progress update failed", logging.Error(err))
	}

	if opts.DetectBackground {
		o.detectBackground(ctx, id, inputPath, logger)
	}

	outputPath := o.outputPath(id)
	if err := o.encode(ctx, id, inputPath, outputPath, opts, logger); err != nil {
		logger.Error("conversion failed", logging.Error(err))
		o.finalize(ctx, id, func(record *jobs.Record) {
			record.MarkFailed(err.Error())
		}, logger)
		_ = os.Remove(outputPath)
		return
	}

	o.finalize(ctx, id, func(record *jobs.Record) {
		record.MarkComplete(outputPath)
	}, logger)
	logger.Info("conversion complete", logging.String("result", outputPath))
}

// detectBackground samples the upload's corner color. Detection failures are
// logged and skipped; they never fail the job.
func (o *Orchestrator) detectBackground(ctx context.Context, id, inputPath string, logger *slog.Logger) {
	if err := o.store.SetProgress(ctx, id, 20); err != nil {
		logger.Warn("progress update failed", logging.Error(err))
	}

	color, err := o.detector.DetectColor(ctx, inputPath)
	if err != nil {
		logger.Warn("background detection failed", logging.Error(err))
		return
	}

	record, err := o.store.GetByID(ctx, id)
	if err != nil || record == nil {
		logger.Warn("job vanished during detection")
		return
	}
	record.DetectedColor = color
	record.Progress = 30
	if err := o.store.Update(ctx, record); err != nil {
		logger.Warn("detected color update failed", logging.Error(err))
		return
	}
	logger.Info("background color detected", logging.String("color", color))
}

func (o *Orchestrator) encode(ctx context.Context, id, inputPath, outputPath string, opts jobs.Options, logger *slog.Logger) error {
	duration := o.probeDuration(ctx, inputPath, logger)
	reporter := encoding.NewReporter(o.store, o.logger, id, duration)

	req := encoding.Request{
		InputPath:    inputPath,
		OutputPath:   outputPath,
		Quality:      opts.Quality,
		AudioBitrate: opts.AudioBitrate,
	}

	if o.cfg.Progress.Strategy == "size" {
		monitorCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		var monitorDone sync.WaitGroup
		monitorDone.Add(1)
		go func() {
			defer monitorDone.Done()
			encoding.NewSizeMonitor(o.cfg, reporter, outputPath).Watch(monitorCtx)
		}()
		err := o.encoder.Encode(ctx, req, nil)
		cancel()
		monitorDone.Wait()
		return err
	}

	return o.encoder.Encode(ctx, req, reporter.Apply(ctx))
}

// probeDuration inspects the upload for its duration. An unprobeable upload
// still encodes; progress mapping just degrades.
func (o *Orchestrator) probeDuration(ctx context.Context, inputPath string, logger *slog.Logger) float64 {
	result, err := ffprobe.Inspect(ctx, o.cfg.FFprobeBinary(), inputPath)
	if err != nil {
		logger.Debug("duration probe failed", logging.Error(err))
		return 0
	}
	return result.DurationSeconds()
}

// finalize reloads the record and applies the terminal mutation. Reloading
// keeps fields written mid-flight, like the detected color.
func (o *Orchestrator) finalize(ctx context.Context, id string, mutate func(*jobs.Record), logger *slog.Logger) {
	record, err := o.store.GetByID(ctx, id)
	if err != nil || record == nil {
		logger.Warn("job vanished before final status write")
		return
	}
	mutate(record)
	if err := o.store.Update(ctx, record); err != nil {
		logger.Error("final status write failed", logging.Error(err))
	}
}

func (o *Orchestrator) inputPath(id string) string {
	return filepath.Join(o.cfg.Paths.InputsDir, "input_"+id+".tmp")
}

func (o *Orchestrator) outputPath(id string) string {
	return filepath.Join(o.cfg.Paths.ResultsDir, "output_"+id+".webm")
}

func writeUpload(path string, source io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, source); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}
