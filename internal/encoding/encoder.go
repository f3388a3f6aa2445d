package encoding

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"webmill/internal/config"
	"webmill/internal/services"
)

var commandContext = exec.CommandContext

// ProgressUpdate captures one ffmpeg progress report.
type ProgressUpdate struct {
	// OutTime is how much of the source timeline has been written so far.
	OutTime time.Duration
	// Done is set on ffmpeg's final progress block.
	Done bool
}

// Request describes a single transcode invocation.
type Request struct {
	InputPath    string
	OutputPath   string
	Quality      int
	AudioBitrate string
}

// Client defines transcoding behaviour.
type Client interface {
	Encode(ctx context.Context, req Request, progress func(ProgressUpdate)) error
}

// FFmpeg runs the ffmpeg command-line encoder.
type FFmpeg struct {
	binary       string
	videoBitrate string
	threads      int
}

// NewFFmpeg constructs an encoder client from configuration.
func NewFFmpeg(cfg *config.Config) *FFmpeg {
	return &FFmpeg{
		binary:       cfg.FFmpegBinary(),
		videoBitrate: cfg.Encoding.VideoBitrate,
		threads:      cfg.Encoding.Threads,
	}
}

// stderrLimit bounds how much encoder output is retained for error messages.
const stderrLimit = 8 * 1024

// Encode transcodes req.InputPath into req.OutputPath, invoking progress for
// each ffmpeg progress block. It blocks until ffmpeg exits.
func (f *FFmpeg) Encode(ctx context.Context, req Request, progress func(ProgressUpdate)) error {
	if strings.TrimSpace(req.InputPath) == "" {
		return errors.New("input path required")
	}
	if strings.TrimSpace(req.OutputPath) == "" {
		return errors.New("output path required")
	}

	cmd := commandContext(ctx, f.binary, f.buildArgs(req)...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr := &boundedBuffer{limit: stderrLimit}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return services.Wrap(services.ErrExternalTool, "encoder", "start", "launch ffmpeg", err)
	}

	scanner := bufio.NewScanner(stdout)
	var update ProgressUpdate
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "out_time_us", "out_time_ms":
			// Both keys carry microseconds; out_time_ms is misnamed
			// upstream.
			if us, err := strconv.ParseInt(value, 10, 64); err == nil && us >= 0 {
				update.OutTime = time.Duration(us) * time.Microsecond
			}
		case "progress":
			update.Done = value == "end"
			if progress != nil {
				progress(update)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		_ = cmd.Wait()
		return fmt.Errorf("read ffmpeg progress: %w", err)
	}

	if err := cmd.Wait(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return services.Wrap(services.ErrExternalTool, "encoder", "encode", detail, err)
	}
	return nil
}

func (f *FFmpeg) buildArgs(req Request) []string {
	return []string{
		"-i", req.InputPath,
		"-c:v", "libvpx-vp9",
		"-pix_fmt", "yuv420p",
		"-crf", strconv.Itoa(req.Quality),
		"-b:v", f.videoBitrate,
		"-cpu-used", "5",
		"-deadline", "realtime",
		"-row-mt", "1",
		"-tile-columns", "2",
		"-threads", strconv.Itoa(f.threads),
		"-lag-in-frames", "0",
		"-c:a", "libopus",
		"-b:a", req.AudioBitrate,
		"-f", "webm",
		"-progress", "pipe:1",
		"-nostats",
		"-y",
		req.OutputPath,
	}
}

// boundedBuffer keeps the tail of what is written to it.
type boundedBuffer struct {
	limit int
	data  []byte
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	if len(b.data) > b.limit {
		b.data = b.data[len(b.data)-b.limit:]
	}
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	return string(b.data)
}

var _ Client = (*FFmpeg)(nil)
