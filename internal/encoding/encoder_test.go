package encoding

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"webmill/internal/services"
	"webmill/internal/testsupport"
)

func TestBuildArgs(t *testing.T) {
	enc := NewFFmpeg(testsupport.NewConfig(t))
	args := enc.buildArgs(Request{
		InputPath:    "/in/input_1.tmp",
		OutputPath:   "/out/output_1.webm",
		Quality:      45,
		AudioBitrate: "96k",
	})

	joined := strings.Join(args, " ")
	for _, want := range []string{
		"-i /in/input_1.tmp",
		"-c:v libvpx-vp9",
		"-pix_fmt yuv420p",
		"-crf 45",
		"-b:v 1M",
		"-cpu-used 5",
		"-deadline realtime",
		"-row-mt 1",
		"-tile-columns 2",
		"-threads 4",
		"-lag-in-frames 0",
		"-c:a libopus",
		"-b:a 96k",
		"-f webm",
		"-progress pipe:1",
		"-nostats",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("args missing %q: %s", want, joined)
		}
	}
	if args[len(args)-1] != "/out/output_1.webm" {
		t.Fatalf("output path should be last arg, got %q", args[len(args)-1])
	}
}

func TestEncodeStreamsProgress(t *testing.T) {
	testsupport.StubBinary(t, "ffmpeg", `cat <<'EOF'
out_time_us=5000000
progress=continue
out_time_us=10000000
progress=end
EOF`)
	enc := NewFFmpeg(testsupport.NewConfig(t))

	var updates []ProgressUpdate
	err := enc.Encode(context.Background(), Request{
		InputPath:    "/in/a.tmp",
		OutputPath:   "/out/a.webm",
		Quality:      30,
		AudioBitrate: "128k",
	}, func(u ProgressUpdate) {
		updates = append(updates, u)
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if len(updates) != 2 {
		t.Fatalf("expected 2 updates, got %d", len(updates))
	}
	if updates[0].OutTime != 5*time.Second || updates[0].Done {
		t.Fatalf("unexpected first update: %+v", updates[0])
	}
	if updates[1].OutTime != 10*time.Second || !updates[1].Done {
		t.Fatalf("unexpected final update: %+v", updates[1])
	}
}

func TestEncodeSurfacesStderrOnFailure(t *testing.T) {
	testsupport.StubBinary(t, "ffmpeg", `echo "Unknown encoder 'libvpx-vp9'" >&2
exit 1`)
	enc := NewFFmpeg(testsupport.NewConfig(t))

	err := enc.Encode(context.Background(), Request{
		InputPath:    "/in/a.tmp",
		OutputPath:   "/out/a.webm",
		Quality:      30,
		AudioBitrate: "128k",
	}, nil)
	if err == nil {
		t.Fatal("expected encode failure")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Unknown encoder") {
		t.Fatalf("error should carry stderr detail, got %v", err)
	}
}

func TestEncodeValidatesPaths(t *testing.T) {
	enc := NewFFmpeg(testsupport.NewConfig(t))
	if err := enc.Encode(context.Background(), Request{OutputPath: "/out/a.webm"}, nil); err == nil {
		t.Fatal("expected error for missing input path")
	}
	if err := enc.Encode(context.Background(), Request{InputPath: "/in/a.tmp"}, nil); err == nil {
		t.Fatal("expected error for missing output path")
	}
}

func TestBoundedBufferKeepsTail(t *testing.T) {
	buf := &boundedBuffer{limit: 8}
	if _, err := buf.Write([]byte("0123456789abcdef")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := buf.String(); got != "89abcdef" {
		t.Fatalf("buffer = %q, want tail", got)
	}
}
