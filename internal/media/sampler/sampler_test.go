package sampler

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"webmill/internal/logging"
	"webmill/internal/media/ffprobe"
	"webmill/internal/testsupport"
)

func probeResult(width, height int, duration string) ffprobe.Result {
	return ffprobe.Result{
		Streams: []ffprobe.Stream{{CodecType: "video", Width: width, Height: height}},
		Format:  ffprobe.Format{Duration: duration},
	}
}

func solidPatch(r, g, b byte, pixels int) []byte {
	return bytes.Repeat([]byte{r, g, b}, pixels)
}

func TestDetectColorUniformFrame(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	detector := NewDetector(cfg, logging.NewNop())

	restoreProbe := SetProbeForTests(func(context.Context, string, string) (ffprobe.Result, error) {
		return probeResult(1920, 1080, "10.0"), nil
	})
	defer restoreProbe()

	restoreExtract := SetExtractForTests(func(_ context.Context, _, _ string, _ float64, p Patch) ([]byte, error) {
		return solidPatch(0x12, 0xAB, 0x34, p.W*p.H), nil
	})
	defer restoreExtract()

	color, err := detector.DetectColor(context.Background(), "/tmp/input.mp4")
	if err != nil {
		t.Fatalf("DetectColor: %v", err)
	}
	if color != "0x12AB34" {
		t.Fatalf("color = %q, want 0x12AB34", color)
	}
}

func TestDetectColorAveragesTruncating(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	detector := NewDetector(cfg, logging.NewNop())

	restoreProbe := SetProbeForTests(func(context.Context, string, string) (ffprobe.Result, error) {
		return probeResult(1920, 1080, "10.0"), nil
	})
	defer restoreProbe()

	// Two pixels per patch: (0,0,0) and (255,255,255). The average is 127.5
	// and must truncate to 127 (0x7F).
	restoreExtract := SetExtractForTests(func(context.Context, string, string, float64, Patch) ([]byte, error) {
		return []byte{0, 0, 0, 255, 255, 255}, nil
	})
	defer restoreExtract()

	color, err := detector.DetectColor(context.Background(), "/tmp/input.mp4")
	if err != nil {
		t.Fatalf("DetectColor: %v", err)
	}
	if color != "0x7F7F7F" {
		t.Fatalf("color = %q, want 0x7F7F7F", color)
	}
}

func TestDetectColorDefaultsWhenNothingSampled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	detector := NewDetector(cfg, logging.NewNop())

	restoreProbe := SetProbeForTests(func(context.Context, string, string) (ffprobe.Result, error) {
		return ffprobe.Result{}, errors.New("probe exploded")
	})
	defer restoreProbe()

	restoreExtract := SetExtractForTests(func(context.Context, string, string, float64, Patch) ([]byte, error) {
		return nil, errors.New("ffmpeg exploded")
	})
	defer restoreExtract()

	color, err := detector.DetectColor(context.Background(), "/tmp/input.mp4")
	if err != nil {
		t.Fatalf("DetectColor: %v", err)
	}
	if color != cfg.Detection.DefaultColor {
		t.Fatalf("color = %q, want default %q", color, cfg.Detection.DefaultColor)
	}
}

func TestDetectColorSkipsFailedPatches(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	detector := NewDetector(cfg, logging.NewNop())

	restoreProbe := SetProbeForTests(func(context.Context, string, string) (ffprobe.Result, error) {
		return probeResult(1920, 1080, "10.0"), nil
	})
	defer restoreProbe()

	var calls int
	restoreExtract := SetExtractForTests(func(context.Context, string, string, float64, Patch) ([]byte, error) {
		calls++
		if calls%2 == 0 {
			return nil, errors.New("flaky corner")
		}
		return solidPatch(0x00, 0xFF, 0x00, 4), nil
	})
	defer restoreExtract()

	color, err := detector.DetectColor(context.Background(), "/tmp/input.mp4")
	if err != nil {
		t.Fatalf("DetectColor: %v", err)
	}
	if color != "0x00FF00" {
		t.Fatalf("color = %q, want 0x00FF00", color)
	}
}

func TestPatchOriginsStayInsideFrame(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	detector := NewDetector(cfg, logging.NewNop())

	// Smaller than margin+patch, smaller than the patch itself, and a frame
	// with normal room: every patch must lie fully inside the frame.
	for _, dims := range [][2]int{{16, 16}, {8, 30}, {30, 8}, {1920, 1080}} {
		width, height := dims[0], dims[1]
		for _, p := range detector.patchOrigins(width, height) {
			if p.X < 0 || p.Y < 0 {
				t.Fatalf("%dx%d: patch origin went negative: %+v", width, height, p)
			}
			if p.W <= 0 || p.H <= 0 {
				t.Fatalf("%dx%d: patch collapsed: %+v", width, height, p)
			}
			if p.X+p.W > width || p.Y+p.H > height {
				t.Fatalf("%dx%d: patch extends past frame: %+v", width, height, p)
			}
		}
	}
}

func TestPatchOriginsFullSizeFrame(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	detector := NewDetector(cfg, logging.NewNop())

	patches := detector.patchOrigins(1920, 1080)
	want := []Patch{
		{X: 10, Y: 10, W: 20, H: 20},
		{X: 1890, Y: 10, W: 20, H: 20},
		{X: 10, Y: 1050, W: 20, H: 20},
		{X: 1890, Y: 1050, W: 20, H: 20},
	}
	for i, p := range patches {
		if Patch(p) != want[i] {
			t.Fatalf("patch %d = %+v, want %+v", i, p, want[i])
		}
	}
}

func TestSampleOffsets(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	detector := NewDetector(cfg, logging.NewNop())

	offsets := detector.sampleOffsets(100)
	want := []float64{25, 50, 75}
	if len(offsets) != len(want) {
		t.Fatalf("offsets = %v, want %v", offsets, want)
	}
	for i := range want {
		if offsets[i] != want[i] {
			t.Fatalf("offsets[%d] = %v, want %v", i, offsets[i], want[i])
		}
	}

	fallback := detector.sampleOffsets(0)
	if len(fallback) != 1 || fallback[0] != 0.5 {
		t.Fatalf("fallback offsets = %v, want [0.5]", fallback)
	}
}
