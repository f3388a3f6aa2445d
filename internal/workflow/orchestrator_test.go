package workflow

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"webmill/internal/encoding"
	"webmill/internal/jobs"
	"webmill/internal/logging"
	"webmill/internal/testsupport"
)

type fakeEncoder struct {
	err     error
	lastReq encoding.Request
}

func (f *fakeEncoder) Encode(_ context.Context, req encoding.Request, progress func(encoding.ProgressUpdate)) error {
	f.lastReq = req
	if f.err != nil {
		return f.err
	}
	if err := os.WriteFile(req.OutputPath, []byte("webm"), 0o644); err != nil {
		return err
	}
	if progress != nil {
		progress(encoding.ProgressUpdate{Done: true})
	}
	return nil
}

type fakeDetector struct {
	color string
	err   error
	calls int
}

func (f *fakeDetector) DetectColor(context.Context, string) (string, error) {
	f.calls++
	return f.color, f.err
}

func newTestOrchestrator(t *testing.T, enc encoding.Client, det colorDetector) (*Orchestrator, *jobs.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	return NewWithDependencies(cfg, store, logging.NewNop(), enc, det), store
}

func TestSubmitCompletesJob(t *testing.T) {
	enc := &fakeEncoder{}
	orch, store := newTestOrchestrator(t, enc, &fakeDetector{})
	ctx := context.Background()

	record, err := orch.Submit(ctx, SubmitRequest{
		Source:  strings.NewReader("video bytes"),
		Options: jobs.Options{Quality: 30, AudioBitrate: "128k"},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if record.Status != jobs.StatusProcessing || record.Progress != 5 {
		t.Fatalf("unexpected initial record: %+v", record)
	}
	orch.Wait()

	final, err := store.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if final.Status != jobs.StatusComplete {
		t.Fatalf("status = %q, want complete (error: %q)", final.Status, final.ErrorMessage)
	}
	if final.Progress != 100 {
		t.Fatalf("progress = %d, want 100", final.Progress)
	}
	if final.ResultPath == "" || !strings.HasSuffix(final.ResultPath, "output_"+record.ID+".webm") {
		t.Fatalf("unexpected result path %q", final.ResultPath)
	}
	if _, err := os.Stat(final.ResultPath); err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
}

func TestSubmitRemovesInputAfterProcessing(t *testing.T) {
	orch, _ := newTestOrchestrator(t, &fakeEncoder{}, &fakeDetector{})

	record, err := orch.Submit(context.Background(), SubmitRequest{Source: strings.NewReader("x")})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	orch.Wait()

	if _, err := os.Stat(orch.inputPath(record.ID)); !os.IsNotExist(err) {
		t.Fatalf("input blob should be removed, stat err = %v", err)
	}
}

func TestSubmitHonorsIDOverride(t *testing.T) {
	orch, store := newTestOrchestrator(t, &fakeEncoder{}, &fakeDetector{})
	ctx := context.Background()

	record, err := orch.Submit(ctx, SubmitRequest{ID: "custom-id", Source: strings.NewReader("x")})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if record.ID != "custom-id" {
		t.Fatalf("id = %q, want custom-id", record.ID)
	}
	orch.Wait()

	// Resubmitting the same identifier is rejected while the record exists.
	if _, err := orch.Submit(ctx, SubmitRequest{ID: "custom-id", Source: strings.NewReader("x")}); err == nil {
		t.Fatal("expected duplicate id rejection")
	}

	if err := store.Remove(ctx, "custom-id"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := orch.Submit(ctx, SubmitRequest{ID: "custom-id", Source: strings.NewReader("x")}); err != nil {
		t.Fatalf("resubmit after removal: %v", err)
	}
	orch.Wait()
}

func TestSubmitRejectsNilSource(t *testing.T) {
	orch, _ := newTestOrchestrator(t, &fakeEncoder{}, &fakeDetector{})
	if _, err := orch.Submit(context.Background(), SubmitRequest{}); err == nil {
		t.Fatal("expected error for nil source")
	}
}

func TestEncodeFailureMarksJobFailed(t *testing.T) {
	enc := &fakeEncoder{err: errors.New("Unknown encoder 'libvpx-vp9'")}
	orch, store := newTestOrchestrator(t, enc, &fakeDetector{})
	ctx := context.Background()

	record, err := orch.Submit(ctx, SubmitRequest{Source: strings.NewReader("x")})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	orch.Wait()

	final, _ := store.GetByID(ctx, record.ID)
	if final.Status != jobs.StatusFailed {
		t.Fatalf("status = %q, want failed", final.Status)
	}
	if !strings.Contains(final.ErrorMessage, "Unknown encoder") {
		t.Fatalf("error message should carry encoder detail, got %q", final.ErrorMessage)
	}
	if final.ResultPath != "" {
		t.Fatalf("failed job should have no result path, got %q", final.ResultPath)
	}
}

func TestDetectionStoresColor(t *testing.T) {
	det := &fakeDetector{color: "0x1A2B3C"}
	orch, store := newTestOrchestrator(t, &fakeEncoder{}, det)
	ctx := context.Background()

	record, err := orch.Submit(ctx, SubmitRequest{
		Source:  strings.NewReader("x"),
		Options: jobs.Options{DetectBackground: true},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	orch.Wait()

	final, _ := store.GetByID(ctx, record.ID)
	if det.calls != 1 {
		t.Fatalf("detector calls = %d, want 1", det.calls)
	}
	if final.DetectedColor != "0x1A2B3C" {
		t.Fatalf("detected color = %q, want 0x1A2B3C", final.DetectedColor)
	}
	if final.Status != jobs.StatusComplete {
		t.Fatalf("status = %q, want complete", final.Status)
	}
}

func TestDetectionSkippedByDefault(t *testing.T) {
	det := &fakeDetector{color: "0x000000"}
	orch, store := newTestOrchestrator(t, &fakeEncoder{}, det)
	ctx := context.Background()

	record, err := orch.Submit(ctx, SubmitRequest{Source: strings.NewReader("x")})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	orch.Wait()

	if det.calls != 0 {
		t.Fatalf("detector calls = %d, want 0", det.calls)
	}
	final, _ := store.GetByID(ctx, record.ID)
	if final.DetectedColor != "" {
		t.Fatalf("detected color should be empty, got %q", final.DetectedColor)
	}
}

func TestDetectionFailureDoesNotFailJob(t *testing.T) {
	det := &fakeDetector{err: errors.New("sampler exploded")}
	orch, store := newTestOrchestrator(t, &fakeEncoder{}, det)
	ctx := context.Background()

	record, err := orch.Submit(ctx, SubmitRequest{
		Source:  strings.NewReader("x"),
		Options: jobs.Options{DetectBackground: true},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	orch.Wait()

	final, _ := store.GetByID(ctx, record.ID)
	if final.Status != jobs.StatusComplete {
		t.Fatalf("status = %q, want complete despite detection failure", final.Status)
	}
	if final.DetectedColor != "" {
		t.Fatalf("detected color should be empty, got %q", final.DetectedColor)
	}
}

func TestSubmitNormalizesOptions(t *testing.T) {
	enc := &fakeEncoder{}
	orch, _ := newTestOrchestrator(t, enc, &fakeDetector{})

	_, err := orch.Submit(context.Background(), SubmitRequest{
		Source:  strings.NewReader("x"),
		Options: jobs.Options{Quality: 999},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	orch.Wait()

	if enc.lastReq.Quality != 63 {
		t.Fatalf("quality = %d, want clamp to 63", enc.lastReq.Quality)
	}
	if enc.lastReq.AudioBitrate != "128k" {
		t.Fatalf("audio bitrate = %q, want default 128k", enc.lastReq.AudioBitrate)
	}
}
