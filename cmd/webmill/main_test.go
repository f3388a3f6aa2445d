package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	path := filepath.Join(base, "webmill.toml")
	content := `
[paths]
inputs_dir = "` + filepath.Join(base, "inputs") + `"
results_dir = "` + filepath.Join(base, "results") + `"
state_dir = "` + filepath.Join(base, "state") + `"
log_dir = "` + filepath.Join(base, "logs") + `"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootShowsHelp(t *testing.T) {
	output, err := runCommand(t, "--config", writeTestConfig(t))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	for _, want := range []string{"serve", "convert", "detect", "jobs", "config"} {
		if !strings.Contains(output, want) {
			t.Fatalf("help output missing %q:\n%s", want, output)
		}
	}
}

func TestConfigShowRendersTOML(t *testing.T) {
	output, err := runCommand(t, "--config", writeTestConfig(t), "config", "show")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(output, "[Encoding]") && !strings.Contains(output, "quality") {
		t.Fatalf("unexpected config output:\n%s", output)
	}
}

func TestJobsEmptyStore(t *testing.T) {
	output, err := runCommand(t, "--config", writeTestConfig(t), "jobs")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(output, "no jobs") {
		t.Fatalf("expected empty listing, got:\n%s", output)
	}
}

func TestJobsRejectsUnknownStatus(t *testing.T) {
	if _, err := runCommand(t, "--config", writeTestConfig(t), "jobs", "--status", "galloping"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestConvertMissingInput(t *testing.T) {
	if _, err := runCommand(t, "--config", writeTestConfig(t), "convert", "/no/such/file.mp4"); err == nil {
		t.Fatal("expected error for missing input")
	}
}
