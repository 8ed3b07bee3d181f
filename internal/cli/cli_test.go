package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const demoYAML = `
name: demo
scheduler:
  preemptive: true
  quantum: 2
threads:
  - {name: a, kind: spin, steps: 4}
  - {name: b, kind: fib, n: 10, steps: 2}
  - name: c
    kind: script
    script: 'step < 2 ? "continue" : "exit"'
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()

	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(append([]string{"--log-level", "error"}, args...))

	err := root.Execute()
	return buf.String(), err
}

// field returns the value printed after label, e.g. "Run:".
func field(output, label string) string {
	for _, line := range strings.Split(output, "\n") {
		if strings.HasPrefix(line, label) {
			return strings.TrimSpace(strings.TrimPrefix(line, label))
		}
	}
	return ""
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	wl := writeFile(t, dir, "demo.yaml", demoYAML)

	out, err := runCLI(t, "run", wl)
	if err != nil {
		t.Fatalf("run error: %v\noutput: %s", err, out)
	}
	if got := field(out, "Order:"); got != "0 1 2 0 2" {
		t.Errorf("order = %q, want %q", got, "0 1 2 0 2")
	}
	if got := field(out, "State:"); got != "COMPLETED" {
		t.Errorf("state = %q", got)
	}
	if !strings.HasPrefix(field(out, "Run:"), "run_") {
		t.Errorf("missing run id in output: %s", out)
	}
}

func TestRunCommand_Overrides(t *testing.T) {
	dir := t.TempDir()
	wl := writeFile(t, dir, "demo.yaml", demoYAML)

	out, err := runCLI(t, "run", wl, "--preemptive=false")
	if err != nil {
		t.Fatalf("run error: %v\noutput: %s", err, out)
	}
	if got := field(out, "Order:"); got != "0 1 2" {
		t.Errorf("FCFS order = %q", got)
	}
	if got := field(out, "Policy:"); got != "fcfs" {
		t.Errorf("policy = %q", got)
	}
}

func TestRunCommand_Trace(t *testing.T) {
	dir := t.TempDir()
	wl := writeFile(t, dir, "demo.yaml", demoYAML)

	out, err := runCLI(t, "run", wl, "--trace")
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	for _, kind := range []string{"admit", "dispatch", "preempt", "exit", "idle"} {
		if !strings.Contains(out, kind) {
			t.Errorf("trace missing %q event:\n%s", kind, out)
		}
	}
}

func TestRunCommand_BadWorkload(t *testing.T) {
	dir := t.TempDir()
	wl := writeFile(t, dir, "bad.yaml", "name: bad\nthreads: []\n")
	if _, err := runCLI(t, "run", wl); err == nil {
		t.Error("expected validation error")
	}
	if _, err := runCLI(t, "run", filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestRunCommand_StepLimit(t *testing.T) {
	dir := t.TempDir()
	wl := writeFile(t, dir, "long.yaml", "name: long\nthreads:\n  - {name: a, kind: spin, steps: 50}\n")
	cfgPath := writeFile(t, dir, "config.yaml", "scheduler:\n  max_threads: 8\n  max_steps: 5\n")

	out, err := runCLI(t, "--config", cfgPath, "run", wl)
	if err == nil {
		t.Fatalf("expected failure, output: %s", out)
	}
	if got := field(out, "State:"); got != "FAILED" {
		t.Errorf("state = %q", got)
	}
}

func TestSaveRunsAndTrace(t *testing.T) {
	dir := t.TempDir()
	wl := writeFile(t, dir, "demo.yaml", demoYAML)
	db := filepath.Join(dir, "uthread.db")

	out, err := runCLI(t, "--db", db, "run", wl, "--save")
	if err != nil {
		t.Fatalf("run --save: %v\noutput: %s", err, out)
	}
	id := field(out, "Run:")

	out, err = runCLI(t, "--db", db, "runs")
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if !strings.Contains(out, id) {
		t.Errorf("runs output missing %s:\n%s", id, out)
	}

	out, err = runCLI(t, "--db", db, "trace", id)
	if err != nil {
		t.Fatalf("trace: %v", err)
	}
	if got := field(out, "Order:"); got != "0 1 2 0 2" {
		t.Errorf("trace order = %q", got)
	}
	if !strings.Contains(out, "idle") {
		t.Errorf("trace missing events:\n%s", out)
	}

	if _, err := runCLI(t, "--db", db, "trace", "run_missing"); err == nil {
		t.Error("expected not found error")
	}
}

func TestRunsEmpty(t *testing.T) {
	db := filepath.Join(t.TempDir(), "empty.db")
	out, err := runCLI(t, "--db", db, "runs")
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if !strings.Contains(out, "No runs found.") {
		t.Errorf("output = %q", out)
	}
}
