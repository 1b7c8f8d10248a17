//go:build unix

package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sys/unix"

	"github.com/Paintersrp/procspawn/internal/pipe"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
}

func executeRoot(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		return 0
	}
	var exitErr *exitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected exit error, got %v", err)
	}
	return exitErr.code
}

func TestRunPropagatesExitCode(t *testing.T) {
	requireShell(t)
	_, _, err := executeRoot(t, "run", "/bin/sh", "-c", "exit 3")
	if got := exitCode(t, err); got != 3 {
		t.Fatalf("exit code = %d, want 3", got)
	}
}

func TestRunRelaysPipedOutput(t *testing.T) {
	requireShell(t)
	stdout, _, err := executeRoot(t, "run", "--stdout", "pipe", "--stderr", "pipe", "--",
		"/bin/sh", "-c", "echo hello; echo oops >&2")
	if err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if !strings.Contains(stdout, "[stdout] hello\n") {
		t.Fatalf("stdout missing relayed line: %q", stdout)
	}
	if !strings.Contains(stdout, "[stderr] oops\n") {
		t.Fatalf("stdout missing relayed stderr line: %q", stdout)
	}
}

func TestRunJSONOutputAndReport(t *testing.T) {
	requireShell(t)
	stdout, _, err := executeRoot(t, "run", "--stdout", "pipe", "--output", "json", "--report", "json", "--",
		"/bin/sh", "-c", "echo API_KEY=abc123")
	if err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	dec := json.NewDecoder(strings.NewReader(stdout))
	var line struct {
		Process string `json:"process"`
		Message string `json:"msg"`
		Source  string `json:"source"`
	}
	if err := dec.Decode(&line); err != nil {
		t.Fatalf("decode log line: %v (output %q)", err, stdout)
	}
	if line.Source != "stdout" || line.Process != "sh" {
		t.Fatalf("unexpected log line: %+v", line)
	}
	if strings.Contains(line.Message, "abc123") {
		t.Fatalf("secret leaked into log line: %q", line.Message)
	}

	var report runReport
	if err := dec.Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.PID <= 0 || report.ExitCode != 0 || report.Signaled || report.Spawner == "" {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestRunTimeoutKillsChild(t *testing.T) {
	requireShell(t)
	reportPath := filepath.Join(t.TempDir(), "report.msgpack")
	_, _, err := executeRoot(t, "run", "--timeout", "100ms", "--kill-on-timeout",
		"--report", "msgpack", "--report-file", reportPath, "--", "/bin/sh", "-c", "exec sleep 10")
	if got := exitCode(t, err); got != 137 {
		t.Fatalf("exit code = %d, want 137", got)
	}

	data, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var report runReport
	if err := msgpack.Unmarshal(data, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if !report.TimedOut || !report.Signaled || report.Signal != "SIGKILL" || report.ExitCode != 137 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestRunLaunchFailureExitCode(t *testing.T) {
	stdout, _, err := executeRoot(t, "run", "--report", "json", "--", "/nonexistent/procspawn-missing")
	code := exitCode(t, err)
	if runtime.GOOS == "linux" && code != 127 {
		t.Fatalf("exit code = %d, want 127", code)
	}
	if code == 0 {
		t.Fatalf("expected failure exit code")
	}
	var report runReport
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("decode report: %v (output %q)", err, stdout)
	}
	if report.Failure == nil || report.Failure.Stage == "" {
		t.Fatalf("report missing failure: %+v", report)
	}
}

func TestRunWritesFileStreams(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "logs", "out.log")
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(out, []byte("first\n"), 0o644); err != nil {
		t.Fatalf("seed output: %v", err)
	}
	_, _, err := executeRoot(t, "run", "--stdout", "append:"+out, "--stdin", "devnull", "--",
		"/bin/sh", "-c", "cat; echo second")
	if err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(data) != "first\nsecond\n" {
		t.Fatalf("unexpected output file: %q", data)
	}
}

func TestRunProfileWithSuspension(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	profile := filepath.Join(dir, "profile.yaml")
	body := `version: "1"
path: /usr/bin/env
args: [env]
env:
  GREETING: from-profile
stdout: pipe
startSuspended: true
resumeAfter: 20ms
`
	if err := os.WriteFile(profile, []byte(body), 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}
	stdout, _, err := executeRoot(t, "run", "--profile", profile)
	if err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if !strings.Contains(stdout, "[stdout] GREETING=from-profile") {
		t.Fatalf("unexpected output: %q", stdout)
	}
}

func TestRunDryRunRedactsSecrets(t *testing.T) {
	stdout, _, err := executeRoot(t, "run", "--dry-run", "--no-inherit-env",
		"-e", "DB_PASSWORD=hunter2", "-e", "MODE=fast", "--", "/bin/true")
	if err != nil {
		t.Fatalf("dry run returned error: %v", err)
	}
	if strings.Contains(stdout, "hunter2") {
		t.Fatalf("dry run leaked secret: %q", stdout)
	}
	for _, want := range []string{"path: /bin/true", "DB_PASSWORD=[redacted]", "MODE=fast", "spawner: "} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("dry run output missing %q: %q", want, stdout)
		}
	}
}

func TestRunValidatesArguments(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no command", []string{"run"}, "a command or --profile is required"},
		{"bad env", []string{"run", "-e", "NOVALUE", "--", "/bin/true"}, "invalid --env"},
		{"bad stream", []string{"run", "--stdout", "socket", "--", "/bin/true"}, "--stdout"},
		{"stdin pipe", []string{"run", "--stdin", "pipe", "--", "/bin/true"}, "stdin"},
		{"bad report", []string{"run", "--report", "xml", "--", "/bin/true"}, "report format"},
		{"resume without suspend", []string{"run", "--resume-after", "1s", "--", "/bin/true"}, "resumeAfter"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := executeRoot(t, tc.args...)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestRunTimeoutStopsGracefully(t *testing.T) {
	requireShell(t)
	_, _, err := executeRoot(t, "run", "--timeout", "200ms", "--kill-on-timeout", "--stop-grace", "5s", "--",
		"/bin/sh", "-c", "trap 'exit 5' TERM; while :; do sleep 0.05; done")
	if got := exitCode(t, err); got != 5 {
		t.Fatalf("exit code = %d, want 5", got)
	}
}

func TestRunRelaysLargeOutputWithoutLoss(t *testing.T) {
	seq, err := exec.LookPath("seq")
	if err != nil {
		t.Skip("seq not available")
	}
	const lines = 200000
	stdout, _, err := executeRoot(t, "run", "--stdout", "pipe", "--buffer", "4", "--", seq, "1", strconv.Itoa(lines))
	if err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if strings.Contains(stdout, "dropped=") {
		t.Fatalf("output reports dropped lines")
	}
	got := strings.Split(strings.TrimSuffix(stdout, "\n"), "\n")
	if len(got) != lines {
		t.Fatalf("relayed %d lines, want %d", len(got), lines)
	}
	if got[0] != "[stdout] 1" || got[lines-1] != "[stdout] "+strconv.Itoa(lines) {
		t.Fatalf("unexpected first/last lines %q / %q", got[0], got[lines-1])
	}
}

func TestRunLifecycleEvents(t *testing.T) {
	requireShell(t)
	stdout, _, err := executeRoot(t, "run", "--lifecycle", "--stdout", "pipe", "--suspended", "--",
		"/bin/sh", "-c", "echo hi; exit 2")
	if got := exitCode(t, err); got != 2 {
		t.Fatalf("exit code = %d, want 2", got)
	}
	for _, want := range []string{
		"[procspawn] INFO: launched pid=",
		"[procspawn] INFO: resumed",
		"[stdout] hi",
		"[procspawn] INFO: exited exit status 2",
	} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("output missing %q: %q", want, stdout)
		}
	}
	if strings.Index(stdout, "launched") > strings.Index(stdout, "exited") {
		t.Fatalf("launch event after exit event: %q", stdout)
	}
}

func TestRunLifecycleReportsTimeout(t *testing.T) {
	requireShell(t)
	stdout, _, err := executeRoot(t, "run", "--lifecycle", "--timeout", "100ms", "--kill-on-timeout", "--",
		"/bin/sh", "-c", "exec sleep 10")
	if got := exitCode(t, err); got != 137 {
		t.Fatalf("exit code = %d, want 137", got)
	}
	if !strings.Contains(stdout, "[procspawn] WARN: timeout after 100ms") {
		t.Fatalf("output missing timeout event: %q", stdout)
	}
}

func TestExitFDClosedOnlyAtEOF(t *testing.T) {
	p, err := pipe.New(0)
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer p.Close()

	if _, err := unix.Write(p.W, []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if exitFDClosed(p.R) {
		t.Fatalf("descriptor with pending data reported closed")
	}
	p.CloseWrite()
	if !exitFDClosed(p.R) {
		t.Fatalf("descriptor at end-of-file not reported closed")
	}
}
