package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func writeProfile(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "profile.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}
	return path
}

func TestLoadValidProfile(t *testing.T) {
	dir := t.TempDir()
	workdir := filepath.Join(dir, "work")
	if err := os.Mkdir(workdir, 0o755); err != nil {
		t.Fatalf("mkdir workdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "vars.env"), []byte("export TOKEN=${FILE_SECRET}\nSHARED='from-file'\n# comment\nPORT=80 # trailing\n"), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	t.Setenv("FILE_SECRET", "alpha")
	t.Setenv("WORK_DIR", "./work")
	t.Setenv("GREETING", "hello")

	path := writeProfile(t, dir, `version: "1"
name: greeter
path: /bin/echo
args: [echo, "${GREETING}", "${MISSING:-world}"]
env:
  SHARED: inline
  COUNT: 3
envFromFile: vars.env
dir: ${WORK_DIR}
stdout: pipe
stderr: file:logs/err.log
stdin: "null"
startSuspended: true
resumeAfter: 50ms
keepFds: [5]
timeout: 2s
killOnTimeout: true
`)

	profile, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if profile.Source != path {
		t.Fatalf("unexpected source: got %q want %q", profile.Source, path)
	}
	if got, want := profile.Args, []string{"echo", "hello", "world"}; !slices.Equal(got, want) {
		t.Fatalf("unexpected args: got %v want %v", got, want)
	}
	if profile.Dir != workdir {
		t.Fatalf("unexpected dir: got %q want %q", profile.Dir, workdir)
	}
	if profile.Stdout.Kind != StreamPipe {
		t.Fatalf("unexpected stdout: %v", profile.Stdout)
	}
	if profile.Stderr.Kind != StreamFile || profile.Stderr.Path != filepath.Join(dir, "logs", "err.log") {
		t.Fatalf("unexpected stderr: %+v", profile.Stderr)
	}
	if profile.Stdin.Kind != StreamDevNull {
		t.Fatalf("unexpected stdin: %v", profile.Stdin)
	}
	if profile.ResumeAfter.Duration != 50*time.Millisecond {
		t.Fatalf("unexpected resumeAfter: %v", profile.ResumeAfter)
	}
	if profile.Timeout.Duration != 2*time.Second || !profile.KillOnTimeout {
		t.Fatalf("unexpected timeout settings: %v %v", profile.Timeout, profile.KillOnTimeout)
	}
	if got := profile.FileEnv["TOKEN"]; got != "alpha" {
		t.Fatalf("env file TOKEN = %q, want alpha", got)
	}
	if got := profile.FileEnv["PORT"]; got != "80" {
		t.Fatalf("env file PORT = %q, want 80", got)
	}
	if got := profile.Env["COUNT"]; got != "3" {
		t.Fatalf("inline COUNT = %q, want 3", got)
	}
	if profile.InheritEnv == nil || !*profile.InheritEnv {
		t.Fatalf("expected inheritEnv to default to true")
	}
}

func TestParseAppliesDefaults(t *testing.T) {
	profile, err := Parse(strings.NewReader("version: \"1\"\npath: /bin/true\n"), "")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if got, want := profile.Args, []string{"/bin/true"}; !slices.Equal(got, want) {
		t.Fatalf("unexpected default args: %v", got)
	}
	for name, s := range map[string]Stream{"stdin": profile.Stdin, "stdout": profile.Stdout, "stderr": profile.Stderr} {
		if s.Kind != StreamInherit {
			t.Fatalf("%s defaulted to %v, want inherit", name, s)
		}
	}
	if profile.Dir != "" {
		t.Fatalf("expected empty dir, got %q", profile.Dir)
	}
}

func TestParseRejectsSchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"unknown field", "version: \"1\"\npath: /bin/true\nimage: nope\n", "schema validation failed"},
		{"missing path", "version: \"1\"\n", "schema validation failed"},
		{"bad version", "version: \"2\"\npath: /bin/true\n", "version"},
		{"bad stream", "version: \"1\"\npath: /bin/true\nstdout: socket\n", "stdout"},
		{"low keep fd", "version: \"1\"\npath: /bin/true\nkeepFds: [2]\n", "keepFds[0]"},
		{"bad duration", "version: \"1\"\npath: /bin/true\ntimeout: soon\n", "timeout"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tc.doc), "")
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestSchemaErrorNamesProfileFields(t *testing.T) {
	doc := `version: "1"
path: /bin/true
image: nope
stdout: socket
timeout: soon
keepFds: [2, 5, 5]
`
	_, err := Parse(strings.NewReader(doc), "")
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected *SchemaError, got %v", err)
	}
	got := map[string]string{}
	var fields []string
	for _, v := range schemaErr.Violations {
		got[v.Field] = v.Message
		fields = append(fields, v.Field)
	}
	if !slices.IsSorted(fields) {
		t.Fatalf("violations not ordered by field: %q", fields)
	}
	checks := map[string]string{
		"image":      "is not a profile field",
		"stdout":     `"socket" is not a stream target`,
		"timeout":    `"soon" is not a duration`,
		"keepFds[0]": "descriptor 2 is reserved",
		"keepFds":    "more than once",
	}
	for field, want := range checks {
		msg, ok := got[field]
		if !ok {
			t.Fatalf("no violation for %s in %v", field, schemaErr.Violations)
		}
		if !strings.Contains(msg, want) {
			t.Fatalf("%s: message %q does not mention %q", field, msg, want)
		}
	}
}

func TestSchemaErrorReportsMissingFields(t *testing.T) {
	_, err := Parse(strings.NewReader("name: job\n"), "")
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected *SchemaError, got %v", err)
	}
	want := []SchemaViolation{{Field: "path", Message: "is required"}, {Field: "version", Message: "is required"}}
	if !slices.Equal(schemaErr.Violations, want) {
		t.Fatalf("violations = %v, want %v", schemaErr.Violations, want)
	}
}

func TestLoadReportsEnvFileErrors(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.env"), []byte("NOVALUE\n"), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	path := writeProfile(t, dir, "version: \"1\"\npath: /bin/true\nenvFromFile: bad.env\n")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "envFromFile") {
		t.Fatalf("expected envFromFile error, got %v", err)
	}
}

func TestEnvironmentMergeOrder(t *testing.T) {
	inherit := true
	profile := &Profile{
		InheritEnv: &inherit,
		FileEnv:    map[string]string{"A": "file", "B": "file"},
		Env:        map[string]string{"B": "inline", "C": "inline"},
	}
	got := profile.Environment([]string{"A=base", "Z=base", "broken"})
	want := []string{"A=file", "Z=base", "B=inline", "C=inline"}
	if !slices.Equal(got, want) {
		t.Fatalf("Environment() = %v, want %v", got, want)
	}

	inherit = false
	got = profile.Environment([]string{"A=base", "Z=base"})
	want = []string{"A=file", "B=inline", "C=inline"}
	if !slices.Equal(got, want) {
		t.Fatalf("Environment() without inheritance = %v, want %v", got, want)
	}
}

func TestExpandEnvWithDefault(t *testing.T) {
	t.Setenv("SET_VAR", "value")
	t.Setenv("EMPTY_VAR", "")
	tests := map[string]string{
		"${SET_VAR}":              "value",
		"$SET_VAR/x":              "value/x",
		"${EMPTY_VAR:-fallback}":  "fallback",
		"${UNSET_VAR_X:-a b}":     "a b",
		"${UNSET_VAR_X}":          "",
		"prefix-${SET_VAR:-nope}": "prefix-value",
	}
	for in, want := range tests {
		if got := expandEnvWithDefault(in); got != want {
			t.Fatalf("expandEnvWithDefault(%q) = %q, want %q", in, got, want)
		}
	}
}
