package cliutil

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/Paintersrp/procspawn/internal/logmux"
)

func TestEncodeLogEventInfersLevel(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		expected string
	}{
		{name: "errorToken", message: "[ERROR] failed to start", expected: "error"},
		{name: "warnToken", message: "WARN disk nearly full", expected: "warn"},
		{name: "infoToken", message: "info: listening", expected: "info"},
		{name: "noTokenDefaults", message: "started", expected: "info"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			var errBuf bytes.Buffer

			event := logmux.Event{
				Timestamp: time.Unix(0, 0),
				Message:   tc.message,
			}

			EncodeLogEvent(json.NewEncoder(&out), &errBuf, event)

			if errBuf.Len() != 0 {
				t.Fatalf("unexpected stderr output: %s", errBuf.String())
			}

			var record LogRecord
			if err := json.Unmarshal(out.Bytes(), &record); err != nil {
				t.Fatalf("failed to unmarshal log record: %v", err)
			}

			if record.Level != tc.expected {
				t.Fatalf("expected level %q, got %q", tc.expected, record.Level)
			}
			if record.Source != logmux.StreamSystem {
				t.Fatalf("expected default source %q, got %q", logmux.StreamSystem, record.Source)
			}
		})
	}
}

func TestEncodeLogEventKeepsProvidedLevel(t *testing.T) {
	var out bytes.Buffer
	var errBuf bytes.Buffer

	event := logmux.Event{
		Timestamp: time.Unix(0, 0),
		Process:   "job",
		PID:       12,
		Stream:    logmux.StreamStderr,
		Message:   "custom level",
		Level:     "debug",
	}

	EncodeLogEvent(json.NewEncoder(&out), &errBuf, event)

	if errBuf.Len() != 0 {
		t.Fatalf("unexpected stderr output: %s", errBuf.String())
	}

	var record LogRecord
	if err := json.Unmarshal(out.Bytes(), &record); err != nil {
		t.Fatalf("failed to unmarshal log record: %v", err)
	}

	if record.Level != "debug" {
		t.Fatalf("expected level %q, got %q", "debug", record.Level)
	}
	if record.Process != "job" || record.PID != 12 || record.Source != logmux.StreamStderr {
		t.Fatalf("unexpected record %+v", record)
	}
}

func TestNewLogRecordRedactsSecrets(t *testing.T) {
	event := logmux.Event{
		Timestamp: time.Unix(0, 0),
		Message:   `sending ${API_TOKEN} AWS_SECRET_ACCESS_KEY="super-secret"`,
	}

	record := NewLogRecord(event)

	if strings.Contains(record.Message, "${API_TOKEN}") {
		t.Fatalf("expected template placeholder to be redacted, got %q", record.Message)
	}
	if !strings.Contains(record.Message, "${[redacted]}") {
		t.Fatalf("expected template placeholder marker, got %q", record.Message)
	}
	if strings.Contains(record.Message, "super-secret") {
		t.Fatalf("expected secret value to be redacted, got %q", record.Message)
	}
	if !strings.Contains(record.Message, `AWS_SECRET_ACCESS_KEY="[redacted]"`) {
		t.Fatalf("expected known secret key redacted, got %q", record.Message)
	}
}

func TestWriteLogEvent(t *testing.T) {
	var out bytes.Buffer
	WriteLogEvent(&out, logmux.Event{Stream: logmux.StreamStdout, Message: "hello"})
	WriteLogEvent(&out, logmux.Event{Stream: logmux.StreamSystem, Level: "warn", Message: "dropped=3"})

	want := "[stdout] hello\n[procspawn] WARN: dropped=3\n"
	if out.String() != want {
		t.Fatalf("output = %q, want %q", out.String(), want)
	}
}

func TestRedactEnv(t *testing.T) {
	env := []string{"PATH=/usr/bin", "DB_PASSWORD=hunter2", "GITHUB_TOKEN=abc", "EMPTY_SECRET=", "NOEQUALS"}
	got := RedactEnv(env)
	want := []string{"PATH=/usr/bin", "DB_PASSWORD=[redacted]", "GITHUB_TOKEN=[redacted]", "EMPTY_SECRET=", "NOEQUALS"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("RedactEnv()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if env[1] != "DB_PASSWORD=hunter2" {
		t.Fatalf("RedactEnv modified its input")
	}
	if RedactEnv(nil) != nil {
		t.Fatalf("RedactEnv(nil) should be nil")
	}
}
