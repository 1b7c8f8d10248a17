package cliutil

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/Paintersrp/procspawn/internal/logmux"
)

// LogRecord represents a structured line of child output ready for JSON
// encoding.
type LogRecord struct {
	Timestamp time.Time `json:"ts"`
	Process   string    `json:"process"`
	PID       int       `json:"pid"`
	Level     string    `json:"level"`
	Message   string    `json:"msg"`
	Source    string    `json:"source"`
}

// NewLogRecord converts a mux event into a structured log record with secrets
// masked.
func NewLogRecord(event logmux.Event) LogRecord {
	level := event.Level
	if level == "" {
		if inferred := inferLogLevel(event.Message); inferred != "" {
			level = inferred
		} else {
			level = "info"
		}
	}
	source := event.Stream
	if source == "" {
		source = logmux.StreamSystem
	}
	return LogRecord{
		Timestamp: event.Timestamp,
		Process:   event.Process,
		PID:       event.PID,
		Level:     level,
		Message:   RedactSecrets(event.Message),
		Source:    source,
	}
}

var levelTokenPattern = regexp.MustCompile(`(?i)\b(error|warn|info)\b`)

func inferLogLevel(message string) string {
	matches := levelTokenPattern.FindStringSubmatch(message)
	if len(matches) < 2 {
		return ""
	}
	switch strings.ToLower(matches[1]) {
	case "error":
		return "error"
	case "warn":
		return "warn"
	case "info":
		return "info"
	default:
		return ""
	}
}

// EncodeLogEvent encodes a log event to JSON, reporting errors to stderr if needed.
func EncodeLogEvent(enc *json.Encoder, stderr io.Writer, event logmux.Event) {
	if enc == nil {
		return
	}
	record := NewLogRecord(event)
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	if err := enc.Encode(&record); err != nil {
		fmt.Fprintf(stderr, "error: encode log: %v\n", err)
	}
}

// WriteLogEvent writes a log event as a prefixed text line. Output lines are
// passed through verbatim; only synthesized lines carry their level.
func WriteLogEvent(w io.Writer, event logmux.Event) {
	switch event.Stream {
	case logmux.StreamSystem:
		fmt.Fprintf(w, "[%s] %s: %s\n", event.Stream, strings.ToUpper(event.Level), event.Message)
	default:
		fmt.Fprintf(w, "[%s] %s\n", event.Stream, event.Message)
	}
}
