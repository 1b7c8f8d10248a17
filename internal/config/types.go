package config

import (
	"fmt"
	"strings"
	"time"
)

// Duration wraps time.Duration for YAML unmarshalling.
type Duration struct {
	time.Duration
	explicit bool
}

// UnmarshalText parses a textual duration, accepting empty strings.
func (d *Duration) UnmarshalText(text []byte) error {
	d.explicit = true
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = dur
	return nil
}

// MarshalText renders the duration using time.Duration formatting.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// IsSet reports whether the duration was explicitly provided or non-zero.
func (d Duration) IsSet() bool {
	return d.explicit || d.Duration != 0
}

// StreamKind selects what a standard stream of the child is connected to.
type StreamKind string

const (
	StreamInherit StreamKind = "inherit"
	StreamDevNull StreamKind = "devnull"
	StreamPipe    StreamKind = "pipe"
	StreamFile    StreamKind = "file"
	StreamAppend  StreamKind = "append"
)

// Stream is a standard stream target: inherit, devnull (or "null"), pipe,
// file:<path> or append:<path>.
type Stream struct {
	Kind StreamKind
	Path string
}

// UnmarshalText parses a stream target.
func (s *Stream) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if kind, path, ok := strings.Cut(raw, ":"); ok {
		switch StreamKind(kind) {
		case StreamFile, StreamAppend:
			if path == "" {
				return fmt.Errorf("stream %q: missing path", raw)
			}
			s.Kind, s.Path = StreamKind(kind), path
			return nil
		}
		return fmt.Errorf("unknown stream target %q", raw)
	}
	switch raw {
	case "", string(StreamInherit):
		s.Kind = StreamInherit
	case string(StreamDevNull), "null":
		s.Kind = StreamDevNull
	case string(StreamPipe):
		s.Kind = StreamPipe
	default:
		return fmt.Errorf("unknown stream target %q", raw)
	}
	s.Path = ""
	return nil
}

// MarshalText renders the stream target in its profile form.
func (s Stream) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s Stream) String() string {
	switch s.Kind {
	case StreamFile, StreamAppend:
		return string(s.Kind) + ":" + s.Path
	case "":
		return string(StreamInherit)
	default:
		return string(s.Kind)
	}
}

// Profile mirrors the launch profile document structure.
type Profile struct {
	Version     string            `yaml:"version"`
	Name        string            `yaml:"name"`
	Path        string            `yaml:"path"`
	Args        []string          `yaml:"args"`
	Env         map[string]string `yaml:"env"`
	EnvFromFile string            `yaml:"envFromFile"`
	InheritEnv  *bool             `yaml:"inheritEnv"`
	Dir         string            `yaml:"dir"`

	Stdin  Stream `yaml:"stdin"`
	Stdout Stream `yaml:"stdout"`
	Stderr Stream `yaml:"stderr"`

	KillOnParentDeath bool     `yaml:"killOnParentDeath"`
	StartSuspended    bool     `yaml:"startSuspended"`
	ResumeAfter       Duration `yaml:"resumeAfter"`
	NewProcessGroup   bool     `yaml:"newProcessGroup"`
	KeepFDs           []int    `yaml:"keepFds"`

	Timeout       Duration `yaml:"timeout"`
	KillOnTimeout bool     `yaml:"killOnTimeout"`
	// StopGrace is how long a timed-out child gets to exit after SIGTERM
	// before it is killed. Zero kills immediately.
	StopGrace Duration `yaml:"stopGrace"`

	// Source is the absolute path of the profile file, empty for profiles
	// parsed from a reader.
	Source string `yaml:"-"`
	// FileEnv holds the variables loaded from EnvFromFile.
	FileEnv map[string]string `yaml:"-"`
}

// ApplyDefaults fills fields that were omitted from the document.
func (p *Profile) ApplyDefaults() {
	if p.Version == "" {
		p.Version = "1"
	}
	if len(p.Args) == 0 && p.Path != "" {
		p.Args = []string{p.Path}
	}
	if p.InheritEnv == nil {
		inherit := true
		p.InheritEnv = &inherit
	}
	for _, s := range []*Stream{&p.Stdin, &p.Stdout, &p.Stderr} {
		if s.Kind == "" {
			s.Kind = StreamInherit
		}
	}
}

// Validate reports the first semantic problem with the profile.
func (p *Profile) Validate() error {
	if p.Version != "1" {
		return fmt.Errorf("%s: unsupported version %q", fieldPath("version"), p.Version)
	}
	if strings.TrimSpace(p.Path) == "" {
		return fmt.Errorf("%s: is required", fieldPath("path"))
	}
	for i, fd := range p.KeepFDs {
		if fd <= 3 {
			return fmt.Errorf("%s: descriptor %d must be greater than 3", fieldPath(fmt.Sprintf("keepFds[%d]", i)), fd)
		}
	}
	switch p.Stdin.Kind {
	case StreamPipe, StreamAppend:
		return fmt.Errorf("%s: %s is not supported for stdin", fieldPath("stdin"), p.Stdin.Kind)
	}
	if p.Timeout.Duration < 0 {
		return fmt.Errorf("%s: must be non-negative", fieldPath("timeout"))
	}
	if p.KillOnTimeout && p.Timeout.Duration == 0 {
		return fmt.Errorf("%s: requires timeout", fieldPath("killOnTimeout"))
	}
	if p.StopGrace.Duration < 0 {
		return fmt.Errorf("%s: must be non-negative", fieldPath("stopGrace"))
	}
	if p.StopGrace.Duration > 0 && !p.KillOnTimeout {
		return fmt.Errorf("%s: requires killOnTimeout", fieldPath("stopGrace"))
	}
	if p.ResumeAfter.IsSet() {
		if !p.StartSuspended {
			return fmt.Errorf("%s: requires startSuspended", fieldPath("resumeAfter"))
		}
		if p.ResumeAfter.Duration < 0 {
			return fmt.Errorf("%s: must be non-negative", fieldPath("resumeAfter"))
		}
	}
	for key := range p.Env {
		if key == "" || strings.ContainsAny(key, "=\x00") {
			return fmt.Errorf("%s: invalid variable name %q", fieldPath("env"), key)
		}
	}
	return nil
}

func fieldPath(parts ...string) string {
	return strings.Join(parts, ".")
}
