//go:build unix

package process

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/Paintersrp/procspawn/internal/metrics"
	"github.com/Paintersrp/procspawn/internal/pipe"
)

// Launcher starts child processes with a fixed spawner and logger.
type Launcher struct {
	logger      *slog.Logger
	spawnerName string
	environ     func() []string

	once    sync.Once
	spawner spawner
	err     error
}

// LauncherOption customises a Launcher.
type LauncherOption func(*Launcher)

// WithLogger routes launcher and handle diagnostics to logger.
func WithLogger(logger *slog.Logger) LauncherOption {
	return func(l *Launcher) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithSpawner forces a registered spawner by name instead of the best
// available one.
func WithSpawner(name string) LauncherOption {
	return func(l *Launcher) {
		l.spawnerName = name
	}
}

// WithEnviron replaces the source of the environment snapshot used for
// specs with a nil Env.
func WithEnviron(environ func() []string) LauncherOption {
	return func(l *Launcher) {
		if environ != nil {
			l.environ = environ
		}
	}
}

// NewLauncher constructs a Launcher.
func NewLauncher(opts ...LauncherOption) *Launcher {
	l := &Launcher{
		logger:  slog.New(slog.DiscardHandler),
		environ: os.Environ,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var defaultLauncher = sync.OnceValue(func() *Launcher { return NewLauncher() })

// Launch starts spec with the default launcher.
func Launch(spec Spec) (*Handle, error) {
	return defaultLauncher().Launch(spec)
}

// Spawner resolves and returns the name of the spawner this launcher uses.
func (l *Launcher) Spawner() (string, error) {
	s, err := l.resolve()
	if err != nil {
		return "", err
	}
	return s.name(), nil
}

func (l *Launcher) resolve() (spawner, error) {
	l.once.Do(func() {
		l.spawner, l.err = selectSpawner(l.spawnerName, ProbeCapabilities())
	})
	return l.spawner, l.err
}

// plan is a validated Spec plus the descriptors the launcher created for it.
type plan struct {
	path    string
	argv    []string
	env     []string
	dir     string
	stdio   [3]int
	keep    []int
	logger  *slog.Logger
	caps    Capabilities
	exitW   int
	resumeR int

	killOnParentDeath bool
	setpgid           bool
	pgid              int
	suspended         bool
}

// Launch starts spec. On success the child has reached exec, or its
// suspension point when spec.StartSuspended is set. On failure the
// returned error is a *LaunchError and no child or descriptor is left
// behind.
func (l *Launcher) Launch(spec Spec) (*Handle, error) {
	start := time.Now()

	s, err := l.resolve()
	if err != nil {
		return nil, l.fail(&LaunchError{Path: spec.Path, Stage: StagePrepare, Err: err})
	}

	p, err := l.prepare(spec)
	if err != nil {
		return nil, l.fail(&LaunchError{Path: spec.Path, Stage: StagePrepare, Err: err})
	}
	p.caps = ProbeCapabilities()

	exit, err := pipe.New(pipe.NonblockRead)
	if err != nil {
		return nil, l.fail(&LaunchError{Path: spec.Path, Stage: StagePipe, Err: err})
	}
	resume := pipe.Pair{R: -1, W: -1}
	cleanup := func() {
		exit.Close()
		resume.Close()
	}

	if err := raiseFD(&exit.W); err != nil {
		cleanup()
		return nil, l.fail(&LaunchError{Path: spec.Path, Stage: StagePipe, Err: err})
	}
	if spec.StartSuspended {
		if resume, err = pipe.New(0); err != nil {
			cleanup()
			return nil, l.fail(&LaunchError{Path: spec.Path, Stage: StagePipe, Err: err})
		}
		if err := raiseFD(&resume.R); err != nil {
			cleanup()
			return nil, l.fail(&LaunchError{Path: spec.Path, Stage: StagePipe, Err: err})
		}
	}
	p.exitW = exit.W
	p.resumeR = resume.R

	child, err := s.spawn(p)

	// The child owns its ends now, or never got them.
	exit.CloseWrite()
	resume.CloseRead()

	if err != nil {
		cleanup()
		var le *LaunchError
		if !errors.As(err, &le) {
			le = &LaunchError{Path: spec.Path, Stage: StageSpawn, Err: err}
		}
		return nil, l.fail(le)
	}

	h := &Handle{
		pid:      child.pid,
		pidfd:    child.pidfd,
		exitFD:   exit.R,
		resumeFD: resume.W,
		spawner:  s.name(),
		logger:   l.logger,
	}
	if child.via != "" {
		h.spawner = child.via
	}
	switch {
	case spec.NewProcessGroup:
		h.pgid = child.pid
	case spec.ProcessGroup > 0:
		h.pgid = spec.ProcessGroup
	}

	metrics.ObserveLaunch(h.spawner, time.Since(start))
	l.logger.Debug("launched process",
		slog.String("path", spec.Path),
		slog.Int("pid", h.pid),
		slog.Int("pidfd", h.pidfd),
		slog.Int("exit_fd", h.exitFD),
		slog.String("spawner", h.spawner),
		slog.Bool("suspended", spec.StartSuspended),
	)
	return h, nil
}

func (l *Launcher) fail(err *LaunchError) *LaunchError {
	metrics.IncrementLaunchFailure(err.Stage.String())
	l.logger.Debug("launch failed",
		slog.String("path", err.Path),
		slog.String("stage", err.Stage.String()),
		slog.Any("error", err.Err),
	)
	return err
}

func (l *Launcher) prepare(spec Spec) (*plan, error) {
	if spec.Path == "" {
		return nil, fmt.Errorf("%w: path is empty", ErrInvalidSpec)
	}
	if spec.NewProcessGroup && spec.ProcessGroup > 0 {
		return nil, fmt.Errorf("%w: new process group and process group %d are exclusive", ErrInvalidSpec, spec.ProcessGroup)
	}
	if spec.ProcessGroup < 0 {
		return nil, fmt.Errorf("%w: process group %d", ErrInvalidSpec, spec.ProcessGroup)
	}

	p := &plan{
		path:              spec.Path,
		dir:               spec.Dir,
		stdio:             [3]int{spec.Stdin, spec.Stdout, spec.Stderr},
		logger:            l.logger,
		exitW:             -1,
		resumeR:           -1,
		killOnParentDeath: spec.KillOnParentDeath,
		setpgid:           spec.NewProcessGroup || spec.ProcessGroup > 0,
		pgid:              spec.ProcessGroup,
		suspended:         spec.StartSuspended,
	}
	for slot, fd := range p.stdio {
		if fd < Inherit {
			return nil, fmt.Errorf("%w: descriptor %d for slot %d", ErrInvalidSpec, fd, slot)
		}
	}

	p.argv = spec.Args
	if len(p.argv) == 0 {
		p.argv = []string{spec.Path}
	}
	p.env = spec.Env
	if p.env == nil {
		p.env = l.environ()
	}

	if len(spec.KeepFDs) > 0 {
		keep := slices.Clone(spec.KeepFDs)
		slices.Sort(keep)
		keep = slices.Compact(keep)
		for _, fd := range keep {
			if fd <= ExitNotifyFD {
				return nil, fmt.Errorf("%w: kept descriptor %d must be above %d", ErrInvalidSpec, fd, ExitNotifyFD)
			}
			if _, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0); err != nil {
				return nil, fmt.Errorf("%w: kept descriptor %d: %w", ErrInvalidSpec, fd, os.NewSyscallError("fcntl", err))
			}
		}
		p.keep = keep
	}
	return p, nil
}

// raiseFD moves a launcher-owned descriptor above ExitNotifyFD so that the
// child's slot assignments can never land on it.
func raiseFD(fd *int) error {
	if *fd > ExitNotifyFD {
		return nil
	}
	moved, err := unix.FcntlInt(uintptr(*fd), unix.F_DUPFD_CLOEXEC, ExitNotifyFD+1)
	if err != nil {
		return os.NewSyscallError("fcntl", err)
	}
	unix.Close(*fd)
	*fd = moved
	return nil
}
