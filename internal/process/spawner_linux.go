//go:build linux

package process

import (
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"os"
	"runtime"
	"slices"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/Paintersrp/procspawn/internal/pipe"
)

const (
	spawnerClone3 = "clone3-pidfd"
	spawnerClone  = "clone"
)

func init() {
	registerSpawner(spawnerClone3,
		func(c Capabilities) bool { return c.PidFD },
		func(Capabilities) spawner { return &cloneSpawner{clone3: true} })
	registerSpawner(spawnerClone, nil,
		func(Capabilities) spawner { return &cloneSpawner{} })
}

// cloneSpawner runs the raw bootstrap in a child created by clone3 with a
// process descriptor, or by plain clone.
type cloneSpawner struct {
	clone3 bool
	// clone3Blocked is set once a seccomp filter answers clone3 with ENOSYS.
	clone3Blocked atomic.Bool
}

func (s *cloneSpawner) name() string {
	return spawnerName(s.clone3)
}

func spawnerName(clone3 bool) string {
	if clone3 {
		return spawnerClone3
	}
	return spawnerClone
}

func (s *cloneSpawner) spawn(p *plan) (spawned, error) {
	if p.killOnParentDeath {
		var child spawned
		var err error
		onLaunchThread(func() { child, err = s.spawnChild(p) })
		return child, err
	}
	return s.spawnChild(p)
}

func (s *cloneSpawner) spawnChild(p *plan) (spawned, error) {
	c, err := newChildArgs(p)
	if err != nil {
		return spawned{}, &LaunchError{Path: p.path, Stage: StagePrepare, Err: err}
	}

	errPipe, err := pipe.New(0)
	if err != nil {
		return spawned{}, &LaunchError{Path: p.path, Stage: StagePipe, Err: err}
	}
	defer errPipe.Close()
	if err := raiseFD(&errPipe.W); err != nil {
		return spawned{}, &LaunchError{Path: p.path, Stage: StagePipe, Err: err}
	}
	c.errW = errPipe.W
	c.skip = append(c.skip, errPipe.W)
	slices.Sort(c.skip)

	c.clone3 = s.clone3 && !s.clone3Blocked.Load()

	syscall.ForkLock.Lock()
	pid, pidfd, errno := forkBootstrap(c)
	if errno == unix.ENOSYS && c.clone3 {
		s.clone3Blocked.Store(true)
		p.logger.Debug("clone3 rejected, falling back to clone", slog.String("path", p.path))
		c.clone3 = false
		pid, pidfd, errno = forkBootstrap(c)
	}
	syscall.ForkLock.Unlock()
	runtime.KeepAlive(c)

	if errno != 0 {
		op := "clone"
		if c.clone3 {
			op = "clone3"
		}
		return spawned{}, &LaunchError{Path: p.path, Stage: StageSpawn, Err: os.NewSyscallError(op, errno)}
	}
	if pidfd < 0 && p.caps.PidFD {
		pidfd = openPidFD(pid, p.logger)
	}

	errPipe.CloseWrite()
	rec, n, err := readHandshake(errPipe.R)
	switch {
	case err != nil:
		reapFailed(pid, pidfd)
		return spawned{}, &LaunchError{Path: p.path, Stage: StageBootstrap, Err: err}
	case n == 0:
		return spawned{pid: pid, pidfd: pidfd, via: spawnerName(c.clone3)}, nil
	case n < handshakeSize:
		reapFailed(pid, pidfd)
		return spawned{}, &LaunchError{Path: p.path, Stage: StageBootstrap, Err: io.ErrUnexpectedEOF}
	case Stage(rec.stage) == stageSuspended:
		return spawned{pid: pid, pidfd: pidfd, via: spawnerName(c.clone3)}, nil
	default:
		reapFailed(pid, pidfd)
		err := error(syscall.Errno(rec.errno))
		if rec.errno == 0 {
			err = errors.New("child bootstrap failed without an error code")
		}
		return spawned{}, &LaunchError{Path: p.path, Stage: Stage(rec.stage), Err: err}
	}
}

func newChildArgs(p *plan) (*childArgs, error) {
	argv0, err := syscall.BytePtrFromString(p.path)
	if err != nil {
		return nil, err
	}
	argv, err := syscall.SlicePtrFromStrings(p.argv)
	if err != nil {
		return nil, err
	}
	envv, err := syscall.SlicePtrFromStrings(p.env)
	if err != nil {
		return nil, err
	}
	var dir *byte
	if p.dir != "" {
		if dir, err = syscall.BytePtrFromString(p.dir); err != nil {
			return nil, err
		}
	}

	c := &childArgs{
		argv0:      argv0,
		argv:       argv,
		envv:       envv,
		dir:        dir,
		stdio:      p.stdio,
		exitW:      p.exitW,
		errW:       -1,
		resumeR:    p.resumeR,
		keep:       p.keep,
		closeRange: p.caps.CloseRange || p.suspended,
		rangeFlags: unix.CLOSE_RANGE_CLOEXEC,
		pdeathsig:  p.killOnParentDeath,
		ppid:       uintptr(os.Getpid()),
		setpgid:    p.setpgid,
		pgid:       p.pgid,
		vfork:      !p.suspended,
	}
	c.skip = slices.Clone(p.keep)
	if p.suspended {
		// A suspended child may sit before exec for a long time. Closing
		// instead of flagging keeps it from pinning other launches' pipes.
		c.rangeFlags = 0
		c.skip = append(c.skip, p.resumeR)
	}
	return c, nil
}

func readHandshake(fd int) (handshake, int, error) {
	var buf [handshakeSize]byte
	n := 0
	for n < len(buf) {
		m, err := unix.Read(fd, buf[n:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return handshake{}, n, os.NewSyscallError("read", err)
		}
		if m == 0 {
			break
		}
		n += m
	}
	return handshake{
		stage: binary.NativeEndian.Uint32(buf[0:4]),
		errno: binary.NativeEndian.Uint32(buf[4:8]),
	}, n, nil
}

// openPidFD opens a process descriptor for a child created by plain clone.
// The child cannot be reaped by anyone else yet, so the pid still names it.
func openPidFD(pid int, logger *slog.Logger) int {
	fd, err := unix.PidfdOpen(pid, 0)
	if err != nil {
		logger.Debug("pidfd_open failed, waiting on the exit descriptor",
			slog.Int("pid", pid), slog.Any("error", err))
		return -1
	}
	return fd
}

// reapFailed collects a child whose bootstrap failed so Launch never leaves
// a zombie behind.
func reapFailed(pid, pidfd int) {
	h := &Handle{pid: pid, pidfd: pidfd, exitFD: -1, resumeFD: -1}
	h.reap(true)
	h.release()
}
