//go:build unix

package process

import (
	"errors"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Handle refers to a launched child. The zero value is not usable; handles
// come from Launch.
type Handle struct {
	pid      int
	pidfd    int
	exitFD   int
	resumeFD int
	pgid     int
	spawner  string
	logger   *slog.Logger

	status   *ExitStatus
	closed   bool
	exitEOF  bool
	noKqueue bool
	backoff  time.Duration
}

// Pid returns the process id. It stays meaningful until the child is reaped.
func (h *Handle) Pid() int {
	return h.pid
}

// PidFD returns the process descriptor, or -1 when the spawner produced
// none or the handle has been released.
func (h *Handle) PidFD() int {
	return h.pidfd
}

// ExitFD returns the read end of the exit-notification pipe, or -1 once the
// handle has been released. It becomes readable when the child exits and may
// be registered with a caller's own poller; TryWait then collects the status.
func (h *Handle) ExitFD() int {
	return h.exitFD
}

// ProcessGroup returns the process group the child was placed in, or 0 when
// it stayed in the launcher's group.
func (h *Handle) ProcessGroup() int {
	return h.pgid
}

// Spawner names the strategy that created the child.
func (h *Handle) Spawner() string {
	return h.spawner
}

// Suspended reports whether the child is still held before exec.
func (h *Handle) Suspended() bool {
	return h.resumeFD >= 0
}

// Resume lets a child started with StartSuspended continue to exec.
func (h *Handle) Resume() error {
	if h.closed {
		return ErrClosed
	}
	if h.resumeFD < 0 {
		return ErrNotSuspended
	}
	var err error
	for {
		_, err = unix.Write(h.resumeFD, []byte{'\n'})
		if err != unix.EINTR {
			break
		}
	}
	unix.Close(h.resumeFD)
	h.resumeFD = -1
	switch {
	case err == nil:
		h.logger.Debug("resumed process", slog.Int("pid", h.pid))
		return nil
	case errors.Is(err, unix.EPIPE):
		return errors.Join(ErrProcessGone, err)
	default:
		return os.NewSyscallError("write", err)
	}
}

// Close releases every descriptor held by the handle. A child that is still
// suspended sees end-of-file on its resume pipe and exits with code 127.
// Close does not reap: waits and signals keep working through the pid until
// the child is collected. Close is idempotent.
func (h *Handle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	return h.release()
}

// release closes the descriptors once the pid is no longer needed.
func (h *Handle) release() error {
	var errs []error
	for _, fd := range []*int{&h.pidfd, &h.exitFD, &h.resumeFD} {
		if *fd < 0 {
			continue
		}
		if err := unix.Close(*fd); err != nil {
			errs = append(errs, os.NewSyscallError("close", err))
		}
		*fd = -1
	}
	return errors.Join(errs...)
}
