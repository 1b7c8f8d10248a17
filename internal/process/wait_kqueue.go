//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package process

import (
	"errors"
	"log/slog"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

const kqueueSupported = true

// awaitExit waits for EVFILT_PROC NOTE_EXIT on the child. A child that is
// already a zombie cannot be registered; that surfaces as ESRCH and the next
// reap collects it.
func (h *Handle) awaitExit(timeout time.Duration) error {
	if !h.noKqueue {
		err := awaitKqueue(h.pid, timeout)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, unix.ESRCH):
			h.sleepPoll(timeout)
			return nil
		}
		h.noKqueue = true
		h.logger.Debug("kqueue unavailable, falling back to exit descriptor",
			slog.Int("pid", h.pid), slog.Any("error", err))
	}
	return h.awaitExitFD(timeout)
}

func awaitKqueue(pid int, timeout time.Duration) error {
	kq, err := unix.Kqueue()
	if err != nil {
		return os.NewSyscallError("kqueue", err)
	}
	defer unix.Close(kq)
	unix.CloseOnExec(kq)

	var change unix.Kevent_t
	unix.SetKevent(&change, pid, unix.EVFILT_PROC, unix.EV_ADD|unix.EV_ONESHOT)
	change.Fflags = unix.NOTE_EXIT
	changes := []unix.Kevent_t{change}
	events := make([]unix.Kevent_t, 1)

	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		var ts *unix.Timespec
		if timeout >= 0 {
			t := unix.NsecToTimespec(timeout.Nanoseconds())
			ts = &t
		}
		n, err := unix.Kevent(kq, changes, events, ts)
		if err == unix.EINTR {
			if timeout >= 0 {
				if timeout = time.Until(deadline); timeout <= 0 {
					return nil
				}
			}
			continue
		}
		if err != nil {
			return os.NewSyscallError("kevent", err)
		}
		if n > 0 && events[0].Flags&unix.EV_ERROR != 0 && events[0].Data != 0 {
			return os.NewSyscallError("kevent", syscall.Errno(events[0].Data))
		}
		return nil
	}
}
