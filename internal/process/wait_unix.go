//go:build unix

package process

import (
	"log/slog"
	"math"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

const (
	degradedMinInterval = time.Millisecond
	degradedMaxInterval = 50 * time.Millisecond
)

// reapPid collects the child by pid with wait4.
func reapPid(pid int, block bool) (ExitStatus, bool, error) {
	opts := 0
	if !block {
		opts = unix.WNOHANG
	}
	var ws unix.WaitStatus
	for {
		wpid, err := unix.Wait4(pid, &ws, opts, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return ExitStatus{}, false, os.NewSyscallError("wait4", err)
		}
		if wpid == 0 {
			return ExitStatus{}, false, nil
		}
		break
	}
	switch {
	case ws.Signaled():
		return signaledStatus(ws.Signal(), ws.CoreDump()), true, nil
	default:
		return exitedStatus(ws.ExitStatus()), true, nil
	}
}

// awaitExitFD waits for the exit pipe to turn readable, for at most one
// back-off slice. A descendant holding the pipe open keeps it quiet after the
// child exits, so callers reap between slices. Data the child wrote to it is
// drained; end-of-file while the child lives switches the handle to sleep
// polling.
func (h *Handle) awaitExitFD(timeout time.Duration) error {
	if h.exitFD < 0 || h.exitEOF {
		h.sleepPoll(timeout)
		return nil
	}
	ready, err := pollReadable(h.exitFD, h.nextSlice(timeout))
	if err != nil || !ready {
		return err
	}
	h.drainExitFD()
	return nil
}

func (h *Handle) drainExitFD() {
	var buf [512]byte
	for {
		n, err := unix.Read(h.exitFD, buf[:])
		switch {
		case err == unix.EINTR || n > 0:
			continue
		case err == nil && n == 0:
			h.exitEOF = true
			h.logger.Debug("exit descriptor closed, polling for exit", slog.Int("pid", h.pid))
		}
		return
	}
}

// sleepPoll sleeps for the next back-off interval, bounded by timeout.
func (h *Handle) sleepPoll(timeout time.Duration) {
	time.Sleep(h.nextSlice(timeout))
}

// nextSlice grows the back-off interval and bounds it by timeout. A negative
// timeout is unbounded.
func (h *Handle) nextSlice(timeout time.Duration) time.Duration {
	switch {
	case h.backoff < degradedMinInterval:
		h.backoff = degradedMinInterval
	case h.backoff < degradedMaxInterval:
		h.backoff *= 2
		if h.backoff > degradedMaxInterval {
			h.backoff = degradedMaxInterval
		}
	}
	d := h.backoff
	if timeout >= 0 && timeout < d {
		d = timeout
	}
	return d
}

// pollReadable waits until fd is readable or timeout elapses. A negative
// timeout waits forever.
func pollReadable(fd int, timeout time.Duration) (bool, error) {
	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, pollMillis(timeout))
		if err == unix.EINTR {
			if timeout >= 0 {
				if timeout = time.Until(deadline); timeout <= 0 {
					return false, nil
				}
			}
			continue
		}
		if err != nil {
			return false, os.NewSyscallError("poll", err)
		}
		return n > 0, nil
	}
}

// pollMillis rounds up so a short timeout never turns into a busy poll.
func pollMillis(d time.Duration) int {
	if d < 0 {
		return -1
	}
	ms := (d + time.Millisecond - 1) / time.Millisecond
	if ms > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(ms)
}
