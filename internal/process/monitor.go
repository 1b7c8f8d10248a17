//go:build unix

package process

import (
	"errors"
	"log/slog"
	"syscall"
	"time"

	"github.com/Paintersrp/procspawn/internal/metrics"
	"github.com/Paintersrp/procspawn/internal/sigmap"
)

// Status returns the retained exit status without asking the kernel. The
// second result is false until the child has been reaped.
func (h *Handle) Status() (ExitStatus, bool) {
	if h.status == nil {
		return ExitStatus{}, false
	}
	return *h.status, true
}

// TryWait reaps the child if it has exited and returns immediately
// otherwise. Once reaped, the retained status is returned on every call.
func (h *Handle) TryWait() (ExitStatus, bool, error) {
	if h.status != nil {
		return *h.status, true, nil
	}
	st, done, err := h.reap(false)
	if err != nil || !done {
		return ExitStatus{}, false, err
	}
	h.record(st)
	return st, true, nil
}

// Wait blocks until the child exits and reaps it.
func (h *Handle) Wait() (ExitStatus, error) {
	if h.status != nil {
		return *h.status, nil
	}
	st, _, err := h.reap(true)
	if err != nil {
		return ExitStatus{}, err
	}
	h.record(st)
	return st, nil
}

// WaitTimeout waits at most timeout for the child to exit and returns
// ErrTimedOut if it is still running. A negative timeout waits forever.
func (h *Handle) WaitTimeout(timeout time.Duration) (ExitStatus, error) {
	if timeout < 0 {
		return h.Wait()
	}
	deadline := time.Now().Add(timeout)
	for {
		st, done, err := h.TryWait()
		if err != nil || done {
			return st, err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			metrics.IncrementWaitTimeout()
			return ExitStatus{}, ErrTimedOut
		}
		if err := h.awaitExit(remaining); err != nil {
			return ExitStatus{}, err
		}
	}
}

// WaitOrKill waits at most timeout, then kills the child and waits for it.
func (h *Handle) WaitOrKill(timeout time.Duration) (ExitStatus, error) {
	st, err := h.WaitTimeout(timeout)
	if !errors.Is(err, ErrTimedOut) {
		return st, err
	}
	h.logger.Debug("wait timed out, killing process", slog.Int("pid", h.pid), slog.Duration("timeout", timeout))
	if err := h.signal(sigmap.Kill, syscall.SIGKILL); err != nil && !errors.Is(err, ErrProcessGone) {
		return ExitStatus{}, err
	}
	return h.Wait()
}

func (h *Handle) record(st ExitStatus) {
	h.status = &st
	metrics.IncrementExit(st.Signaled)
	h.logger.Debug("reaped process", slog.Int("pid", h.pid), slog.String("status", st.String()))
	if err := h.release(); err != nil {
		h.logger.Debug("release process descriptors", slog.Int("pid", h.pid), slog.Any("error", err))
	}
}
