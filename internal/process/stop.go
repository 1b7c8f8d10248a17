//go:build unix

package process

import (
	"errors"
	"log/slog"
	"syscall"
	"time"

	"github.com/Paintersrp/procspawn/internal/sigmap"
)

// Stop asks the child to terminate with SIGTERM, waits up to grace for it to
// exit and then kills it. A child leading its own process group is
// signalled as a group so its descendants go down with it.
func (h *Handle) Stop(grace time.Duration) (ExitStatus, error) {
	if st, ok := h.Status(); ok {
		return st, nil
	}
	if err := h.deliver(sigmap.Terminate, syscall.SIGTERM); err != nil && !errors.Is(err, ErrProcessGone) {
		return ExitStatus{}, err
	}
	st, err := h.WaitTimeout(grace)
	if !errors.Is(err, ErrTimedOut) {
		return st, err
	}
	h.logger.Debug("grace period elapsed, killing process", slog.Int("pid", h.pid), slog.Duration("grace", grace))
	if err := h.deliver(sigmap.Kill, syscall.SIGKILL); err != nil && !errors.Is(err, ErrProcessGone) {
		return ExitStatus{}, err
	}
	return h.Wait()
}

func (h *Handle) deliver(sig sigmap.Signal, native syscall.Signal) error {
	if h.pgid > 0 && h.pgid == h.pid {
		return h.SignalGroup(sig)
	}
	return h.signal(sig, native)
}
