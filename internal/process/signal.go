//go:build unix

package process

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/Paintersrp/procspawn/internal/metrics"
	"github.com/Paintersrp/procspawn/internal/sigmap"
)

// ErrNoProcessGroup is returned by SignalGroup for a child that was not
// placed in a process group of its own.
var ErrNoProcessGroup = errors.New("process has no process group")

// Signal delivers sig to the child. An unmapped signal fails with
// sigmap.ErrInvalidSignal before any syscall. A child that has already been
// reaped, or no longer exists, yields ErrProcessGone.
func (h *Handle) Signal(sig sigmap.Signal) error {
	native, err := sigmap.ToNative(sig)
	if err != nil {
		return err
	}
	return h.signal(sig, native)
}

// SignalGroup delivers sig to every process in the child's process group.
func (h *Handle) SignalGroup(sig sigmap.Signal) error {
	native, err := sigmap.ToNative(sig)
	if err != nil {
		return err
	}
	if h.pgid <= 0 {
		return ErrNoProcessGroup
	}
	return h.signalResult(sig, "kill", unix.Kill(-h.pgid, native))
}

func (h *Handle) signal(sig sigmap.Signal, native syscall.Signal) error {
	// The pid may already belong to someone else.
	if h.status != nil {
		metrics.IncrementSignal(sig.String(), "gone")
		return ErrProcessGone
	}
	if h.pidfd >= 0 {
		return h.signalResult(sig, "pidfd_send_signal", pidfdSendSignal(h.pidfd, native))
	}
	return h.signalResult(sig, "kill", unix.Kill(h.pid, native))
}

func (h *Handle) signalResult(sig sigmap.Signal, op string, err error) error {
	switch {
	case err == nil:
		metrics.IncrementSignal(sig.String(), "delivered")
		h.logger.Debug("signalled process", slog.Int("pid", h.pid), slog.String("signal", sig.String()))
		return nil
	case errors.Is(err, unix.ESRCH):
		metrics.IncrementSignal(sig.String(), "gone")
		return fmt.Errorf("%w: %w", ErrProcessGone, os.NewSyscallError(op, err))
	default:
		metrics.IncrementSignal(sig.String(), "error")
		return os.NewSyscallError(op, err)
	}
}
