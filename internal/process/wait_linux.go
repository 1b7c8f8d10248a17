//go:build linux

package process

import (
	"os"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

const is64bit = ^uint(0) >> 63

const (
	cldExited = 1
	cldKilled = 2
	cldDumped = 3
)

// childInfo is the SIGCHLD layout of siginfo_t, sized to match unix.Siginfo.
type childInfo struct {
	Signo int32
	// errno and code, in an order that differs on mips.
	pair   [2]int32
	_      [is64bit]int32
	Pid    int32
	Uid    uint32
	Status int32
	_      [128 - (6+is64bit)*4]byte
}

func (i *childInfo) siginfo() *unix.Siginfo {
	return (*unix.Siginfo)(unsafe.Pointer(i))
}

func (i *childInfo) status() ExitStatus {
	switch i.pair[siginfoCodeIndex] {
	case cldKilled:
		return signaledStatus(syscall.Signal(i.Status), false)
	case cldDumped:
		return signaledStatus(syscall.Signal(i.Status), true)
	default:
		return exitedStatus(int(i.Status))
	}
}

// reap collects the child through its process descriptor when it has one.
func (h *Handle) reap(block bool) (ExitStatus, bool, error) {
	if h.pidfd < 0 {
		return reapPid(h.pid, block)
	}
	opts := unix.WEXITED
	if !block {
		opts |= unix.WNOHANG
	}
	var info childInfo
	for {
		err := unix.Waitid(unix.P_PIDFD, h.pidfd, info.siginfo(), opts, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return ExitStatus{}, false, os.NewSyscallError("waitid", err)
		}
		break
	}
	if info.Pid == 0 {
		return ExitStatus{}, false, nil
	}
	return info.status(), true, nil
}

func (h *Handle) awaitExit(timeout time.Duration) error {
	if h.pidfd >= 0 {
		_, err := pollReadable(h.pidfd, timeout)
		return err
	}
	return h.awaitExitFD(timeout)
}
