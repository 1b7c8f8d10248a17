//go:build linux

package process

import (
	"errors"
	"math"
	"os"

	"golang.org/x/sys/unix"
)

func probeCapabilities() Capabilities {
	return Capabilities{
		PidFD:             probePidFD(),
		CloseRange:        probeCloseRange(),
		ParentDeathSignal: true,
	}
}

// probePidFD checks every pidfd operation the launcher relies on against a
// descriptor for the current process. waitid on a pidfd that is not our
// child must fail with ECHILD; older kernels reject P_PIDFD with EINVAL.
func probePidFD() bool {
	fd, err := unix.PidfdOpen(os.Getpid(), 0)
	if err != nil {
		return false
	}
	defer unix.Close(fd)

	for {
		err = unix.Waitid(unix.P_PIDFD, fd, nil, unix.WEXITED|unix.WNOHANG, nil)
		if err != unix.EINTR {
			break
		}
	}
	if !errors.Is(err, unix.ECHILD) {
		return false
	}
	return unix.PidfdSendSignal(fd, 0, nil, 0) == nil
}

// probeCloseRange asks for a range that contains no open descriptor, which
// succeeds only when both the syscall and the CLOEXEC flag are known.
func probeCloseRange() bool {
	return unix.CloseRange(math.MaxUint32, math.MaxUint32, unix.CLOSE_RANGE_CLOEXEC) == nil
}
