//go:build linux

package process

import (
	"syscall"

	"golang.org/x/sys/unix"
)

func pidfdSendSignal(pidfd int, sig syscall.Signal) error {
	return unix.PidfdSendSignal(pidfd, sig, nil, 0)
}
