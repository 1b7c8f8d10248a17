//go:build unix && !linux

package process

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// Only Linux hands out process descriptors.
func pidfdSendSignal(int, syscall.Signal) error {
	return unix.ENOSYS
}
