//go:build unix && !(linux || freebsd || netbsd || openbsd || dragonfly || solaris)

package pipe

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

const atomicCloexec = false

func create(_ Flags) (Pair, error) {
	var p [2]int

	syscall.ForkLock.RLock()
	defer syscall.ForkLock.RUnlock()

	if err := unix.Pipe(p[:]); err != nil {
		return Pair{}, os.NewSyscallError("pipe", err)
	}
	pair := Pair{R: p[0], W: p[1]}
	for _, fd := range p {
		if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, unix.FD_CLOEXEC); err != nil {
			pair.Close()
			return Pair{}, os.NewSyscallError("fcntl", err)
		}
	}
	return pair, nil
}
