//go:build linux || freebsd || netbsd || openbsd || dragonfly || solaris

package pipe

import (
	"os"

	"golang.org/x/sys/unix"
)

const atomicCloexec = true

func create(flags Flags) (Pair, error) {
	var p [2]int
	mode := unix.O_CLOEXEC
	if flags&bothEnds == bothEnds {
		mode |= unix.O_NONBLOCK
	}
	if err := unix.Pipe2(p[:], mode); err != nil {
		return Pair{}, os.NewSyscallError("pipe2", err)
	}
	return Pair{R: p[0], W: p[1]}, nil
}
