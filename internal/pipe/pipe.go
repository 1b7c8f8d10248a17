//go:build unix

// Package pipe creates close-on-exec pipe pairs for the launcher.
//
// Where the kernel offers pipe2 the descriptors are created with O_CLOEXEC
// atomically, so a concurrent fork in another thread can never inherit them.
// Elsewhere the pipe is created plainly and flagged afterwards while holding
// syscall.ForkLock for reading, which keeps the window closed against forks
// made through the syscall package.
package pipe

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// Flags selects optional behaviour for a new pipe.
type Flags uint8

const (
	// NonblockRead marks the read end O_NONBLOCK.
	NonblockRead Flags = 1 << iota
	// NonblockWrite marks the write end O_NONBLOCK.
	NonblockWrite
)

// Pair holds the two ends of a pipe. A closed end is -1.
type Pair struct {
	R int
	W int
}

// New creates a unidirectional close-on-exec pipe.
func New(flags Flags) (Pair, error) {
	p, err := create(flags)
	if err != nil {
		return Pair{R: -1, W: -1}, err
	}
	if err := p.applyNonblock(flags); err != nil {
		p.Close()
		return Pair{R: -1, W: -1}, err
	}
	return p, nil
}

// Atomic reports whether pipes are created with close-on-exec set atomically.
func Atomic() bool {
	return atomicCloexec
}

func (p *Pair) applyNonblock(flags Flags) error {
	if flags&(NonblockRead|NonblockWrite) == 0 || (atomicCloexec && flags&bothEnds == bothEnds) {
		return nil
	}
	if flags&NonblockRead != 0 {
		if err := unix.SetNonblock(p.R, true); err != nil {
			return os.NewSyscallError("fcntl", err)
		}
	}
	if flags&NonblockWrite != 0 {
		if err := unix.SetNonblock(p.W, true); err != nil {
			return os.NewSyscallError("fcntl", err)
		}
	}
	return nil
}

const bothEnds = NonblockRead | NonblockWrite

// CloseRead closes the read end if it is still open.
func (p *Pair) CloseRead() error {
	return closeFD(&p.R)
}

// CloseWrite closes the write end if it is still open.
func (p *Pair) CloseWrite() error {
	return closeFD(&p.W)
}

// Close closes both ends, returning the first error.
func (p *Pair) Close() error {
	return errors.Join(p.CloseRead(), p.CloseWrite())
}

func closeFD(fd *int) error {
	if *fd < 0 {
		return nil
	}
	err := unix.Close(*fd)
	*fd = -1
	if err != nil {
		return os.NewSyscallError("close", err)
	}
	return nil
}
