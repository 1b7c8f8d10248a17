//go:build linux

package process

import (
	"runtime"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

//go:linkname beforeFork syscall.runtime_BeforeFork
func beforeFork()

//go:linkname afterFork syscall.runtime_AfterFork
func afterFork()

//go:linkname afterForkInChild syscall.runtime_AfterForkInChild
func afterForkInChild()

// cloneArgs is struct clone_args from linux/sched.h.
type cloneArgs struct {
	flags      uint64
	pidFD      uint64
	childTID   uint64
	parentTID  uint64
	exitSignal uint64
	stack      uint64
	stackSize  uint64
	tls        uint64
	setTID     uint64
	setTIDSize uint64
	cgroup     uint64
}

// handshake is the record a child writes to the error pipe, in native byte
// order. A reader that gets end-of-file instead knows exec succeeded.
type handshake struct {
	stage uint32
	errno uint32
}

const handshakeSize = int(unsafe.Sizeof(handshake{}))

// childArgs carries everything the bootstrap reads after the fork. Every
// pointer and slice is built by the parent; the child only dereferences.
type childArgs struct {
	argv0 *byte
	argv  []*byte
	envv  []*byte
	dir   *byte

	stdio   [3]int
	exitW   int
	errW    int
	resumeR int

	// skip lists, sorted, the descriptors above ExitNotifyFD that the range
	// pass leaves alone. keep is the subset that must survive exec.
	skip       []int
	keep       []int
	closeRange bool
	rangeFlags uintptr

	pdeathsig bool
	ppid      uintptr
	setpgid   bool
	pgid      int

	clone3 bool
	vfork  bool
}

// forkBootstrap creates the child and, in the child, runs the bootstrap up
// to exec. It returns only in the parent. The caller holds
// syscall.ForkLock.
//
// Everything the child touches is declared before the fork so no
// allocation or stack growth happens after it.
//
//go:noinline
//go:norace
//go:nocheckptr
func forkBootstrap(c *childArgs) (pid int, pidfd int, err1 syscall.Errno) {
	var (
		r1       uintptr
		i        int
		fd       int
		lo       int
		stage    Stage
		reported bool
		rec      handshake
		buf      [1]byte
		stdio    [3]int
		pfd      int32 = -1
		args     cloneArgs
		flags    uintptr
	)

	stdio = c.stdio
	if c.vfork {
		flags = unix.CLONE_VFORK
	}
	if c.clone3 {
		args.flags = uint64(flags) | unix.CLONE_PIDFD
		args.pidFD = uint64(uintptr(unsafe.Pointer(&pfd)))
		args.exitSignal = uint64(syscall.SIGCHLD)
	}

	beforeFork()
	switch {
	case c.clone3:
		r1, _, err1 = syscall.RawSyscall(unix.SYS_CLONE3, uintptr(unsafe.Pointer(&args)), unsafe.Sizeof(args), 0)
	case runtime.GOARCH == "s390x":
		r1, _, err1 = syscall.RawSyscall6(unix.SYS_CLONE, 0, flags|uintptr(syscall.SIGCHLD), 0, 0, 0, 0)
	default:
		r1, _, err1 = syscall.RawSyscall6(unix.SYS_CLONE, flags|uintptr(syscall.SIGCHLD), 0, 0, 0, 0, 0)
	}
	if err1 != 0 || r1 != 0 {
		afterFork()
		if err1 != 0 {
			return 0, -1, err1
		}
		return int(r1), int(pfd), 0
	}

	// In the child. Restores default dispositions for every signal the
	// runtime handles and unblocks the signal mask.
	afterForkInChild()

	if c.pdeathsig {
		_, _, err1 = syscall.RawSyscall6(unix.SYS_PRCTL, unix.PR_SET_PDEATHSIG, uintptr(syscall.SIGKILL), 0, 0, 0, 0)
		if err1 != 0 {
			stage = StageParentDeath
			goto childerror
		}
		// Reparented before prctl took effect: the parent is already gone.
		r1, _, _ = syscall.RawSyscall(unix.SYS_GETPPID, 0, 0, 0)
		if r1 != c.ppid {
			r1, _, _ = syscall.RawSyscall(unix.SYS_GETPID, 0, 0, 0)
			syscall.RawSyscall(unix.SYS_KILL, r1, uintptr(syscall.SIGKILL), 0)
		}
	}

	if c.setpgid {
		_, _, err1 = syscall.RawSyscall(unix.SYS_SETPGID, 0, uintptr(c.pgid), 0)
		if err1 != 0 {
			stage = StageProcessGroup
			goto childerror
		}
	}

	// Move stdio sources out of the low slots before anything lands there.
	for i = 0; i < len(stdio); i++ {
		fd = stdio[i]
		if fd >= 0 && fd <= ExitNotifyFD && fd != i {
			r1, _, err1 = syscall.RawSyscall(unix.SYS_FCNTL, uintptr(fd), unix.F_DUPFD_CLOEXEC, ExitNotifyFD+1)
			if err1 != 0 {
				stage = StageStdio
				goto childerror
			}
			stdio[i] = int(r1)
		}
	}

	_, _, err1 = syscall.RawSyscall(unix.SYS_DUP3, uintptr(c.exitW), ExitNotifyFD, 0)
	if err1 != 0 {
		stage = StageExitFD
		goto childerror
	}

	for i = 0; i < len(stdio); i++ {
		fd = stdio[i]
		switch {
		case fd < 0:
			continue
		case fd == i:
			_, _, err1 = syscall.RawSyscall(unix.SYS_FCNTL, uintptr(fd), syscall.F_SETFD, 0)
		default:
			_, _, err1 = syscall.RawSyscall(unix.SYS_DUP3, uintptr(fd), uintptr(i), 0)
		}
		if err1 != 0 {
			stage = StageStdio
			goto childerror
		}
	}

	// Errors are ignored: descriptors created by the runtime are
	// close-on-exec already.
	if c.closeRange {
		lo = ExitNotifyFD + 1
		for _, fd = range c.skip {
			if fd > lo {
				syscall.RawSyscall(unix.SYS_CLOSE_RANGE, uintptr(lo), uintptr(fd-1), c.rangeFlags)
			}
			lo = fd + 1
		}
		syscall.RawSyscall(unix.SYS_CLOSE_RANGE, uintptr(lo), uintptr(^uint32(0)), c.rangeFlags)
	}
	for _, fd = range c.keep {
		_, _, err1 = syscall.RawSyscall(unix.SYS_FCNTL, uintptr(fd), syscall.F_SETFD, 0)
		if err1 != 0 {
			stage = StageDescriptors
			goto childerror
		}
	}

	if c.dir != nil {
		_, _, err1 = syscall.RawSyscall(unix.SYS_CHDIR, uintptr(unsafe.Pointer(c.dir)), 0, 0)
		if err1 != 0 {
			stage = StageChdir
			goto childerror
		}
	}

	if c.resumeR >= 0 {
		rec = handshake{stage: uint32(stageSuspended)}
		syscall.RawSyscall(unix.SYS_WRITE, uintptr(c.errW), uintptr(unsafe.Pointer(&rec)), unsafe.Sizeof(rec))
		syscall.RawSyscall(unix.SYS_CLOSE, uintptr(c.errW), 0, 0)
		reported = true
		for {
			r1, _, err1 = syscall.RawSyscall(unix.SYS_READ, uintptr(c.resumeR), uintptr(unsafe.Pointer(&buf[0])), 1)
			if err1 != syscall.EINTR {
				break
			}
		}
		if err1 != 0 || r1 == 0 {
			stage = StageSuspend
			goto childerror
		}
		syscall.RawSyscall(unix.SYS_CLOSE, uintptr(c.resumeR), 0, 0)
	}

	_, _, err1 = syscall.RawSyscall(unix.SYS_EXECVE,
		uintptr(unsafe.Pointer(c.argv0)),
		uintptr(unsafe.Pointer(&c.argv[0])),
		uintptr(unsafe.Pointer(&c.envv[0])))
	stage = StageExec

childerror:
	if !reported {
		rec = handshake{stage: uint32(stage), errno: uint32(err1)}
		syscall.RawSyscall(unix.SYS_WRITE, uintptr(c.errW), uintptr(unsafe.Pointer(&rec)), unsafe.Sizeof(rec))
	}
	for {
		syscall.RawSyscall(unix.SYS_EXIT_GROUP, 127, 0, 0)
	}
}
