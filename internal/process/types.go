//go:build unix

package process

import (
	"fmt"
	"syscall"

	"github.com/Paintersrp/procspawn/internal/sigmap"
)

// ExitNotifyFD is the descriptor slot on which the child holds the write end
// of the exit-notification pipe. Programs launched by this package find it
// open for their whole life and must leave it alone.
const ExitNotifyFD = 3

// Inherit leaves a standard stream slot as the child inherits it.
const Inherit = -1

// Spec describes a program to launch. It is read only for the duration of
// Launch.
type Spec struct {
	// Path is the program to execute. It is not searched in PATH and a
	// relative path is resolved after the working directory change.
	Path string

	// Args is the full argument vector including argv[0]. Empty means
	// []string{Path}.
	Args []string

	// Env is the environment passed to the program. Nil inherits a snapshot
	// of the launching process's environment taken when Launch is called.
	Env []string

	// Stdin, Stdout and Stderr are descriptors installed on slots 0, 1 and 2,
	// or Inherit.
	Stdin  int
	Stdout int
	Stderr int

	// Dir is the working directory of the child. Empty keeps the parent's.
	Dir string

	// KillOnParentDeath asks the kernel to terminate the child when the
	// parent dies. On Linux the kernel watches the forking thread, so such
	// launches are made from a dedicated thread that lives as long as the
	// process. Best effort on kernels without a primitive.
	KillOnParentDeath bool

	// StartSuspended holds the child before exec until Handle.Resume.
	StartSuspended bool

	// NewProcessGroup places the child in a new process group it leads.
	NewProcessGroup bool

	// ProcessGroup joins an existing process group when positive.
	ProcessGroup int

	// KeepFDs lists descriptors that stay open at their own number across
	// exec. Every entry must be greater than ExitNotifyFD.
	KeepFDs []int
}

// Command returns a Spec for path with argv[0] set to path and all three
// standard streams inherited.
func Command(path string, args ...string) Spec {
	return Spec{
		Path:   path,
		Args:   append([]string{path}, args...),
		Stdin:  Inherit,
		Stdout: Inherit,
		Stderr: Inherit,
	}
}

// ExitStatus is the final status of a reaped process.
type ExitStatus struct {
	// Code is the exit code, or 128 plus the native signal number when the
	// process was terminated by a signal.
	Code int

	// Signaled reports a termination by signal.
	Signaled bool

	// Signal is the neutral identifier of the terminating signal, or
	// sigmap.None when the native signal has no neutral mapping.
	Signal sigmap.Signal

	// NativeSignal is the kernel's number for the terminating signal.
	NativeSignal syscall.Signal

	// CoreDumped reports that the kernel wrote a core file.
	CoreDumped bool
}

func exitedStatus(code int) ExitStatus {
	return ExitStatus{Code: code}
}

func signaledStatus(native syscall.Signal, core bool) ExitStatus {
	neutral, err := sigmap.ToNeutral(native)
	if err != nil {
		neutral = sigmap.None
	}
	return ExitStatus{
		Code:         128 + int(native),
		Signaled:     true,
		Signal:       neutral,
		NativeSignal: native,
		CoreDumped:   core,
	}
}

// Exited reports a normal exit.
func (s ExitStatus) Exited() bool {
	return !s.Signaled
}

// Success reports a normal exit with code 0.
func (s ExitStatus) Success() bool {
	return !s.Signaled && s.Code == 0
}

func (s ExitStatus) String() string {
	if !s.Signaled {
		return fmt.Sprintf("exit status %d", s.Code)
	}
	desc := "signal: " + s.NativeSignal.String()
	if s.Signal != sigmap.None {
		desc += " (" + s.Signal.String() + ")"
	}
	if s.CoreDumped {
		desc += " (core dumped)"
	}
	return desc
}
