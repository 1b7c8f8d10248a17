//go:build unix

package process

import (
	"errors"
	"fmt"
)

var (
	// ErrProcessGone reports that the process no longer exists. Callers are
	// expected to treat it as benign when signalling.
	ErrProcessGone = errors.New("process already exited")

	// ErrTimedOut reports that a bounded wait elapsed with the process
	// still running.
	ErrTimedOut = errors.New("timed out waiting for process")

	// ErrNotSuspended is returned by Resume for a handle that was not
	// started suspended or was already resumed.
	ErrNotSuspended = errors.New("process is not suspended")

	// ErrClosed is returned by operations on a closed handle.
	ErrClosed = errors.New("process handle closed")

	// ErrInvalidSpec reports a Spec rejected before any resource was created.
	ErrInvalidSpec = errors.New("invalid launch spec")
)

// Stage identifies the step at which a launch failed.
type Stage uint32

const (
	StagePrepare Stage = iota + 1
	StagePipe
	StageSpawn
	StageParentDeath
	StageProcessGroup
	StageExitFD
	StageStdio
	StageDescriptors
	StageChdir
	StageSuspend
	StageExec
	StageBootstrap
)

// stageSuspended is written by a bootstrap that reached its suspension
// point. It never surfaces in a LaunchError.
const stageSuspended Stage = 0xff

func (s Stage) String() string {
	switch s {
	case StagePrepare:
		return "preparing launch"
	case StagePipe:
		return "creating pipes"
	case StageSpawn:
		return "creating child process"
	case StageParentDeath:
		return "arranging parent death signal"
	case StageProcessGroup:
		return "setting process group"
	case StageExitFD:
		return "installing exit notification descriptor"
	case StageStdio:
		return "redirecting standard streams"
	case StageDescriptors:
		return "arranging inherited descriptors"
	case StageChdir:
		return "changing directory"
	case StageSuspend:
		return "waiting for resume"
	case StageExec:
		return "executing program"
	case StageBootstrap:
		return "setting up child process"
	default:
		return fmt.Sprintf("Stage(%d)", uint32(s))
	}
}

// LaunchError is returned by Launch. Err carries the OS error the failing
// step produced, so errors.Is(err, syscall.ENOENT) works through it.
type LaunchError struct {
	Path  string
	Stage Stage
	Err   error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s: failed while %s: %v", e.Path, e.Stage, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}
