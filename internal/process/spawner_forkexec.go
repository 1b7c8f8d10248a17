//go:build unix && !linux

package process

import (
	"errors"
	"log/slog"
	"runtime"
	"syscall"
)

const spawnerForkExec = "forkexec"

func init() {
	registerSpawner(spawnerForkExec, nil, func(Capabilities) spawner { return forkExecSpawner{} })
}

// forkExecSpawner delegates the bootstrap to syscall.ForkExec, which lays
// descriptors out positionally and reports child failures over its own pipe.
type forkExecSpawner struct{}

func (forkExecSpawner) name() string {
	return spawnerForkExec
}

func (forkExecSpawner) spawn(p *plan) (spawned, error) {
	files := layoutFiles(p)
	path, argv := p.path, p.argv
	if p.suspended {
		slot := resumeSlot(files)
		if slot == len(files) {
			files = append(files, uintptr(p.resumeR))
		} else {
			files[slot] = uintptr(p.resumeR)
		}
		path, argv = trampoline(p.path, p.argv, slot)
	}

	sys := &syscall.SysProcAttr{Setpgid: p.setpgid, Pgid: p.pgid}
	if p.killOnParentDeath && !setParentDeathSignal(sys) {
		p.logger.Debug("kill on parent death has no kernel primitive here",
			slog.String("goos", runtime.GOOS), slog.String("path", p.path))
	}

	pid, err := syscall.ForkExec(path, argv, &syscall.ProcAttr{
		Dir:   p.dir,
		Env:   p.env,
		Files: files,
		Sys:   sys,
	})
	if err != nil {
		stage := StageBootstrap
		if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.ENOMEM) {
			stage = StageSpawn
		}
		return spawned{}, &LaunchError{Path: p.path, Stage: stage, Err: err}
	}
	return spawned{pid: pid, pidfd: -1}, nil
}

// closedSlot asks ForkExec to close the descriptor at that index.
const closedSlot = ^uintptr(0)

// layoutFiles places stdio on 0-2, the exit pipe on ExitNotifyFD and each
// kept descriptor at its own number. Every other slot up to the highest
// kept descriptor is closed in the child.
func layoutFiles(p *plan) []uintptr {
	size := ExitNotifyFD + 1
	if n := len(p.keep); n > 0 && p.keep[n-1] >= size {
		size = p.keep[n-1] + 1
	}
	files := make([]uintptr, size)
	for i := range files {
		files[i] = closedSlot
	}
	for i, fd := range p.stdio {
		if fd == Inherit {
			fd = i
		}
		files[i] = uintptr(fd)
	}
	files[ExitNotifyFD] = uintptr(p.exitW)
	for _, fd := range p.keep {
		files[fd] = uintptr(fd)
	}
	return files
}

// resumeSlot picks the lowest free slot above ExitNotifyFD so the
// trampoline can name it with a single digit whenever possible.
func resumeSlot(files []uintptr) int {
	for i := ExitNotifyFD + 1; i < len(files); i++ {
		if files[i] == closedSlot {
			return i
		}
	}
	return len(files)
}
