//go:build unix

package process

import (
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/Paintersrp/procspawn/internal/pipe"
)

// forEachSpawner runs fn once per spawner this kernel supports.
func forEachSpawner(t *testing.T, fn func(t *testing.T, l *Launcher)) {
	t.Helper()
	ran := false
	for _, info := range Spawners() {
		if !info.Available {
			continue
		}
		ran = true
		t.Run(info.Name, func(t *testing.T) {
			fn(t, NewLauncher(WithSpawner(info.Name)))
		})
	}
	if !ran {
		t.Fatalf("no spawner available")
	}
}

func shell(script string) Spec {
	return Command("/bin/sh", "-c", script)
}

func mustLaunch(t *testing.T, l *Launcher, spec Spec) *Handle {
	t.Helper()
	h, err := l.Launch(spec)
	if err != nil {
		t.Fatalf("launch %v: %v", spec.Args, err)
	}
	t.Cleanup(func() {
		if _, err := h.WaitOrKill(0); err != nil {
			t.Logf("cleanup wait: %v", err)
		}
		h.Close()
	})
	return h
}

func mustWait(t *testing.T, h *Handle) ExitStatus {
	t.Helper()
	st, err := h.WaitTimeout(10 * time.Second)
	if err != nil {
		t.Fatalf("wait pid %d: %v", h.Pid(), err)
	}
	return st
}

// outputPipe returns a pipe whose write end is meant for the child. The
// parent's copy of the write end is closed by the returned function.
func outputPipe(t *testing.T, flags pipe.Flags) (*pipe.Pair, func()) {
	t.Helper()
	p, err := pipe.New(flags)
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return &p, func() { p.CloseWrite() }
}

// readAll drains fd until end-of-file, waiting on poll when it would block.
func readAll(t *testing.T, fd int) string {
	t.Helper()
	var sb strings.Builder
	buf := make([]byte, 4096)
	deadline := time.Now().Add(10 * time.Second)
	for {
		n, err := unix.Read(fd, buf)
		switch {
		case n > 0:
			sb.Write(buf[:n])
			continue
		case err == nil:
			return sb.String()
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			if time.Now().After(deadline) {
				t.Fatalf("read timed out with %q", sb.String())
			}
			if _, err := pollReadable(fd, 100*time.Millisecond); err != nil {
				t.Fatalf("poll: %v", err)
			}
		default:
			t.Fatalf("read: %v", os.NewSyscallError("read", err))
		}
	}
}

func assertNoZombie(t *testing.T) {
	t.Helper()
	var ws unix.WaitStatus
	pid, err := unix.Wait4(-1, &ws, unix.WNOHANG, nil)
	if pid > 0 {
		t.Fatalf("found unreaped child %d", pid)
	}
	if err != nil && !errors.Is(err, unix.ECHILD) {
		t.Fatalf("wait4(-1): %v", err)
	}
}
