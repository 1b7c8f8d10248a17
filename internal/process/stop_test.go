//go:build unix

package process

import (
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/Paintersrp/procspawn/internal/pipe"
	"github.com/Paintersrp/procspawn/internal/sigmap"
)

// readLine reads fd until the first newline.
func readLine(t *testing.T, fd int) string {
	t.Helper()
	var sb strings.Builder
	buf := make([]byte, 1)
	deadline := time.Now().Add(10 * time.Second)
	for {
		n, err := unix.Read(fd, buf)
		switch {
		case n > 0:
			if buf[0] == '\n' {
				return sb.String()
			}
			sb.WriteByte(buf[0])
		case err == nil:
			t.Fatalf("unexpected end of output after %q", sb.String())
		case errors.Is(err, unix.EINTR):
		case errors.Is(err, unix.EAGAIN):
			if time.Now().After(deadline) {
				t.Fatalf("read timed out with %q", sb.String())
			}
			if _, err := pollReadable(fd, 100*time.Millisecond); err != nil {
				t.Fatalf("poll: %v", err)
			}
		default:
			t.Fatalf("read: %v", err)
		}
	}
}

func launchReady(t *testing.T, l *Launcher, script string, group bool) *Handle {
	t.Helper()
	out, closeW := outputPipe(t, pipe.NonblockRead)
	spec := shell(script)
	spec.Stdout = out.W
	spec.NewProcessGroup = group
	h := mustLaunch(t, l, spec)
	closeW()
	if line := readLine(t, out.R); line != "ready" {
		t.Fatalf("unexpected readiness line %q", line)
	}
	return h
}

func TestStopHonoursTermHandler(t *testing.T) {
	forEachSpawner(t, func(t *testing.T, l *Launcher) {
		h := launchReady(t, l, "trap 'exit 7' TERM; echo ready; while :; do sleep 0.05; done", false)
		st, err := h.Stop(5 * time.Second)
		if err != nil {
			t.Fatalf("Stop: %v", err)
		}
		if st.Signaled || st.Code != 7 {
			t.Fatalf("status = %v, want exit status 7", st)
		}
	})
}

func TestStopKillsAfterGrace(t *testing.T) {
	forEachSpawner(t, func(t *testing.T, l *Launcher) {
		h := launchReady(t, l, "trap '' TERM; echo ready; while :; do sleep 0.05; done", true)
		started := time.Now()
		st, err := h.Stop(100 * time.Millisecond)
		if err != nil {
			t.Fatalf("Stop: %v", err)
		}
		if !st.Signaled || st.Signal != sigmap.Kill || st.Code != 137 {
			t.Fatalf("status = %v, want SIGKILL", st)
		}
		if elapsed := time.Since(started); elapsed < 100*time.Millisecond {
			t.Fatalf("killed after %v, before the grace period", elapsed)
		}
	})
}

func TestStopAfterReapReturnsStatus(t *testing.T) {
	forEachSpawner(t, func(t *testing.T, l *Launcher) {
		h := mustLaunch(t, l, shell("exit 4"))
		mustWait(t, h)
		st, err := h.Stop(time.Second)
		if err != nil || st.Code != 4 {
			t.Fatalf("Stop after reap = %v, %v", st, err)
		}
	})
}
