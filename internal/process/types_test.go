//go:build unix

package process

import (
	"errors"
	"strings"
	"syscall"
	"testing"

	"github.com/Paintersrp/procspawn/internal/sigmap"
)

func TestExitStatusString(t *testing.T) {
	tests := []struct {
		status ExitStatus
		want   string
	}{
		{exitedStatus(3), "exit status 3"},
		{signaledStatus(syscall.SIGTERM, false), "signal: terminated (SIGTERM)"},
		{signaledStatus(syscall.SIGSEGV, true), "signal: segmentation fault (core dumped)"},
	}
	for _, tc := range tests {
		if got := tc.status.String(); got != tc.want {
			t.Fatalf("String() = %q, want %q", got, tc.want)
		}
	}
}

func TestSignaledStatusUsesCanonicalCode(t *testing.T) {
	st := signaledStatus(syscall.SIGKILL, false)
	if st.Code != 137 || st.Signal != sigmap.Kill || !st.Signaled || st.Exited() || st.Success() {
		t.Fatalf("SIGKILL status = %+v", st)
	}
	unmapped := signaledStatus(syscall.SIGSEGV, false)
	if unmapped.Signal != sigmap.None || unmapped.NativeSignal != syscall.SIGSEGV {
		t.Fatalf("SIGSEGV status = %+v", unmapped)
	}
}

func TestLaunchErrorUnwraps(t *testing.T) {
	err := error(&LaunchError{Path: "/bin/x", Stage: StageExec, Err: syscall.EACCES})
	if !errors.Is(err, syscall.EACCES) {
		t.Fatalf("errors.Is(EACCES) = false")
	}
	if !strings.Contains(err.Error(), "executing program") || !strings.Contains(err.Error(), "/bin/x") {
		t.Fatalf("Error() = %q", err.Error())
	}
	if got := Stage(200).String(); got != "Stage(200)" {
		t.Fatalf("unknown stage String() = %q", got)
	}
}

func TestCommandDefaults(t *testing.T) {
	spec := Command("/bin/echo", "hi")
	if spec.Stdin != Inherit || spec.Stdout != Inherit || spec.Stderr != Inherit {
		t.Fatalf("Command did not inherit stdio: %+v", spec)
	}
	if len(spec.Args) != 2 || spec.Args[0] != "/bin/echo" || spec.Args[1] != "hi" {
		t.Fatalf("Args = %q", spec.Args)
	}
}

func TestSpawnersListsAvailableChoice(t *testing.T) {
	infos := Spawners()
	if len(infos) == 0 {
		t.Fatalf("no spawners registered")
	}
	name, err := NewLauncher().Spawner()
	if err != nil {
		t.Fatalf("Spawner: %v", err)
	}
	for _, info := range infos {
		if info.Available {
			if info.Name != name {
				t.Fatalf("default spawner %q is not the first available %q", name, info.Name)
			}
			return
		}
	}
	t.Fatalf("no available spawner in %+v", infos)
}
