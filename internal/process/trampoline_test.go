//go:build unix && !linux

package process

import (
	"slices"
	"testing"
)

func TestLayoutFiles(t *testing.T) {
	p := &plan{
		stdio: [3]int{Inherit, 9, Inherit},
		exitW: 12,
		keep:  []int{5, 7},
	}
	files := layoutFiles(p)
	want := []uintptr{0, 9, 2, 12, closedSlot, 5, closedSlot, 7}
	if !slices.Equal(files, want) {
		t.Fatalf("layoutFiles = %v, want %v", files, want)
	}
	if got := resumeSlot(files); got != 4 {
		t.Fatalf("resumeSlot = %d, want 4", got)
	}

	dense := layoutFiles(&plan{stdio: [3]int{Inherit, Inherit, Inherit}, exitW: 10, keep: []int{4, 5}})
	if got := resumeSlot(dense); got != len(dense) {
		t.Fatalf("resumeSlot on a dense layout = %d, want %d", got, len(dense))
	}
}

func TestTrampolineArguments(t *testing.T) {
	path, argv := trampoline("prog", []string{"custom-argv0", "a", "b c"}, 4)
	if path != trampolineShell {
		t.Fatalf("path = %q", path)
	}
	want := []string{
		trampolineShell, "-c",
		`IFS= read -r _ <&4 || exit 127; exec 4<&-; exec "$0" "$@"`,
		"./prog", "a", "b c",
	}
	if !slices.Equal(argv, want) {
		t.Fatalf("argv = %q, want %q", argv, want)
	}

	_, argv = trampoline("/bin/echo", []string{"/bin/echo"}, 6)
	if argv[3] != "/bin/echo" || len(argv) != 4 {
		t.Fatalf("argv = %q", argv)
	}
}
