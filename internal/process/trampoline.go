//go:build unix && !linux

package process

import (
	"fmt"
	"strings"
)

const trampolineShell = "/bin/sh"

// trampoline wraps a program so it blocks before exec until a line arrives
// on descriptor fd. End-of-file on fd exits 127, as does a failed exec.
func trampoline(path string, argv []string, fd int) (string, []string) {
	script := fmt.Sprintf(`IFS= read -r _ <&%d || exit 127; exec %d<&-; exec "$0" "$@"`, fd, fd)

	// The shell would search PATH for a bare name.
	target := path
	if !strings.Contains(target, "/") {
		target = "./" + target
	}

	args := make([]string, 0, len(argv)+3)
	args = append(args, trampolineShell, "-c", script, target)
	if len(argv) > 1 {
		args = append(args, argv[1:]...)
	}
	return trampolineShell, args
}
