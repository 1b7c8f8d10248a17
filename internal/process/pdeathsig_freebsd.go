//go:build freebsd

package process

import "syscall"

func setParentDeathSignal(sys *syscall.SysProcAttr) bool {
	sys.Pdeathsig = syscall.SIGKILL
	return true
}
