//go:build unix && !linux && !freebsd

package process

import "syscall"

func setParentDeathSignal(*syscall.SysProcAttr) bool {
	return false
}
