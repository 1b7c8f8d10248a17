//go:build unix && !linux

package process

func (h *Handle) reap(block bool) (ExitStatus, bool, error) {
	return reapPid(h.pid, block)
}
