//go:build unix && !linux && !darwin && !dragonfly && !freebsd && !netbsd && !openbsd

package process

import "time"

const kqueueSupported = false

func (h *Handle) awaitExit(timeout time.Duration) error {
	return h.awaitExitFD(timeout)
}
