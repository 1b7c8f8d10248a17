//go:build unix

package process

import (
	"sync"

	"github.com/Paintersrp/procspawn/internal/pipe"
)

// Capabilities records what the running kernel offers the launcher. It is
// probed once per process.
type Capabilities struct {
	// PidFD reports clone3 with CLONE_PIDFD, waitid(P_PIDFD) and
	// pidfd_send_signal.
	PidFD bool `json:"pidfd" msgpack:"pidfd"`
	// CloseRange reports close_range with CLOSE_RANGE_CLOEXEC.
	CloseRange bool `json:"closeRange" msgpack:"closeRange"`
	// AtomicPipe reports pipes created close-on-exec atomically.
	AtomicPipe bool `json:"atomicPipe" msgpack:"atomicPipe"`
	// Kqueue reports EVFILT_PROC exit notification.
	Kqueue bool `json:"kqueue" msgpack:"kqueue"`
	// ParentDeathSignal reports a kernel primitive for kill-on-parent-death.
	ParentDeathSignal bool `json:"parentDeathSignal" msgpack:"parentDeathSignal"`
}

var probeOnce = sync.OnceValue(func() Capabilities {
	caps := probeCapabilities()
	caps.AtomicPipe = pipe.Atomic()
	return caps
})

// ProbeCapabilities returns the capabilities of the running kernel.
func ProbeCapabilities() Capabilities {
	return probeOnce()
}
