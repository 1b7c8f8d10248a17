//go:build unix && !linux

package process

import "runtime"

func probeCapabilities() Capabilities {
	return Capabilities{
		Kqueue:            kqueueSupported,
		ParentDeathSignal: runtime.GOOS == "freebsd",
	}
}
