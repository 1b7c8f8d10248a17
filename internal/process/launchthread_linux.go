//go:build linux

package process

import (
	"runtime"
	"sync"
)

// The parent-death signal is tied to the thread that forked, not to the
// process. Launches that ask for it run on one locked thread that never
// exits, so a goroutine retiring its own locked thread cannot kill them.
var (
	launchThreadOnce sync.Once
	launchThreadJobs chan func()
)

func onLaunchThread(fn func()) {
	launchThreadOnce.Do(func() {
		launchThreadJobs = make(chan func())
		go func() {
			runtime.LockOSThread()
			for job := range launchThreadJobs {
				job()
			}
		}()
	})
	done := make(chan struct{})
	launchThreadJobs <- func() {
		defer close(done)
		fn()
	}
	<-done
}
