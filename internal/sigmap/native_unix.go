//go:build unix

package sigmap

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

var toNative = map[Signal]syscall.Signal{
	Hangup:       unix.SIGHUP,
	Interrupt:    unix.SIGINT,
	Quit:         unix.SIGQUIT,
	Terminate:    unix.SIGTERM,
	Child:        unix.SIGCHLD,
	Continue:     unix.SIGCONT,
	WindowChange: unix.SIGWINCH,
	TTYIn:        unix.SIGTTIN,
	TTYOut:       unix.SIGTTOU,
	TTYStop:      unix.SIGTSTP,
	Abort:        unix.SIGABRT,
	User1:        unix.SIGUSR1,
	User2:        unix.SIGUSR2,
	BrokenPipe:   unix.SIGPIPE,
	Alarm:        unix.SIGALRM,
	Stop:         unix.SIGSTOP,
	Kill:         unix.SIGKILL,
}

var toNeutral = func() map[syscall.Signal]Signal {
	m := make(map[syscall.Signal]Signal, len(toNative))
	for neutral, native := range toNative {
		m[native] = neutral
	}
	return m
}()

// ToNative maps a neutral signal to the kernel's signal number.
func ToNative(s Signal) (syscall.Signal, error) {
	if native, ok := toNative[s]; ok {
		return native, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrInvalidSignal, int(s))
}

// ToNeutral maps a native signal number back to its neutral identifier.
func ToNeutral(native syscall.Signal) (Signal, error) {
	if s, ok := toNeutral[native]; ok {
		return s, nil
	}
	return None, fmt.Errorf("%w: native %d", ErrInvalidSignal, int(native))
}
