// Package sigmap translates between the platform-neutral signal numbering
// exposed by procspawn and the native signal numbers of the running kernel.
//
// The neutral values follow the numbering used by managed callers: the
// common job-control signals are small negative numbers and SIGKILL is
// passed as 9. Both directions of the table are total over the supported
// set and unknown input always yields ErrInvalidSignal.
package sigmap

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Signal is a platform-neutral signal identifier.
type Signal int

const (
	// None is the zero value. It never maps to a native signal.
	None Signal = 0

	Hangup       Signal = -1
	Interrupt    Signal = -2
	Quit         Signal = -3
	Terminate    Signal = -4
	Child        Signal = -5
	Continue     Signal = -6
	WindowChange Signal = -7
	TTYIn        Signal = -8
	TTYOut       Signal = -9
	TTYStop      Signal = -10
	Abort        Signal = -11
	User1        Signal = -12
	User2        Signal = -13
	BrokenPipe   Signal = -14
	Alarm        Signal = -15
	Stop         Signal = -16

	// Kill keeps the positive value managed callers already pass for SIGKILL.
	Kill Signal = 9
)

// ErrInvalidSignal reports a signal that has no entry in the mapping table.
var ErrInvalidSignal = errors.New("invalid signal")

var names = map[Signal]string{
	Hangup:       "SIGHUP",
	Interrupt:    "SIGINT",
	Quit:         "SIGQUIT",
	Terminate:    "SIGTERM",
	Child:        "SIGCHLD",
	Continue:     "SIGCONT",
	WindowChange: "SIGWINCH",
	TTYIn:        "SIGTTIN",
	TTYOut:       "SIGTTOU",
	TTYStop:      "SIGTSTP",
	Abort:        "SIGABRT",
	User1:        "SIGUSR1",
	User2:        "SIGUSR2",
	BrokenPipe:   "SIGPIPE",
	Alarm:        "SIGALRM",
	Stop:         "SIGSTOP",
	Kill:         "SIGKILL",
}

var order = []Signal{
	Hangup, Interrupt, Quit, Terminate, Child, Continue, WindowChange,
	TTYIn, TTYOut, TTYStop, Abort, User1, User2, BrokenPipe, Alarm, Stop, Kill,
}

// All returns every supported neutral signal in a stable order.
func All() []Signal {
	return append([]Signal(nil), order...)
}

// Valid reports whether s has an entry in the mapping table.
func (s Signal) Valid() bool {
	_, ok := names[s]
	return ok
}

// String returns the canonical SIGxxx name, or Signal(n) for unknown values.
func (s Signal) String() string {
	if name, ok := names[s]; ok {
		return name
	}
	return fmt.Sprintf("Signal(%d)", int(s))
}

// Parse accepts a signal name with or without the SIG prefix in any case,
// or the decimal neutral value.
func Parse(text string) (Signal, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return None, fmt.Errorf("%w: empty name", ErrInvalidSignal)
	}
	if n, err := strconv.Atoi(trimmed); err == nil {
		sig := Signal(n)
		if !sig.Valid() {
			return None, fmt.Errorf("%w: %d", ErrInvalidSignal, n)
		}
		return sig, nil
	}
	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SIG") {
		upper = "SIG" + upper
	}
	for _, sig := range order {
		if names[sig] == upper {
			return sig, nil
		}
	}
	return None, fmt.Errorf("%w: %q", ErrInvalidSignal, text)
}
