// Package process launches child processes, monitors their liveness, delivers
// signals to them and reaps their exit status exactly once.
//
// A launch creates two pipes before the child exists. The error pipe carries
// a fixed-size {stage, errno} record from the child bootstrap back to the
// parent; reading end-of-file means the child reached exec. The exit pipe's
// write end is installed by the bootstrap on ExitNotifyFD and stays open for
// the whole life of the program, so its read end becomes readable at exit and
// can be polled by callers that run their own event loop.
//
// On Linux the child is created with clone3(CLONE_PIDFD) when the kernel
// supports it, which yields a process descriptor that every later wait and
// signal goes through, immune to pid reuse. When clone3 is unavailable the
// plain clone path is used and liveness falls back to the exit pipe and pid
// based waits. Other unix kernels go through syscall.ForkExec and monitor
// exits with kqueue where available.
//
// A Handle is owned by a single caller. Waits, signals and Close on the same
// Handle must be serialized by that caller; the first reap records the
// ExitStatus on the Handle and every later query returns it without asking
// the kernel again.
package process
