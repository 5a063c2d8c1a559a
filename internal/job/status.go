// Package job implements the JobTable: the registry of jobs and their
// processes, pid-to-job bookkeeping, and completion reaping described by
// the engine's design. It holds no locks of its own: it is touched from
// the main shell goroutine, and from package sigbroker's SIGCHLD reap
// only while that holds the interrupts-off lock.
package job

import "golang.org/x/sys/unix"

// Status mirrors the subset of a wait(2) status the engine cares about:
// whether the process exited, was killed by a signal, or was stopped.
type Status struct {
	Exited     bool
	ExitCode   int
	Signaled   bool
	Signal     unix.Signal
	Stopped    bool
	StopSignal unix.Signal
}

// Terminal reports whether the process has left the system (exited or was
// signaled). A Stopped process is not terminal: it may still resume.
func (s Status) Terminal() bool {
	return s.Exited || s.Signaled
}

// FromWaitStatus converts a raw unix.WaitStatus, as returned by
// unix.Wait4, into a Status.
func FromWaitStatus(ws unix.WaitStatus) Status {
	switch {
	case ws.Exited():
		return Status{Exited: true, ExitCode: ws.ExitStatus()}
	case ws.Signaled():
		return Status{Signaled: true, Signal: ws.Signal()}
	case ws.Stopped():
		return Status{Stopped: true, StopSignal: ws.StopSignal()}
	default:
		return Status{}
	}
}

// ReturnCode implements the "128 + signo" convention for signal-induced
// termination exit codes, and plain exit codes otherwise.
func (s Status) ReturnCode() int {
	switch {
	case s.Exited:
		return s.ExitCode
	case s.Signaled:
		return 128 + int(s.Signal)
	default:
		return 0
	}
}
