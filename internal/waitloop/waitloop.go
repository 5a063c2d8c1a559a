// Package waitloop implements the WaitLoop: the waitpid-driven state
// machine that turns kernel status changes into JobTable transitions.
package waitloop

import (
	"errors"
	"log/slog"

	"golang.org/x/sys/unix"

	"github.com/joshuarubin/rsh/internal/job"
	"github.com/joshuarubin/rsh/internal/sigbroker"
)

// Loop drives JobTable transitions from waitpid(2) results.
type Loop struct {
	jobs     *job.Table
	sig      *sigbroker.Broker
	log      *slog.Logger
	lastExit int
}

// New creates a Loop bound to jobs and sig. Every waitpid status transition
// it drains is logged through log, tagged with the affected job's trace ID,
// per the engine's -l diagnostic contract.
func New(jobs *job.Table, sig *sigbroker.Broker, log *slog.Logger) *Loop {
	return &Loop{jobs: jobs, sig: sig, log: log}
}

// LastExitStatus returns the most recently recorded process-wide exit
// status, used by the no-job non-blocking variant.
func (l *Loop) LastExitStatus() int { return l.lastExit }

// WaitForJob blocks, when j is non-nil and Running, until j is no longer
// Running, returning its final return code. When j is nil it performs a
// single non-blocking reap pass and returns the last exit status
// recorded in the process-wide cell.
func (l *Loop) WaitForJob(j *job.Job) int {
	for {
		// Recomputed every iteration: a status change for some other
		// job must not stop us blocking for j, and a job resumed from
		// Stopped (State already Running by the time we're called)
		// must still block.
		block := j != nil && j.State == job.Running

		var ws unix.WaitStatus
		flags := unix.WUNTRACED
		if !block {
			flags |= unix.WNOHANG
		}

		pid, err := unix.Wait4(-1, &ws, flags, nil)

		switch {
		case errors.Is(err, unix.EINTR):
			continue

		case errors.Is(err, unix.ECHILD):
			if j != nil {
				return j.ReturnCode()
			}
			return l.lastExit

		case err != nil:
			if j != nil {
				return j.ReturnCode()
			}
			return l.lastExit

		case pid == 0:
			// StillAlive: nothing ready.
			if !block {
				if j != nil {
					return j.ReturnCode()
				}
				return l.lastExit
			}
			l.sig.ClearSigchld()
			<-l.sig.Wake()
			continue

		default:
			status := job.FromWaitStatus(ws)
			jb, ok := l.jobs.SetProcessStatus(pid, status)
			if !ok {
				continue
			}

			l.log.Info("waitpid status", "trace_id", jb.TraceID, "job_id", jb.ID, "pid", pid, "state", jb.State.String())

			if jb.Changed {
				l.lastExit = jb.ReturnCode()
				jb.Changed = false
			}

			if jb.State == job.Finished {
				l.jobs.DeleteJobByID(jb.ID)
			}

			if j != nil && jb.ID == j.ID && jb.State != job.Running {
				return jb.ReturnCode()
			}
		}
	}
}
