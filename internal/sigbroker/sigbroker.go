// Package sigbroker installs the shell's signal dispositions and bridges
// SIGCHLD into the wait loop, per the "Dash-style" matrix: SIGINT and
// SIGTSTP are caught, SIGQUIT/SIGTERM/SIGTTOU are swallowed (the Go
// analogue of ignoring them — see the comment in handle below), SIGCHLD
// drives reaping, and user traps are remembered and invoked.
//
// Go cannot give a single goroutine an async-signal-safe handler the way
// C's sigaction can: os/signal.Notify delivers signals to an ordinary
// goroutine. This package's single dispatch goroutine is the practical
// stand-in for that handler and is held to the same discipline describe
// by the engine design: it only touches atomics directly, and reaches
// into the JobTable only through the constrained, lock-free-by-contract
// SIGCHLD reap path. Because that path could otherwise race with the
// main goroutine's own WaitLoop-driven mutation of the JobTable, it uses
// a non-blocking TryLock against the same mutex interrupts_off/on use —
// mirroring WNOHANG's "don't wait, just skip" contract instead of
// actually blocking.
package sigbroker

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/joshuarubin/rsh/internal/job"
)

// Broker installs signal dispositions and maintains the pending-signal
// state the engine's WaitLoop and prompt loop consult.
type Broker struct {
	jobs *job.Table
	out  *os.File
	log  *slog.Logger

	gotSigchld    atomic.Bool
	sigintPending atomic.Bool
	pendingSignal atomic.Int32 // unix.Signal value; 0 means none

	mu      sync.Mutex
	offDepth int // touched only by the main shell goroutine

	trapsMu sync.Mutex
	traps   map[unix.Signal]string

	sigCh chan os.Signal
	stop  chan struct{}

	wake chan struct{} // buffered 1; signals the main goroutine that got_sigchld changed
}

// caught is every signal the broker installs a disposition for.
var caught = []os.Signal{
	unix.SIGINT,
	unix.SIGQUIT,
	unix.SIGTERM,
	unix.SIGTTOU,
	unix.SIGTSTP,
	unix.SIGCHLD,
}

// New creates a Broker bound to jobs. It installs no dispositions; Start
// does that and begins dispatching. Every signal dispatch and SIGCHLD-driven
// reap is logged through log, tagged with the affected job's trace ID
// where one applies, per the engine's -l diagnostic contract.
func New(jobs *job.Table, out *os.File, log *slog.Logger) *Broker {
	return &Broker{
		jobs:  jobs,
		out:   out,
		log:   log,
		traps: map[unix.Signal]string{},
		sigCh: make(chan os.Signal, 16),
		stop:  make(chan struct{}),
		wake:  make(chan struct{}, 1),
	}
}

// Start installs the signal dispositions and begins the dispatch
// goroutine.
func (b *Broker) Start() {
	signal.Notify(b.sigCh, caught...)
	go b.dispatch()
}

// Stop tears down the dispatch goroutine and stops intercepting signals.
// Forked children do not call it: they are started through exec, which
// resets caught signals to their default dispositions.
func (b *Broker) Stop() {
	signal.Stop(b.sigCh)
	close(b.stop)
}

func (b *Broker) dispatch() {
	for {
		select {
		case <-b.stop:
			return
		case sig := <-b.sigCh:
			b.handle(sig)
		}
	}
}

func (b *Broker) handle(sig os.Signal) {
	s, ok := sig.(unix.Signal)
	if !ok {
		return
	}

	b.log.Debug("signal dispatched", "signal", s.String())

	switch s {
	case unix.SIGCHLD:
		b.gotSigchld.Store(true)
		b.notifyWake()
		b.reapOne()
		if script, ok := b.lookupTrap(s); ok {
			b.runTrapScript(s, script)
		}
		return
	case unix.SIGQUIT, unix.SIGTERM, unix.SIGTTOU:
		// Ignored by default: the Go analogue is to catch and drop, which
		// keeps the "default disposition in a forked child" contract
		// intact for free, because exec(2) resets a caught signal's
		// disposition to default for us; a true SIG_IGN disposition would
		// not be reset by exec and would need explicit clearing that
		// os/exec does not expose a hook for.
		if script, ok := b.lookupTrap(s); ok {
			b.runTrapScript(s, script)
		}
		return
	}

	b.pendingSignal.Store(int32(s))
	b.notifyWake()

	if script, ok := b.lookupTrap(s); ok {
		b.runTrapScript(s, script)
		return
	}

	if s == unix.SIGINT {
		b.sigintPending.Store(true)
	}
}

func (b *Broker) lookupTrap(s unix.Signal) (string, bool) {
	b.trapsMu.Lock()
	defer b.trapsMu.Unlock()
	script, ok := b.traps[s]
	return script, ok
}

// runTrapHook is installed by execengine.New (via SetTrapHook) once it
// has an evaluator ready; until then traps are recorded but not invoked.
var runTrapHook func(sig unix.Signal, script string)

func (b *Broker) runTrapScript(s unix.Signal, script string) {
	if runTrapHook != nil {
		runTrapHook(s, script)
	}
}

// SetTrapHook installs the function invoked when a trapped signal fires.
func SetTrapHook(fn func(sig unix.Signal, script string)) {
	runTrapHook = fn
}

// SetTrap records script as the body to run when sig is delivered.
func (b *Broker) SetTrap(sig unix.Signal, script string) {
	b.trapsMu.Lock()
	defer b.trapsMu.Unlock()
	b.traps[sig] = script
}

// ClearTrap removes a trap, restoring the signal's default matrix
// behavior.
func (b *Broker) ClearTrap(sig unix.Signal) {
	b.trapsMu.Lock()
	defer b.trapsMu.Unlock()
	delete(b.traps, sig)
}

// Traps returns a copy of the current signal->script trap table, used by
// `trap -p`.
func (b *Broker) Traps() map[unix.Signal]string {
	b.trapsMu.Lock()
	defer b.trapsMu.Unlock()
	out := make(map[unix.Signal]string, len(b.traps))
	for k, v := range b.traps {
		out[k] = v
	}
	return out
}

func (b *Broker) notifyWake() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Wake returns the channel the WaitLoop parks on while waiting for
// got_sigchld or a pending signal to appear.
func (b *Broker) Wake() <-chan struct{} { return b.wake }

// GotSigchld reports the got_sigchld flag without clearing it (see
// ClearSigchld).
func (b *Broker) GotSigchld() bool {
	return b.gotSigchld.Load()
}

// ClearSigchld resets got_sigchld, called by WaitLoop once it has drained
// available statuses.
func (b *Broker) ClearSigchld() {
	b.gotSigchld.Store(false)
}

// PendingSignal returns the most recently delivered signal not yet
// consumed, or 0.
func (b *Broker) PendingSignal() unix.Signal {
	return unix.Signal(b.pendingSignal.Load())
}

// TakePendingSignal atomically reads and clears the pending signal.
func (b *Broker) TakePendingSignal() unix.Signal {
	return unix.Signal(b.pendingSignal.Swap(0))
}

// SigintPending reports whether an untrapped SIGINT arrived, without
// clearing the flag (see ClearSigint).
func (b *Broker) SigintPending() bool {
	return b.sigintPending.Load()
}

// ClearSigint clears the sigint-pending flag, called when the prompt loop
// has aborted the current line.
func (b *Broker) ClearSigint() {
	b.sigintPending.Store(false)
}

// InterruptsOff begins a scoped region during which JobTable and
// ContextManager mutation is safe from racing with the SIGCHLD reap path.
// Nesting is via a depth counter; only the outermost call actually takes
// the lock.
func (b *Broker) InterruptsOff() {
	b.offDepth++
	if b.offDepth == 1 {
		b.mu.Lock()
	}
}

// InterruptsOn ends the innermost scoped region. On the outermost exit it
// releases the lock and does nothing else: it dispatches no signals.
// Signals that arrived meanwhile were already handled by the dispatch
// goroutine, except that a SIGCHLD reap skipped because the lock was held
// is not retried here; the status stays with the kernel for the next
// WaitLoop pass.
func (b *Broker) InterruptsOn() {
	if b.offDepth == 0 {
		return
	}
	b.offDepth--
	if b.offDepth == 0 {
		b.mu.Unlock()
	}
}

// reapOne performs the constrained, non-blocking SIGCHLD reap: at most
// one waitpid(-1, WNOHANG|WUNTRACED), updating the job's process status
// and, for a background job, announcing the state transition to stdout.
func (b *Broker) reapOne() {
	if !b.mu.TryLock() {
		// The main goroutine is in an interrupts-off section; its own
		// WaitLoop pass will drain this status instead.
		return
	}
	defer b.mu.Unlock()

	var ws unix.WaitStatus
	pid, err := unix.Wait4(-1, &ws, unix.WNOHANG|unix.WUNTRACED, nil)
	if err != nil || pid <= 0 {
		return
	}

	status := job.FromWaitStatus(ws)
	j, ok := b.jobs.SetProcessStatus(pid, status)
	if !ok {
		return
	}
	b.log.Info("waitpid status", "trace_id", j.TraceID, "job_id", j.ID, "pid", pid, "state", j.State.String())
	if !j.Background {
		return
	}

	switch {
	case status.Signaled:
		fmt.Fprintf(b.out, "Job [%d] (%d) terminated by signal\n", j.ID, pid)
	case status.Stopped:
		fmt.Fprintf(b.out, "Job [%d] (%d) stopped by signal\n", j.ID, pid)
	case j.State == job.Finished:
		fmt.Fprintf(b.out, "[%d]+  Done                    %s\n", j.ID, j.Command)
	}
}
