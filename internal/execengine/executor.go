// Package execengine implements the Executor: the command-tree walker
// that expands, forks, pipes, redirects and waits for the pipelines a
// parsed script describes, dispatching each simple command to a
// built-in, a user function, or an external program.
package execengine

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"

	"github.com/joshuarubin/rsh/internal/ast"
	"github.com/joshuarubin/rsh/internal/builtin"
	"github.com/joshuarubin/rsh/internal/expand"
	"github.com/joshuarubin/rsh/internal/job"
	"github.com/joshuarubin/rsh/internal/parse"
	"github.com/joshuarubin/rsh/internal/shellcontext"
	"github.com/joshuarubin/rsh/internal/sigbroker"
	"github.com/joshuarubin/rsh/internal/waitloop"
)

// Executor owns every piece of live shell state and walks the command
// tree against it. There is exactly one Executor per shell process (or
// per `__eval__` re-exec child); it implements builtin.Host so the
// builtin package can reach back into it without an import cycle.
//
// Control flow that must unwind through several levels of compound-
// command execution (exit, return, break, continue) travels as an
// ordinary Go error of one of the builtin.Err* sentinel types, exactly
// like any other command failure, per spec.md §7's rule against using
// panics for this.
type Executor struct {
	Ctx      *shellcontext.Manager
	JobTable *job.Table
	Sig      *sigbroker.Broker
	WaitLoop *waitloop.Loop
	Expander *expand.Expander

	Out io.Writer
	Err io.Writer
	In  io.Reader

	Log *slog.Logger

	// ReexecArgv0 is os.Args[0], used to build the self re-exec command
	// line for builtin/function pipeline stages that must run as a real
	// child process (see buildCmd in pipeline.go).
	ReexecArgv0 string

	lastStatus int
	lastBgPid  int
}

// New creates an Executor with a fresh ContextManager, JobTable,
// SignalBroker and WaitLoop wired together.
func New(out, errw io.Writer, in io.Reader, reexecArgv0 string) *Executor {
	log := slog.Default()
	jt := job.NewTable()
	broker := sigbroker.New(jt, os.Stdout, log)
	ex := &Executor{
		Ctx:         shellcontext.New(),
		JobTable:    jt,
		Sig:         broker,
		WaitLoop:    waitloop.New(jt, broker, log),
		Out:         out,
		Err:         errw,
		In:          in,
		Log:         log,
		ReexecArgv0: reexecArgv0,
	}
	ex.Expander = expand.New(ex.Ctx)
	ex.Expander.SetSubstituter(ex.substitute)
	sigbroker.SetTrapHook(func(sig unix.Signal, script string) {
		_ = ex.Eval(script)
	})
	return ex
}

// --- builtin.Host ---

func (e *Executor) Context() *shellcontext.Manager { return e.Ctx }
func (e *Executor) Jobs() *job.Table               { return e.JobTable }
func (e *Executor) Signals() *sigbroker.Broker      { return e.Sig }
func (e *Executor) Wait() *waitloop.Loop            { return e.WaitLoop }
func (e *Executor) Stdout() io.Writer               { return e.Out }
func (e *Executor) Stderr() io.Writer               { return e.Err }
func (e *Executor) Stdin() io.Reader                { return e.In }

// Eval parses src and runs it against the current context, returning its
// exit status. It swallows break/continue/return that escape all the way
// to the top (they have no enclosing loop or function to target) and
// reports exit by returning its code, matching the `eval` builtin's
// "evaluates in the current context" contract.
func (e *Executor) Eval(src string) int {
	code, _ := e.eval(src)
	return code
}

func (e *Executor) eval(src string) (int, error) {
	cc, err := parse.Parse(src)
	if err != nil {
		fmt.Fprintf(e.Err, "parse error: %v\n", err)
		return 2, nil
	}
	code, ctrl := e.runList(cc.List)
	if ex, ok := asExit(ctrl); ok {
		return ex.Code, ctrl
	}
	return code, nil
}

// LastStatus is the process-wide EXIT_STATUS cell ($?).
func (e *Executor) LastStatus() int { return e.lastStatus }

func (e *Executor) setStatus(code int) {
	e.lastStatus = code
	_ = e.Ctx.Assign("?", fmt.Sprint(code))
}

func asExit(err error) (builtin.ErrExit, bool) {
	var ex builtin.ErrExit
	ok := errors.As(err, &ex)
	return ex, ok
}

// Run is the top-level entry point for a parsed script or line. It
// reports whether exit was requested (via the `exit` builtin, or a
// signal trap that called it) and, if so, the code to terminate the
// process with. A break/continue/return that escapes every enclosing
// loop and function is treated as a no-op, matching most shells'
// "break outside a loop" tolerance.
func (e *Executor) Run(cc *ast.CompleteCommand) (code int, exitCode int, exited bool) {
	code, ctrl := e.runList(cc.List)
	if ex, ok := asExit(ctrl); ok {
		return ex.Code, ex.Code, true
	}
	return code, 0, false
}

// runList executes a List left to right and returns the exit status of
// the last AndOr it ran, or a control-flow error that should propagate
// to an enclosing loop/function/eval.
func (e *Executor) runList(l *ast.List) (int, error) {
	if l == nil {
		return e.lastStatus, nil
	}
	code := e.lastStatus
	for _, item := range l.Items {
		if item.Background {
			e.runBackground(item.AndOr)
			continue
		}
		var err error
		code, err = e.runAndOr(item.AndOr)
		if err != nil {
			return code, err
		}
	}
	return code, nil
}

func (e *Executor) runBackground(ao *ast.AndOr) {
	// Background AndOrs run their first pipeline asynchronously; a
	// chained &&/|| after a backgrounded node is unusual shell usage and,
	// as in most shells, only that first pipeline is actually
	// backgrounded.
	if ao == nil || len(ao.Nodes) == 0 {
		return
	}
	_, _ = e.runPipelineStatus(ao.Nodes[0].Pipeline, true)
}

// runAndOr walks a left-to-right &&/|| chain. Node i's Op is the
// operator joining it to node i+1 (see ast.AndOrNode's doc comment), so
// whether node i+1 runs depends on node i's Op and node i's exit code.
func (e *Executor) runAndOr(ao *ast.AndOr) (int, error) {
	if ao == nil || len(ao.Nodes) == 0 {
		return e.lastStatus, nil
	}

	code, err := e.runPipelineStatus(ao.Nodes[0].Pipeline, false)
	if err != nil {
		return code, err
	}
	prevOp := ao.Nodes[0].Op

	for _, node := range ao.Nodes[1:] {
		switch prevOp {
		case ast.OpAnd:
			if code != 0 {
				prevOp = node.Op
				continue
			}
		case ast.OpOr:
			if code == 0 {
				prevOp = node.Op
				continue
			}
		}
		code, err = e.runPipelineStatus(node.Pipeline, false)
		if err != nil {
			return code, err
		}
		prevOp = node.Op
	}
	return code, nil
}

func (e *Executor) runPipelineStatus(p *ast.Pipeline, background bool) (int, error) {
	code, err := e.runPipeline(p, background)
	e.setStatus(code)
	return code, err
}
