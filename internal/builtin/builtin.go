// Package builtin implements the BuiltinDispatcher: the family of
// commands whose semantics must run in the shell's own process (they
// mutate the ContextManager, JobTable or SignalBroker directly, so
// forking them into a child would make the mutation invisible to the
// parent). Control flow that must unwind through several levels of
// compound-command execution (exit, return, break, continue) is
// signaled with the sentinel error types below, the same way the
// engine's own error-propagation policy treats any other command
// failure: as an ordinary Go error traveling up the call stack.
package builtin

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/joshuarubin/rsh/internal/job"
	"github.com/joshuarubin/rsh/internal/shellcontext"
	"github.com/joshuarubin/rsh/internal/sigbroker"
	"github.com/joshuarubin/rsh/internal/waitloop"
)

// Host is the seam through which a builtin reaches the shell state it
// needs to mutate. internal/execengine's Executor implements it; this
// package does not import execengine to avoid a dependency cycle (the
// Executor dispatches to builtins, and some builtins, like eval and
// source, must run command text back through the Executor).
type Host interface {
	Context() *shellcontext.Manager
	Jobs() *job.Table
	Signals() *sigbroker.Broker
	Wait() *waitloop.Loop
	Stdout() io.Writer
	Stderr() io.Writer
	Stdin() io.Reader

	// Eval parses src as a complete command list and runs it against the
	// Executor's current context, returning its exit status. Used by
	// eval, source/. and trap invocation.
	Eval(src string) int
}

// ErrExit unwinds every level of command execution up to the shell's
// main loop, terminating the shell with Code.
type ErrExit struct{ Code int }

func (e ErrExit) Error() string { return fmt.Sprintf("exit %d", e.Code) }

// ErrReturn unwinds to the nearest enclosing function call.
type ErrReturn struct{ Code int }

func (e ErrReturn) Error() string { return fmt.Sprintf("return %d", e.Code) }

// ErrBreak unwinds N enclosing loop bodies (default 1).
type ErrBreak struct{ N int }

func (e ErrBreak) Error() string { return fmt.Sprintf("break %d", e.N) }

// ErrContinue restarts the Nth enclosing loop's condition (default 1).
type ErrContinue struct{ N int }

func (e ErrContinue) Error() string { return fmt.Sprintf("continue %d", e.N) }

// Func is the signature every builtin implements.
type Func func(h Host, args []string) (int, error)

// Table maps a builtin's name to its implementation.
var Table = map[string]Func{
	"cd":       cd,
	"exit":     exitBuiltin,
	"return":   returnBuiltin,
	"break":    breakBuiltin,
	"continue": continueBuiltin,
	"jobs":     jobs,
	"fg":       fg,
	"bg":       bg,
	"alias":    alias,
	"unalias":  unalias,
	"export":   export,
	"unset":    unset,
	"readonly": readonly,
	"eval":     evalBuiltin,
	"source":   source,
	".":        source,
	"trap":     trap,
	"type":     typeBuiltin,
	"hash":     hash,
	":":        noop,
	"true":     trueBuiltin,
	"false":    falseBuiltin,
}

// Lookup reports whether name is a builtin and returns its Func.
func Lookup(name string) (Func, bool) {
	f, ok := Table[name]
	return f, ok
}

// IsBuiltin reports whether name names a builtin, without running it.
func IsBuiltin(name string) bool {
	_, ok := Table[name]
	return ok
}

func noop(Host, []string) (int, error)  { return 0, nil }
func trueBuiltin(Host, []string) (int, error)  { return 0, nil }
func falseBuiltin(Host, []string) (int, error) { return 1, nil }

func cd(h Host, args []string) (int, error) {
	ctx := h.Context()
	dir := ctx.Value("HOME")
	if len(args) > 0 {
		dir = args[0]
	}
	if dir == "" {
		fmt.Fprintln(h.Stderr(), "cd: HOME not set")
		return 1, nil
	}
	if err := os.Chdir(dir); err != nil {
		fmt.Fprintf(h.Stderr(), "cd: %v\n", err)
		return 1, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return 1, nil
	}
	_ = ctx.Assign("OLDPWD", ctx.Value("PWD"))
	_ = ctx.Assign("PWD", cwd)
	return 0, nil
}

func exitBuiltin(_ Host, args []string) (int, error) {
	code := 0
	if len(args) > 0 {
		code, _ = strconv.Atoi(args[0])
	}
	return code, ErrExit{Code: code}
}

func returnBuiltin(_ Host, args []string) (int, error) {
	code := 0
	if len(args) > 0 {
		code, _ = strconv.Atoi(args[0])
	}
	return code, ErrReturn{Code: code}
}

func breakBuiltin(_ Host, args []string) (int, error) {
	n := 1
	if len(args) > 0 {
		if v, err := strconv.Atoi(args[0]); err == nil && v > 0 {
			n = v
		}
	}
	return 0, ErrBreak{N: n}
}

func continueBuiltin(_ Host, args []string) (int, error) {
	n := 1
	if len(args) > 0 {
		if v, err := strconv.Atoi(args[0]); err == nil && v > 0 {
			n = v
		}
	}
	return 0, ErrContinue{N: n}
}

func jobs(h Host, _ []string) (int, error) {
	for _, j := range h.Jobs().Jobs() {
		marker := " "
		if cur, ok := h.Jobs().Current(); ok && cur.ID == j.ID {
			marker = "+"
		}
		fmt.Fprintf(h.Stdout(), "[%d]%s  %-8s  %s\n", j.ID, marker, j.State, j.Command)
	}
	return 0, nil
}

func jobArg(h Host, args []string) (*job.Job, error) {
	if len(args) == 0 {
		j, ok := h.Jobs().Current()
		if !ok {
			return nil, fmt.Errorf("no current job")
		}
		return j, nil
	}
	spec := strings.TrimPrefix(args[0], "%")
	id, err := strconv.Atoi(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid job spec %q", args[0])
	}
	j, ok := h.Jobs().JobByID(id)
	if !ok {
		return nil, fmt.Errorf("no such job %s", args[0])
	}
	return j, nil
}

func fg(h Host, args []string) (int, error) {
	j, err := jobArg(h, args)
	if err != nil {
		fmt.Fprintf(h.Stderr(), "fg: %v\n", err)
		return 1, nil
	}
	h.Jobs().SetBackground(j.ID, false)
	fmt.Fprintln(h.Stdout(), j.Command)
	j.Resume()
	for _, p := range j.Processes {
		_ = unix.Kill(p.Pid, unix.SIGCONT)
	}
	return h.Wait().WaitForJob(j), nil
}

func bg(h Host, args []string) (int, error) {
	j, err := jobArg(h, args)
	if err != nil {
		fmt.Fprintf(h.Stderr(), "bg: %v\n", err)
		return 1, nil
	}
	h.Jobs().SetBackground(j.ID, true)
	j.Resume()
	for _, p := range j.Processes {
		_ = unix.Kill(p.Pid, unix.SIGCONT)
	}
	fmt.Fprintf(h.Stdout(), "[%d] %s\n", j.ID, j.Command)
	return 0, nil
}

func alias(h Host, args []string) (int, error) {
	ctx := h.Context()
	if len(args) == 0 || args[0] == "-p" {
		names := make([]string, 0)
		table := ctx.Aliases()
		for name := range table {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(h.Stdout(), "alias %s=%s\n", name, table[name])
		}
		return 0, nil
	}
	for _, a := range args {
		name, value, ok := strings.Cut(a, "=")
		if !ok {
			if v, ok := ctx.GetAlias(a); ok {
				fmt.Fprintf(h.Stdout(), "alias %s=%s\n", a, v)
			}
			continue
		}
		ctx.SetAlias(name, value)
	}
	return 0, nil
}

func unalias(h Host, args []string) (int, error) {
	ctx := h.Context()
	for _, a := range args {
		if a == "-a" {
			ctx.ClearAliases()
			continue
		}
		ctx.RemoveAlias(a)
	}
	return 0, nil
}

func export(h Host, args []string) (int, error) {
	ctx := h.Context()
	if len(args) == 0 {
		for _, name := range ctx.ExportedNames() {
			fmt.Fprintf(h.Stdout(), "export %s=%s\n", name, ctx.Value(name))
		}
		return 0, nil
	}

	// "export context self" / "export context NS=self|FILE" extensions
	// (DESIGN.md): expose a namespace of the current scope, or load one
	// from a sourced file, as ns::name-addressable variables.
	if args[0] == "context" && len(args) > 1 {
		spec := args[1]
		ns, target, ok := strings.Cut(spec, "=")
		if !ok {
			ns, target = spec, "self"
		}
		if target == "self" {
			ctx.ExportScope(ns, ctx.Current())
			return 0, nil
		}
		data, err := os.ReadFile(target)
		if err != nil {
			fmt.Fprintf(h.Stderr(), "export: %v\n", err)
			return 1, nil
		}
		scope := ctx.NewScope()
		ctx.Push(scope)
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			_ = ctx.SetVar(line)
		}
		_, _ = ctx.Pop()
		ctx.ExportScope(ns, scope)
		return 0, nil
	}

	for _, a := range args {
		name, value, ok := strings.Cut(a, "=")
		if ok {
			if err := ctx.Assign(name, value); err != nil {
				fmt.Fprintf(h.Stderr(), "export: %v\n", err)
				continue
			}
		} else {
			name = a
		}
		ctx.MarkExported(name)
	}
	return 0, nil
}

func unset(h Host, args []string) (int, error) {
	ctx := h.Context()
	mode := "v"
	names := args
	if len(args) > 0 && strings.HasPrefix(args[0], "-") {
		mode = strings.TrimPrefix(args[0], "-")
		names = args[1:]
	}
	for _, name := range names {
		switch mode {
		case "f":
			_ = ctx.RemoveFunction(name)
		case "c":
			ctx.RemoveExportedScope(name)
		default:
			ctx.Unset(name)
		}
	}
	return 0, nil
}

func readonly(h Host, args []string) (int, error) {
	ctx := h.Context()
	if len(args) == 0 {
		for _, name := range ctx.ReadonlyNames() {
			fmt.Fprintf(h.Stdout(), "readonly %s=%s\n", name, ctx.Value(name))
		}
		return 0, nil
	}
	for _, a := range args {
		name, value, ok := strings.Cut(a, "=")
		if ok {
			_ = ctx.Assign(name, value)
		} else {
			name = a
		}
		ctx.MarkReadonly(name)
	}
	return 0, nil
}

func evalBuiltin(h Host, args []string) (int, error) {
	return h.Eval(strings.Join(args, " ")), nil
}

func source(h Host, args []string) (int, error) {
	if len(args) == 0 {
		fmt.Fprintln(h.Stderr(), "source: filename required")
		return 1, nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(h.Stderr(), "source: %v\n", err)
		return 1, nil
	}
	return h.Eval(string(data)), nil
}

var signalNames = map[string]unix.Signal{
	"INT": unix.SIGINT, "TERM": unix.SIGTERM, "QUIT": unix.SIGQUIT,
	"TSTP": unix.SIGTSTP, "TTOU": unix.SIGTTOU, "CHLD": unix.SIGCHLD,
}

func resolveSignal(name string) (unix.Signal, bool) {
	name = strings.TrimPrefix(strings.ToUpper(name), "SIG")
	sig, ok := signalNames[name]
	return sig, ok
}

func trap(h Host, args []string) (int, error) {
	sig := h.Signals()
	if len(args) == 0 || args[0] == "-p" {
		for s, script := range sig.Traps() {
			fmt.Fprintf(h.Stdout(), "trap -- %q SIG%s\n", script, s)
		}
		return 0, nil
	}
	if len(args) == 1 {
		if s, ok := resolveSignal(args[0]); ok {
			sig.ClearTrap(s)
		}
		return 0, nil
	}
	script, sigArgs := args[0], args[1:]
	for _, name := range sigArgs {
		s, ok := resolveSignal(name)
		if !ok {
			fmt.Fprintf(h.Stderr(), "trap: bad signal name %q\n", name)
			continue
		}
		if script == "-" {
			sig.ClearTrap(s)
			continue
		}
		sig.SetTrap(s, script)
	}
	return 0, nil
}

func typeBuiltin(h Host, args []string) (int, error) {
	ctx := h.Context()
	status := 0
	for _, name := range args {
		switch {
		case IsBuiltin(name):
			fmt.Fprintf(h.Stdout(), "%s is a shell builtin\n", name)
		case func() bool { _, ok := ctx.GetFunction(name); return ok }():
			fmt.Fprintf(h.Stdout(), "%s is a function\n", name)
		default:
			if path, ok := ctx.LookupOnPath(name); ok {
				fmt.Fprintf(h.Stdout(), "%s is %s\n", name, path)
			} else {
				fmt.Fprintf(h.Stderr(), "%s: not found\n", name)
				status = 1
			}
		}
	}
	return status, nil
}

func hash(h Host, args []string) (int, error) {
	ctx := h.Context()
	for _, name := range args {
		if path, ok := ctx.LookupOnPath(name); ok {
			fmt.Fprintf(h.Stdout(), "%s=%s\n", name, path)
		}
	}
	return 0, nil
}
