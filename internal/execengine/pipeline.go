package execengine

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/joshuarubin/rsh/internal/ast"
	"github.com/joshuarubin/rsh/internal/builtin"
	"github.com/joshuarubin/rsh/internal/job"
	"github.com/joshuarubin/rsh/internal/shellcontext"
)

// runPipeline is the spec.md §4.6 "Pipeline execution" entry point.
// Function and builtin stages in a foreground single-stage pipeline run
// in-place, without a fork, so they can mutate the current context;
// every other shape forks every stage.
func (e *Executor) runPipeline(p *ast.Pipeline, background bool) (int, error) {
	if p == nil || len(p.Commands) == 0 {
		return e.lastStatus, nil
	}

	if len(p.Commands) == 1 && !background && e.isInPlaceable(p.Commands[0]) {
		code, err := e.runCommandInPlace(p.Commands[0])
		if p.Negate {
			code = negate(code)
		}
		return code, err
	}

	return e.runPipelineForked(p, background)
}

func negate(code int) int {
	if code == 0 {
		return 1
	}
	return 0
}

func (e *Executor) isInPlaceable(c *ast.Command) bool {
	switch {
	case c.Compound != nil, c.FuncDef != nil:
		return true
	case c.Simple != nil:
		name := c.Simple.Name
		if name == "" {
			return true // assignment-only simple command
		}
		// Alias resolution can replace the command word; classify by the
		// word that will actually run.
		if expansion, ok := e.Ctx.GetAlias(name); ok {
			if fields := strings.Fields(expansion); len(fields) > 0 {
				name = fields[0]
			}
		}
		if builtin.IsBuiltin(name) {
			return true
		}
		if _, ok := e.Ctx.GetFunction(name); ok {
			return true
		}
	}
	return false
}

func (e *Executor) runCommandInPlace(c *ast.Command) (int, error) {
	switch {
	case c.Simple != nil:
		return e.runSimpleInPlace(c.Simple)
	case c.Compound != nil:
		return e.runCompound(c.Compound)
	case c.FuncDef != nil:
		fn := &shellcontext.Function{Name: c.FuncDef.Name, Body: c.FuncDef.Body, Redirects: c.FuncDef.Redirects}
		if err := e.Ctx.SetFunction(fn); err != nil {
			fmt.Fprintf(e.Err, "%s: %v\n", c.FuncDef.Name, err)
			return 1, nil
		}
		return 0, nil
	}
	return 0, nil
}

func (e *Executor) runSimpleInPlace(sc *ast.SimpleCommand) (int, error) {
	res, err := e.Expander.Expand(sc)
	if err != nil {
		fmt.Fprintf(e.Err, "%v\n", err)
		return 1, nil
	}

	for _, a := range res.Assignments {
		if err := e.Ctx.Assign(a.Name, a.Value); err != nil {
			fmt.Fprintf(e.Err, "%v\n", err)
		}
	}

	if len(res.Argv) == 0 {
		return 0, nil
	}

	name, args := res.Argv[0], res.Argv[1:]

	if fn, ok := builtin.Lookup(name); ok {
		return e.runBuiltinInPlace(fn, name, args)
	}

	if fnDef, ok := e.Ctx.GetFunction(name); ok {
		return e.runFunctionInPlace(fnDef, args)
	}

	fmt.Fprintf(e.Err, "%s: command not found\n", name)
	return 127, nil
}

func (e *Executor) runBuiltinInPlace(fn builtin.Func, name string, args []string) (int, error) {
	code, err := fn(e, args)
	if err == nil {
		return code, nil
	}

	switch err.(type) {
	case builtin.ErrExit, builtin.ErrReturn, builtin.ErrBreak, builtin.ErrContinue:
		return code, err
	default:
		fmt.Fprintf(e.Err, "%s: %v\n", name, err)
		return 1, nil
	}
}

// runFunctionInPlace implements spec.md §4.6's function call semantics:
// push a scope, bind "0" and "1".."N", evaluate the body, pop the scope.
// A return inside the body unwinds by ordinary control flow here (the
// Executor is running in the parent, not a forked child).
func (e *Executor) runFunctionInPlace(fn *shellcontext.Function, args []string) (int, error) {
	e.Ctx.Push(nil)
	defer func() { _, _ = e.Ctx.Pop() }()

	_ = e.Ctx.Assign("0", fn.Name)
	for i, a := range args {
		_ = e.Ctx.Assign(strconv.Itoa(i+1), a)
	}
	_ = e.Ctx.Assign("#", strconv.Itoa(len(args)))

	code, err := e.runCommandInPlace(fn.Body)
	if ret, ok := err.(builtin.ErrReturn); ok {
		return ret.Code, nil
	}
	return code, err
}

// --- forked pipeline execution (spec.md §4.6 steps 2-5) ---

// stage is one classified, expanded pipeline command ready to become a
// process: a real exec.Cmd for an external program, or a self re-exec
// (via the hidden __eval__ mode) for a builtin, function call or
// compound command that must run out-of-process.
type stage struct {
	extern    bool
	argv0     string
	path      string
	env       []string
	redirects []ast.Redirect
	source    string // printed shell source, used by the self re-exec path
}

func (e *Executor) runPipelineForked(p *ast.Pipeline, background bool) (int, error) {
	e.Sig.InterruptsOff()
	defer e.Sig.InterruptsOn()

	stages := make([]*stage, len(p.Commands))
	for i, c := range p.Commands {
		st, err := e.classifyStage(c)
		if err != nil {
			fmt.Fprintf(e.Err, "%v\n", err)
			return 127, nil
		}
		stages[i] = st
	}

	command := ast.Print(&ast.CompleteCommand{List: singleCommandList(p)})

	procs := make([]*job.Process, 0, len(stages))
	var prevRead *os.File
	pgid := 0

	for i, st := range stages {
		var stdoutW, nextRead *os.File
		if i < len(stages)-1 {
			r, w, err := os.Pipe()
			if err != nil {
				return 1, nil
			}
			nextRead, stdoutW = r, w
		}

		cmd, err := e.buildCmd(st, prevRead, stdoutW, background, pgid)
		if err != nil {
			fmt.Fprintf(e.Err, "%v\n", err)
			closeIfSet(prevRead)
			closeIfSet(stdoutW)
			return 127, nil
		}

		if err := cmd.Start(); err != nil {
			fmt.Fprintf(e.Err, "%s: %v\n", st.argv0, err)
			closeIfSet(prevRead)
			closeIfSet(stdoutW)
			return 127, nil
		}

		if pgid == 0 {
			pgid = cmd.Process.Pid
		}
		e.Log.Debug("forked pipeline stage", "argv0", st.argv0, "pid", cmd.Process.Pid, "pgid", pgid)

		closeIfSet(prevRead)
		closeIfSet(stdoutW)
		prevRead = nextRead

		procs = append(procs, &job.Process{
			Pid:     cmd.Process.Pid,
			Argv0:   st.argv0,
			Cmdline: command,
		})
	}

	j := e.JobTable.CreateJob(procs, background, command)
	e.Log.Info("job created", "trace_id", j.TraceID, "job_id", j.ID, "pgid", pgid, "background", background)
	for _, proc := range procs {
		e.JobTable.UpdatePidTable(j.ID, proc.Pid)
	}

	if background {
		fmt.Fprintf(e.Out, "[%d] (%d) %s\n", j.ID, procs[len(procs)-1].Pid, j.Command)
		return 0, nil
	}

	code := e.WaitLoop.WaitForJob(j)
	if p.Negate {
		code = negate(code)
	}
	return code, nil
}

func singleCommandList(p *ast.Pipeline) *ast.List {
	return &ast.List{Items: []ast.ListItem{{AndOr: &ast.AndOr{Nodes: []ast.AndOrNode{{Pipeline: p}}}}}}
}

func closeIfSet(f *os.File) {
	if f != nil {
		f.Close()
	}
}

func (e *Executor) buildCmd(st *stage, stdin, stdout *os.File, background bool, pgid int) (*exec.Cmd, error) {
	var cmd *exec.Cmd
	if st.extern {
		cmd = exec.Command(st.path, splitQuoted(st.source)...)
	} else {
		cmd = exec.Command(e.ReexecArgv0, "__eval__", st.source)
	}

	cmd.Env = append(append([]string{}, os.Environ()...), st.env...)
	cmd.SysProcAttr = jobSysProcAttr(pgid)

	if stdin != nil {
		cmd.Stdin = stdin
	} else {
		cmd.Stdin = os.Stdin
	}
	if stdout != nil {
		cmd.Stdout = stdout
	} else {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = os.Stderr

	if err := applyRedirects(cmd, st.redirects); err != nil {
		return nil, err
	}

	_ = background
	return cmd, nil
}

// splitQuoted is only used for the extern path, where st.source already
// holds the exact argv (minus argv[0]) joined by NUL bytes with no
// further quoting needed: classifyStage builds it from an already-expanded argv.
func splitQuoted(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, "\x00")
}

// applyRedirects wires a stage's `<`, `>`, `>>` words onto the exec.Cmd's
// Stdin/Stdout/Stderr (fd 0/1/2) or ExtraFiles (fd >= 3), leaking the
// opened *os.File deliberately: the kernel reclaims it on exec/exit, per
// spec.md §4.6's redirection note.
func applyRedirects(cmd *exec.Cmd, redirects []ast.Redirect) error {
	for _, r := range redirects {
		fd := r.FD
		if fd < 0 {
			if r.Op == ast.RedirIn {
				fd = 0
			} else {
				fd = 1
			}
		}

		var f *os.File
		var err error
		switch r.Op {
		case ast.RedirIn:
			f, err = os.Open(r.Word)
		case ast.RedirAppend:
			f, err = os.OpenFile(r.Word, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		default:
			f, err = os.OpenFile(r.Word, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", r.Word, err)
		}

		switch fd {
		case 0:
			cmd.Stdin = f
		case 1:
			cmd.Stdout = f
		case 2:
			cmd.Stderr = f
		default:
			for len(cmd.ExtraFiles) < fd-2 {
				cmd.ExtraFiles = append(cmd.ExtraFiles, nil)
			}
			cmd.ExtraFiles[fd-3] = f
		}
	}
	return nil
}

// classifyStage expands a pipeline member (when it's a SimpleCommand)
// and decides whether it becomes a real external process or a self
// re-exec of a builtin/function/compound stage.
func (e *Executor) classifyStage(c *ast.Command) (*stage, error) {
	switch {
	case c.Simple != nil:
		res, err := e.Expander.Expand(c.Simple)
		if err != nil {
			return nil, err
		}

		env := make([]string, 0, len(res.Assignments))
		for _, a := range res.Assignments {
			env = append(env, a.Name+"="+a.Value)
		}

		if len(res.Argv) == 0 {
			return &stage{argv0: ":", env: env, redirects: res.Redirects, source: ":"}, nil
		}

		name := res.Argv[0]
		if builtin.IsBuiltin(name) {
			return &stage{argv0: name, env: env, redirects: res.Redirects, source: printArgv(res.Argv)}, nil
		}
		if _, ok := e.Ctx.GetFunction(name); ok {
			return &stage{argv0: name, env: env, redirects: res.Redirects, source: printFunctionCall(e, name, res.Argv[1:])}, nil
		}

		path, ok := e.Ctx.LookupOnPath(name)
		if !ok {
			return nil, fmt.Errorf("%s: command not found", name)
		}
		return &stage{extern: true, argv0: name, path: path, env: env, redirects: res.Redirects, source: strings.Join(res.Argv[1:], "\x00")}, nil

	case c.Compound != nil, c.FuncDef != nil:
		return &stage{argv0: "{compound}", source: ast.Print(&ast.CompleteCommand{List: wrapCommand(c)})}, nil
	}

	return nil, fmt.Errorf("execengine: unreachable command shape")
}

func wrapCommand(c *ast.Command) *ast.List {
	pipe := &ast.Pipeline{Commands: []*ast.Command{c}}
	return &ast.List{Items: []ast.ListItem{{AndOr: &ast.AndOr{Nodes: []ast.AndOrNode{{Pipeline: pipe}}}}}}
}

// printArgv renders argv as single-quoted shell words so a forked
// __eval__ child re-parses it back into the exact same argument list.
func printArgv(argv []string) string {
	parts := make([]string, len(argv))
	for i, a := range argv {
		parts[i] = shellQuote(a)
	}
	return strings.Join(parts, " ")
}

// printFunctionCall reconstructs a self-contained `name() { body }; name
// args...` source string so a forked child can evaluate a function call
// without needing the live (in-process only) function table propagated
// across the exec boundary.
func printFunctionCall(e *Executor, name string, args []string) string {
	fnDef, ok := e.Ctx.GetFunction(name)
	if !ok {
		return name
	}
	def := &ast.FunctionDefinition{Name: name, Body: fnDef.Body, Redirects: fnDef.Redirects}
	src := ast.Print(&ast.CompleteCommand{List: wrapCommand(&ast.Command{FuncDef: def})})
	return src + "; " + printArgv(append([]string{name}, args...))
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
