// Package shell wires the ContextManager, JobTable, SignalBroker,
// WaitLoop, Expander, Executor and BuiltinDispatcher into the
// interactive and non-interactive front ends the engine's CLI exposes,
// and consults the engine's startup files.
package shell

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joshuarubin/rsh/internal/execengine"
	"github.com/joshuarubin/rsh/internal/history"
	"github.com/joshuarubin/rsh/internal/parse"
	"github.com/joshuarubin/rsh/internal/shellcontext"
)

// Shell is the façade the CLI (cmd/rsh) drives.
type Shell struct {
	Exec    *execengine.Executor
	History *history.History
	Out     io.Writer
	Err     io.Writer
}

// startupFiles are consulted in order at startup; a missing file is not
// an error, and a parse error is reported but non-fatal (spec.md §6).
var startupFiles = []string{"/etc/profile", "~/.profile", "~/.rshrc"}

// New creates a Shell, populates its bottom scope from the host
// environment, and runs the startup files.
func New(out, errw io.Writer, in io.Reader, reexecArgv0 string, debug bool) *Shell {
	if debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	} else {
		slog.SetLogLoggerLevel(slog.LevelWarn)
	}

	ex := execengine.New(out, errw, in, reexecArgv0)
	shellcontext.Populate(ex.Ctx, os.Environ(), os.Getpid(), os.Getppid(), os.Getuid())
	ex.Sig.Start()

	s := &Shell{Exec: ex, Out: out, Err: errw}
	s.runStartupFiles()
	return s
}

func (s *Shell) runStartupFiles() {
	home := s.Exec.Ctx.Value("HOME")
	for _, f := range startupFiles {
		path := f
		if strings.HasPrefix(path, "~/") && home != "" {
			path = home + path[1:]
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue // absence is not an error
		}
		if code := s.Exec.Eval(string(data)); code != 0 {
			slog.Debug("startup file non-zero exit", "file", path, "code", code)
		}
	}
}

// RunScript executes src with $0=name and $1.. bound from args, exactly
// as `shell SCRIPT [ARGS...]` is specified.
func (s *Shell) RunScript(name string, args []string, src string) int {
	_ = s.Exec.Ctx.Assign("0", name)
	for i, a := range args {
		_ = s.Exec.Ctx.Assign(fmt.Sprint(i+1), a)
	}
	return s.Exec.Eval(src)
}

// RunCommand executes src as given to `shell -c STRING [ARGS...]`.
func (s *Shell) RunCommand(src string, args []string) int {
	_ = s.Exec.Ctx.Assign("0", "rsh")
	for i, a := range args {
		_ = s.Exec.Ctx.Assign(fmt.Sprint(i+1), a)
	}
	return s.Exec.Eval(src)
}

// RunInteractive reads lines from in (via a bufio.Scanner), loading and
// saving history around the session, until EOF or `exit`.
func (s *Shell) RunInteractive(in io.Reader, historyPath string) int {
	h, err := history.Load(historyPath)
	if err != nil {
		fmt.Fprintf(s.Err, "history: %v\n", err)
		h = &history.History{}
	}
	s.History = h

	scanner := bufio.NewScanner(in)
	code := 0
	for {
		ps1 := s.Exec.Ctx.Value("PS1")
		fmt.Fprint(s.Out, ps1)

		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		s.History.Add(line)

		if s.Exec.Sig.SigintPending() {
			s.Exec.Sig.ClearSigint()
			continue
		}

		cc, err := parse.Parse(line)
		if err != nil {
			fmt.Fprintf(s.Err, "rsh: %v\n", err)
			code = 2
			continue
		}

		c, exitCode, exited := s.Exec.Run(cc)
		code = c
		if exited {
			code = exitCode
			break
		}
	}

	_ = s.History.Save()
	return code
}
