// Command rsh is a POSIX-ish interactive command shell: a pipeline/job
// manager, signal/wait discipline, and the variable/function/alias
// context stack and expansion passes that turn a parsed command tree
// into argv ready for exec.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/joshuarubin/rsh/internal/config"
	"github.com/joshuarubin/rsh/internal/execengine"
	"github.com/joshuarubin/rsh/internal/shell"
	"github.com/joshuarubin/rsh/internal/shellcontext"
)

func main() {
	if err := run(); err != nil {
		if code, ok := exitCode(err); ok {
			os.Exit(code)
		}
		os.Exit(1)
	}
}

func run() error {
	cfg := &config.Config{}

	root := cobra.Command{
		Use:   "rsh [script] [args...]",
		Short: "a shell",

		// Silenced because the re-exec child (__eval__) must not print
		// cobra's usage banner on a script parse/exec failure; the engine
		// reports its own diagnostics.
		SilenceUsage:  true,
		SilenceErrors: true,

		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(cfg, args)
		},
	}

	cfg.Flags(&root)
	root.AddCommand(evalCommand())

	ctx := context.Background()
	cmd, err := root.ExecuteContextC(ctx)
	if _, ok := exitCode(err); ok {
		return err
	}
	if err != nil {
		root.Println(cmd.UsageString())
		root.PrintErrln(root.ErrPrefix(), err.Error())
	}
	return err
}

func runShell(cfg *config.Config, args []string) error {
	s := shell.New(os.Stdout, os.Stderr, os.Stdin, os.Args[0], cfg.Debug)

	var code int
	switch {
	case cfg.Command != "":
		code = s.RunCommand(cfg.Command, args)
	case len(args) > 0:
		data, err := os.ReadFile(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "rsh: %v\n", err)
			code = 127
			break
		}
		code = s.RunScript(args[0], args[1:], string(data))
	default:
		code = s.RunInteractive(os.Stdin, cfg.HistoryFile)
	}

	if code != 0 {
		return exitErr(code)
	}
	return nil
}

// evalCommand is the self re-exec entry point: execengine forks a
// pipeline stage that must run as a real OS process (a builtin, a
// function call, or a compound command inside a pipeline or background
// job) by reconstructing its shell source and re-invoking this binary
// with it, exactly as the parent's own environment and job-control
// discipline would apply to it directly.
func evalCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "__eval__ SOURCE",
		Hidden: true,
		Args:   cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ex := execengine.New(os.Stdout, os.Stderr, os.Stdin, os.Args[0])
			shellcontext.Populate(ex.Ctx, os.Environ(), os.Getpid(), os.Getppid(), os.Getuid())
			ex.Sig.Start()
			code := ex.Eval(args[0])
			if code != 0 {
				return exitErr(code)
			}
			return nil
		},
	}
	return cmd
}

func exitErr(code int) error {
	return &codeError{code: code}
}

type codeError struct{ code int }

func (e *codeError) Error() string { return fmt.Sprintf("exit status %d", e.code) }
func (e *codeError) ExitCode() int { return e.code }

func exitCode(err error) (int, bool) {
	var eerr *exec.ExitError
	if errors.As(err, &eerr) {
		return eerr.ExitCode(), true
	}
	var cerr *codeError
	if errors.As(err, &cerr) {
		return cerr.code, true
	}
	return 0, false
}
