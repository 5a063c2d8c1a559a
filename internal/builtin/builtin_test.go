package builtin

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuarubin/rsh/internal/job"
	"github.com/joshuarubin/rsh/internal/shellcontext"
	"github.com/joshuarubin/rsh/internal/sigbroker"
	"github.com/joshuarubin/rsh/internal/waitloop"
)

// fakeHost is a minimal builtin.Host backed by real ContextManager/JobTable
// instances (none of which require a running signal dispatcher or forked
// children for the builtins exercised here).
type fakeHost struct {
	ctx     *shellcontext.Manager
	jobs    *job.Table
	signals *sigbroker.Broker
	wait    *waitloop.Loop
	out     bytes.Buffer
	errw    bytes.Buffer
	evalled []string
}

func newFakeHost() *fakeHost {
	jt := job.NewTable()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	broker := sigbroker.New(jt, os.Stdout, log)
	return &fakeHost{
		ctx:     shellcontext.New(),
		jobs:    jt,
		signals: broker,
		wait:    waitloop.New(jt, broker, log),
	}
}

func (h *fakeHost) Context() *shellcontext.Manager { return h.ctx }
func (h *fakeHost) Jobs() *job.Table                { return h.jobs }
func (h *fakeHost) Signals() *sigbroker.Broker       { return h.signals }
func (h *fakeHost) Wait() *waitloop.Loop             { return h.wait }
func (h *fakeHost) Stdout() io.Writer                { return &h.out }
func (h *fakeHost) Stderr() io.Writer                { return &h.errw }
func (h *fakeHost) Stdin() io.Reader                 { return bytes.NewReader(nil) }
func (h *fakeHost) Eval(src string) int {
	h.evalled = append(h.evalled, src)
	return 0
}

func TestCdSetsPwdAndOldpwd(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	h := newFakeHost()
	dir := t.TempDir()
	_ = h.ctx.Assign("HOME", dir)
	_ = h.ctx.Assign("PWD", "/previous")

	code, err := cd(h, nil)
	require.NoError(err)
	require.Equal(0, code)
	require.Equal(dir, h.ctx.Value("PWD"))
	require.Equal("/previous", h.ctx.Value("OLDPWD"))
}

func TestExitReturnsErrExitWithCode(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	h := newFakeHost()
	code, err := exitBuiltin(h, []string{"7"})
	require.Equal(7, code)
	require.Equal(ErrExit{Code: 7}, err)
}

func TestBreakDefaultsToOneContinueTakesCount(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	h := newFakeHost()

	_, err := breakBuiltin(h, nil)
	require.Equal(ErrBreak{N: 1}, err)

	_, err = continueBuiltin(h, []string{"3"})
	require.Equal(ErrContinue{N: 3}, err)
}

func TestAliasSetAndList(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	h := newFakeHost()
	_, err := alias(h, []string{"ll=ls -la"})
	require.NoError(err)
	expansion, ok := h.ctx.GetAlias("ll")
	require.True(ok)
	require.Equal("ls -la", expansion)

	h.out.Reset()
	_, err = alias(h, nil)
	require.NoError(err)
	require.Contains(h.out.String(), "ll")
}

func TestUnaliasRemoves(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	h := newFakeHost()
	h.ctx.SetAlias("ll", "ls -la")
	_, err := unalias(h, []string{"ll"})
	require.NoError(err)

	_, ok := h.ctx.GetAlias("ll")
	require.False(ok)
}

func TestExportThenUnset(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	h := newFakeHost()
	_, err := export(h, []string{"FOO=bar"})
	require.NoError(err)
	require.Equal("bar", h.ctx.Value("FOO"))

	_, err = unset(h, []string{"-v", "FOO"})
	require.NoError(err)
	require.Equal("", h.ctx.Value("FOO"))
}

func TestReadonlyRejectsReassignment(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	h := newFakeHost()
	_ = h.ctx.Assign("FOO", "bar")
	_, err := readonly(h, []string{"FOO"})
	require.NoError(err)

	require.ErrorIs(h.ctx.Assign("FOO", "baz"), shellcontext.ErrReadonly)
}

func TestTrueFalseNoop(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	h := newFakeHost()
	code, err := trueBuiltin(h, nil)
	require.NoError(err)
	require.Equal(0, code)

	code, err = falseBuiltin(h, nil)
	require.NoError(err)
	require.Equal(1, code)

	code, err = noop(h, []string{"anything"})
	require.NoError(err)
	require.Equal(0, code)
}

func TestSourceDelegatesToEval(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	h := newFakeHost()
	dir := t.TempDir()
	path := dir + "/rc.sh"
	require.NoError(os.WriteFile(path, []byte("echo hi\n"), 0o644))

	_, err := source(h, []string{path})
	require.NoError(err)
	require.Equal([]string{"echo hi\n"}, h.evalled)
}

func TestIsBuiltinAndLookup(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	require.True(IsBuiltin("cd"))
	require.False(IsBuiltin("not-a-builtin"))

	fn, ok := Lookup("true")
	require.True(ok)
	code, err := fn(newFakeHost(), nil)
	require.NoError(err)
	require.Equal(0, code)
}
