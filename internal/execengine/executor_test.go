package execengine

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuarubin/rsh/internal/parse"
)

func newTestExecutor() (*Executor, *bytes.Buffer, *bytes.Buffer) {
	var out, errw bytes.Buffer
	ex := New(&out, &errw, strings.NewReader(""), "/nonexistent-rsh-binary")
	return ex, &out, &errw
}

func TestEvalAssignmentAndExpansion(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	ex, out, _ := newTestExecutor()
	code := ex.Eval(`FOO=bar; :`)
	_ = out
	require.Equal(0, code)
	require.Equal("bar", ex.Ctx.Value("FOO"))
}

func TestEvalAndOrShortCircuit(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	ex, _, _ := newTestExecutor()
	code := ex.Eval(`false && true`)
	require.Equal(1, code)

	code = ex.Eval(`true || false`)
	require.Equal(0, code)

	code = ex.Eval(`false || true`)
	require.Equal(0, code)
}

func TestEvalIfElif(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	ex, _, _ := newTestExecutor()
	code := ex.Eval(`if false; then : ; elif true; then exit 3; else exit 4; fi`)
	require.Equal(3, code)
}

func TestEvalWhileBreak(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	ex, _, _ := newTestExecutor()
	_ = ex.Eval(`i=0`)
	code := ex.Eval(`while true; do i=1; break; done`)
	require.Equal(0, code)
	require.Equal("1", ex.Ctx.Value("i"))
}

func TestEvalForLoopIteratesWords(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	ex, _, _ := newTestExecutor()
	_ = ex.Eval(`acc=""`)
	_ = ex.Eval(`for w in a b c; do acc=$acc$w; done`)
	require.Equal("abc", ex.Ctx.Value("acc"))
}

func TestEvalFunctionCallAndReturn(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	ex, _, _ := newTestExecutor()
	src := `greet() { return 5; }; greet`
	code := ex.Eval(src)
	require.Equal(5, code)
}

func TestEvalExitStopsTopLevel(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	ex, _, _ := newTestExecutor()
	cc, err := parse.Parse(`exit 9`)
	require.NoError(err)

	code, exitCode, exited := ex.Run(cc)
	require.True(exited)
	require.Equal(9, exitCode)
	require.Equal(9, code)
}

func TestEvalCaseMatchesFirstPattern(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	ex, _, _ := newTestExecutor()
	code := ex.Eval(`case hello in h*) exit 1;; *) exit 2;; esac`)
	require.Equal(1, code)
}

func TestLastStatusTracksQuestionMark(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	ex, _, _ := newTestExecutor()
	_ = ex.Eval(`false`)
	require.Equal(1, ex.LastStatus())
	require.Equal("1", ex.Ctx.Value("?"))
}
