package expand

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuarubin/rsh/internal/ast"
	"github.com/joshuarubin/rsh/internal/parse"
	"github.com/joshuarubin/rsh/internal/shellcontext"
)

func simpleCommandOf(t *testing.T, src string) *ast.SimpleCommand {
	t.Helper()
	cc, err := parse.Parse(src)
	require.NoError(t, err)
	sc := cc.List.Items[0].AndOr.Nodes[0].Pipeline.Commands[0].Simple
	require.NotNil(t, sc)
	return sc
}

func TestExpandParameterExpansion(t *testing.T) {
	t.Parallel()

	ctx := shellcontext.New()
	require.NoError(t, ctx.Assign("NAME", "world"))

	ex := New(ctx)
	res, err := ex.Expand(simpleCommandOf(t, "echo $NAME"))
	require.NoError(t, err)
	assert.Equal(t, []string{"echo", "world"}, res.Argv)
}

func TestExpandUnsetParameterIsEmpty(t *testing.T) {
	t.Parallel()

	ctx := shellcontext.New()
	ex := New(ctx)
	res, err := ex.Expand(simpleCommandOf(t, "echo $NOPE"))
	require.NoError(t, err)
	assert.Equal(t, []string{"echo"}, res.Argv)
}

func TestExpandSingleQuoteBypassesExpansion(t *testing.T) {
	t.Parallel()

	ctx := shellcontext.New()
	require.NoError(t, ctx.Assign("NAME", "world"))

	ex := New(ctx)
	res, err := ex.Expand(simpleCommandOf(t, `echo '$NAME'`))
	require.NoError(t, err)
	assert.Equal(t, []string{"echo", "$NAME"}, res.Argv)
}

func TestExpandDoubleQuotePreservesWhitespace(t *testing.T) {
	t.Parallel()

	ctx := shellcontext.New()
	require.NoError(t, ctx.Assign("X", "a b"))

	ex := New(ctx)
	res, err := ex.Expand(simpleCommandOf(t, `echo "$X c"`))
	require.NoError(t, err)
	assert.Equal(t, []string{"echo", "a b c"}, res.Argv)
}

func TestExpandFieldSplitsUnquoted(t *testing.T) {
	t.Parallel()

	ctx := shellcontext.New()
	require.NoError(t, ctx.Assign("X", "a b c"))

	ex := New(ctx)
	res, err := ex.Expand(simpleCommandOf(t, `echo $X`))
	require.NoError(t, err)
	assert.Equal(t, []string{"echo", "a", "b", "c"}, res.Argv)
}

func TestExpandAliasResolutionNotRecursive(t *testing.T) {
	t.Parallel()

	ctx := shellcontext.New()
	ctx.SetAlias("ll", "ls -la")
	ctx.SetAlias("ls", "ll") // would infinite loop if recursive

	ex := New(ctx)
	res, err := ex.Expand(simpleCommandOf(t, "ll extra"))
	require.NoError(t, err)
	assert.Equal(t, []string{"ls", "-la", "extra"}, res.Argv)
}

func TestExpandCommandSubstitutionTrimsTrailingNewline(t *testing.T) {
	t.Parallel()

	ctx := shellcontext.New()
	ex := New(ctx)
	ex.SetSubstituter(func(src string) (string, error) {
		assert.Equal(t, "date", src)
		return "Tuesday\n", nil
	})

	res, err := ex.Expand(simpleCommandOf(t, "echo $(date)"))
	require.NoError(t, err)
	assert.Equal(t, []string{"echo", "Tuesday"}, res.Argv)
}

func TestExpandAssignmentPrefixNotFieldSplit(t *testing.T) {
	t.Parallel()

	ctx := shellcontext.New()
	require.NoError(t, ctx.Assign("X", "a b"))

	ex := New(ctx)
	res, err := ex.Expand(simpleCommandOf(t, "FOO=$X true"))
	require.NoError(t, err)
	require.Len(t, res.Assignments, 1)
	assert.Equal(t, "a b", res.Assignments[0].Value)
}
