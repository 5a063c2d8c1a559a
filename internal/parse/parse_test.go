package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuarubin/rsh/internal/ast"
)

func TestParseSimpleCommand(t *testing.T) {
	t.Parallel()

	cc, err := Parse("echo hello world")
	require.NoError(t, err)
	require.Len(t, cc.List.Items, 1)

	pipe := cc.List.Items[0].AndOr.Nodes[0].Pipeline
	require.Len(t, pipe.Commands, 1)

	sc := pipe.Commands[0].Simple
	require.NotNil(t, sc)
	assert.Equal(t, "echo", sc.Name)
	assert.Equal(t, []string{"hello", "world"}, sc.Suffix)
}

func TestParseAssignmentPrefix(t *testing.T) {
	t.Parallel()

	cc, err := Parse("FOO=bar echo $FOO")
	require.NoError(t, err)

	sc := cc.List.Items[0].AndOr.Nodes[0].Pipeline.Commands[0].Simple
	require.Len(t, sc.Prefix, 1)
	assert.Equal(t, "FOO", sc.Prefix[0].Name)
	assert.Equal(t, "bar", sc.Prefix[0].Value)
	assert.Equal(t, "echo", sc.Name)
}

func TestParsePipeline(t *testing.T) {
	t.Parallel()

	cc, err := Parse("ls | grep foo | wc -l")
	require.NoError(t, err)

	pipe := cc.List.Items[0].AndOr.Nodes[0].Pipeline
	require.Len(t, pipe.Commands, 3)
	assert.Equal(t, "ls", pipe.Commands[0].Simple.Name)
	assert.Equal(t, "grep", pipe.Commands[1].Simple.Name)
	assert.Equal(t, "wc", pipe.Commands[2].Simple.Name)
}

func TestParseAndOr(t *testing.T) {
	t.Parallel()

	cc, err := Parse("make build && make test || echo failed")
	require.NoError(t, err)

	nodes := cc.List.Items[0].AndOr.Nodes
	require.Len(t, nodes, 3)
	assert.Equal(t, ast.OpAnd, nodes[0].Op)
	assert.Equal(t, ast.OpOr, nodes[1].Op)
	assert.Equal(t, ast.OpNone, nodes[2].Op)
}

func TestParseBackground(t *testing.T) {
	t.Parallel()

	cc, err := Parse("sleep 10 &")
	require.NoError(t, err)
	require.True(t, cc.List.Items[0].Background)
}

func TestParseRedirects(t *testing.T) {
	t.Parallel()

	cc, err := Parse("grep foo < in.txt > out.txt 2>> err.txt")
	require.NoError(t, err)

	sc := cc.List.Items[0].AndOr.Nodes[0].Pipeline.Commands[0].Simple
	require.Len(t, sc.Redirects, 3)
	assert.Equal(t, ast.RedirIn, sc.Redirects[0].Op)
	assert.Equal(t, "in.txt", sc.Redirects[0].Word)
	assert.Equal(t, ast.RedirOut, sc.Redirects[1].Op)
	assert.Equal(t, "out.txt", sc.Redirects[1].Word)
	assert.Equal(t, ast.RedirAppend, sc.Redirects[2].Op)
	assert.Equal(t, 2, sc.Redirects[2].FD)
}

func TestParseIf(t *testing.T) {
	t.Parallel()

	cc, err := Parse(`if true; then echo yes; else echo no; fi`)
	require.NoError(t, err)

	cmd := cc.List.Items[0].AndOr.Nodes[0].Pipeline.Commands[0]
	require.NotNil(t, cmd.Compound)
	assert.Equal(t, ast.IfStmt, cmd.Compound.Kind)
	require.NotNil(t, cmd.Compound.Else)
}

func TestParseFor(t *testing.T) {
	t.Parallel()

	cc, err := Parse(`for x in a b c; do echo $x; done`)
	require.NoError(t, err)

	cmd := cc.List.Items[0].AndOr.Nodes[0].Pipeline.Commands[0]
	require.NotNil(t, cmd.Compound)
	assert.Equal(t, ast.ForLoop, cmd.Compound.Kind)
	assert.Equal(t, "x", cmd.Compound.ForVar)
	assert.Equal(t, []string{"a", "b", "c"}, cmd.Compound.ForWords)
}

func TestParseWhile(t *testing.T) {
	t.Parallel()

	cc, err := Parse(`while true; do break; done`)
	require.NoError(t, err)

	cmd := cc.List.Items[0].AndOr.Nodes[0].Pipeline.Commands[0]
	assert.Equal(t, ast.WhileLoop, cmd.Compound.Kind)
}

func TestParseCase(t *testing.T) {
	t.Parallel()

	cc, err := Parse(`case $x in foo|bar) echo match ;; *) echo nomatch ;; esac`)
	require.NoError(t, err)

	cmd := cc.List.Items[0].AndOr.Nodes[0].Pipeline.Commands[0]
	require.NotNil(t, cmd.Compound)
	assert.Equal(t, ast.CaseStmt, cmd.Compound.Kind)
	require.Len(t, cmd.Compound.CaseItems, 2)
	assert.Equal(t, []string{"foo", "bar"}, cmd.Compound.CaseItems[0].Patterns)
}

func TestParseFunctionDefinition(t *testing.T) {
	t.Parallel()

	cc, err := Parse(`greet() { echo hi; }`)
	require.NoError(t, err)

	cmd := cc.List.Items[0].AndOr.Nodes[0].Pipeline.Commands[0]
	require.NotNil(t, cmd.FuncDef)
	assert.Equal(t, "greet", cmd.FuncDef.Name)
}

func TestParseBraceGroup(t *testing.T) {
	t.Parallel()

	cc, err := Parse(`{ echo a; echo b; }`)
	require.NoError(t, err)

	cmd := cc.List.Items[0].AndOr.Nodes[0].Pipeline.Commands[0]
	require.NotNil(t, cmd.Compound)
	assert.Equal(t, ast.BraceGroup, cmd.Compound.Kind)
	assert.Len(t, cmd.Compound.Body.Items, 2)
}

func TestParseSubshell(t *testing.T) {
	t.Parallel()

	cc, err := Parse(`(cd /tmp; ls)`)
	require.NoError(t, err)

	cmd := cc.List.Items[0].AndOr.Nodes[0].Pipeline.Commands[0]
	require.NotNil(t, cmd.Compound)
	assert.Equal(t, ast.Subshell, cmd.Compound.Kind)
}

func TestParseQuotingPreservesRawText(t *testing.T) {
	t.Parallel()

	cc, err := Parse(`echo "a $(b | c) d" 'raw $x'`)
	require.NoError(t, err)

	sc := cc.List.Items[0].AndOr.Nodes[0].Pipeline.Commands[0].Simple
	require.Len(t, sc.Suffix, 2)
	assert.Equal(t, `"a $(b | c) d"`, sc.Suffix[0])
	assert.Equal(t, `'raw $x'`, sc.Suffix[1])
}

func TestPrintRoundTrip(t *testing.T) {
	t.Parallel()

	for _, src := range []string{
		"echo hello world",
		"ls | grep foo",
		"FOO=bar echo $FOO",
	} {
		cc, err := Parse(src)
		require.NoError(t, err)

		printed := ast.Print(cc)
		cc2, err := Parse(printed)
		require.NoError(t, err, "re-parsing printed output %q", printed)
		assert.Equal(t, cc, cc2, "round trip of %q via %q", src, printed)
	}
}
