// Package ast defines the command tree shape that internal/execengine
// consumes. The lexer and grammar that normally produce this tree are
// treated as an external collaborator in this project; internal/parse
// supplies a minimal stand-in sufficient for tests and the CLI.
package ast

// RedirectOp identifies which redirection operator a Redirect came from.
type RedirectOp int

const (
	RedirIn     RedirectOp = iota // <
	RedirOut                      // >
	RedirAppend                   // >>
)

// Redirect is a single `[n]op word` redirection.
type Redirect struct {
	FD   int // target fd; -1 means "default for Op" (0 for In, 1 for Out/Append)
	Op   RedirectOp
	Word string // unexpanded; only parameter expansion is applied to it
}

// Assignment is a `NAME=VALUE` prefix word on a simple command.
type Assignment struct {
	Name  string
	Value string // unexpanded right-hand side
}

// SimpleCommand is a command name plus its prefix assignments, suffix
// words and redirections, before any expansion has been applied.
type SimpleCommand struct {
	Prefix    []Assignment
	Name      string // may be empty if the command is assignments only
	Suffix    []string
	Redirects []Redirect
}

// CompoundKind identifies which compound command shape a CompoundCommand
// holds.
type CompoundKind int

const (
	BraceGroup CompoundKind = iota
	Subshell
	ForLoop
	CaseStmt
	IfStmt
	WhileLoop
	UntilLoop
)

// CaseItem is a single `pattern) body ;;` clause of a case statement.
type CaseItem struct {
	Patterns []string
	Body     *List
}

// ElifClause is a single `elif cond; then body` clause of an if statement.
type ElifClause struct {
	Cond *List
	Then *List
}

// CompoundCommand is any of the brace group, subshell, for/case/if/while/
// until shapes. Only the fields relevant to Kind are populated.
type CompoundCommand struct {
	Kind CompoundKind

	// BraceGroup, Subshell
	Body *List

	// ForLoop
	ForVar   string
	ForWords []string
	ForBody  *List

	// CaseStmt
	CaseWord  string
	CaseItems []CaseItem

	// IfStmt
	Cond  *List
	Then  *List
	Elifs []ElifClause
	Else  *List

	// WhileLoop, UntilLoop
	LoopCond *List
	LoopBody *List

	Redirects []Redirect
}

// FunctionDefinition binds Name to Body for the lifetime of its owning
// scope.
type FunctionDefinition struct {
	Name      string
	Body      *Command
	Redirects []Redirect
}

// Command is exactly one of Simple, Compound or FuncDef.
type Command struct {
	Simple   *SimpleCommand
	Compound *CompoundCommand
	FuncDef  *FunctionDefinition
}

// Pipeline is a `!`-optional sequence of commands joined by `|`.
type Pipeline struct {
	Commands []*Command
	Negate   bool
}

// AndOrOp is the operator joining one pipeline to the next in an AndOr.
type AndOrOp int

const (
	OpNone AndOrOp = iota
	OpAnd          // &&
	OpOr           // ||
)

// AndOrNode is one pipeline in an AndOr plus the operator that joins it to
// the following node (OpNone on the last node).
type AndOrNode struct {
	Pipeline *Pipeline
	Op       AndOrOp
}

// AndOr is a left-to-right sequence of pipelines joined by && and ||.
type AndOr struct {
	Nodes []AndOrNode
}

// ListItem is one AndOr in a List plus whether it runs in the background.
type ListItem struct {
	AndOr      *AndOr
	Background bool
}

// List is a sequence of AndOrs separated by `;` or `&`.
type List struct {
	Items []ListItem
}

// CompleteCommand is the root of a parsed command line or script.
type CompleteCommand struct {
	List *List
}
