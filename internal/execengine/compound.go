package execengine

import (
	"fmt"
	"strings"

	"github.com/joshuarubin/rsh/internal/ast"
	"github.com/joshuarubin/rsh/internal/builtin"
)

// runCompound dispatches to each compound-command shape, run against the
// current context (spec.md §4.6: "evaluated against the current
// context"). Subshells additionally push a scope; they are not run in a
// separate process.
func (e *Executor) runCompound(cc *ast.CompoundCommand) (int, error) {
	switch cc.Kind {
	case ast.BraceGroup:
		return e.runList(cc.Body)
	case ast.Subshell:
		return e.runSubshell(cc)
	case ast.ForLoop:
		return e.runFor(cc)
	case ast.WhileLoop:
		return e.runWhileUntil(cc, false)
	case ast.UntilLoop:
		return e.runWhileUntil(cc, true)
	case ast.IfStmt:
		return e.runIf(cc)
	case ast.CaseStmt:
		return e.runCase(cc)
	}
	return 0, nil
}

// runSubshell runs body in the shell's own process inside a pushed scope
// that is popped on return. The subshell itself is not forked; external
// commands inside it fork as ordinary pipelines. Variables first created
// inside the body are discarded with the scope, but assignments to a
// name already bound in an outer scope update that outer binding, and
// changes to process state such as the working directory (`cd`) remain
// after the subshell returns.
func (e *Executor) runSubshell(cc *ast.CompoundCommand) (int, error) {
	e.Ctx.Push(nil)
	defer func() { _, _ = e.Ctx.Pop() }()
	return e.runList(cc.Body)
}

func (e *Executor) runFor(cc *ast.CompoundCommand) (int, error) {
	words := cc.ForWords
	if words == nil {
		// `for x; do ...` iterates the positional parameters.
		count, _ := strconvAtoiSafe(e.Ctx.Value("#"))
		for i := 1; i <= count; i++ {
			words = append(words, e.Ctx.Value(fmt.Sprint(i)))
		}
	}

	code := 0
	for _, w := range words {
		expanded, err := e.Expander.Expand(&ast.SimpleCommand{Suffix: []string{w}})
		val := w
		if err == nil && len(expanded.Argv) > 0 {
			val = strings.Join(expanded.Argv, " ")
		}
		_ = e.Ctx.Assign(cc.ForVar, val)

		var cerr error
		code, cerr = e.runList(cc.ForBody)
		if br, ok := cerr.(builtin.ErrBreak); ok {
			if br.N > 1 {
				return code, builtin.ErrBreak{N: br.N - 1}
			}
			return code, nil
		}
		if ct, ok := cerr.(builtin.ErrContinue); ok {
			if ct.N > 1 {
				return code, builtin.ErrContinue{N: ct.N - 1}
			}
			continue
		}
		if cerr != nil {
			return code, cerr
		}
	}
	return code, nil
}

func strconvAtoiSafe(s string) (int, error) {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("not a number")
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}

func (e *Executor) runWhileUntil(cc *ast.CompoundCommand, until bool) (int, error) {
	code := 0
	for {
		condCode, cerr := e.runList(cc.LoopCond)
		if cerr != nil {
			return condCode, cerr
		}
		truthy := condCode == 0
		if until {
			truthy = !truthy
		}
		if !truthy {
			break
		}

		var bodyErr error
		code, bodyErr = e.runList(cc.LoopBody)
		if br, ok := bodyErr.(builtin.ErrBreak); ok {
			if br.N > 1 {
				return code, builtin.ErrBreak{N: br.N - 1}
			}
			break
		}
		if ct, ok := bodyErr.(builtin.ErrContinue); ok {
			if ct.N > 1 {
				return code, builtin.ErrContinue{N: ct.N - 1}
			}
			continue
		}
		if bodyErr != nil {
			return code, bodyErr
		}
	}
	return code, nil
}

func (e *Executor) runIf(cc *ast.CompoundCommand) (int, error) {
	code, err := e.runList(cc.Cond)
	if err != nil {
		return code, err
	}
	if code == 0 {
		return e.runList(cc.Then)
	}
	for _, elif := range cc.Elifs {
		code, err = e.runList(elif.Cond)
		if err != nil {
			return code, err
		}
		if code == 0 {
			return e.runList(elif.Then)
		}
	}
	if cc.Else != nil {
		return e.runList(cc.Else)
	}
	return 0, nil
}

func (e *Executor) runCase(cc *ast.CompoundCommand) (int, error) {
	expanded, _ := e.Expander.Expand(&ast.SimpleCommand{Suffix: []string{cc.CaseWord}})
	word := cc.CaseWord
	if len(expanded.Argv) > 0 {
		word = strings.Join(expanded.Argv, " ")
	}

	for _, item := range cc.CaseItems {
		for _, pat := range item.Patterns {
			if casePatternMatch(pat, word) {
				return e.runList(item.Body)
			}
		}
	}
	return 0, nil
}

// casePatternMatch supports the glob subset '*' and '?' used by case
// patterns, via path.Match's shell-glob-compatible semantics.
func casePatternMatch(pattern, s string) bool {
	matched, err := globMatch(pattern, s)
	return err == nil && matched
}
