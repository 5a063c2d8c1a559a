// Package expand implements the Expander: the ordered, pure rewrite of a
// parsed SimpleCommand's words into a final argv, prefix-assignment list
// and redirection list ready for the Executor to act on.
package expand

import (
	"strings"

	"github.com/joshuarubin/rsh/internal/ast"
	"github.com/joshuarubin/rsh/internal/shellcontext"
)

// Substituter runs src (the text inside a $(...) or `...` form) as a
// complete command and returns its captured, newline-trimmed stdout. The
// Executor supplies the real implementation; Expander only calls through
// this seam so that package expand need not import package execengine
// (which itself imports expand to rewrite each simple command it runs).
type Substituter func(src string) (string, error)

// Expander applies spec's six ordered passes to one SimpleCommand.
type Expander struct {
	ctx         *shellcontext.Manager
	substituter Substituter
}

// New creates an Expander bound to ctx. SetSubstituter must be called
// before any word containing $(...) or `...` is expanded.
func New(ctx *shellcontext.Manager) *Expander {
	return &Expander{ctx: ctx}
}

// SetSubstituter installs the command-substitution callback.
func (e *Expander) SetSubstituter(s Substituter) { e.substituter = s }

// Result is the pure output of expanding one SimpleCommand: a ready argv
// (Name plus trailing words), the prefix assignments with their
// right-hand sides expanded, and the unchanged redirect list.
type Result struct {
	Assignments []ast.Assignment
	Argv        []string
	Redirects   []ast.Redirect
}

// Expand runs the six passes over sc and returns the resulting argv.
func (e *Expander) Expand(sc *ast.SimpleCommand) (*Result, error) {
	res := &Result{Redirects: sc.Redirects}

	for _, a := range sc.Prefix {
		val, err := e.expandWord(a.Value)
		if err != nil {
			return nil, err
		}
		res.Assignments = append(res.Assignments, ast.Assignment{Name: a.Name, Value: strings.Join(val, "")})
	}

	words := make([]string, 0, 1+len(sc.Suffix))
	if sc.Name != "" {
		words = append(words, sc.Name)
	}
	words = append(words, sc.Suffix...)

	// Pass 1: alias resolution, first token only, not recursive.
	if len(words) > 0 {
		if expansion, ok := e.ctx.GetAlias(words[0]); ok {
			tail := splitFields(expansion)
			words = append(tail, words[1:]...)
		}
	}

	var argv []string
	for i, w := range words {
		isCommandName := i == 0
		fields, err := e.expandWordFields(w, isCommandName)
		if err != nil {
			return nil, err
		}
		argv = append(argv, fields...)
	}
	res.Argv = argv

	return res, nil
}

// expandWord runs passes 2, 3, 4 and 6 on w (used for assignment
// right-hand sides, which are not field-split per spec.md §4.5
// "Assignments in the prefix are expanded on their right-hand side
// only") and returns it as a single-element slice to share code with
// expandWordFields.
func (e *Expander) expandWord(w string) ([]string, error) {
	rewritten, _, err := e.rewriteWord(w)
	if err != nil {
		return nil, err
	}
	return []string{stripQuotes(rewritten)}, nil
}

// expandWordFields runs the full pass pipeline on w, including field
// splitting, and returns the resulting fields. Single-quoted words are
// passed through bypassing passes 2-5.
func (e *Expander) expandWordFields(w string, isCommandName bool) ([]string, error) {
	if isFullySingleQuoted(w) {
		return []string{stripQuotes(w)}, nil
	}

	rewritten, _, err := e.rewriteWord(w)
	if err != nil {
		return nil, err
	}

	if isFullySingleQuoted(rewritten) || isFullyDoubleQuoted(w) {
		return []string{stripQuotes(rewritten)}, nil
	}

	fields := splitFields(rewritten)
	for i, f := range fields {
		fields[i] = stripQuotes(f)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return fields, nil
}

func isFullySingleQuoted(w string) bool {
	return len(w) >= 2 && w[0] == '\'' && w[len(w)-1] == '\''
}

func isFullyDoubleQuoted(w string) bool {
	return len(w) >= 2 && w[0] == '"' && w[len(w)-1] == '"'
}

// rewriteWord applies passes 2 (double-quote rewrite), 3 (command
// substitution) and 4 (parameter expansion) to w, honoring single-quote
// bypass throughout, and returns the rewritten text.
func (e *Expander) rewriteWord(w string) (string, bool, error) {
	var sb strings.Builder
	runes := []rune(w)
	i := 0
	for i < len(runes) {
		c := runes[i]

		switch c {
		case '\'':
			j := i + 1
			for j < len(runes) && runes[j] != '\'' {
				j++
			}
			if j < len(runes) {
				j++
			}
			sb.WriteString(string(runes[i:j]))
			i = j
			continue

		case '"':
			// Expand the interior so that $(...) / `...` / $VAR inside it
			// still expand, per pass 2, and keep the outer pair so field
			// splitting treats the segment as one field; stripQuotes
			// removes it later.
			j := i + 1
			depth := 0
			for j < len(runes) {
				if runes[j] == '\\' && j+1 < len(runes) {
					j += 2
					continue
				}
				if runes[j] == '`' {
					depth ^= 1
				}
				if runes[j] == '"' && depth == 0 {
					break
				}
				j++
			}
			inner := string(runes[i+1 : min(j, len(runes))])
			expanded, err := e.expandSubstitutionsAndParams(inner, true)
			if err != nil {
				return "", false, err
			}
			sb.WriteString(`"`)
			sb.WriteString(expanded)
			sb.WriteString(`"`)
			if j < len(runes) {
				j++
			}
			i = j
			continue

		case '$', '`':
			seg, consumed, err := e.expandOneSubstitutionOrParam(string(runes[i:]))
			if err != nil {
				return "", false, err
			}
			sb.WriteString(seg)
			i += consumed
			continue

		default:
			sb.WriteRune(c)
			i++
		}
	}
	return sb.String(), false, nil
}

// expandSubstitutionsAndParams runs passes 3 and 4 across s without
// touching single-quote runs (there are none inside double quotes) and
// without re-adding quote characters, used for the interior of a
// double-quoted segment.
func (e *Expander) expandSubstitutionsAndParams(s string, _ bool) (string, error) {
	var sb strings.Builder
	runes := []rune(s)
	i := 0
	for i < len(runes) {
		c := runes[i]
		if c == '$' || c == '`' {
			seg, consumed, err := e.expandOneSubstitutionOrParam(string(runes[i:]))
			if err != nil {
				return "", err
			}
			sb.WriteString(seg)
			i += consumed
			continue
		}
		if c == '\\' && i+1 < len(runes) {
			sb.WriteRune(runes[i+1])
			i += 2
			continue
		}
		sb.WriteRune(c)
		i++
	}
	return sb.String(), nil
}

// expandOneSubstitutionOrParam expands the $(...)/`...`/$NAME/${NAME}
// form beginning at the start of s and reports how many runes it
// consumed.
func (e *Expander) expandOneSubstitutionOrParam(s string) (string, int, error) {
	runes := []rune(s)

	if runes[0] == '$' && len(runes) > 1 && runes[1] == '(' {
		depth := 1
		j := 2
		for j < len(runes) && depth > 0 {
			switch runes[j] {
			case '(':
				depth++
			case ')':
				depth--
			}
			j++
		}
		inner := string(runes[2 : j-1])
		out, err := e.runSubstitution(inner)
		return out, j, err
	}

	if runes[0] == '`' {
		j := 1
		for j < len(runes) && runes[j] != '`' {
			if runes[j] == '\\' && j+1 < len(runes) {
				j += 2
				continue
			}
			j++
		}
		inner := string(runes[1:j])
		if j < len(runes) {
			j++
		}
		out, err := e.runSubstitution(inner)
		return out, j, err
	}

	if runes[0] == '$' {
		if len(runes) > 1 && runes[1] == '{' {
			j := 2
			for j < len(runes) && runes[j] != '}' {
				j++
			}
			name := string(runes[2:j])
			if j < len(runes) {
				j++
			}
			return e.ctx.Value(name), j, nil
		}

		// Single-character special parameters ($?, $!, $$, $#, $@, $*, $0-$9
		// as a single digit) consume exactly one rune after the '$'.
		if len(runes) > 1 && isSpecialParamRune(runes[1]) {
			return e.ctx.Value(string(runes[1])), 2, nil
		}

		j := 1
		for j < len(runes) && isNameRune(runes[j]) {
			j++
		}
		if j == 1 {
			// Bare '$' not followed by a name: literal dollar sign.
			return "$", 1, nil
		}
		name := string(runes[1:j])
		return e.ctx.Value(name), j, nil
	}

	return string(runes[0]), 1, nil
}

func isSpecialParamRune(r rune) bool {
	switch r {
	case '?', '!', '$', '#', '@', '*':
		return true
	}
	return false
}

func isNameRune(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func (e *Expander) runSubstitution(src string) (string, error) {
	if e.substituter == nil {
		return "", nil
	}
	out, err := e.substituter(src)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(out, "\n"), nil
}

// splitFields splits s on runs of whitespace outside single/double
// quotes, keeping quoted runs (including their quote characters) intact
// as single fields for later stripQuotes calls.
func splitFields(s string) []string {
	var fields []string
	var cur strings.Builder
	inSingle, inDouble := false, false
	flush := func() {
		if cur.Len() > 0 {
			fields = append(fields, cur.String())
			cur.Reset()
		}
	}

	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case c == '\'' && !inDouble:
			inSingle = !inSingle
			cur.WriteRune(c)
		case c == '"' && !inSingle:
			inDouble = !inDouble
			cur.WriteRune(c)
		case (c == ' ' || c == '\t' || c == '\n') && !inSingle && !inDouble:
			flush()
		default:
			cur.WriteRune(c)
		}
	}
	flush()
	return fields
}

// stripQuotes runs pass 6: removes any remaining literal quote
// characters and backslash escape markers from a field that has already
// had substitution and parameter expansion applied.
func stripQuotes(s string) string {
	var sb strings.Builder
	inSingle := false
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case c == '\'' && !inSingle:
			inSingle = true
		case c == '\'' && inSingle:
			inSingle = false
		case c == '"':
			// outer pair already stripped by rewriteWord; any remaining
			// quote here is an inner literal produced by $()/params, drop it
		case c == '\\' && !inSingle && i+1 < len(runes):
			sb.WriteRune(runes[i+1])
			i++
		default:
			sb.WriteRune(c)
		}
	}
	return sb.String()
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
