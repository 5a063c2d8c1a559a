// Package parse is a small hand-written recursive-descent reader that
// stands in for the lexer and LALR grammar spec.md treats as an external
// collaborator. It produces the internal/ast tree shape the execution
// engine consumes, and is deliberately scoped only to what the engine's
// CLI and tests need — the simple commands, pipelines, AND/OR lists,
// compound commands, function definitions, redirections and quoting
// forms exercised by this repository's test scenarios. It is not a
// general POSIX shell grammar.
package parse

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/joshuarubin/rsh/internal/ast"
)

// Parser turns shell source text into an *ast.CompleteCommand.
type Parser struct {
	lex *lexer
	tok token
}

// New creates a Parser over src.
func New(src string) *Parser {
	p := &Parser{lex: newLexer(src)}
	p.advance()
	return p
}

// Parse reads one complete command (a full script or line) from src.
func Parse(src string) (*ast.CompleteCommand, error) {
	p := New(src)
	list, err := p.parseList(nil)
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, fmt.Errorf("parse: unexpected token %q", p.tok.text)
	}
	return &ast.CompleteCommand{List: list}, nil
}

func (p *Parser) advance() {
	p.tok = p.lex.next()
}

var assignRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*=`)

func isAssignment(word string) bool {
	return assignRE.MatchString(word)
}

var compoundKeywords = map[string]bool{
	"if": true, "for": true, "while": true, "until": true, "case": true,
}

var stopKeywords = map[string]bool{
	"then": true, "else": true, "elif": true, "fi": true,
	"do": true, "done": true, "esac": true,
}

func (p *Parser) atListEnd(stop map[string]bool) bool {
	switch p.tok.kind {
	case tokEOF, tokRParen, tokRBrace:
		return true
	case tokWord:
		if stopKeywords[p.tok.text] {
			return true
		}
		if stop != nil && stop[p.tok.text] {
			return true
		}
	}
	return false
}

func (p *Parser) skipNewlines() {
	for p.tok.kind == tokNewline {
		p.advance()
	}
}

// parseList reads AndOrs separated by ';', '&' or newlines until EOF or a
// token in stop (a compound-command keyword such as "fi"/"done") is seen.
func (p *Parser) parseList(stop map[string]bool) (*ast.List, error) {
	list := &ast.List{}
	p.skipNewlines()

	for !p.atListEnd(stop) {
		andOr, err := p.parseAndOr()
		if err != nil {
			return nil, err
		}
		if andOr == nil {
			break
		}

		item := ast.ListItem{AndOr: andOr}
		switch p.tok.kind {
		case tokAmp:
			item.Background = true
			p.advance()
		case tokSemi:
			p.advance()
		}
		list.Items = append(list.Items, item)

		p.skipNewlines()
	}

	return list, nil
}

func (p *Parser) parseAndOr() (*ast.AndOr, error) {
	first, err := p.parsePipeline()
	if err != nil {
		return nil, err
	}
	if first == nil {
		return nil, nil
	}

	andOr := &ast.AndOr{}
	pending := first

	for {
		var op ast.AndOrOp
		switch p.tok.kind {
		case tokAndAnd:
			op = ast.OpAnd
		case tokOrOr:
			op = ast.OpOr
		default:
			andOr.Nodes = append(andOr.Nodes, ast.AndOrNode{Pipeline: pending, Op: ast.OpNone})
			return andOr, nil
		}

		andOr.Nodes = append(andOr.Nodes, ast.AndOrNode{Pipeline: pending, Op: op})
		p.advance()
		p.skipNewlines()

		pending, err = p.parsePipeline()
		if err != nil {
			return nil, err
		}
		if pending == nil {
			return nil, fmt.Errorf("parse: expected pipeline after %v", op)
		}
	}
}

func (p *Parser) parsePipeline() (*ast.Pipeline, error) {
	negate := false
	if p.tok.kind == tokWord && p.tok.text == "!" {
		negate = true
		p.advance()
	}

	cmd, err := p.parseCommand()
	if err != nil {
		return nil, err
	}
	if cmd == nil {
		if negate {
			return nil, fmt.Errorf("parse: expected command after !")
		}
		return nil, nil
	}

	pipeline := &ast.Pipeline{Commands: []*ast.Command{cmd}, Negate: negate}

	for p.tok.kind == tokPipe {
		p.advance()
		p.skipNewlines()
		next, err := p.parseCommand()
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, fmt.Errorf("parse: expected command after |")
		}
		pipeline.Commands = append(pipeline.Commands, next)
	}

	return pipeline, nil
}

func (p *Parser) parseCommand() (*ast.Command, error) {
	switch p.tok.kind {
	case tokLBrace:
		return p.parseBraceGroup()
	case tokLParen:
		return p.parseSubshell()
	case tokWord:
		if compoundKeywords[p.tok.text] {
			return p.parseCompoundKeyword()
		}
		if fn, err, ok := p.tryParseFunctionDefinition(); ok {
			return fn, err
		}
	}

	return p.parseSimpleCommand()
}

func (p *Parser) tryParseFunctionDefinition() (*ast.Command, error, bool) {
	// Lookahead for NAME '(' ')' without consuming on failure; this parser
	// has no token pushback, so snapshot the lexer position instead.
	save := *p.lex
	saveTok := p.tok

	name := p.tok.text
	p.advance()
	if p.tok.kind != tokLParen {
		*p.lex = save
		p.tok = saveTok
		return nil, nil, false
	}
	p.advance()
	if p.tok.kind != tokRParen {
		*p.lex = save
		p.tok = saveTok
		return nil, nil, false
	}
	p.advance()
	p.skipNewlines()

	body, err := p.parseCommand()
	if err != nil {
		return nil, err, true
	}
	if body == nil {
		return nil, fmt.Errorf("parse: expected function body for %q", name), true
	}

	return &ast.Command{FuncDef: &ast.FunctionDefinition{Name: name, Body: body}}, nil, true
}

func (p *Parser) parseBraceGroup() (*ast.Command, error) {
	p.advance() // consume '{'
	body, err := p.parseList(nil)
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokRBrace {
		return nil, fmt.Errorf("parse: expected } to close brace group")
	}
	p.advance()
	cc := &ast.CompoundCommand{Kind: ast.BraceGroup, Body: body}
	p.parseTrailingRedirects(&cc.Redirects)
	return &ast.Command{Compound: cc}, nil
}

func (p *Parser) parseSubshell() (*ast.Command, error) {
	p.advance() // consume '('
	body, err := p.parseList(nil)
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokRParen {
		return nil, fmt.Errorf("parse: expected ) to close subshell")
	}
	p.advance()
	cc := &ast.CompoundCommand{Kind: ast.Subshell, Body: body}
	p.parseTrailingRedirects(&cc.Redirects)
	return &ast.Command{Compound: cc}, nil
}

func (p *Parser) expectWord(kw string) error {
	if p.tok.kind != tokWord || p.tok.text != kw {
		return fmt.Errorf("parse: expected %q, got %q", kw, p.tok.text)
	}
	p.advance()
	return nil
}

func (p *Parser) parseCompoundKeyword() (*ast.Command, error) {
	switch p.tok.text {
	case "if":
		return p.parseIf()
	case "for":
		return p.parseFor()
	case "while":
		return p.parseWhileUntil(ast.WhileLoop)
	case "until":
		return p.parseWhileUntil(ast.UntilLoop)
	case "case":
		return p.parseCase()
	}
	return nil, fmt.Errorf("parse: unreachable compound keyword %q", p.tok.text)
}

func (p *Parser) parseIf() (*ast.Command, error) {
	if err := p.expectWord("if"); err != nil {
		return nil, err
	}
	cond, err := p.parseList(stopKeywords)
	if err != nil {
		return nil, err
	}
	if err := p.expectWord("then"); err != nil {
		return nil, err
	}
	then, err := p.parseList(stopKeywords)
	if err != nil {
		return nil, err
	}

	cc := &ast.CompoundCommand{Kind: ast.IfStmt, Cond: cond, Then: then}

	for p.tok.kind == tokWord && p.tok.text == "elif" {
		p.advance()
		elifCond, err := p.parseList(stopKeywords)
		if err != nil {
			return nil, err
		}
		if err := p.expectWord("then"); err != nil {
			return nil, err
		}
		elifThen, err := p.parseList(stopKeywords)
		if err != nil {
			return nil, err
		}
		cc.Elifs = append(cc.Elifs, ast.ElifClause{Cond: elifCond, Then: elifThen})
	}

	if p.tok.kind == tokWord && p.tok.text == "else" {
		p.advance()
		elseBody, err := p.parseList(stopKeywords)
		if err != nil {
			return nil, err
		}
		cc.Else = elseBody
	}

	if err := p.expectWord("fi"); err != nil {
		return nil, err
	}
	p.parseTrailingRedirects(&cc.Redirects)
	return &ast.Command{Compound: cc}, nil
}

func (p *Parser) parseFor() (*ast.Command, error) {
	if err := p.expectWord("for"); err != nil {
		return nil, err
	}
	if p.tok.kind != tokWord {
		return nil, fmt.Errorf("parse: expected loop variable after for")
	}
	varName := p.tok.text
	p.advance()
	p.skipNewlines()

	cc := &ast.CompoundCommand{Kind: ast.ForLoop, ForVar: varName}

	if p.tok.kind == tokWord && p.tok.text == "in" {
		p.advance()
		for p.tok.kind == tokWord {
			cc.ForWords = append(cc.ForWords, p.tok.text)
			p.advance()
		}
		if p.tok.kind == tokSemi {
			p.advance()
		}
	}
	p.skipNewlines()

	if err := p.expectWord("do"); err != nil {
		return nil, err
	}
	body, err := p.parseList(stopKeywords)
	if err != nil {
		return nil, err
	}
	cc.ForBody = body
	if err := p.expectWord("done"); err != nil {
		return nil, err
	}
	p.parseTrailingRedirects(&cc.Redirects)
	return &ast.Command{Compound: cc}, nil
}

func (p *Parser) parseWhileUntil(kind ast.CompoundKind) (*ast.Command, error) {
	p.advance() // consume "while" / "until"
	cond, err := p.parseList(stopKeywords)
	if err != nil {
		return nil, err
	}
	if err := p.expectWord("do"); err != nil {
		return nil, err
	}
	body, err := p.parseList(stopKeywords)
	if err != nil {
		return nil, err
	}
	if err := p.expectWord("done"); err != nil {
		return nil, err
	}
	cc := &ast.CompoundCommand{Kind: kind, LoopCond: cond, LoopBody: body}
	p.parseTrailingRedirects(&cc.Redirects)
	return &ast.Command{Compound: cc}, nil
}

func (p *Parser) parseCase() (*ast.Command, error) {
	if err := p.expectWord("case"); err != nil {
		return nil, err
	}
	if p.tok.kind != tokWord {
		return nil, fmt.Errorf("parse: expected word after case")
	}
	word := p.tok.text
	p.advance()
	p.skipNewlines()
	if err := p.expectWord("in"); err != nil {
		return nil, err
	}
	p.skipNewlines()

	cc := &ast.CompoundCommand{Kind: ast.CaseStmt, CaseWord: word}

	for !(p.tok.kind == tokWord && p.tok.text == "esac") {
		if p.tok.kind == tokLParen {
			p.advance()
		}
		var patterns []string
		for {
			if p.tok.kind != tokWord {
				return nil, fmt.Errorf("parse: expected case pattern")
			}
			patterns = append(patterns, p.tok.text)
			p.advance()
			if p.tok.kind == tokPipe {
				p.advance()
				continue
			}
			break
		}
		if p.tok.kind != tokRParen {
			return nil, fmt.Errorf("parse: expected ) after case pattern")
		}
		p.advance()
		p.skipNewlines()

		body, err := p.parseList(map[string]bool{"esac": true})
		if err != nil {
			return nil, err
		}
		cc.CaseItems = append(cc.CaseItems, ast.CaseItem{Patterns: patterns, Body: body})

		// optional ';;' terminator
		for p.tok.kind == tokSemi {
			p.advance()
		}
		p.skipNewlines()
	}

	if err := p.expectWord("esac"); err != nil {
		return nil, err
	}
	p.parseTrailingRedirects(&cc.Redirects)
	return &ast.Command{Compound: cc}, nil
}

func redirectOpFor(kind tokKind) (ast.RedirectOp, int) {
	switch kind {
	case tokLess:
		return ast.RedirIn, 0
	case tokDGreat:
		return ast.RedirAppend, 1
	default:
		return ast.RedirOut, 1
	}
}

// parseTrailingRedirects consumes any redirections immediately following
// a compound command, e.g. `{ ... } > out`.
func (p *Parser) parseTrailingRedirects(out *[]ast.Redirect) {
	for {
		r, ok := p.tryParseRedirect()
		if !ok {
			return
		}
		*out = append(*out, r)
	}
}

func (p *Parser) tryParseRedirect() (ast.Redirect, bool) {
	fd := -1
	if p.tok.kind == tokIONumber {
		n, _ := strconv.Atoi(p.tok.text)
		fd = n
		p.advance()
	}

	switch p.tok.kind {
	case tokLess, tokGreat, tokDGreat:
		op, defFD := redirectOpFor(p.tok.kind)
		if fd == -1 {
			fd = defFD
		}
		p.advance()
		if p.tok.kind != tokWord {
			return ast.Redirect{}, false
		}
		word := p.tok.text
		p.advance()
		return ast.Redirect{FD: fd, Op: op, Word: word}, true
	}

	return ast.Redirect{}, false
}

func (p *Parser) parseSimpleCommand() (*ast.Command, error) {
	sc := &ast.SimpleCommand{}

	// Prefix assignments and leading redirects.
	for {
		if r, ok := p.tryParseRedirect(); ok {
			sc.Redirects = append(sc.Redirects, r)
			continue
		}
		if p.tok.kind == tokWord && isAssignment(p.tok.text) {
			name, value, _ := cutAssignment(p.tok.text)
			sc.Prefix = append(sc.Prefix, ast.Assignment{Name: name, Value: value})
			p.advance()
			continue
		}
		break
	}

	if p.tok.kind == tokWord {
		sc.Name = p.tok.text
		p.advance()
	}

	for {
		if r, ok := p.tryParseRedirect(); ok {
			sc.Redirects = append(sc.Redirects, r)
			continue
		}
		if p.tok.kind == tokWord {
			sc.Suffix = append(sc.Suffix, p.tok.text)
			p.advance()
			continue
		}
		break
	}

	if sc.Name == "" && len(sc.Prefix) == 0 && len(sc.Suffix) == 0 && len(sc.Redirects) == 0 {
		return nil, nil
	}

	return &ast.Command{Simple: sc}, nil
}

func cutAssignment(word string) (name, value string, ok bool) {
	for i, r := range word {
		if r == '=' {
			return word[:i], word[i+1:], true
		}
	}
	return word, "", false
}
