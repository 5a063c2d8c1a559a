package ast

import (
	"fmt"
	"strconv"
	"strings"
)

// Print renders cc back into shell source text. It is not required to
// reproduce the original formatting, only to produce text that parses
// back to an equivalent tree — execengine relies on this to reconstruct
// a single pipeline stage's source when it has to hand that stage to a
// forked child process via a self re-exec.
func Print(cc *CompleteCommand) string {
	var sb strings.Builder
	if cc != nil {
		printList(&sb, cc.List)
	}
	return sb.String()
}

func printList(sb *strings.Builder, l *List) {
	if l == nil {
		return
	}
	for i, item := range l.Items {
		if i > 0 {
			sb.WriteString("; ")
		}
		printAndOr(sb, item.AndOr)
		if item.Background {
			sb.WriteString(" &")
		}
	}
}

func printAndOr(sb *strings.Builder, ao *AndOr) {
	if ao == nil {
		return
	}
	for i, node := range ao.Nodes {
		printPipeline(sb, node.Pipeline)
		switch node.Op {
		case OpAnd:
			sb.WriteString(" && ")
		case OpOr:
			sb.WriteString(" || ")
		}
		_ = i
	}
}

func printPipeline(sb *strings.Builder, p *Pipeline) {
	if p == nil {
		return
	}
	if p.Negate {
		sb.WriteString("! ")
	}
	for i, c := range p.Commands {
		if i > 0 {
			sb.WriteString(" | ")
		}
		printCommand(sb, c)
	}
}

func printCommand(sb *strings.Builder, c *Command) {
	if c == nil {
		return
	}
	switch {
	case c.Simple != nil:
		printSimple(sb, c.Simple)
	case c.Compound != nil:
		printCompound(sb, c.Compound)
	case c.FuncDef != nil:
		fmt.Fprintf(sb, "%s() ", c.FuncDef.Name)
		printCommand(sb, c.FuncDef.Body)
	}
}

func printSimple(sb *strings.Builder, s *SimpleCommand) {
	parts := make([]string, 0, len(s.Prefix)+1+len(s.Suffix))
	for _, a := range s.Prefix {
		parts = append(parts, a.Name+"="+a.Value)
	}
	if s.Name != "" {
		parts = append(parts, s.Name)
	}
	parts = append(parts, s.Suffix...)
	sb.WriteString(strings.Join(parts, " "))
	printRedirects(sb, s.Redirects)
}

func printRedirects(sb *strings.Builder, rs []Redirect) {
	for _, r := range rs {
		sb.WriteByte(' ')
		if r.FD >= 0 {
			sb.WriteString(strconv.Itoa(r.FD))
		}
		switch r.Op {
		case RedirIn:
			sb.WriteByte('<')
		case RedirAppend:
			sb.WriteString(">>")
		default:
			sb.WriteByte('>')
		}
		sb.WriteString(r.Word)
	}
}

func printCompound(sb *strings.Builder, cc *CompoundCommand) {
	switch cc.Kind {
	case BraceGroup:
		sb.WriteString("{ ")
		printList(sb, cc.Body)
		sb.WriteString("; }")
	case Subshell:
		sb.WriteString("(")
		printList(sb, cc.Body)
		sb.WriteString(")")
	case ForLoop:
		fmt.Fprintf(sb, "for %s", cc.ForVar)
		if len(cc.ForWords) > 0 {
			sb.WriteString(" in " + strings.Join(cc.ForWords, " "))
		}
		sb.WriteString("; do ")
		printList(sb, cc.ForBody)
		sb.WriteString("; done")
	case CaseStmt:
		fmt.Fprintf(sb, "case %s in ", cc.CaseWord)
		for _, item := range cc.CaseItems {
			sb.WriteString(strings.Join(item.Patterns, "|"))
			sb.WriteString(") ")
			printList(sb, item.Body)
			sb.WriteString(" ;; ")
		}
		sb.WriteString("esac")
	case IfStmt:
		sb.WriteString("if ")
		printList(sb, cc.Cond)
		sb.WriteString("; then ")
		printList(sb, cc.Then)
		for _, e := range cc.Elifs {
			sb.WriteString("; elif ")
			printList(sb, e.Cond)
			sb.WriteString("; then ")
			printList(sb, e.Then)
		}
		if cc.Else != nil {
			sb.WriteString("; else ")
			printList(sb, cc.Else)
		}
		sb.WriteString("; fi")
	case WhileLoop, UntilLoop:
		if cc.Kind == WhileLoop {
			sb.WriteString("while ")
		} else {
			sb.WriteString("until ")
		}
		printList(sb, cc.LoopCond)
		sb.WriteString("; do ")
		printList(sb, cc.LoopBody)
		sb.WriteString("; done")
	}
	printRedirects(sb, cc.Redirects)
}
