package search

import (
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokTerm tokenKind = iota
	tokAnd
	tokOr
	tokNot
	tokOpen
	tokClose
)

type token struct {
	kind   tokenKind
	text   string
	quoted bool
}

func (t token) binary() bool { return t.kind == tokAnd || t.kind == tokOr }

// operand reports whether an implicit AND is needed between t and a
// following operand.
func (t token) operand() bool { return t.kind == tokTerm || t.kind == tokClose }

var operators = map[rune]tokenKind{
	'&': tokAnd,
	'|': tokOr,
	'!': tokNot,
	'(': tokOpen,
	')': tokClose,
}

func isQuote(r rune) bool { return r == '"' || r == '\'' }

// scan splits the input into raw tokens. A quoted term runs to the
// matching quote, or to the end of the input when it is not closed. An
// unquoted term runs to the next space or operator; quotes inside it are
// kept.
func scan(s string) []token {
	var (
		toks []token
		rs   = []rune(s)
	)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case isOperator(r):
			toks = append(toks, token{kind: operators[r], text: string(r)})
			i++
		case isQuote(r):
			j := i + 1
			for j < len(rs) && rs[j] != r {
				j++
			}
			if j < len(rs) {
				j++
			}
			toks = append(toks, token{kind: tokTerm, text: string(rs[i:j]), quoted: true})
			i = j
		default:
			j := i
			for j < len(rs) && !unicode.IsSpace(rs[j]) && !isOperator(rs[j]) {
				j++
			}
			toks = append(toks, token{kind: tokTerm, text: string(rs[i:j])})
			i = j
		}
	}
	return toks
}

func isOperator(r rune) bool {
	_, ok := operators[r]
	return ok
}

// normalize repairs a raw token stream so that it always parses:
//
//   - unbalanced closing parentheses are dropped and open ones closed;
//   - binary operators at the start, at the end, after '(' or '!' and
//     before ')' are dropped;
//   - consecutive binary operators collapse to the last one;
//   - adjacent operands are joined with an implicit AND.
func normalize(raw []token) []token {
	var (
		out   []token
		depth int
	)
	last := func() (token, bool) {
		if len(out) == 0 {
			return token{}, false
		}
		return out[len(out)-1], true
	}
	trimBinary := func() {
		if t, ok := last(); ok && t.binary() {
			out = out[:len(out)-1]
		}
	}
	for _, t := range raw {
		prev, ok := last()
		switch t.kind {
		case tokClose:
			if depth == 0 {
				continue
			}
			trimBinary()
			depth--
			out = append(out, t)
		case tokAnd, tokOr:
			switch {
			case !ok, prev.kind == tokOpen, prev.kind == tokNot:
			case prev.binary():
				out[len(out)-1] = t
			default:
				out = append(out, t)
			}
		default:
			if ok && prev.operand() {
				out = append(out, token{kind: tokAnd, text: "&"})
			}
			if t.kind == tokOpen {
				depth++
			}
			out = append(out, t)
		}
	}
	trimBinary()
	for ; depth > 0; depth-- {
		out = append(out, token{kind: tokClose, text: ")"})
	}
	return out
}

// sanitize strips surrounding quotes and escapes the term for a tsquery
// quoted lexeme.
func sanitize(s string) string {
	s = strings.Trim(s, `'"`)
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
