package search

import "strings"

// node is a parsed search expression. A nil node is empty and renders as
// nothing.
type node interface {
	render(b *strings.Builder)
}

type (
	term struct {
		text   string
		prefix bool
	}
	not   struct{ x node }
	and   struct{ l, r node }
	or    struct{ l, r node }
	group struct{ x node }
)

func (t term) render(b *strings.Builder) {
	b.WriteByte('\'')
	b.WriteString(t.text)
	b.WriteByte('\'')
	if t.prefix {
		b.WriteString(":*")
	}
}

func (n not) render(b *strings.Builder) {
	b.WriteByte('!')
	switch n.x.(type) {
	case and, or:
		group{n.x}.render(b)
	default:
		n.x.render(b)
	}
}

func (n and) render(b *strings.Builder) {
	operand(n.l).render(b)
	b.WriteString(" & ")
	operand(n.r).render(b)
}

// operand groups a disjunction used as an operand of &.
func operand(x node) node {
	if _, ok := x.(or); ok {
		return group{x}
	}
	return x
}

func (n or) render(b *strings.Builder) {
	n.l.render(b)
	b.WriteString(" | ")
	n.r.render(b)
}

func (g group) render(b *strings.Builder) {
	x := g.x
	if inner, ok := x.(group); ok {
		x = inner.x
	}
	b.WriteByte('(')
	x.render(b)
	b.WriteByte(')')
}

// Parse converts a web-style search phrase into to_tsquery text.
//
// Terms are joined with & unless separated by | (or), and can be negated
// with ! and grouped with parentheses. Quoted terms match the exact
// phrase. With prefix set, unquoted terms also match words they are a
// prefix of. Malformed input is repaired rather than rejected: stray
// operators are dropped and parentheses balanced. Parse returns an empty
// string when nothing searchable is left.
func Parse(text string, prefix bool) string {
	p := &parser{toks: normalize(scan(text)), prefix: prefix}
	var expr node
	for p.pos < len(p.toks) {
		start := p.pos
		expr = conj(expr, p.disjunction())
		if p.pos == start {
			p.pos++
		}
	}
	if expr == nil {
		return ""
	}
	var b strings.Builder
	operand(expr).render(&b)
	return b.String()
}

type parser struct {
	toks   []token
	pos    int
	prefix bool
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) accept(k tokenKind) bool {
	if p.pos < len(p.toks) && p.toks[p.pos].kind == k {
		p.pos++
		return true
	}
	return false
}

func (p *parser) disjunction() node {
	x := p.conjunction()
	for p.accept(tokOr) {
		x = disj(x, p.conjunction())
	}
	return x
}

func (p *parser) conjunction() node {
	x := p.unary()
	for p.accept(tokAnd) {
		x = conj(x, p.unary())
	}
	return x
}

func (p *parser) unary() node {
	if p.pos >= len(p.toks) {
		return nil
	}
	switch t := p.peek(); t.kind {
	case tokNot:
		p.pos++
		if x := p.unary(); x != nil {
			return not{x}
		}
		return nil
	case tokOpen:
		p.pos++
		x := p.disjunction()
		p.accept(tokClose)
		if x == nil {
			return nil
		}
		return group{x}
	case tokTerm:
		p.pos++
		text := sanitize(t.text)
		if text == "" {
			return nil
		}
		return term{text: text, prefix: p.prefix && !t.quoted}
	}
	return nil
}

// conj and disj combine two nodes, skipping empty ones.
func conj(l, r node) node {
	switch {
	case l == nil:
		return r
	case r == nil:
		return l
	}
	return and{l, r}
}

func disj(l, r node) node {
	switch {
	case l == nil:
		return r
	case r == nil:
		return l
	}
	return or{l, r}
}
