package formula

import "strings"

const (
	maxExpressionLen = 4096
	maxDepth         = 64
)

type parser struct {
	tokens []token
	pos    int
	depth  int
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind tokenKind) (token, error) {
	t := p.next()
	if t.kind != kind {
		return t, newError(ErrSyntax, t.pos, "expected %s, got %s", kind, describe(t))
	}
	return t, nil
}

func describe(t token) string {
	if t.text != "" {
		return "'" + t.text + "'"
	}
	return t.kind.String()
}

func parse(src string) (node, error) {
	if len(src) > maxExpressionLen {
		return nil, newError(ErrSyntax, -1, "expression longer than %d characters", maxExpressionLen)
	}
	if strings.TrimSpace(src) == "" {
		return nil, newError(ErrSyntax, -1, "empty expression")
	}

	tokens, err := lex(src)
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}

	if t := p.peek(); t.kind != tokEOF {
		return nil, newError(ErrSyntax, t.pos, "unexpected %s", describe(t))
	}

	return root, nil
}

func (p *parser) enter(pos int) error {
	p.depth++
	if p.depth > maxDepth {
		return newError(ErrSyntax, pos, "expression nested deeper than %d levels", maxDepth)
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		op := p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{pos: op.pos, op: op.kind, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		op := p.next()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{pos: op.pos, op: op.kind, left: left, right: right}
	}
	return left, nil
}

// Comparisons do not chain: "a < b < c" is a syntax error.
func (p *parser) parseComparison() (node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	switch p.peek().kind {
	case tokEq, tokNe, tokLt, tokLe, tokGt, tokGe:
		op := p.next()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{pos: op.pos, op: op.kind, left: left, right: right}
		switch t := p.peek(); t.kind {
		case tokEq, tokNe, tokLt, tokLe, tokGt, tokGe:
			return nil, newError(ErrSyntax, t.pos, "comparisons cannot be chained")
		}
	}
	return left, nil
}

func (p *parser) parseAdditive() (node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for k := p.peek().kind; k == tokPlus || k == tokMinus; k = p.peek().kind {
		op := p.next()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{pos: op.pos, op: op.kind, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for k := p.peek().kind; k == tokStar || k == tokSlash; k = p.peek().kind {
		op := p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{pos: op.pos, op: op.kind, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	switch t := p.peek(); t.kind {
	case tokMinus, tokPlus, tokNot:
		p.next()
		if err := p.enter(t.pos); err != nil {
			return nil, err
		}
		defer p.leave()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if t.kind == tokPlus {
			return x, nil
		}
		return &unaryExpr{pos: t.pos, op: t.kind, x: x}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	t := p.next()

	switch t.kind {
	case tokNumber:
		return &numberLit{pos: t.pos, value: t.num}, nil

	case tokString:
		return &stringLit{pos: t.pos, value: t.text}, nil

	case tokLParen:
		if err := p.enter(t.pos); err != nil {
			return nil, err
		}
		defer p.leave()
		x, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return x, nil

	case tokIdent:
		switch t.text {
		case "true":
			return &boolLit{pos: t.pos, value: true}, nil
		case "false":
			return &boolLit{pos: t.pos, value: false}, nil
		}
		if p.peek().kind == tokLParen {
			return p.parseCall(t)
		}
		return &ident{pos: t.pos, name: t.text}, nil
	}

	return nil, newError(ErrSyntax, t.pos, "unexpected %s", describe(t))
}

func (p *parser) parseCall(name token) (node, error) {
	fn, ok := builtins[strings.ToLower(name.text)]
	if !ok {
		return nil, newError(ErrSyntax, name.pos, "unknown function %q", name.text)
	}

	if err := p.enter(name.pos); err != nil {
		return nil, err
	}
	defer p.leave()

	p.next() // (

	var args []node
	if p.peek().kind != tokRParen {
		for {
			arg, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.peek().kind != tokComma {
				break
			}
			p.next()
		}
	}
	if _, err := p.expect(tokRParen); err != nil {
		return nil, err
	}

	if len(args) < fn.minArgs || (fn.maxArgs >= 0 && len(args) > fn.maxArgs) {
		return nil, newError(ErrSyntax, name.pos, "%s() takes %s, got %d", fn.name, fn.arity(), len(args))
	}

	return &callExpr{pos: name.pos, name: fn.name, fn: fn, args: args}, nil
}
