package expr

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

type node interface {
	eval(ctx *Context) (any, error)
}

type literalNode struct {
	value any
}

type contextNode struct {
	name string
}

type indexNode struct {
	target node
	index  node
}

type propertyNode struct {
	target node
	name   string
}

type callNode struct {
	name string
	args []node
}

type notNode struct {
	operand node
}

type binaryNode struct {
	op          tokenKind
	left, right node
}

type parser struct {
	tokens []token
	pos    int
}

// Parse compiles an expression, without the surrounding ${{ }}.
func Parse(input string) (*Expression, error) {
	tokens, err := tokenize(input)
	if err != nil {
		return nil, fmt.Errorf("parsing expression %q: %w", input, err)
	}
	if len(tokens) == 1 {
		return nil, fmt.Errorf("parsing expression %q: expression is empty", input)
	}

	p := &parser{tokens: tokens}
	root, err := p.parseOr()
	if err != nil {
		return nil, fmt.Errorf("parsing expression %q: %w", input, err)
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, fmt.Errorf("parsing expression %q: unexpected %s at position %d", input, describe(tok), tok.pos+1)
	}

	return &Expression{source: input, root: root}, nil
}

func describe(tok token) string {
	if tok.text != "" {
		return fmt.Sprintf("%q", tok.text)
	}
	return tok.kind.String()
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) expect(kind tokenKind) (token, error) {
	tok := p.next()
	if tok.kind != kind {
		return tok, fmt.Errorf("expected %s but found %s at position %d", kind, describe(tok), tok.pos+1)
	}
	return tok, nil
}

func (p *parser) parseOr() (node, error) {
	return p.parseBinary(p.parseAnd, tokOr)
}

func (p *parser) parseAnd() (node, error) {
	return p.parseBinary(p.parseEquality, tokAnd)
}

func (p *parser) parseEquality() (node, error) {
	return p.parseBinary(p.parseComparison, tokEq, tokNe)
}

func (p *parser) parseComparison() (node, error) {
	return p.parseBinary(p.parseUnary, tokLt, tokLe, tokGt, tokGe)
}

func (p *parser) parseBinary(operand func() (node, error), ops ...tokenKind) (node, error) {
	left, err := operand()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		matched := false
		for _, op := range ops {
			if tok.kind == op {
				matched = true
				break
			}
		}
		if !matched {
			return left, nil
		}
		p.next()
		right, err := operand()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: tok.kind, left: left, right: right}
	}
}

func (p *parser) parseUnary() (node, error) {
	if p.peek().kind == tokNot {
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &notNode{operand: operand}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (node, error) {
	target, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().kind {
		case tokDot:
			p.next()
			tok := p.next()
			switch tok.kind {
			case tokIdent:
				target = &propertyNode{target: target, name: tok.text}
			case tokStar:
				target = &propertyNode{target: target, name: "*"}
			default:
				return nil, fmt.Errorf("expected property name but found %s at position %d", describe(tok), tok.pos+1)
			}
		case tokLBracket:
			p.next()
			index, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokRBracket); err != nil {
				return nil, err
			}
			target = &indexNode{target: target, index: index}
		default:
			return target, nil
		}
	}
}

func (p *parser) parsePrimary() (node, error) {
	tok := p.next()
	switch tok.kind {
	case tokString:
		return &literalNode{value: tok.value}, nil

	case tokNumber:
		n, err := parseNumber(tok.text)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q at position %d", tok.text, tok.pos+1)
		}
		return &literalNode{value: n}, nil

	case tokMinus:
		num, err := p.expect(tokNumber)
		if err != nil {
			return nil, err
		}
		n, err := parseNumber(num.text)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q at position %d", num.text, num.pos+1)
		}
		return &literalNode{value: -n}, nil

	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return inner, nil

	case tokIdent:
		switch tok.text {
		case "true":
			return &literalNode{value: true}, nil
		case "false":
			return &literalNode{value: false}, nil
		case "null":
			return &literalNode{value: nil}, nil
		case "NaN":
			return &literalNode{value: math.NaN()}, nil
		case "Infinity":
			return &literalNode{value: math.Inf(1)}, nil
		}
		if p.peek().kind == tokLParen {
			return p.parseCall(tok)
		}
		return &contextNode{name: strings.ToLower(tok.text)}, nil

	default:
		return nil, fmt.Errorf("unexpected %s at position %d", describe(tok), tok.pos+1)
	}
}

func (p *parser) parseCall(name token) (node, error) {
	p.next()
	call := &callNode{name: strings.ToLower(name.text)}
	if _, ok := functions[call.name]; !ok {
		return nil, fmt.Errorf("unknown function %q at position %d", name.text, name.pos+1)
	}

	if p.peek().kind == tokRParen {
		p.next()
	} else {
		for {
			arg, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			call.args = append(call.args, arg)
			tok := p.next()
			if tok.kind == tokRParen {
				break
			}
			if tok.kind != tokComma {
				return nil, fmt.Errorf("expected ',' or ')' but found %s at position %d", describe(tok), tok.pos+1)
			}
		}
	}

	spec := functions[call.name]
	if len(call.args) < spec.minArgs || (spec.maxArgs >= 0 && len(call.args) > spec.maxArgs) {
		return nil, fmt.Errorf("function %s called with %d arguments", name.text, len(call.args))
	}
	return call, nil
}

func parseNumber(text string) (float64, error) {
	if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X") {
		n, err := strconv.ParseInt(text[2:], 16, 64)
		return float64(n), err
	}
	return strconv.ParseFloat(text, 64)
}
