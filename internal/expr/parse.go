package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// Expression is a compiled expression. Immutable once compiled; safe to
// share across observers and evaluations.
type Expression struct {
	source string
	root   node
}

// Source returns the original expression text.
func (e *Expression) Source() string {
	return e.source
}

// Compile parses an expression source string.
// Returns *SyntaxError on malformed input (unbalanced operators, unknown
// tokens, trailing garbage).
func Compile(src string) (*Expression, error) {
	toks, lerr := lex(src)
	if lerr != nil {
		return nil, lerr
	}
	p := &parser{src: src, toks: toks}
	root, err := p.parsePipe()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.typ != tokenEOF {
		return nil, p.errorf(tok, "unexpected %q after expression", tok.val)
	}
	return &Expression{source: src, root: root}, nil
}

// MustCompile is Compile that panics on error. For tests and fixed
// internal expressions only.
func MustCompile(src string) *Expression {
	e, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return e
}

type parser struct {
	src  string
	toks []token
	pos  int
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.typ != tokenEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(tok token, format string, args ...any) *SyntaxError {
	return &SyntaxError{Source: p.src, Pos: tok.pos, Message: fmt.Sprintf(format, args...)}
}

// parsePipe handles the loosest-binding operator: expr | name [: args].
func (p *parser) parsePipe() (node, error) {
	left, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	for p.peek().typ == tokenPipe {
		p.next()
		nameTok := p.next()
		if nameTok.typ != tokenIdent {
			return nil, p.errorf(nameTok, "expected filter name after |")
		}
		var args []node
		if p.peek().typ == tokenColon {
			p.next()
			for {
				arg, err := p.parseOr()
				if err != nil {
					return nil, err
				}
				args = append(args, arg)
				if p.peek().typ != tokenComma {
					break
				}
				p.next()
			}
		}
		left = &pipeNode{input: left, name: nameTok.val, args: args}
	}
	return left, nil
}

func (p *parser) parseOr() (node, error) {
	return p.parseBinary("||", p.parseAnd)
}

func (p *parser) parseAnd() (node, error) {
	return p.parseBinary("&&", p.parseEquality)
}

func (p *parser) parseEquality() (node, error) {
	return p.parseBinary("== !=", p.parseRelational)
}

func (p *parser) parseRelational() (node, error) {
	return p.parseBinary("< <= > >=", p.parseAdditive)
}

func (p *parser) parseAdditive() (node, error) {
	return p.parseBinary("+ -", p.parseMultiplicative)
}

func (p *parser) parseMultiplicative() (node, error) {
	return p.parseBinary("* /", p.parseUnary)
}

// parseBinary parses a left-associative run of the operators in ops,
// with operands produced by the next-tighter level.
func (p *parser) parseBinary(ops string, operand func() (node, error)) (node, error) {
	left, err := operand()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.typ != tokenOp || !containsOp(ops, tok.val) {
			return left, nil
		}
		p.next()
		right, err := operand()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: tok.val, left: left, right: right}
	}
}

func containsOp(ops, op string) bool {
	for _, candidate := range strings.Fields(ops) {
		if candidate == op {
			return true
		}
	}
	return false
}

func (p *parser) parseUnary() (node, error) {
	tok := p.peek()
	if tok.typ == tokenOp && (tok.val == "!" || tok.val == "-") {
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: tok.val, operand: operand}, nil
	}
	return p.parsePostfix()
}

// parsePostfix parses member access and indexing chains.
func (p *parser) parsePostfix() (node, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().typ {
		case tokenDot:
			p.next()
			nameTok := p.next()
			if nameTok.typ != tokenIdent {
				return nil, p.errorf(nameTok, "expected member name after .")
			}
			base = &memberNode{base: base, name: nameTok.val}
		case tokenLBracket:
			p.next()
			index, err := p.parsePipe()
			if err != nil {
				return nil, err
			}
			closing := p.next()
			if closing.typ != tokenRBracket {
				return nil, p.errorf(closing, "expected ] to close index")
			}
			base = &indexNode{base: base, index: index}
		default:
			return base, nil
		}
	}
}

func (p *parser) parsePrimary() (node, error) {
	tok := p.next()
	switch tok.typ {
	case tokenNumber:
		n, err := strconv.ParseFloat(tok.val, 64)
		if err != nil {
			return nil, p.errorf(tok, "malformed number %q", tok.val)
		}
		return &numberNode{n: n}, nil

	case tokenString:
		return &stringNode{s: unquote(tok.val)}, nil

	case tokenIdent:
		switch tok.val {
		case "true":
			return &boolNode{b: true}, nil
		case "false":
			return &boolNode{b: false}, nil
		case "null":
			return &nullNode{}, nil
		default:
			return &identNode{name: tok.val}, nil
		}

	case tokenLParen:
		inner, err := p.parsePipe()
		if err != nil {
			return nil, err
		}
		closing := p.next()
		if closing.typ != tokenRParen {
			return nil, p.errorf(closing, "expected ) to close group")
		}
		return inner, nil

	case tokenEOF:
		return nil, p.errorf(tok, "unexpected end of expression")

	default:
		return nil, p.errorf(tok, "unexpected %q", tok.val)
	}
}

// unquote strips the surrounding quotes and resolves backslash escapes.
// The lexer guarantees the string is terminated.
func unquote(s string) string {
	body := s[1 : len(s)-1]
	if !strings.ContainsRune(body, '\\') {
		return body
	}
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c != '\\' || i+1 == len(body) {
			b.WriteByte(c)
			continue
		}
		i++
		switch body[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		default:
			b.WriteByte(body[i])
		}
	}
	return b.String()
}
