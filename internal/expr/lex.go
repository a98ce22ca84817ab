package expr

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenType int

const (
	tokenIdent    tokenType = iota // user, loggedIn, true, false, null
	tokenNumber                    // 42, -3.5
	tokenString                    // "foo", 'foo'
	tokenDot                       // .
	tokenLBracket                  // [
	tokenRBracket                  // ]
	tokenLParen                    // (
	tokenRParen                    // )
	tokenPipe                      // |
	tokenColon                     // :
	tokenComma                     // ,
	tokenOp                        // == != < <= > >= && || ! + - * /
	tokenEOF
	tokenError
)

const eof rune = -1

type token struct {
	typ tokenType
	val string
	pos int
}

type lexer struct {
	src    string
	pos    int
	tail   int
	width  int
	tokens []token
	err    *SyntaxError
}

type lexerState func(l *lexer) lexerState

// lex tokenizes an expression source string.
// Returns the token stream terminated by tokenEOF, or a *SyntaxError for
// input containing unknown characters or unterminated strings.
func lex(src string) ([]token, *SyntaxError) {
	l := &lexer{src: src}
	for state := lexExpr; state != nil; {
		state = state(l)
	}
	if l.err != nil {
		return nil, l.err
	}
	return l.tokens, nil
}

func (l *lexer) next() rune {
	if l.pos >= len(l.src) {
		l.width = 0
		return eof
	}
	r, w := utf8.DecodeRuneInString(l.src[l.pos:])
	l.pos += w
	l.width = w
	return r
}

func (l *lexer) backup() {
	l.pos -= l.width
	l.width = 0
}

func (l *lexer) peek() rune {
	r := l.next()
	l.backup()
	return r
}

func (l *lexer) emit(typ tokenType) {
	l.tokens = append(l.tokens, token{typ: typ, val: l.src[l.tail:l.pos], pos: l.tail})
	l.tail = l.pos
}

func (l *lexer) advance() {
	l.tail = l.pos
}

func (l *lexer) errorf(pos int, msg string) lexerState {
	l.err = &SyntaxError{Source: l.src, Pos: pos, Message: msg}
	return nil
}

func (l *lexer) acceptRun(valid string) {
	for strings.ContainsRune(valid, l.next()) {
	}
	l.backup()
}

func lexExpr(l *lexer) lexerState {
	r := l.next()
	switch {
	case r == eof:
		l.emit(tokenEOF)
		return nil
	case r == ' ' || r == '\t' || r == '\n' || r == '\r':
		l.advance()
		return lexExpr
	case r == '.':
		l.emit(tokenDot)
		return lexExpr
	case r == '[':
		l.emit(tokenLBracket)
		return lexExpr
	case r == ']':
		l.emit(tokenRBracket)
		return lexExpr
	case r == '(':
		l.emit(tokenLParen)
		return lexExpr
	case r == ')':
		l.emit(tokenRParen)
		return lexExpr
	case r == ':':
		l.emit(tokenColon)
		return lexExpr
	case r == ',':
		l.emit(tokenComma)
		return lexExpr
	case r == '"' || r == '\'':
		return lexString(r)
	case r >= '0' && r <= '9':
		l.backup()
		return lexNumber
	case r == '_' || unicode.IsLetter(r):
		l.backup()
		return lexIdent
	case r == '|':
		if l.peek() == '|' {
			l.next()
			l.emit(tokenOp)
		} else {
			l.emit(tokenPipe)
		}
		return lexExpr
	case r == '&':
		if l.next() != '&' {
			return l.errorf(l.tail, "expected && operator")
		}
		l.emit(tokenOp)
		return lexExpr
	case r == '=':
		if l.next() != '=' {
			return l.errorf(l.tail, "expected == operator")
		}
		l.emit(tokenOp)
		return lexExpr
	case r == '!' || r == '<' || r == '>':
		if l.peek() == '=' {
			l.next()
		}
		l.emit(tokenOp)
		return lexExpr
	case r == '+' || r == '-' || r == '*' || r == '/':
		l.emit(tokenOp)
		return lexExpr
	default:
		return l.errorf(l.pos-l.width, "unexpected character "+string(r))
	}
}

func lexNumber(l *lexer) lexerState {
	l.acceptRun("0123456789")
	if l.peek() == '.' {
		// Only consume the dot when digits follow; otherwise it is a
		// member access on a numeric literal (not supported, caught by
		// the parser).
		save := l.pos
		l.next()
		if r := l.peek(); r >= '0' && r <= '9' {
			l.acceptRun("0123456789")
		} else {
			l.pos = save
			l.width = 0
		}
	}
	l.emit(tokenNumber)
	return lexExpr
}

func lexIdent(l *lexer) lexerState {
	for {
		r := l.next()
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			continue
		}
		l.backup()
		break
	}
	l.emit(tokenIdent)
	return lexExpr
}

// lexString consumes a quoted string with backslash escapes.
func lexString(quote rune) lexerState {
	return func(l *lexer) lexerState {
		start := l.tail
		for {
			switch r := l.next(); r {
			case eof:
				return l.errorf(start, "unterminated string")
			case '\\':
				l.next()
			case quote:
				l.emit(tokenString)
				return lexExpr
			}
		}
	}
}
