package expr

import (
	"fmt"
	"strings"

	"github.com/caretide/scenario"
)

// SyntaxError is a grammar violation with the byte span of the offending
// text. Code is set when the violation maps to a stable diagnostic code.
type SyntaxError struct {
	Msg  string
	Span scenario.Span
	Code string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at %d..%d: %s", e.Span.Start, e.Span.End, e.Msg)
}

func syntaxErr(start, end int, format string, args ...any) *SyntaxError {
	return &SyntaxError{
		Msg:  fmt.Sprintf(format, args...),
		Span: scenario.Span{Start: start, End: end},
	}
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokDuration
	tokIdent
	tokLParen
	tokRParen
	tokComma
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokGT
	tokGE
	tokLT
	tokLE
	tokEQ
	tokNE
	tokAnd
	tokOr
	tokNot
)

// comparator and boolean tokens are the ones forbidden inside trend
// expressions.
func (k tokenKind) isComparator() bool {
	switch k {
	case tokGT, tokGE, tokLT, tokLE, tokEQ, tokNE:
		return true
	}
	return false
}

func (k tokenKind) isBoolean() bool {
	switch k {
	case tokAnd, tokOr, tokNot:
		return true
	}
	return false
}

type token struct {
	kind tokenKind
	text string
	pos  int
}

func (t token) end() int { return t.pos + len(t.text) }

// lex tokenizes a trend or logic expression. Both grammars share this
// token set; the parsers decide which tokens are admissible.
func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c >= '0' && c <= '9':
			start := i
			isFloat := false
			for i < len(src) && (src[i] >= '0' && src[i] <= '9') {
				i++
			}
			if i < len(src) && src[i] == '.' {
				isFloat = true
				i++
				for i < len(src) && (src[i] >= '0' && src[i] <= '9') {
					i++
				}
			}
			// An integer immediately followed by a unit letter is a
			// duration literal, e.g. 48h or 30m.
			if !isFloat && i < len(src) && strings.ContainsRune("smhdw", rune(src[i])) && !isIdentChar(peekByte(src, i+1)) {
				i++
				toks = append(toks, token{tokDuration, src[start:i], start})
				break
			}
			toks = append(toks, token{tokNumber, src[start:i], start})
		case isIdentStart(c):
			start := i
			for i < len(src) && isIdentChar(src[i]) {
				i++
			}
			word := src[start:i]
			switch strings.ToUpper(word) {
			case "AND":
				toks = append(toks, token{tokAnd, word, start})
			case "OR":
				toks = append(toks, token{tokOr, word, start})
			case "NOT":
				toks = append(toks, token{tokNot, word, start})
			default:
				toks = append(toks, token{tokIdent, word, start})
			}
		case c == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case c == ',':
			toks = append(toks, token{tokComma, ",", i})
			i++
		case c == '+':
			toks = append(toks, token{tokPlus, "+", i})
			i++
		case c == '-':
			toks = append(toks, token{tokMinus, "-", i})
			i++
		case c == '*':
			toks = append(toks, token{tokStar, "*", i})
			i++
		case c == '/':
			toks = append(toks, token{tokSlash, "/", i})
			i++
		case c == '>':
			if peekByte(src, i+1) == '=' {
				toks = append(toks, token{tokGE, ">=", i})
				i += 2
			} else {
				toks = append(toks, token{tokGT, ">", i})
				i++
			}
		case c == '<':
			if peekByte(src, i+1) == '=' {
				toks = append(toks, token{tokLE, "<=", i})
				i += 2
			} else {
				toks = append(toks, token{tokLT, "<", i})
				i++
			}
		case c == '=':
			if peekByte(src, i+1) == '=' {
				toks = append(toks, token{tokEQ, "==", i})
				i += 2
			} else {
				return nil, syntaxErr(i, i+1, "unexpected %q, did you mean ==", "=")
			}
		case c == '!':
			if peekByte(src, i+1) == '=' {
				toks = append(toks, token{tokNE, "!=", i})
				i += 2
			} else {
				return nil, syntaxErr(i, i+1, "unexpected character %q", string(c))
			}
		default:
			return nil, syntaxErr(i, i+1, "unexpected character %q", string(c))
		}
	}
	toks = append(toks, token{tokEOF, "", len(src)})
	return toks, nil
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func peekByte(s string, i int) byte {
	if i < len(s) {
		return s[i]
	}
	return 0
}
