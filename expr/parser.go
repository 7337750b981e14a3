package expr

import (
	"strconv"

	"github.com/caretide/scenario"
)

// opSpec describes the call shape of a temporal operator.
type opSpec struct {
	windowed   bool
	percentile bool
}

var operatorSpecs = map[string]opSpec{
	"delta":      {windowed: true},
	"slope":      {windowed: true},
	"sma":        {windowed: true},
	"ema":        {windowed: true},
	"min":        {windowed: true},
	"max":        {windowed: true},
	"count":      {windowed: true},
	"first":      {windowed: true},
	"std":        {windowed: true},
	"stddev":     {windowed: true},
	"percentile": {windowed: true, percentile: true},
	"last":       {},
	"exists":     {},
	"missing":    {},
}

// IsOperator reports whether name is a temporal operator.
func IsOperator(name string) bool {
	_, ok := operatorSpecs[name]
	return ok
}

type parser struct {
	src  string
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	t := p.peek()
	if t.kind != kind {
		return token{}, syntaxErr(t.pos, t.end(), "expected %s, found %q", what, t.text)
	}
	return p.next(), nil
}

// ParseTrend parses a numeric trend expression. Comparison and boolean
// operators are rejected here, at parse time, with diagnostic code E001;
// a trend that needs a threshold belongs in a logic rule.
func ParseTrend(src string) (TrendNode, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks}
	node, err := p.parseNumeric()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		if t.kind.isComparator() || t.kind.isBoolean() {
			return nil, &SyntaxError{
				Msg:  "comparison/boolean operator " + strconv.Quote(t.text) + " is not allowed in a trend expression",
				Span: scenario.Span{Start: t.pos, End: t.end()},
				Code: scenario.CodeTrendComparison,
			}
		}
		return nil, syntaxErr(t.pos, t.end(), "unexpected %q after expression", t.text)
	}
	return node, nil
}

// ParseLogic parses a boolean logic expression. The top level must be
// boolean-typed: a comparison, a term reference, or a combination of
// those under AND/OR/NOT.
func ParseLogic(src string) (LogicNode, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks}
	node, err := p.parseLogicExpr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, syntaxErr(t.pos, t.end(), "unexpected %q after expression", t.text)
	}
	return node, nil
}

// numeric_expr = term (("+"|"-") term)*
func (p *parser) parseNumeric() (TrendNode, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokPlus && t.kind != tokMinus {
			return left, nil
		}
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = Arith{Op: t.text, Left: left, Right: right}
	}
}

// term = unary (("*"|"/") unary)*
func (p *parser) parseTerm() (TrendNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokStar && t.kind != tokSlash {
			return left, nil
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = Arith{Op: t.text, Left: left, Right: right}
	}
}

func (p *parser) parseUnary() (TrendNode, error) {
	if p.peek().kind == tokMinus {
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		// Fold the sign into literals so -0.5 stays a constant.
		if n, ok := operand.(Number); ok {
			return Number{Value: -n.Value}, nil
		}
		return Arith{Op: "-", Left: Number{Value: 0}, Right: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (TrendNode, error) {
	t := p.peek()
	switch t.kind {
	case tokNumber:
		p.next()
		v, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, syntaxErr(t.pos, t.end(), "invalid number %q", t.text)
		}
		return Number{Value: v}, nil
	case tokLParen:
		p.next()
		inner, err := p.parseNumeric()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, `")"`); err != nil {
			return nil, err
		}
		return inner, nil
	case tokIdent:
		p.next()
		if p.peek().kind == tokLParen {
			return p.parseOperatorCall(t)
		}
		return TrendRef{Name: t.text}, nil
	default:
		if t.kind.isComparator() || t.kind.isBoolean() {
			return nil, &SyntaxError{
				Msg:  "comparison/boolean operator " + strconv.Quote(t.text) + " is not allowed in a numeric expression",
				Span: scenario.Span{Start: t.pos, End: t.end()},
				Code: scenario.CodeTrendComparison,
			}
		}
		return nil, syntaxErr(t.pos, t.end(), "expected number, reference or operator call, found %q", t.text)
	}
}

// func_call = FUNC_NAME "(" signal_ref ["," window] ["," percentile] ")"
func (p *parser) parseOperatorCall(name token) (TrendNode, error) {
	spec, ok := operatorSpecs[name.text]
	if !ok {
		return nil, syntaxErr(name.pos, name.end(), "unknown operator %q", name.text)
	}
	if _, err := p.expect(tokLParen, `"("`); err != nil {
		return nil, err
	}
	sig, err := p.expect(tokIdent, "signal name")
	if err != nil {
		return nil, err
	}
	call := OperatorCall{Name: name.text, Signal: sig.text}

	if p.peek().kind == tokComma {
		p.next()
		win, err := p.expect(tokDuration, "window literal")
		if err != nil {
			return nil, err
		}
		w, err := ParseWindow(win.text)
		if err != nil {
			return nil, err
		}
		call.Window = &w
	}
	if spec.percentile {
		if _, err := p.expect(tokComma, `","`); err != nil {
			return nil, err
		}
		pct, err := p.expect(tokNumber, "percentile value")
		if err != nil {
			return nil, err
		}
		v, convErr := strconv.ParseFloat(pct.text, 64)
		if convErr != nil || v < 0 || v > 100 {
			return nil, syntaxErr(pct.pos, pct.end(), "percentile must be a number between 0 and 100")
		}
		call.Percentile = &v
	}
	if _, err := p.expect(tokRParen, `")"`); err != nil {
		return nil, err
	}

	if spec.windowed && call.Window == nil {
		return nil, syntaxErr(name.pos, name.end(), "operator %q requires a window", name.text)
	}
	if !spec.windowed && call.Window != nil {
		return nil, syntaxErr(name.pos, name.end(), "operator %q is pointwise and takes no window", name.text)
	}
	return call, nil
}

// logic_expr = and_expr ("OR" and_expr)*
func (p *parser) parseLogicExpr() (LogicNode, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	operands := []LogicNode{first}
	for p.peek().kind == tokOr {
		p.next()
		next, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		operands = append(operands, next)
	}
	if len(operands) == 1 {
		return first, nil
	}
	return NAry{Op: "OR", Operands: operands}, nil
}

func (p *parser) parseAnd() (LogicNode, error) {
	first, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	operands := []LogicNode{first}
	for p.peek().kind == tokAnd {
		p.next()
		next, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		operands = append(operands, next)
	}
	if len(operands) == 1 {
		return first, nil
	}
	return NAry{Op: "AND", Operands: operands}, nil
}

func (p *parser) parseNot() (LogicNode, error) {
	if p.peek().kind == tokNot {
		p.next()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return Not{Operand: operand}, nil
	}
	return p.parseLogicPrimary()
}

// logicPrimary is a comparison, a bare term reference, or a
// parenthesized logic expression. A comparison's left side may itself be
// parenthesized numeric text, so try the comparison shape first and
// backtrack if no comparator follows.
func (p *parser) parseLogicPrimary() (LogicNode, error) {
	mark := p.pos
	left, numErr := p.parseNumeric()
	if numErr == nil {
		t := p.peek()
		if t.kind.isComparator() {
			p.next()
			right, err := p.parseNumeric()
			if err != nil {
				return nil, err
			}
			return Comparison{Left: left, Op: t.text, Right: right}, nil
		}
		if ref, ok := left.(TrendRef); ok {
			return TermRef{Name: ref.Name}, nil
		}
		return nil, syntaxErr(p.toks[mark].pos, t.end(),
			"logic expression must be boolean: expected a comparison or term reference")
	}
	p.pos = mark

	t := p.peek()
	if t.kind == tokLParen {
		// Not a numeric group, so it must parenthesize a boolean.
		p.next()
		inner, err := p.parseLogicExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, `")"`); err != nil {
			return nil, err
		}
		return inner, nil
	}
	return nil, numErr
}
