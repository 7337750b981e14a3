package expr

import "github.com/caretide/scenario"

// Trend and logic ASTs are closed sets of tagged variants. Evaluation
// switches exhaustively over the concrete types; adding an operator
// means extending these sets, not subclassing.

// TrendNode is a node of a numeric trend expression.
type TrendNode interface{ isTrendNode() }

// Number is a numeric literal.
type Number struct {
	Value float64
}

// Arith combines two numeric sub-expressions with +, -, * or /.
type Arith struct {
	Op    string
	Left  TrendNode
	Right TrendNode
}

// OperatorCall invokes a temporal operator on a signal. Window is nil
// for pointwise operators; Percentile is set only for percentile.
type OperatorCall struct {
	Name       string
	Signal     string
	Window     *scenario.WindowSpec
	Percentile *float64
}

// TrendRef names another trend whose value is substituted inline.
type TrendRef struct {
	Name string
}

func (Number) isTrendNode()       {}
func (Arith) isTrendNode()        {}
func (OperatorCall) isTrendNode() {}
func (TrendRef) isTrendNode()     {}

// LogicNode is a node of a boolean logic expression.
type LogicNode interface{ isLogicNode() }

// Comparison applies a comparator to two numeric values.
type Comparison struct {
	Left  TrendNode
	Op    string
	Right TrendNode
}

// TermRef names a trend or another logic rule. When it stands alone as
// a boolean it must resolve to a logic rule; the compiler checks that.
type TermRef struct {
	Name string
}

// NAry is an n-ary AND or OR over boolean operands.
type NAry struct {
	Op       string // "AND" or "OR"
	Operands []LogicNode
}

// Not negates a boolean operand.
type Not struct {
	Operand LogicNode
}

func (Comparison) isLogicNode() {}
func (TermRef) isLogicNode()    {}
func (NAry) isLogicNode()       {}
func (Not) isLogicNode()        {}
