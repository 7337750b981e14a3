package compiler

import (
	"time"

	"github.com/caretide/scenario/expr"
)

// pointwiseLookback is the fetch horizon used when a scenario carries
// only pointwise operators (last, exists, missing). Those still read
// the most recent observation, so a zero-width fetch would starve them.
const pointwiseLookback = 24 * time.Hour

// MaxLookback returns the widest window any expression in the IR
// reaches back over, across trends and the inline operator calls in
// logic comparisons. Callers fetching observations need at least this
// much history before the reference time. Pointwise-only scenarios get
// a fixed one-day horizon.
func (ir *IR) MaxLookback() time.Duration {
	var max int64
	var walkNumeric func(n expr.TrendNode)
	walkNumeric = func(n expr.TrendNode) {
		switch t := n.(type) {
		case expr.Arith:
			walkNumeric(t.Left)
			walkNumeric(t.Right)
		case expr.OperatorCall:
			if t.Window != nil && t.Window.Seconds() > max {
				max = t.Window.Seconds()
			}
		}
	}
	var walkBool func(n expr.LogicNode)
	walkBool = func(n expr.LogicNode) {
		switch t := n.(type) {
		case expr.Comparison:
			walkNumeric(t.Left)
			walkNumeric(t.Right)
		case expr.NAry:
			for _, op := range t.Operands {
				walkBool(op)
			}
		case expr.Not:
			walkBool(t.Operand)
		}
	}
	for _, t := range ir.Trends {
		walkNumeric(t.AST)
	}
	for _, l := range ir.Logic {
		walkBool(l.AST)
	}
	if max == 0 {
		return pointwiseLookback
	}
	return time.Duration(max) * time.Second
}
