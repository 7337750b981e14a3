// Package eval walks a compiled scenario IR over one patient's signal
// data and produces an EvaluationResult. Evaluation is single-threaded,
// side-effect-free and deterministic: the same IR, data and reference
// time always yield the same result. All I/O happens before this
// package is invoked.
package eval

import (
	"fmt"
	"sort"
	"time"

	"github.com/caretide/scenario"
	"github.com/caretide/scenario/compiler"
	"github.com/caretide/scenario/expr"
	"github.com/caretide/scenario/temporal"
)

// Request is one evaluation call: a patient's signal series keyed by
// signal name, the reference time, optional patient attributes for the
// population filter, and the previously persisted state (persisting the
// new state is the caller's job).
type Request struct {
	PatientID     string
	ReferenceTime time.Time
	Signals       map[string][]scenario.DataPoint
	Attributes    map[string]any
	PreviousState string
}

// Evaluate runs one pass over the IR's dependency order: signals →
// trends → logic → state. Missing or insufficient data yields nulls
// that propagate as "unknown", never as zero or false.
func Evaluate(ir *compiler.IR, req Request) (*scenario.EvaluationResult, error) {
	if !ir.Diagnostics.Success {
		return nil, fmt.Errorf("scenario %q did not compile cleanly", ir.Doc.Name)
	}

	data := make(map[string][]scenario.DataPoint, len(req.Signals))
	for name, pts := range req.Signals {
		data[name] = sortedByTime(pts)
	}

	e := &evaluator{
		ir:     ir,
		data:   data,
		ref:    req.ReferenceTime,
		trends: make(map[string]*float64, len(ir.Trends)),
		logic:  make(map[string]*bool, len(ir.Logic)),
	}

	for _, name := range ir.Order.Trends {
		rt, ok := ir.Trend(name)
		if !ok {
			return nil, fmt.Errorf("trend %q missing from IR", name)
		}
		v, err := e.evalNumeric(rt.AST)
		if err != nil {
			return nil, fmt.Errorf("trend %q: %w", name, err)
		}
		e.trends[name] = v
	}

	for _, name := range ir.Order.Logic {
		rl, ok := ir.LogicRule(name)
		if !ok {
			return nil, fmt.Errorf("logic %q missing from IR", name)
		}
		v, err := e.evalBool(rl.AST)
		if err != nil {
			return nil, fmt.Errorf("logic %q: %w", name, err)
		}
		e.logic[name] = v
	}

	res := &scenario.EvaluationResult{
		PatientID:      req.PatientID,
		ReferenceTime:  req.ReferenceTime,
		TrendValues:    e.trends,
		LogicValues:    e.logic,
		TriggeredLogic: []string{},
	}
	// Triggered logic reported in dependency order for determinism.
	for _, name := range ir.Order.Logic {
		if v := e.logic[name]; v != nil && *v {
			res.Triggered = true
			res.TriggeredLogic = append(res.TriggeredLogic, name)
		}
	}
	if ir.Doc.State != nil {
		res.CurrentState = nextState(ir.Doc.State, req.PreviousState, e.logic)
	}
	if req.Attributes != nil {
		res.PopulationMatch = ir.Population.Match(req.Attributes)
	}
	return res, nil
}

type evaluator struct {
	ir     *compiler.IR
	data   map[string][]scenario.DataPoint
	ref    time.Time
	trends map[string]*float64
	logic  map[string]*bool
}

// evalNumeric computes a trend AST. Null operands propagate: any
// arithmetic over null is null, and division by zero is null rather
// than infinity so downstream comparisons read it as "unknown".
func (e *evaluator) evalNumeric(node expr.TrendNode) (*float64, error) {
	switch n := node.(type) {
	case expr.Number:
		v := n.Value
		return &v, nil
	case expr.Arith:
		left, err := e.evalNumeric(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := e.evalNumeric(n.Right)
		if err != nil {
			return nil, err
		}
		if left == nil || right == nil {
			return nil, nil
		}
		var v float64
		switch n.Op {
		case "+":
			v = *left + *right
		case "-":
			v = *left - *right
		case "*":
			v = *left * *right
		case "/":
			if *right == 0 {
				return nil, nil
			}
			v = *left / *right
		default:
			return nil, fmt.Errorf("unknown arithmetic operator %q", n.Op)
		}
		return &v, nil
	case expr.OperatorCall:
		var window int64
		if n.Window != nil {
			window = n.Window.Seconds()
		}
		var pct float64
		if n.Percentile != nil {
			pct = *n.Percentile
		}
		return temporal.Apply(n.Name, e.data[n.Signal], window, pct, e.ref)
	case expr.TrendRef:
		v, ok := e.trends[n.Name]
		if !ok {
			return nil, fmt.Errorf("trend %q evaluated out of order", n.Name)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown trend node %T", node)
	}
}

// evalBool computes a logic AST under three-valued semantics. AND/OR do
// not short-circuit: every operand is a pure lookup and full evaluation
// keeps the result record complete for auditing.
func (e *evaluator) evalBool(node expr.LogicNode) (*bool, error) {
	switch n := node.(type) {
	case expr.Comparison:
		left, err := e.evalNumeric(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := e.evalNumeric(n.Right)
		if err != nil {
			return nil, err
		}
		if left == nil || right == nil {
			return nil, nil
		}
		var v bool
		switch n.Op {
		case ">":
			v = *left > *right
		case ">=":
			v = *left >= *right
		case "<":
			v = *left < *right
		case "<=":
			v = *left <= *right
		case "==":
			v = *left == *right
		case "!=":
			v = *left != *right
		default:
			return nil, fmt.Errorf("unknown comparator %q", n.Op)
		}
		return &v, nil
	case expr.TermRef:
		v, ok := e.logic[n.Name]
		if !ok {
			return nil, fmt.Errorf("logic %q evaluated out of order", n.Name)
		}
		return v, nil
	case expr.NAry:
		values := make([]*bool, len(n.Operands))
		for i, op := range n.Operands {
			v, err := e.evalBool(op)
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
		if n.Op == "AND" {
			return combineAnd(values), nil
		}
		return combineOr(values), nil
	case expr.Not:
		v, err := e.evalBool(n.Operand)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, nil
		}
		nv := !*v
		return &nv, nil
	default:
		return nil, fmt.Errorf("unknown logic node %T", node)
	}
}

// combineAnd: false dominates, then null ("unknown"), then true.
func combineAnd(values []*bool) *bool {
	sawNull := false
	for _, v := range values {
		if v == nil {
			sawNull = true
			continue
		}
		if !*v {
			f := false
			return &f
		}
	}
	if sawNull {
		return nil
	}
	t := true
	return &t
}

// combineOr: true dominates, then null, then false.
func combineOr(values []*bool) *bool {
	sawNull := false
	for _, v := range values {
		if v == nil {
			sawNull = true
			continue
		}
		if *v {
			t := true
			return &t
		}
	}
	if sawNull {
		return nil
	}
	f := false
	return &f
}

// nextState applies the first declared transition out of the current
// state whose guard logic evaluated true; otherwise the state is
// unchanged. Null guards never fire.
func nextState(sm *scenario.StateMachineSpec, previous string, logic map[string]*bool) string {
	current := previous
	if current == "" {
		current = sm.Initial
	}
	for _, tr := range sm.Transitions {
		if tr.From != current {
			continue
		}
		if v := logic[tr.When]; v != nil && *v {
			return tr.To
		}
	}
	return current
}

func sortedByTime(pts []scenario.DataPoint) []scenario.DataPoint {
	out := make([]scenario.DataPoint, len(pts))
	copy(out, pts)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
