// Package compiler turns a loaded scenario document into an immutable,
// dependency-ordered, content-addressed intermediate representation.
// Compilation is a pure one-shot function of the document; the returned
// IR is safe to share read-only across concurrent evaluations.
package compiler

import (
	"errors"

	"github.com/caretide/scenario"
	"github.com/caretide/scenario/expr"
)

// ResolvedSignal is a declared signal carried into the IR.
type ResolvedSignal struct {
	scenario.Signal
}

// ResolvedTrend is a parsed trend expression plus the names it depends on.
type ResolvedTrend struct {
	Name string
	AST  expr.TrendNode
	Refs expr.RefSet
}

// ResolvedLogic is a parsed logic expression plus the names it depends on.
type ResolvedLogic struct {
	Name string
	AST  expr.LogicNode
	Refs expr.RefSet
}

// Diagnostics is the full problem report of one compile attempt.
type Diagnostics struct {
	Success bool                  `json:"success"`
	Items   []scenario.Diagnostic `json:"items"`
}

// IR is the compiled scenario. It is created once per document version
// and never mutated; recompiling produces a new IR.
type IR struct {
	Doc           *scenario.Document
	Signals       []ResolvedSignal
	Trends        []ResolvedTrend
	Logic         []ResolvedLogic
	Order         DAGOrder
	Population    *Population
	SpecHash      string
	IRHash        string
	ToolchainHash string
	Diagnostics   Diagnostics

	trendIndex map[string]int
	logicIndex map[string]int
}

// Trend looks up a resolved trend by name.
func (ir *IR) Trend(name string) (*ResolvedTrend, bool) {
	i, ok := ir.trendIndex[name]
	if !ok {
		return nil, false
	}
	return &ir.Trends[i], true
}

// LogicRule looks up a resolved logic rule by name.
func (ir *IR) LogicRule(name string) (*ResolvedLogic, bool) {
	i, ok := ir.logicIndex[name]
	if !ok {
		return nil, false
	}
	return &ir.Logic[i], true
}

// Artifact is the serializable audit export of a compiled scenario. It
// carries the evaluation order and the hashes, not the ASTs; it is meant
// for archival, not re-parsing.
type Artifact struct {
	Scenario      string                `json:"scenario"`
	Version       string                `json:"version"`
	Order         DAGOrder              `json:"order"`
	SpecHash      string                `json:"specHash"`
	IRHash        string                `json:"irHash"`
	ToolchainHash string                `json:"toolchainHash"`
	Success       bool                  `json:"success"`
	Diagnostics   []scenario.Diagnostic `json:"diagnostics"`
}

// Artifact exports the audit form of the IR.
func (ir *IR) Artifact() Artifact {
	return Artifact{
		Scenario:      ir.Doc.Name,
		Version:       ir.Doc.Version,
		Order:         ir.Order,
		SpecHash:      ir.SpecHash,
		IRHash:        ir.IRHash,
		ToolchainHash: ir.ToolchainHash,
		Success:       ir.Diagnostics.Success,
		Diagnostics:   ir.Diagnostics.Items,
	}
}

// Compile builds the IR for a document. All reportable problems are
// accumulated into diagnostics; only a dependency cycle aborts analysis
// early, because no evaluation order exists for it. The partial IR is
// returned alongside failure diagnostics so callers can report every
// problem in one pass.
func Compile(doc *scenario.Document) *IR {
	ir := &IR{
		Doc:           doc,
		SpecHash:      specHash(doc.Source),
		ToolchainHash: toolchainHash(),
		trendIndex:    make(map[string]int),
		logicIndex:    make(map[string]int),
	}
	var diags []scenario.Diagnostic

	for _, s := range doc.Signals {
		ir.Signals = append(ir.Signals, ResolvedSignal{s})
	}

	// Parse everything first. Syntax errors stop compilation after this
	// phase so every malformed expression is still reported.
	syntaxFailed := false
	for _, t := range doc.Trends {
		if _, dup := ir.trendIndex[t.Name]; dup {
			diags = append(diags, scenario.Errorf(scenario.CodeDuplicateName, t.Name,
				"trend %q declared more than once", t.Name))
			continue
		}
		ast, err := expr.ParseTrend(t.Expr)
		if err != nil {
			diags = append(diags, syntaxDiagnostic(t.Name, err))
			syntaxFailed = true
			continue
		}
		ir.trendIndex[t.Name] = len(ir.Trends)
		ir.Trends = append(ir.Trends, ResolvedTrend{Name: t.Name, AST: ast, Refs: expr.TrendRefs(ast)})
	}
	for _, l := range doc.Logic {
		if _, dup := ir.logicIndex[l.Name]; dup {
			diags = append(diags, scenario.Errorf(scenario.CodeDuplicateName, l.Name,
				"logic rule %q declared more than once", l.Name))
			continue
		}
		if _, dup := ir.trendIndex[l.Name]; dup {
			diags = append(diags, scenario.Errorf(scenario.CodeDuplicateName, l.Name,
				"%q is declared as both a trend and a logic rule", l.Name))
			continue
		}
		ast, err := expr.ParseLogic(l.Expr)
		if err != nil {
			diags = append(diags, syntaxDiagnostic(l.Name, err))
			syntaxFailed = true
			continue
		}
		ir.logicIndex[l.Name] = len(ir.Logic)
		ir.Logic = append(ir.Logic, ResolvedLogic{Name: l.Name, AST: ast, Refs: expr.LogicRefs(ast)})
	}
	if syntaxFailed {
		ir.Diagnostics = Diagnostics{Success: false, Items: diags}
		return ir
	}

	signalNames := make(map[string]bool, len(doc.Signals))
	for _, s := range doc.Signals {
		signalNames[s.Name] = true
	}

	diags = append(diags, ir.resolveReferences(signalNames)...)
	diags = append(diags, ir.validateState()...)

	pop, popDiags := compilePopulation(doc.Population)
	ir.Population = pop
	diags = append(diags, popDiags...)

	// Dependency graph over (kind, name) nodes, declaration order.
	g := newDepGraph()
	for _, s := range doc.Signals {
		g.add(kindSignal, s.Name)
	}
	for _, t := range ir.Trends {
		g.add(kindTrend, t.Name)
	}
	for _, l := range ir.Logic {
		g.add(kindLogic, l.Name)
	}
	for _, t := range ir.Trends {
		from, _ := g.lookup(kindTrend, t.Name)
		for _, sig := range t.Refs.Signals {
			if to, ok := g.lookup(kindSignal, sig); ok {
				g.addEdge(from, to)
			}
		}
		for _, term := range t.Refs.Terms {
			if to, ok := g.lookup(kindTrend, term); ok {
				g.addEdge(from, to)
			}
		}
	}
	for _, l := range ir.Logic {
		from, _ := g.lookup(kindLogic, l.Name)
		for _, sig := range l.Refs.Signals {
			if to, ok := g.lookup(kindSignal, sig); ok {
				g.addEdge(from, to)
			}
		}
		for _, term := range l.Refs.Terms {
			if to, ok := g.lookup(kindTrend, term); ok {
				g.addEdge(from, to)
				continue
			}
			if to, ok := g.lookup(kindLogic, term); ok {
				g.addEdge(from, to)
			}
		}
	}

	order, err := g.topoSort()
	if err != nil {
		var cyc *cycleError
		if errors.As(err, &cyc) {
			diags = append(diags, scenario.Errorf(scenario.CodeCircularReference, "",
				"circular reference: %v", cyc.path))
		} else {
			diags = append(diags, scenario.Errorf(scenario.CodeCircularReference, "", "%v", err))
		}
		// A cycle is fatal: no evaluation order can be derived.
		ir.Diagnostics = Diagnostics{Success: false, Items: diags}
		return ir
	}
	ir.Order = order

	if !scenario.HasErrors(diags) {
		h, err := irHash(ir.Signals, ir.Trends, ir.Logic, ir.Order)
		if err != nil {
			diags = append(diags, scenario.Errorf(scenario.CodeSyntax, "", "ir hash: %v", err))
		} else {
			ir.IRHash = h
		}
	}

	ir.Diagnostics = Diagnostics{Success: !scenario.HasErrors(diags), Items: diags}
	return ir
}

func syntaxDiagnostic(subject string, err error) scenario.Diagnostic {
	var serr *expr.SyntaxError
	if errors.As(err, &serr) {
		code := serr.Code
		if code == "" {
			code = scenario.CodeSyntax
		}
		d := scenario.Errorf(code, subject, "%s", serr.Msg)
		span := serr.Span
		d.Span = &span
		return d
	}
	return scenario.Errorf(scenario.CodeSyntax, subject, "%v", err)
}

// resolveReferences checks that every extracted reference names a
// declared entity of the right type. Undefined references and type
// violations are accumulated, not fatal, so a single compile reports
// every problem in the document.
func (ir *IR) resolveReferences(signalNames map[string]bool) []scenario.Diagnostic {
	var diags []scenario.Diagnostic

	for _, t := range ir.Trends {
		for _, sig := range t.Refs.Signals {
			if !signalNames[sig] {
				diags = append(diags, scenario.Errorf(scenario.CodeUndefinedReference, t.Name,
					"undefined signal %q", sig))
			}
		}
		for _, term := range t.Refs.Terms {
			if _, ok := ir.trendIndex[term]; ok {
				continue
			}
			if _, ok := ir.logicIndex[term]; ok {
				diags = append(diags, scenario.Errorf(scenario.CodeTrendComparison, t.Name,
					"logic rule %q referenced from a numeric trend expression", term))
				continue
			}
			diags = append(diags, scenario.Errorf(scenario.CodeUndefinedReference, t.Name,
				"undefined reference %q", term))
		}
	}

	for i := range ir.Logic {
		l := &ir.Logic[i]
		for _, sig := range l.Refs.Signals {
			if !signalNames[sig] {
				diags = append(diags, scenario.Errorf(scenario.CodeUndefinedReference, l.Name,
					"undefined signal %q", sig))
			}
		}
		diags = append(diags, ir.checkLogicTypes(l.Name, l.AST)...)
	}
	return diags
}

// checkLogicTypes walks a logic AST and verifies each term reference is
// used at its resolved type: numeric positions take trends, boolean
// positions take logic rules.
func (ir *IR) checkLogicTypes(subject string, node expr.LogicNode) []scenario.Diagnostic {
	var diags []scenario.Diagnostic

	var checkNumeric func(n expr.TrendNode)
	checkNumeric = func(n expr.TrendNode) {
		switch t := n.(type) {
		case expr.Arith:
			checkNumeric(t.Left)
			checkNumeric(t.Right)
		case expr.TrendRef:
			if _, ok := ir.trendIndex[t.Name]; ok {
				return
			}
			if _, ok := ir.logicIndex[t.Name]; ok {
				diags = append(diags, scenario.Errorf(scenario.CodeTrendComparison, subject,
					"logic rule %q used in a numeric position", t.Name))
				return
			}
			diags = append(diags, scenario.Errorf(scenario.CodeUndefinedReference, subject,
				"undefined reference %q", t.Name))
		}
	}

	var checkBool func(n expr.LogicNode)
	checkBool = func(n expr.LogicNode) {
		switch t := n.(type) {
		case expr.Comparison:
			checkNumeric(t.Left)
			checkNumeric(t.Right)
		case expr.TermRef:
			if _, ok := ir.logicIndex[t.Name]; ok {
				return
			}
			if _, ok := ir.trendIndex[t.Name]; ok {
				diags = append(diags, scenario.Errorf(scenario.CodeTrendComparison, subject,
					"trend %q used as a boolean term; compare it against a threshold instead", t.Name))
				return
			}
			diags = append(diags, scenario.Errorf(scenario.CodeUndefinedReference, subject,
				"undefined reference %q", t.Name))
		case expr.NAry:
			for _, op := range t.Operands {
				checkBool(op)
			}
		case expr.Not:
			checkBool(t.Operand)
		}
	}

	checkBool(node)
	return diags
}

// validateState checks the state machine against declared states and
// logic rules.
func (ir *IR) validateState() []scenario.Diagnostic {
	sm := ir.Doc.State
	if sm == nil {
		return nil
	}
	var diags []scenario.Diagnostic
	if sm.Initial != "" && !sm.HasState(sm.Initial) {
		diags = append(diags, scenario.Errorf(scenario.CodeInvalidTransition, "state",
			"initial state %q is not declared", sm.Initial))
	}
	for _, tr := range sm.Transitions {
		if !sm.HasState(tr.From) {
			diags = append(diags, scenario.Errorf(scenario.CodeInvalidTransition, "state",
				"transition references undeclared state %q", tr.From))
		}
		if !sm.HasState(tr.To) {
			diags = append(diags, scenario.Errorf(scenario.CodeInvalidTransition, "state",
				"transition references undeclared state %q", tr.To))
		}
		if _, ok := ir.logicIndex[tr.When]; !ok {
			diags = append(diags, scenario.Errorf(scenario.CodeInvalidTransition, "state",
				"transition guard %q is not a declared logic rule", tr.When))
		}
	}
	return diags
}
