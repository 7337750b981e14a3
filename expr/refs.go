package expr

// RefSet is the set of names an expression depends on, split into signal
// references (operator call arguments) and term references (other trends
// or logic rules). Order of first appearance is preserved.
type RefSet struct {
	Signals []string
	Terms   []string
}

func (r *RefSet) addSignal(name string) {
	for _, s := range r.Signals {
		if s == name {
			return
		}
	}
	r.Signals = append(r.Signals, name)
}

func (r *RefSet) addTerm(name string) {
	for _, t := range r.Terms {
		if t == name {
			return
		}
	}
	r.Terms = append(r.Terms, name)
}

// TrendRefs collects the references of a trend AST.
func TrendRefs(node TrendNode) RefSet {
	var refs RefSet
	walkTrend(node, &refs)
	return refs
}

// LogicRefs collects the references of a logic AST. Signals can appear
// through inline operator calls in comparison operands.
func LogicRefs(node LogicNode) RefSet {
	var refs RefSet
	walkLogic(node, &refs)
	return refs
}

func walkTrend(node TrendNode, refs *RefSet) {
	switch n := node.(type) {
	case Number:
	case Arith:
		walkTrend(n.Left, refs)
		walkTrend(n.Right, refs)
	case OperatorCall:
		refs.addSignal(n.Signal)
	case TrendRef:
		refs.addTerm(n.Name)
	default:
		// The AST is a closed set; anything else is a corrupted tree.
		panic("expr: unknown trend node")
	}
}

func walkLogic(node LogicNode, refs *RefSet) {
	switch n := node.(type) {
	case Comparison:
		walkTrend(n.Left, refs)
		walkTrend(n.Right, refs)
	case TermRef:
		refs.addTerm(n.Name)
	case NAry:
		for _, op := range n.Operands {
			walkLogic(op, refs)
		}
	case Not:
		walkLogic(n.Operand, refs)
	default:
		panic("expr: unknown logic node")
	}
}
