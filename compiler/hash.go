package compiler

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/caretide/scenario/expr"
)

// Version identifies the compiler for the toolchain hash. Bump on any
// change that can alter compiled output.
const Version = "1.0.0"

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// specHash is the content hash of the raw document text.
func specHash(source string) string {
	return hashBytes([]byte(source))
}

// toolchainHash identifies this compiler build.
func toolchainHash() string {
	return hashBytes([]byte("scenario-compiler/" + Version))
}

// irHash hashes a canonical serialization of the resolved structure and
// the DAG order. The serialization goes through Go maps and
// encoding/json, which emits object keys in sorted order and floats in
// their shortest round-trip form, so the hash is independent of
// declaration-map iteration order in any conformant implementation.
func irHash(signals []ResolvedSignal, trends []ResolvedTrend, logic []ResolvedLogic, order DAGOrder) (string, error) {
	sigs := map[string]any{}
	for _, s := range signals {
		sigs[s.Name] = map[string]any{"ref": s.SemanticRef, "unit": s.ExpectedUnit}
	}
	trs := map[string]any{}
	for _, t := range trends {
		trs[t.Name] = map[string]any{
			"ast":     trendNodeJSON(t.AST),
			"signals": t.Refs.Signals,
			"terms":   t.Refs.Terms,
		}
	}
	lgs := map[string]any{}
	for _, l := range logic {
		lgs[l.Name] = map[string]any{
			"ast":     logicNodeJSON(l.AST),
			"signals": l.Refs.Signals,
			"terms":   l.Refs.Terms,
		}
	}
	canonical := map[string]any{
		"signals": sigs,
		"trends":  trs,
		"logic":   lgs,
		"order": map[string]any{
			"signals": order.Signals,
			"trends":  order.Trends,
			"logic":   order.Logic,
		},
	}
	b, err := json.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("canonical serialization: %w", err)
	}
	return hashBytes(b), nil
}

// trendNodeJSON lowers a trend AST to plain maps for canonical hashing.
func trendNodeJSON(node expr.TrendNode) any {
	switch n := node.(type) {
	case expr.Number:
		return map[string]any{"kind": "number", "value": n.Value}
	case expr.Arith:
		return map[string]any{
			"kind":  "arith",
			"op":    n.Op,
			"left":  trendNodeJSON(n.Left),
			"right": trendNodeJSON(n.Right),
		}
	case expr.OperatorCall:
		m := map[string]any{"kind": "op", "name": n.Name, "signal": n.Signal}
		if n.Window != nil {
			m["window"] = n.Window.String()
		}
		if n.Percentile != nil {
			m["percentile"] = *n.Percentile
		}
		return m
	case expr.TrendRef:
		return map[string]any{"kind": "trendref", "name": n.Name}
	default:
		panic("compiler: unknown trend node")
	}
}

func logicNodeJSON(node expr.LogicNode) any {
	switch n := node.(type) {
	case expr.Comparison:
		return map[string]any{
			"kind":  "cmp",
			"op":    n.Op,
			"left":  trendNodeJSON(n.Left),
			"right": trendNodeJSON(n.Right),
		}
	case expr.TermRef:
		return map[string]any{"kind": "termref", "name": n.Name}
	case expr.NAry:
		ops := make([]any, len(n.Operands))
		for i, op := range n.Operands {
			ops[i] = logicNodeJSON(op)
		}
		return map[string]any{"kind": n.Op, "operands": ops}
	case expr.Not:
		return map[string]any{"kind": "NOT", "operand": logicNodeJSON(n.Operand)}
	default:
		panic("compiler: unknown logic node")
	}
}
