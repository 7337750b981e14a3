package compiler

import (
	"testing"

	"github.com/caretide/scenario"
)

func testDoc() *scenario.Document {
	return &scenario.Document{
		Name:    "aki-detection",
		Version: "1.0.0",
		Source:  "scenario: aki-detection\n",
		Signals: []scenario.Signal{
			{Name: "creatinine", SemanticRef: "loinc:2160-0"},
			{Name: "urine_output", SemanticRef: "loinc:9192-6"},
		},
		Trends: []scenario.NamedExpr{
			{Name: "cr_rise", Expr: "delta(creatinine, 48h)"},
			{Name: "cr_ratio", Expr: "last(creatinine) / first(creatinine, 168h)"},
		},
		Logic: []scenario.NamedExpr{
			{Name: "aki_stage_1", Expr: "cr_rise >= 0.3"},
			{Name: "aki_alert", Expr: "aki_stage_1 OR cr_ratio >= 1.5"},
		},
	}
}

func hasCode(diags []scenario.Diagnostic, code string) bool {
	for _, d := range diags {
		if d.Code == code {
			return true
		}
	}
	return false
}

func TestCompileSuccess(t *testing.T) {
	ir := Compile(testDoc())
	if !ir.Diagnostics.Success {
		t.Fatalf("compile failed: %v", ir.Diagnostics.Items)
	}
	if ir.SpecHash == "" || ir.IRHash == "" || ir.ToolchainHash == "" {
		t.Error("expected all three hashes to be set")
	}
	if len(ir.Order.Trends) != 2 || len(ir.Order.Logic) != 2 {
		t.Errorf("unexpected order: %+v", ir.Order)
	}
}

func TestCompileOrderRespectsDependencies(t *testing.T) {
	doc := testDoc()
	// baseline is declared after cr_norm but cr_norm depends on it.
	doc.Trends = []scenario.NamedExpr{
		{Name: "cr_norm", Expr: "last(creatinine) / baseline"},
		{Name: "baseline", Expr: "first(creatinine, 168h)"},
	}
	doc.Logic = []scenario.NamedExpr{
		{Name: "elevated", Expr: "cr_norm > 1.5"},
	}
	ir := Compile(doc)
	if !ir.Diagnostics.Success {
		t.Fatalf("compile failed: %v", ir.Diagnostics.Items)
	}
	idx := map[string]int{}
	for i, name := range ir.Order.Trends {
		idx[name] = i
	}
	if idx["baseline"] > idx["cr_norm"] {
		t.Errorf("baseline must be ordered before cr_norm: %v", ir.Order.Trends)
	}
}

func TestCompileDeterministicHash(t *testing.T) {
	a := Compile(testDoc())
	b := Compile(testDoc())
	if a.IRHash != b.IRHash {
		t.Errorf("same document produced different IR hashes: %s vs %s", a.IRHash, b.IRHash)
	}

	changed := testDoc()
	changed.Trends[0].Expr = "delta(creatinine, 24h)"
	c := Compile(changed)
	if c.IRHash == a.IRHash {
		t.Error("different expressions produced the same IR hash")
	}
}

func TestCompileCycleIsFatal(t *testing.T) {
	doc := testDoc()
	doc.Trends = []scenario.NamedExpr{
		{Name: "a", Expr: "b + 1"},
		{Name: "b", Expr: "a + 1"},
	}
	doc.Logic = []scenario.NamedExpr{
		{Name: "anything", Expr: "a > 0"},
	}
	ir := Compile(doc)
	if ir.Diagnostics.Success {
		t.Fatal("expected compile failure for cycle")
	}
	if !hasCode(ir.Diagnostics.Items, scenario.CodeCircularReference) {
		t.Errorf("expected %s, got %v", scenario.CodeCircularReference, ir.Diagnostics.Items)
	}
	if ir.IRHash != "" {
		t.Error("failed compile must not produce an IR hash")
	}
}

func TestCompileUndefinedReference(t *testing.T) {
	doc := testDoc()
	doc.Logic = append(doc.Logic, scenario.NamedExpr{Name: "bad", Expr: "no_such_trend > 1"})
	ir := Compile(doc)
	if ir.Diagnostics.Success {
		t.Fatal("expected compile failure")
	}
	if !hasCode(ir.Diagnostics.Items, scenario.CodeUndefinedReference) {
		t.Errorf("expected %s, got %v", scenario.CodeUndefinedReference, ir.Diagnostics.Items)
	}
}

func TestCompileLogicInNumericPosition(t *testing.T) {
	doc := testDoc()
	doc.Logic = append(doc.Logic, scenario.NamedExpr{Name: "bad", Expr: "aki_stage_1 + 1 > 0"})
	ir := Compile(doc)
	if ir.Diagnostics.Success {
		t.Fatal("expected compile failure")
	}
	if !hasCode(ir.Diagnostics.Items, scenario.CodeTrendComparison) {
		t.Errorf("expected %s, got %v", scenario.CodeTrendComparison, ir.Diagnostics.Items)
	}
}

func TestCompileSyntaxErrorsReportedTogether(t *testing.T) {
	doc := testDoc()
	doc.Trends[0].Expr = "delta(creatinine, 48h) >= 0.3" // comparator in a trend
	doc.Logic[0].Expr = "cr_ratio >"                     // truncated
	ir := Compile(doc)
	if ir.Diagnostics.Success {
		t.Fatal("expected compile failure")
	}
	if !hasCode(ir.Diagnostics.Items, scenario.CodeTrendComparison) {
		t.Errorf("expected %s among %v", scenario.CodeTrendComparison, ir.Diagnostics.Items)
	}
	if len(ir.Diagnostics.Items) < 2 {
		t.Errorf("expected both syntax problems reported, got %v", ir.Diagnostics.Items)
	}
}

func TestCompileDuplicateName(t *testing.T) {
	doc := testDoc()
	doc.Logic = append(doc.Logic, scenario.NamedExpr{Name: "cr_rise", Expr: "cr_ratio > 1.5"})
	ir := Compile(doc)
	if ir.Diagnostics.Success {
		t.Fatal("expected compile failure for a name declared as both trend and logic")
	}
	if !hasCode(ir.Diagnostics.Items, scenario.CodeDuplicateName) {
		t.Errorf("expected %s, got %v", scenario.CodeDuplicateName, ir.Diagnostics.Items)
	}

	doc = testDoc()
	doc.Trends = append(doc.Trends, scenario.NamedExpr{Name: "cr_rise", Expr: "delta(creatinine, 24h)"})
	ir = Compile(doc)
	if ir.Diagnostics.Success {
		t.Fatal("expected compile failure for a trend declared twice")
	}
	if !hasCode(ir.Diagnostics.Items, scenario.CodeDuplicateName) {
		t.Errorf("expected %s, got %v", scenario.CodeDuplicateName, ir.Diagnostics.Items)
	}
}

func TestCompileStateValidation(t *testing.T) {
	doc := testDoc()
	doc.State = &scenario.StateMachineSpec{
		Initial: "monitoring",
		States:  []string{"monitoring", "alerted"},
		Transitions: []scenario.StateTransition{
			{From: "monitoring", To: "alerted", When: "aki_alert"},
		},
	}
	ir := Compile(doc)
	if !ir.Diagnostics.Success {
		t.Fatalf("compile failed: %v", ir.Diagnostics.Items)
	}

	doc.State.Transitions = append(doc.State.Transitions,
		scenario.StateTransition{From: "alerted", To: "resolved", When: "aki_alert"})
	ir = Compile(doc)
	if ir.Diagnostics.Success {
		t.Fatal("expected failure for undeclared state")
	}
	if !hasCode(ir.Diagnostics.Items, scenario.CodeInvalidTransition) {
		t.Errorf("expected %s, got %v", scenario.CodeInvalidTransition, ir.Diagnostics.Items)
	}
}

func TestCompilePopulationExpr(t *testing.T) {
	doc := testDoc()
	doc.Population = &scenario.PopulationSpec{
		Include: []string{`Patient.age >= 18`},
		Exclude: []string{`Patient.on_dialysis == true`},
	}
	ir := Compile(doc)
	if !ir.Diagnostics.Success {
		t.Fatalf("compile failed: %v", ir.Diagnostics.Items)
	}
	if ir.Population == nil {
		t.Fatal("expected compiled population filter")
	}

	doc.Population.Include = []string{`Patient.age >=`}
	ir = Compile(doc)
	if ir.Diagnostics.Success {
		t.Fatal("expected failure for malformed population expression")
	}
	if !hasCode(ir.Diagnostics.Items, scenario.CodePopulationExpr) {
		t.Errorf("expected %s, got %v", scenario.CodePopulationExpr, ir.Diagnostics.Items)
	}
}

func TestPopulationMatch(t *testing.T) {
	doc := testDoc()
	doc.Population = &scenario.PopulationSpec{
		Include: []string{`Patient.age >= 18`},
		Exclude: []string{`Patient.on_dialysis`},
	}
	ir := Compile(doc)
	if !ir.Diagnostics.Success {
		t.Fatalf("compile failed: %v", ir.Diagnostics.Items)
	}

	match := ir.Population.Match(map[string]any{"age": 44, "on_dialysis": false})
	if match == nil || !*match {
		t.Errorf("expected match, got %v", match)
	}
	match = ir.Population.Match(map[string]any{"age": 44, "on_dialysis": true})
	if match == nil || *match {
		t.Errorf("expected exclusion, got %v", match)
	}
	match = ir.Population.Match(map[string]any{"age": 12, "on_dialysis": false})
	if match == nil || *match {
		t.Errorf("expected non-match for minor, got %v", match)
	}
	// Missing attribute makes the filter indeterminate, not false.
	match = ir.Population.Match(map[string]any{})
	if match != nil {
		t.Errorf("expected indeterminate match, got %v", *match)
	}
}

func TestArtifact(t *testing.T) {
	ir := Compile(testDoc())
	art := ir.Artifact()
	if art.Scenario != "aki-detection" || !art.Success {
		t.Errorf("unexpected artifact: %+v", art)
	}
	if art.IRHash != ir.IRHash || art.SpecHash != ir.SpecHash {
		t.Error("artifact hashes must mirror the IR")
	}
	if art.ToolchainHash == "" {
		t.Error("artifact must carry the toolchain hash")
	}
}

func TestMaxLookback(t *testing.T) {
	ir := Compile(testDoc())
	if !ir.Diagnostics.Success {
		t.Fatalf("compile failed: %v", ir.Diagnostics.Items)
	}
	// Widest window is first(creatinine, 168h).
	if got := ir.MaxLookback().Hours(); got != 168 {
		t.Errorf("expected 168h lookback, got %vh", got)
	}
}

func TestMaxLookbackInlineLogicWindow(t *testing.T) {
	// The only window lives inside a logic comparison, not a trend.
	doc := testDoc()
	doc.Trends = nil
	doc.Logic = []scenario.NamedExpr{
		{Name: "high", Expr: "sma(creatinine, 24h) > 2.0"},
	}
	ir := Compile(doc)
	if !ir.Diagnostics.Success {
		t.Fatalf("compile failed: %v", ir.Diagnostics.Items)
	}
	if got := ir.MaxLookback().Hours(); got != 24 {
		t.Errorf("expected 24h lookback for inline logic window, got %vh", got)
	}
}

func TestMaxLookbackPointwiseFloor(t *testing.T) {
	// Pointwise operators still read history; the lookback never
	// collapses to zero.
	doc := testDoc()
	doc.Trends = []scenario.NamedExpr{
		{Name: "cr_last", Expr: "last(creatinine)"},
	}
	doc.Logic = []scenario.NamedExpr{
		{Name: "high", Expr: "cr_last > 2.0"},
	}
	ir := Compile(doc)
	if !ir.Diagnostics.Success {
		t.Fatalf("compile failed: %v", ir.Diagnostics.Items)
	}
	if got := ir.MaxLookback(); got != pointwiseLookback {
		t.Errorf("expected %v floor, got %v", pointwiseLookback, got)
	}
}
