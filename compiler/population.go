package compiler

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/caretide/scenario"
)

// Population holds the compiled cohort filter. Include/exclude entries
// are CEL programs over a dynamic Patient variable; the programs are
// immutable and safe for concurrent evaluation.
type Population struct {
	include []populationProgram
	exclude []populationProgram
}

type populationProgram struct {
	source  string
	program cel.Program
}

func newPopulationEnv() (*cel.Env, error) {
	return cel.NewEnv(cel.Variable("Patient", cel.DynType))
}

// compilePopulation compiles every filter expression, accumulating one
// diagnostic per failing entry rather than stopping at the first.
func compilePopulation(spec *scenario.PopulationSpec) (*Population, []scenario.Diagnostic) {
	if spec == nil {
		return nil, nil
	}
	env, err := newPopulationEnv()
	if err != nil {
		return nil, []scenario.Diagnostic{
			scenario.Errorf(scenario.CodePopulationExpr, "population", "filter environment: %v", err),
		}
	}

	var diags []scenario.Diagnostic
	compile := func(src, subject string) (populationProgram, bool) {
		ast, issues := env.Compile(src)
		if issues != nil && issues.Err() != nil {
			diags = append(diags, scenario.Errorf(scenario.CodePopulationExpr, subject,
				"invalid population expression %q: %v", src, issues.Err()))
			return populationProgram{}, false
		}
		prog, err := env.Program(ast, cel.CostLimit(1000000))
		if err != nil {
			diags = append(diags, scenario.Errorf(scenario.CodePopulationExpr, subject,
				"population program %q: %v", src, err))
			return populationProgram{}, false
		}
		return populationProgram{source: src, program: prog}, true
	}

	pop := &Population{}
	for _, src := range spec.Include {
		if p, ok := compile(src, "population.include"); ok {
			pop.include = append(pop.include, p)
		}
	}
	for _, src := range spec.Exclude {
		if p, ok := compile(src, "population.exclude"); ok {
			pop.exclude = append(pop.exclude, p)
		}
	}
	if len(diags) > 0 {
		return nil, diags
	}
	return pop, nil
}

// Match evaluates the filter against patient attributes. The result is
// nil (indeterminate) when any program fails to evaluate or yields a
// non-boolean, mirroring the engine's null propagation.
func (p *Population) Match(attrs map[string]any) *bool {
	if p == nil {
		return nil
	}
	eval := func(pp populationProgram) (bool, error) {
		out, _, err := pp.program.Eval(map[string]any{"Patient": attrs})
		if err != nil {
			return false, err
		}
		b, ok := out.Value().(bool)
		if !ok {
			return false, fmt.Errorf("population expression %q is not boolean", pp.source)
		}
		return b, nil
	}

	matched := true
	for _, pp := range p.include {
		b, err := eval(pp)
		if err != nil {
			return nil
		}
		if !b {
			matched = false
		}
	}
	for _, pp := range p.exclude {
		b, err := eval(pp)
		if err != nil {
			return nil
		}
		if b {
			matched = false
		}
	}
	return &matched
}
