// Package loader parses the YAML form of a scenario document and checks
// its structure: required sections, version compatibility, audit
// metadata, and the semantic-reference-only rule for signals. Expression
// text is carried through untouched; parsing it is the compiler's job.
package loader

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/caretide/scenario"
)

// SupportedMajor is the document format major version this
// implementation accepts. Minor and patch differences are tolerated.
const SupportedMajor = 1

// Keys that bind a signal to physical storage. Signals must declare
// semantic references only; the data source decides the physical side.
var physicalBindingKeys = map[string]bool{
	"table":      true,
	"column":     true,
	"query":      true,
	"sql":        true,
	"connection": true,
	"dsn":        true,
}

// MinAuditLen is the minimum length of each audit block field.
const MinAuditLen = 10

type rawDocument struct {
	Scenario    string    `yaml:"scenario"`
	Version     string    `yaml:"version"`
	Description string    `yaml:"description"`
	Population  yaml.Node `yaml:"population"`
	Signals     yaml.Node `yaml:"signals"`
	Trends      yaml.Node `yaml:"trends"`
	Logic       yaml.Node `yaml:"logic"`
	State       yaml.Node `yaml:"state"`
	Outputs     []string  `yaml:"outputs"`
	Audit       yaml.Node `yaml:"audit"`
}

// Load parses source into a Document, accumulating structural
// diagnostics. The returned error is reserved for text that is not a
// YAML mapping at all; every other problem is a diagnostic, so a single
// load reports everything wrong with the document.
func Load(source []byte) (*scenario.Document, []scenario.Diagnostic, error) {
	var raw rawDocument
	if err := yaml.Unmarshal(source, &raw); err != nil {
		return nil, nil, fmt.Errorf("invalid document: %w", err)
	}

	var diags []scenario.Diagnostic
	doc := &scenario.Document{
		Name:        raw.Scenario,
		Version:     raw.Version,
		Description: raw.Description,
		Source:      string(source),
		Outputs:     raw.Outputs,
	}

	if raw.Scenario == "" {
		diags = append(diags, scenario.Errorf(scenario.CodeMissingField, "scenario", "missing required field 'scenario'"))
	}
	diags = append(diags, checkVersion(raw.Version)...)

	if isMissing(raw.Signals) {
		diags = append(diags, scenario.Errorf(scenario.CodeMissingField, "signals", "missing required field 'signals'"))
	} else {
		sigs, sigDiags := parseSignals(raw.Signals)
		doc.Signals = sigs
		diags = append(diags, sigDiags...)
	}

	if !isMissing(raw.Trends) {
		trends, trendDiags := parseNamedExprs(raw.Trends, "trends")
		doc.Trends = trends
		diags = append(diags, trendDiags...)
	}

	if isMissing(raw.Logic) {
		diags = append(diags, scenario.Errorf(scenario.CodeMissingField, "logic", "missing required field 'logic'"))
	} else {
		logic, logicDiags := parseNamedExprs(raw.Logic, "logic")
		doc.Logic = logic
		diags = append(diags, logicDiags...)
	}

	if !isMissing(raw.Population) {
		pop, popDiags := parsePopulation(raw.Population)
		doc.Population = pop
		diags = append(diags, popDiags...)
	}

	if !isMissing(raw.State) {
		st, stDiags := parseState(raw.State)
		doc.State = st
		diags = append(diags, stDiags...)
	}

	audit, auditDiags := parseAudit(raw.Audit)
	doc.Audit = audit
	diags = append(diags, auditDiags...)

	return doc, diags, nil
}

func isMissing(n yaml.Node) bool {
	return n.Kind == 0 || n.Tag == "!!null"
}

func checkVersion(version string) []scenario.Diagnostic {
	if version == "" {
		return []scenario.Diagnostic{
			scenario.Errorf(scenario.CodeMissingField, "version", "missing required field 'version'"),
		}
	}
	parts := strings.SplitN(version, ".", 3)
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return []scenario.Diagnostic{
			scenario.Errorf(scenario.CodeMissingField, "version", "version %q is not semantic (major.minor.patch)", version),
		}
	}
	if major != SupportedMajor {
		return []scenario.Diagnostic{
			scenario.Errorf(scenario.CodeUnsupportedVersion, "version",
				"document major version %d is not supported (supported: %d)", major, SupportedMajor),
		}
	}
	return nil
}

// parseSignals walks the signals mapping in declaration order. Entries
// are either a string shorthand (the semantic reference) or a mapping
// with ref/unit keys.
func parseSignals(node yaml.Node) ([]scenario.Signal, []scenario.Diagnostic) {
	var diags []scenario.Diagnostic
	if node.Kind != yaml.MappingNode {
		return nil, []scenario.Diagnostic{
			scenario.Errorf(scenario.CodeMissingField, "signals", "'signals' must be a mapping"),
		}
	}
	var signals []scenario.Signal
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		val := node.Content[i+1]
		switch val.Kind {
		case yaml.ScalarNode:
			signals = append(signals, scenario.Signal{Name: name, SemanticRef: val.Value})
		case yaml.MappingNode:
			sig := scenario.Signal{Name: name}
			for j := 0; j+1 < len(val.Content); j += 2 {
				key := val.Content[j].Value
				v := val.Content[j+1].Value
				switch {
				case key == "ref":
					sig.SemanticRef = v
				case key == "unit":
					sig.ExpectedUnit = v
				case physicalBindingKeys[key]:
					diags = append(diags, scenario.Errorf(scenario.CodePhysicalBinding, name,
						"signal declares physical binding %q; signals must use semantic references only", key))
				}
			}
			if sig.SemanticRef == "" {
				diags = append(diags, scenario.Errorf(scenario.CodeMissingField, name,
					"signal %q missing 'ref'", name))
			}
			signals = append(signals, sig)
		default:
			diags = append(diags, scenario.Errorf(scenario.CodeMissingField, name,
				"invalid signal specification for %q", name))
		}
	}
	return signals, diags
}

// parseNamedExprs handles the trends and logic sections, which share
// the string-or-mapping shorthand.
func parseNamedExprs(node yaml.Node, section string) ([]scenario.NamedExpr, []scenario.Diagnostic) {
	var diags []scenario.Diagnostic
	if node.Kind != yaml.MappingNode {
		return nil, []scenario.Diagnostic{
			scenario.Errorf(scenario.CodeMissingField, section, "'%s' must be a mapping", section),
		}
	}
	var exprs []scenario.NamedExpr
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		val := node.Content[i+1]
		switch val.Kind {
		case yaml.ScalarNode:
			exprs = append(exprs, scenario.NamedExpr{Name: name, Expr: val.Value})
		case yaml.MappingNode:
			ne := scenario.NamedExpr{Name: name}
			for j := 0; j+1 < len(val.Content); j += 2 {
				switch val.Content[j].Value {
				case "expr":
					ne.Expr = val.Content[j+1].Value
				case "description":
					ne.Description = val.Content[j+1].Value
				case "severity":
					ne.Severity = val.Content[j+1].Value
				}
			}
			if ne.Expr == "" {
				diags = append(diags, scenario.Errorf(scenario.CodeMissingField, name,
					"%s %q missing 'expr'", strings.TrimSuffix(section, "s"), name))
			}
			exprs = append(exprs, ne)
		default:
			diags = append(diags, scenario.Errorf(scenario.CodeMissingField, name,
				"invalid %s specification for %q", section, name))
		}
	}
	return exprs, diags
}

func parsePopulation(node yaml.Node) (*scenario.PopulationSpec, []scenario.Diagnostic) {
	var spec scenario.PopulationSpec
	if err := node.Decode(&spec); err != nil {
		return nil, []scenario.Diagnostic{
			scenario.Errorf(scenario.CodeMissingField, "population", "invalid population section: %v", err),
		}
	}
	return &spec, nil
}

type rawTransition struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
	When string `yaml:"when"`
}

type rawState struct {
	Initial     string          `yaml:"initial"`
	States      []string        `yaml:"states"`
	Transitions []rawTransition `yaml:"transitions"`
}

func parseState(node yaml.Node) (*scenario.StateMachineSpec, []scenario.Diagnostic) {
	var raw rawState
	if err := node.Decode(&raw); err != nil {
		return nil, []scenario.Diagnostic{
			scenario.Errorf(scenario.CodeMissingField, "state", "invalid state section: %v", err),
		}
	}
	var diags []scenario.Diagnostic
	sm := &scenario.StateMachineSpec{Initial: raw.Initial, States: raw.States}
	for _, tr := range raw.Transitions {
		if tr.From == "" || tr.To == "" || tr.When == "" {
			diags = append(diags, scenario.Errorf(scenario.CodeMissingField, "state",
				"state transition requires 'from', 'to' and 'when'"))
			continue
		}
		sm.Transitions = append(sm.Transitions, scenario.StateTransition(tr))
	}
	return sm, diags
}

func parseAudit(node yaml.Node) (*scenario.AuditBlock, []scenario.Diagnostic) {
	if isMissing(node) {
		return nil, []scenario.Diagnostic{
			scenario.Errorf(scenario.CodeMissingField, "audit", "missing required field 'audit'"),
		}
	}
	var audit scenario.AuditBlock
	if err := node.Decode(&audit); err != nil {
		return nil, []scenario.Diagnostic{
			scenario.Errorf(scenario.CodeMissingField, "audit", "invalid audit section: %v", err),
		}
	}
	var diags []scenario.Diagnostic
	check := func(field, value string) {
		if len(value) < MinAuditLen {
			diags = append(diags, scenario.Errorf(scenario.CodeMissingField, "audit",
				"audit field %q must be at least %d characters", field, MinAuditLen))
		}
	}
	check("intent", audit.Intent)
	check("rationale", audit.Rationale)
	check("provenance", audit.Provenance)
	return &audit, diags
}
