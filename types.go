package scenario

import (
	"strconv"
	"time"
)

// Signal declares a named time-series input. Signals carry a semantic
// reference only; binding them to a physical table or query is the data
// source's job and is rejected at load time.
type Signal struct {
	Name         string `json:"name"`
	SemanticRef  string `json:"ref"`
	ExpectedUnit string `json:"unit,omitempty"`
}

// WindowSpec is a bounded lookback duration used by windowed temporal
// operators. Immutable once parsed.
type WindowSpec struct {
	Magnitude int    `json:"magnitude"`
	Unit      string `json:"unit"`
}

var unitSeconds = map[string]int64{
	"s": 1,
	"m": 60,
	"h": 3600,
	"d": 86400,
	"w": 604800,
}

// Seconds returns the canonical length of the window.
func (w WindowSpec) Seconds() int64 {
	return int64(w.Magnitude) * unitSeconds[w.Unit]
}

func (w WindowSpec) String() string {
	return strconv.Itoa(w.Magnitude) + w.Unit
}

// DataPoint is one observation of a signal. A nil Value is a recorded
// observation whose measurement is missing.
type DataPoint struct {
	Timestamp time.Time `json:"t"`
	Value     *float64  `json:"v"`
}

// NewPoint returns a DataPoint carrying a value.
func NewPoint(t time.Time, v float64) DataPoint {
	return DataPoint{Timestamp: t, Value: &v}
}

// NullPoint returns a DataPoint with a missing value.
func NullPoint(t time.Time) DataPoint {
	return DataPoint{Timestamp: t}
}

// NamedExpr is one trend or logic declaration: a name bound to raw
// expression text plus optional annotations from the document.
type NamedExpr struct {
	Name        string `json:"name"`
	Expr        string `json:"expr"`
	Description string `json:"description,omitempty"`
	Severity    string `json:"severity,omitempty"`
}

// AuditBlock is the required provenance metadata attached to a document.
type AuditBlock struct {
	Intent     string `json:"intent"`
	Rationale  string `json:"rationale"`
	Provenance string `json:"provenance"`
}

// StateTransition moves the machine from one state to another when the
// named logic rule evaluates true.
type StateTransition struct {
	From string `json:"from"`
	To   string `json:"to"`
	When string `json:"when"`
}

// StateMachineSpec declares a deterministic automaton over named states.
type StateMachineSpec struct {
	Initial     string            `json:"initial"`
	States      []string          `json:"states"`
	Transitions []StateTransition `json:"transitions"`
}

// HasState reports whether name is a declared state.
func (s *StateMachineSpec) HasState(name string) bool {
	for _, st := range s.States {
		if st == name {
			return true
		}
	}
	return false
}

// PopulationSpec holds cohort filter expressions. Each entry is a CEL
// expression over a Patient attribute map.
type PopulationSpec struct {
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
}

// Document is the loaded, structurally valid form of a scenario. Slices
// preserve declaration order so compilation is deterministic.
type Document struct {
	Name        string
	Version     string
	Description string
	Source      string // raw document text, hashed into spec_hash
	Signals     []Signal
	Trends      []NamedExpr
	Logic       []NamedExpr
	Population  *PopulationSpec
	State       *StateMachineSpec
	Outputs     []string
	Audit       *AuditBlock
}

// SignalByName looks up a declared signal.
func (d *Document) SignalByName(name string) (Signal, bool) {
	for _, s := range d.Signals {
		if s.Name == name {
			return s, true
		}
	}
	return Signal{}, false
}

// EvaluationResult is the immutable outcome of one evaluation pass for
// one patient at one reference time. Nil map values mean "insufficient
// data", not zero or false.
type EvaluationResult struct {
	PatientID       string              `json:"patientId"`
	ReferenceTime   time.Time           `json:"referenceTime"`
	TrendValues     map[string]*float64 `json:"trendValues"`
	LogicValues     map[string]*bool    `json:"logicValues"`
	CurrentState    string              `json:"currentState,omitempty"`
	Triggered       bool                `json:"triggered"`
	TriggeredLogic  []string            `json:"triggeredLogic"`
	PopulationMatch *bool               `json:"populationMatch,omitempty"`
}
