package scenario

import "fmt"

// Diagnostic codes. These are stable identifiers used by conformance
// tests and by the audit artifact; do not renumber.
const (
	CodeTrendComparison    = "E001" // comparison or boolean operator inside a trend expression
	CodeMissingField       = "E002" // required document field missing or malformed
	CodeUnsupportedVersion = "E003" // document major version not supported
	CodePhysicalBinding    = "E004" // signal declares a physical data binding
	CodeCircularReference  = "E005" // dependency cycle among trends/logic
	CodeUndefinedReference = "E006" // reference to an undeclared signal/trend/logic name
	CodePopulationExpr     = "E007" // population filter expression failed to compile
	CodeInvalidTransition  = "E008" // state transition references undeclared state or logic
	CodeSyntax             = "E009" // expression grammar violation
	CodeDuplicateName      = "E010" // name declared more than once across trends/logic
)

// Severity of a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Span marks the byte range of the offending text within an expression.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Diagnostic is one problem found while loading or compiling a document.
// Subject names the declaration the problem was found in.
type Diagnostic struct {
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Subject  string   `json:"subject,omitempty"`
	Message  string   `json:"message"`
	Span     *Span    `json:"span,omitempty"`
}

func (d Diagnostic) String() string {
	if d.Subject != "" {
		return fmt.Sprintf("%s [%s] %s: %s", d.Code, d.Severity, d.Subject, d.Message)
	}
	return fmt.Sprintf("%s [%s] %s", d.Code, d.Severity, d.Message)
}

// Errorf builds an error-severity diagnostic.
func Errorf(code, subject, format string, args ...any) Diagnostic {
	return Diagnostic{
		Code:     code,
		Severity: SeverityError,
		Subject:  subject,
		Message:  fmt.Sprintf(format, args...),
	}
}

// HasErrors reports whether any diagnostic is error severity.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}
