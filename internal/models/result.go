package models

// OutcomeKind classifies the result of one example.
type OutcomeKind string

// Outcome kinds
const (
	OutcomePass       OutcomeKind = "pass"                 // Output or exception matched
	OutcomeFail       OutcomeKind = "fail"                 // Comparison or expected-exception mismatch
	OutcomeUnexpected OutcomeKind = "unexpected-exception" // Raised when nothing was expected
	OutcomeSkip       OutcomeKind = "skip"                 // Not executed
)

// Raised is an exception actually raised while executing an example.
type Raised struct {
	Type    string   // Short type name of the raised value
	Chain   []string // Type names the value can be matched against, most specific first
	Message string   // Error text
	Trace   string   // Stack or diagnostic detail, never compared
}

// Summary renders the exception as "Type: message".
func (r *Raised) Summary() string {
	if r == nil {
		return ""
	}
	if r.Message == "" {
		return r.Type
	}
	return r.Type + ": " + r.Message
}

// Is reports whether name appears anywhere in the raised chain.
func (r *Raised) Is(name string) bool {
	if r == nil {
		return false
	}
	if r.Type == name {
		return true
	}
	for _, c := range r.Chain {
		if c == name {
			return true
		}
	}
	return false
}

// Outcome is the result of executing one example. It is never mutated after
// creation.
type Outcome struct {
	Kind    OutcomeKind // pass, fail, unexpected-exception or skip
	Example *Example    // The example that produced this outcome
	Got     string      // Captured output
	Raised  *Raised     // Exception raised by the example, if any
	Detail  string      // Comparison detail or skip reason
}

// Failed reports whether the outcome counts against the document verdict.
func (o Outcome) Failed() bool {
	return o.Kind == OutcomeFail || o.Kind == OutcomeUnexpected
}
