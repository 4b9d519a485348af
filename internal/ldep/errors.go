package ldep

import "errors"

// Error taxonomy for the analyzer, spec.md §7. Every one of these is a
// regular Go error return (the loader's errors end the process only when
// its opt-in Fatal mode is set; these never do); the sloppiness budget (severity) of §7 is a distinct concept
// layered on top of specific failures, not a replacement for them.
var (
	ErrListFileNotFound  = errors.New("list file not found")
	ErrAmbiguousObject   = errors.New("ambiguous object name")
	ErrObjectNotFound    = errors.New("object not found")
	ErrMandatoryRejected = errors.New("unlink would remove a mandatory object")
	ErrNoAnchor          = errors.New("object has no link-set anchor")
	ErrSymbolUndefined   = errors.New("symbol has no definer")
)

// Severity values for the sloppiness budget (spec.md §7,
// SPEC_FULL.md §3 "Sloppiness-budget list-file processing"). These mirror
// original_source/ldep/ldep.c's four negative constants exactly: a
// list-file that cannot be opened is the most severe, a rejected mandatory
// removal the least.
const (
	SeverityListFileNotFound  = -4
	SeverityAmbiguousObject   = -3
	SeverityObjectNotFound    = -2
	SeverityMandatoryRejected = -1
)

// Budget accumulates severities across a run and reports whether the
// configured tolerance has been exceeded (spec.md §7: "if the accumulated
// severity exceeds a configured tolerance, the analyzer exits nonzero").
// Tolerance and running total are both non-positive; the budget is
// exhausted once total drops below tolerance.
type Budget struct {
	Tolerance int
	total     int
	events    []string
}

// NewBudget returns a Budget with the given tolerance (typically a small
// negative number; 0 means "any severity event fails the run").
func NewBudget(tolerance int) *Budget {
	return &Budget{Tolerance: tolerance}
}

// Charge records one severity event with a human-readable description for
// later reporting.
func (b *Budget) Charge(severity int, reason string) {
	b.total += severity
	b.events = append(b.events, reason)
}

// Exceeded reports whether the accumulated severity has dropped below
// tolerance.
func (b *Budget) Exceeded() bool { return b.total < b.Tolerance }

// Total returns the current accumulated severity (always <= 0 once any
// event has been charged).
func (b *Budget) Total() int { return b.total }

// Events returns every charged reason, in charge order.
func (b *Budget) Events() []string { return b.events }
