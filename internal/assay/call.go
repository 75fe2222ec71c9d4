// Package assay implements qPCR well calling: per-protocol threshold
// classification of sample and control wells, and the plate-level
// contamination scan that escalates suspect positives.
package assay

// Call is the qualitative outcome of classifying a well. Pass and Fail
// apply only to control wells. A call is written once by the classifier
// and may be rewritten at most once more by the contamination scanner,
// which only escalates an exactly-Positive call.
type Call string

const (
	CallPositive        Call = "Pos"
	CallPositiveReview  Call = "Positive, review required"
	CallPositiveCluster Call = "Review needed: Positive by cluster"
	CallPositiveHotWell Call = "Review needed: Positive by hot well"
	CallNegative        Call = "Neg"
	CallInvalid         Call = "Inv"
	CallIndeterminate   Call = "Ind"

	// control outcomes
	CallPass Call = "Pass"
	CallFail Call = "Fail"
)

// IsPositive reports whether the call is any flavor of positive.
func (c Call) IsPositive() bool {
	switch c {
	case CallPositive, CallPositiveReview, CallPositiveCluster, CallPositiveHotWell:
		return true
	}
	return false
}

// Short collapses every positive flavor to "Pos"; other calls keep their
// full wording. Used in the per-well results table.
func (c Call) Short() string {
	if c.IsPositive() {
		return "Pos"
	}
	return string(c)
}

// Display is the plate-map cell form: positives that need human review
// render as "Pos*", everything else as Short.
func (c Call) Display() string {
	if c.IsPositive() && c != CallPositive {
		return "Pos*"
	}
	return c.Short()
}

// PossibleCluster reports whether the call came from the contamination
// scanner.
func (c Call) PossibleCluster() bool {
	return c == CallPositiveCluster || c == CallPositiveHotWell
}

// NeedsRerun reports whether the sample should be scheduled for a repeat
// run.
func (c Call) NeedsRerun() bool {
	switch c {
	case CallPositiveCluster, CallPositiveHotWell, CallInvalid, CallIndeterminate:
		return true
	}
	return false
}
