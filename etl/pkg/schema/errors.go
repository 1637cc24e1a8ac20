package schema

import (
	"fmt"
	"strings"
)

// ValidationError reports a data-integrity failure: an identifier that does
// not parse, a schema conformance miss, or a foreign key with no matching
// dimension row. It is fatal for the affected table's pipeline and is never
// silently repaired.
type ValidationError struct {
	Table  string
	Column string
	Reason string
	Count  int
	Sample []string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("validation failed for table %s", e.Table)
	if e.Column != "" {
		msg += fmt.Sprintf(", column %s", e.Column)
	}
	msg += ": " + e.Reason
	if e.Count > 0 {
		msg += fmt.Sprintf(" (%d offending rows", e.Count)
		if len(e.Sample) > 0 {
			msg += fmt.Sprintf(", sample: %s", strings.Join(e.Sample, ", "))
		}
		msg += ")"
	}
	return msg
}
