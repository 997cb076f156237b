package harness

import (
	"fmt"
	"strings"
)

// AssertionContext carries the state assertions inspect besides the result.
type AssertionContext struct {
	Calls     []Call
	FinalStep string
}

// AssertionError is returned when an assertion fails.
// It includes the trace to help debug the failure.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		switch event.Type {
		case EventStep:
			fmt.Fprintf(&buf, "  [%d] %s -> %s\n", event.Seq, event.Flow, event.Step)
		case EventGateway:
			fmt.Fprintf(&buf, "  [%d] gateway %s %v\n", event.Seq, event.Action, event.Fields)
		case EventError:
			fmt.Fprintf(&buf, "  [%d] %s error %s: %s\n", event.Seq, event.Flow, event.Code, event.Message)
		}
	}

	return buf.String()
}

// EvaluateAssertions runs all assertions and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluate(result, a, actx); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func evaluate(result *Result, a Assertion, actx *AssertionContext) error {
	fail := func(expected, actual string) error {
		return &AssertionError{Type: a.Type, Expected: expected, Actual: actual, Trace: result.Trace}
	}

	switch a.Type {
	case AssertLogRows:
		if got := len(result.Logs[a.Key]); got != a.Count {
			return fail(fmt.Sprintf("%d rows in %s", a.Count, a.Key), fmt.Sprintf("%d rows", got))
		}

	case AssertLogRow:
		rows := result.Logs[a.Key]
		if a.Index >= len(rows) {
			return fail(fmt.Sprintf("row %d in %s", a.Index, a.Key), fmt.Sprintf("%d rows", len(rows)))
		}
		row := rows[a.Index]
		if a.Equals != "" && row != a.Equals {
			return fail(a.Equals, row)
		}
		if a.Contains != "" && !strings.Contains(row, a.Contains) {
			return fail("row containing "+a.Contains, row)
		}

	case AssertGatewayCount:
		got := 0
		for _, c := range actx.Calls {
			if c.Action == a.Action {
				got++
			}
		}
		if got != a.Count {
			return fail(fmt.Sprintf("%d %s calls", a.Count, a.Action), fmt.Sprintf("%d calls", got))
		}

	case AssertFinalStep:
		if actx.FinalStep != a.Step {
			return fail(a.Step, actx.FinalStep)
		}

	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
