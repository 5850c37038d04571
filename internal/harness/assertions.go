package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/kiln/internal/build"
)

// AssertionError is returned when a trace check fails.
// It includes the full trace to help debug the failure.
type AssertionError struct {
	Check    string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Check)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, ev := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %s", ev.Seq, ev.Type, ev.Target)
		if ev.isEnd() {
			fmt.Fprintf(&buf, " status=%s cached=%t obsolete=%t", ev.Status, ev.Cached, ev.Obsolete)
		}
		buf.WriteByte('\n')
	}

	return buf.String()
}

// CheckOrder verifies that events of typ occur for targets in the given
// order. Other events may appear in between; only the first occurrence per
// target counts.
func CheckOrder(trace []TraceEvent, typ build.EventType, targets ...string) error {
	var got []string
	seen := make(map[string]bool)
	wanted := make(map[string]bool, len(targets))
	for _, id := range targets {
		wanted[id] = true
	}

	for _, ev := range trace {
		if ev.Type == typ && wanted[ev.Target] && !seen[ev.Target] {
			seen[ev.Target] = true
			got = append(got, ev.Target)
		}
	}

	if strings.Join(got, ",") != strings.Join(targets, ",") {
		return &AssertionError{
			Check:    "order of " + string(typ),
			Expected: strings.Join(targets, " -> "),
			Actual:   strings.Join(got, " -> "),
			Trace:    trace,
		}
	}
	return nil
}

// CheckCount verifies how many events of typ occurred for target.
func CheckCount(trace []TraceEvent, typ build.EventType, target string, want int) error {
	n := 0
	for _, ev := range trace {
		if ev.Type == typ && ev.Target == target {
			n++
		}
	}
	if n != want {
		return &AssertionError{
			Check:    fmt.Sprintf("count of %s for %s", typ, target),
			Expected: fmt.Sprint(want),
			Actual:   fmt.Sprint(n),
			Trace:    trace,
		}
	}
	return nil
}

// CheckSequence verifies that sequence numbers are strictly increasing.
func CheckSequence(trace []TraceEvent) error {
	for i := 1; i < len(trace); i++ {
		if trace[i].Seq <= trace[i-1].Seq {
			return &AssertionError{
				Check:    "strictly increasing sequence",
				Expected: fmt.Sprintf("seq > %d at position %d", trace[i-1].Seq, i),
				Actual:   fmt.Sprint(trace[i].Seq),
				Trace:    trace,
			}
		}
	}
	return nil
}
