package harness

import (
	"sync"

	"github.com/roach88/kiln/internal/build"
)

// Recorder collects every event a Runner emits.
//
// Thread-safety: safe for concurrent use. Events arrive under the Runner's
// lock, already in sequence order.
type Recorder struct {
	mu     sync.Mutex
	events []build.Event
}

// Record attaches a new Recorder to r.
func Record(r *build.Runner) *Recorder {
	rec := &Recorder{}
	r.On(build.EventAll, rec.add)
	return rec
}

func (rec *Recorder) add(ev build.Event) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.events = append(rec.events, ev)
}

// Events returns a copy of the recorded events.
func (rec *Recorder) Events() []build.Event {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := make([]build.Event, len(rec.events))
	copy(out, rec.events)
	return out
}

// Trace returns the recorded events as TraceEvents.
func (rec *Recorder) Trace() []TraceEvent {
	events := rec.Events()
	out := make([]TraceEvent, len(events))
	for i, ev := range events {
		out[i] = FromEvent(ev)
	}
	return out
}

// Of returns the recorded events of one type, in sequence order.
func (rec *Recorder) Of(typ build.EventType) []build.Event {
	var out []build.Event
	for _, ev := range rec.Events() {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// Last returns the most recent event of typ for target, if any.
func (rec *Recorder) Last(typ build.EventType, target string) (build.Event, bool) {
	events := rec.Events()
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == typ && events[i].TargetID() == target {
			return events[i], true
		}
	}
	return build.Event{}, false
}

// Clear drops the recorded events. Sequence numbers keep counting.
func (rec *Recorder) Clear() {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.events = nil
}
