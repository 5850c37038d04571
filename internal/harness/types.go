package harness

import (
	"github.com/roach88/kiln/internal/build"
	"github.com/roach88/kiln/internal/value"
)

// TraceEvent is the stable, comparable projection of a build.Event.
// Timestamps are left out: they belong to the clock, not the trace.
type TraceEvent struct {
	Seq      int64
	Type     build.EventType
	Target   string
	Status   build.Status // end events only
	Cached   bool
	Obsolete bool
}

// FromEvent projects ev.
func FromEvent(ev build.Event) TraceEvent {
	te := TraceEvent{
		Seq:      ev.Sequence,
		Type:     ev.Type,
		Target:   ev.TargetID(),
		Cached:   ev.Cached,
		Obsolete: ev.Obsolete,
	}
	if ev.Result != nil {
		te.Status = ev.Result.Status
	}
	return te
}

// isEnd reports whether the event carries a result.
func (e TraceEvent) isEnd() bool {
	return e.Type == build.EventTargetBuildEnd || e.Type == build.EventTargetResetEnd
}

// toValue converts the event for canonical encoding.
func (e TraceEvent) toValue() value.Value {
	obj := value.NewObject(
		value.P("seq", value.Number(e.Seq)),
		value.P("type", value.String(e.Type)),
		value.P("target", value.String(e.Target)),
	)
	if e.isEnd() {
		obj["status"] = value.String(e.Status)
		obj["cached"] = value.Bool(e.Cached)
		obj["obsolete"] = value.Bool(e.Obsolete)
	}
	return obj
}
