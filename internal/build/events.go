package build

import (
	"time"
)

// EventType names a runner lifecycle event.
type EventType string

const (
	EventTargetResetStart   EventType = "targetResetStart"
	EventTargetResetExecute EventType = "targetResetExecute"
	EventTargetResetEnd     EventType = "targetResetEnd"
	EventTargetBuildStart   EventType = "targetBuildStart"
	EventTargetBuildExecute EventType = "targetBuildExecute"
	EventTargetBuildEnd     EventType = "targetBuildEnd"

	// EventAll subscribes a listener to every event type.
	EventAll EventType = "all"
)

// Event is a runner lifecycle event.
//
// Result is set on end events. Cached and Obsolete are only meaningful on
// targetBuildEnd: Cached means the service was not invoked because a pure
// input was unchanged, Obsolete means a concurrent reset superseded the build
// and its result was not installed.
type Event struct {
	Type      EventType
	Sequence  int64
	Timestamp time.Time
	Target    *Target
	Result    *Result
	Cached    bool
	Obsolete  bool
}

// TargetID returns the id of the event's target.
func (e Event) TargetID() string {
	if e.Target == nil {
		return ""
	}
	return e.Target.id
}

// Listener receives runner events. Listeners run synchronously under the
// Runner's lock and must not call back into the Runner.
type Listener func(Event)

type subscription struct {
	typ      EventType
	listener Listener
}

// On registers a listener for one event type, or for all with EventAll.
func (r *Runner) On(typ EventType, l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, subscription{typ: typ, listener: l})
}

// emitLocked stamps and delivers an event. r.mu must be held.
func (r *Runner) emitLocked(ev Event) {
	ev.Sequence = r.seq.next()
	ev.Timestamp = r.now()

	r.logger.Debug().
		Int64("seq", ev.Sequence).
		Str("event", string(ev.Type)).
		Str("target", ev.TargetID()).
		Msg("runner event")

	for _, sub := range r.listeners {
		if sub.typ == ev.Type || sub.typ == EventAll {
			r.deliver(sub, ev)
		}
	}
}

func (r *Runner) deliver(sub subscription, ev Event) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error().
				Str("event", string(ev.Type)).
				Str("target", ev.TargetID()).
				Interface("panic", p).
				Msg("runner listener panicked")
		}
	}()
	sub.listener(ev)
}
