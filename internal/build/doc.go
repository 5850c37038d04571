// Package build implements kiln's incremental build engine.
//
// A Service is a named unit of work over a value.Value input. A Target is a
// cached invocation of a build service whose input is computed from a config
// and from other targets. The Runner owns every service and target, drives
// their state machines, deduplicates concurrent work, reuses cached results
// for pure services and propagates resets to dependents.
//
// STATE MACHINE:
//
//	initial --(reset)--> resetting --> stale --(build)--> building --> fresh
//	fresh --(reset)--> resetting
//	building --(reset)--> resetting (the reset waits for the build first)
//
// Every target carries a clock. A transition proposes clock+1 relative to the
// clock observed when its operation started and is installed only if the
// stored clock still matches. A build or reset that loses this race still
// completes and still emits its end event; its state is discarded.
//
// CONCURRENCY:
//
// One mutex guards the registries, the run states and event emission. Each
// state transition and the event that announces it form a single critical
// section, so listeners observe events in sequence order. Waiting happens on
// channels outside the lock. Build and reset work runs on a context detached
// from the caller's cancellation: a caller's context only bounds how long that
// caller waits.
//
// EVENTS:
//
// targetResetStart, targetResetExecute, targetResetEnd, targetBuildStart,
// targetBuildExecute and targetBuildEnd. Sequence numbers start at 1 and are
// strictly increasing. For a reset cascade A -> B -> C the end events are
// emitted in the order A, B, C.
package build
