package build

// StateKind is a target's position in the build state machine.
type StateKind string

const (
	StateInitial   StateKind = "initial"
	StateResetting StateKind = "resetting"
	StateStale     StateKind = "stale"
	StateBuilding  StateKind = "building"
	StateFresh     StateKind = "fresh"
)

// TargetState is a snapshot of a target's run state.
type TargetState struct {
	Kind  StateKind
	Clock int64
}

// runState is the Runner-owned mutable record for one target.
// All fields are guarded by Runner.mu.
type runState struct {
	kind  StateKind
	clock int64

	// cachedInput is the encoded input of the last pure build, nil when the
	// last build was impure or never computed an input.
	cachedInput  []byte
	cachedResult *Result
	resetResult  *Result

	build *buildOp // set while building
	reset *resetOp // set while resetting
}

// propose installs a transition if the stored clock still equals the one
// observed when the operation began, i.e. if next == clock+1.
func (s *runState) propose(next int64, kind StateKind) bool {
	if s.clock+1 != next {
		return false
	}
	s.clock = next
	s.kind = kind
	return true
}

// buildOp is an in-flight build shared by every caller that joins it.
type buildOp struct {
	done   chan struct{}
	result *Result
}

// resetOp is an in-flight reset.
//
// ended closes once this target's own reset finished and its end event was
// emitted. done closes once the resets of its dependents finished as well.
// afters holds the ended channels of every resetting dependency that
// claimed or joined this reset; it is guarded by Runner.mu.
type resetOp struct {
	ended  chan struct{}
	done   chan struct{}
	afters []<-chan struct{}
	result *Result
}
