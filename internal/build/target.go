package build

import (
	"context"

	"github.com/roach88/kiln/internal/value"
)

// BuildInputFunc computes a target's build input from its config. Dependencies
// must be built through in, which records them as edges of the graph.
type BuildInputFunc func(ctx context.Context, config any, in *InputContext) (value.Value, error)

// ResetInputFunc computes a target's reset input from its config.
type ResetInputFunc func(ctx context.Context, config any) (value.Value, error)

// BuildSpec pairs a build service with the function that computes its input.
type BuildSpec struct {
	Service *Service
	Input   BuildInputFunc
}

// ResetSpec pairs a reset service with the function that computes its input.
// The reset service runs each time the target is reset, for cleanup side
// effects such as deleting an output file.
type ResetSpec struct {
	Service *Service
	Input   ResetInputFunc
}

// TargetDefinition describes a target.
type TargetDefinition struct {
	ID string

	// Config is opaque to the Runner except for *Target references, which are
	// found by walking it (see Referrer) and recorded as dependencies.
	Config any

	Build BuildSpec

	// Reset is optional.
	Reset *ResetSpec
}

// Target is a cached, dependency-aware invocation of a build service.
// Targets are immutable and identified by pointer; their run state lives in
// the Runner they are registered with.
type Target struct {
	id     string
	config any
	build  BuildSpec
	reset  *ResetSpec
}

// NewTarget creates a target. The definition is checked when the target is
// registered with a Runner.
func NewTarget(def TargetDefinition) *Target {
	return &Target{
		id:     def.ID,
		config: def.Config,
		build:  def.Build,
		reset:  def.Reset,
	}
}

// ID returns the target id.
func (t *Target) ID() string { return t.id }

// Config returns the config the target was defined with.
func (t *Target) Config() any { return t.config }

// BuildService returns the target's build service.
func (t *Target) BuildService() *Service { return t.build.Service }

func (t *Target) validate() error {
	switch {
	case t.id == "":
		return newInvalidTargetError(t.id, "target id is empty")
	case t.build.Service == nil:
		return newInvalidTargetError(t.id, "build service is nil")
	case t.build.Input == nil:
		return newInvalidTargetError(t.id, "build input function is nil")
	case t.reset != nil && t.reset.Service == nil:
		return newInvalidTargetError(t.id, "reset service is nil")
	case t.reset != nil && t.reset.Input == nil:
		return newInvalidTargetError(t.id, "reset input function is nil")
	}
	return nil
}

// Referrer is implemented by config types that hold target references in
// fields the walk cannot see on its own, such as struct fields.
type Referrer interface {
	Targets() []*Target
}

// walkTargets calls visit for every *Target reachable from config.
//
// Recognised containers: *Target, []*Target, []any, map[string]*Target,
// map[string]any and Referrer. Anything else is a leaf.
func walkTargets(config any, visit func(*Target)) {
	switch c := config.(type) {
	case nil:
	case *Target:
		if c != nil {
			visit(c)
		}
	case []*Target:
		for _, t := range c {
			walkTargets(t, visit)
		}
	case []any:
		for _, e := range c {
			walkTargets(e, visit)
		}
	case map[string]*Target:
		for _, t := range c {
			walkTargets(t, visit)
		}
	case map[string]any:
		for _, e := range c {
			walkTargets(e, visit)
		}
	case Referrer:
		for _, t := range c.Targets() {
			walkTargets(t, visit)
		}
	}
}
