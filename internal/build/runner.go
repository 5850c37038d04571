package build

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/kiln/internal/value"
)

// Runner owns services and targets and drives their state machines.
//
// Thread-safety: all methods are safe for concurrent use. Construct one
// Runner per build session and pass it to every collaborator.
type Runner struct {
	mu sync.Mutex

	services   map[string]*Service
	targets    map[string]*Target
	states     map[string]*runState
	dependents map[string]map[string]struct{} // dependency id -> dependent ids
	listeners  []subscription

	seq    eventClock
	logger zerolog.Logger
	now    func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger. Default: zerolog.Nop().
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithNow sets the time source for event timestamps. Default: time.Now.
func WithNow(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// NewRunner creates an empty Runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		services:   make(map[string]*Service),
		targets:    make(map[string]*Target),
		states:     make(map[string]*runState),
		dependents: make(map[string]map[string]struct{}),
		logger:     zerolog.Nop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Service registers svc. Registering the same *Service again is a no-op.
func (r *Runner) Service(svc *Service) (*Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.registerServiceLocked(svc); err != nil {
		return nil, err
	}
	return svc, nil
}

// Target registers t, its services and every target reachable through its
// config, recording the config references as dependency edges.
// Registering the same *Target again is a no-op.
func (r *Runner) Target(t *Target) (*Target, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.registerTargetLocked(t); err != nil {
		return nil, err
	}
	return t, nil
}

func (r *Runner) registerServiceLocked(svc *Service) error {
	if svc == nil {
		return &Error{Code: ErrCodeNilService, Message: "service is nil"}
	}
	existing, ok := r.services[svc.id]
	if !ok {
		r.services[svc.id] = svc
		return nil
	}
	if existing != svc {
		return newDuplicateServiceError(svc.id)
	}
	return nil
}

func (r *Runner) registerTargetLocked(t *Target) error {
	if t == nil {
		return newInvalidTargetError("", "target is nil")
	}
	if existing, ok := r.targets[t.id]; ok {
		if existing != t {
			return newDuplicateTargetError(t.id)
		}
		return nil
	}
	if err := t.validate(); err != nil {
		return err
	}
	if err := r.registerServiceLocked(t.build.Service); err != nil {
		return fmt.Errorf("target %q: %w", t.id, err)
	}
	if t.reset != nil {
		if err := r.registerServiceLocked(t.reset.Service); err != nil {
			return fmt.Errorf("target %q: %w", t.id, err)
		}
	}

	r.targets[t.id] = t
	r.states[t.id] = &runState{kind: StateInitial}
	r.dependents[t.id] = make(map[string]struct{})

	var walkErr error
	walkTargets(t.config, func(dep *Target) {
		if walkErr != nil || dep == t {
			return
		}
		if err := r.registerTargetLocked(dep); err != nil {
			walkErr = fmt.Errorf("target %q: %w", t.id, err)
			return
		}
		r.dependents[dep.id][t.id] = struct{}{}
	})
	return walkErr
}

// addEdgeLocked records that dependent consumed dep.
func (r *Runner) addEdgeLocked(dep, dependent *Target) {
	if dep == dependent {
		return
	}
	if set, ok := r.dependents[dep.id]; ok {
		set[dependent.id] = struct{}{}
	}
}

// Dependents returns the targets known to depend on t, sorted by id.
func (r *Runner) Dependents(t *Target) []*Target {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dependentsLocked(t.id)
}

func (r *Runner) dependentsLocked(id string) []*Target {
	ids := make([]string, 0, len(r.dependents[id]))
	for depID := range r.dependents[id] {
		ids = append(ids, depID)
	}
	slices.Sort(ids)

	out := make([]*Target, len(ids))
	for i, depID := range ids {
		out[i] = r.targets[depID]
	}
	return out
}

// State returns a snapshot of t's run state. Unregistered targets report
// initial with clock 0.
func (r *Runner) State(t *Target) TargetState {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[t.id]
	if !ok || r.targets[t.id] != t {
		return TargetState{Kind: StateInitial}
	}
	return TargetState{Kind: st.kind, Clock: st.clock}
}

// LastSequence returns the sequence number of the most recent event.
func (r *Runner) LastSequence() int64 {
	return r.seq.current()
}

// Call invokes svc with input. Service failures are reported in the Result;
// the error is reserved for registration problems.
func (r *Runner) Call(ctx context.Context, svc *Service, input value.Value) (*Result, error) {
	if _, err := r.Service(svc); err != nil {
		return nil, err
	}
	return r.invoke(ctx, svc, input), nil
}

// Build builds t, building its dependencies as its input function requires.
//
// A fresh target returns its cached result without work. Concurrent callers
// share one in-flight build and receive the same *Result. ctx bounds only
// this caller's wait.
func (r *Runner) Build(ctx context.Context, t *Target) (*Result, error) {
	cached, op, err := r.startBuild(ctx, t)
	if err != nil {
		return nil, err
	}
	if op == nil {
		return cached, nil
	}
	select {
	case <-op.done:
		return op.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Runner) startBuild(ctx context.Context, t *Target) (*Result, *buildOp, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.registerTargetLocked(t); err != nil {
		return nil, nil, err
	}
	st := r.states[t.id]

	if st.kind == StateInitial {
		// Nothing can have consumed an initial target, so its reset does
		// not cascade.
		r.beginResetLocked(ctx, t, nil, false)
	}

	switch st.kind {
	case StateBuilding:
		return nil, st.build, nil
	case StateFresh:
		return st.cachedResult, nil, nil
	}

	var resetEnded <-chan struct{}
	if st.kind == StateResetting {
		resetEnded = st.reset.ended
	}

	op := &buildOp{done: make(chan struct{})}
	freshClock := st.clock + 2
	prevInput, prevResult := st.cachedInput, st.cachedResult
	if !st.propose(st.clock+1, StateBuilding) {
		return nil, nil, &Error{Code: ErrCodeInternal, Message: "building transition rejected", TargetID: t.id}
	}
	st.build = op
	r.emitLocked(Event{Type: EventTargetBuildStart, Target: t})

	go r.runBuild(context.WithoutCancel(ctx), t, op, resetEnded, freshClock, prevInput, prevResult)
	return nil, op, nil
}

func (r *Runner) runBuild(ctx context.Context, t *Target, op *buildOp, resetEnded <-chan struct{}, freshClock int64, prevInput []byte, prevResult *Result) {
	if resetEnded != nil {
		<-resetEnded
	}

	res, input, cached := r.doBuild(ctx, t, prevInput, prevResult)

	r.mu.Lock()
	st := r.states[t.id]
	obsolete := !st.propose(freshClock, StateFresh)
	if !obsolete {
		st.cachedInput = input
		st.cachedResult = res
		st.build = nil
	}
	op.result = res
	r.emitLocked(Event{Type: EventTargetBuildEnd, Target: t, Result: res, Cached: cached, Obsolete: obsolete})
	r.mu.Unlock()

	close(op.done)
}

// doBuild computes the input, consults the cache and runs the build service.
// It returns the result, the encoded input to cache and whether the cached
// result was reused.
func (r *Runner) doBuild(ctx context.Context, t *Target, prevInput []byte, prevResult *Result) (*Result, []byte, bool) {
	in := &InputContext{runner: r, dependent: t}
	input, err := computeBuildInput(ctx, t, in)
	if err != nil {
		status := StatusFailed
		if IsUnavailable(err) {
			status = StatusSkipped
		}
		return &Result{Status: status, Logs: err.Error()}, nil, false
	}

	var encoded []byte
	if t.build.Service.pure {
		encoded, err = value.Encode(input)
		if err != nil {
			return &Result{Status: StatusFailed, Logs: fmt.Sprintf("encode input: %v", err)}, nil, false
		}
		if prevResult != nil && prevInput != nil && bytes.Equal(encoded, prevInput) {
			return prevResult, encoded, true
		}
	}

	r.mu.Lock()
	r.emitLocked(Event{Type: EventTargetBuildExecute, Target: t})
	r.mu.Unlock()

	return r.invoke(ctx, t.build.Service, input), encoded, false
}

func computeBuildInput(ctx context.Context, t *Target, in *InputContext) (input value.Value, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in build input: %v", p)
		}
	}()
	return t.build.Input(ctx, t.config, in)
}

func computeResetInput(ctx context.Context, t *Target) (input value.Value, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in reset input: %v", p)
		}
	}()
	return t.reset.Input(ctx, t.config)
}

// Reset resets t and, transitively, every dependent that has left the
// initial state, running each one's reset service. It returns t's reset
// result: ok with a null value when t has no reset service.
//
// A target already resetting is joined; a stale target returns its stored
// reset result.
func (r *Runner) Reset(ctx context.Context, t *Target) (*Result, error) {
	r.mu.Lock()
	if err := r.registerTargetLocked(t); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	stored, op := r.beginResetLocked(ctx, t, nil, true)
	r.mu.Unlock()

	if op == nil {
		return stored, nil
	}
	select {
	case <-op.done:
		return op.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// beginResetLocked claims resetting for t and, when cascade is set, for its
// dependents, depth first in id order. All start events of one cascade are
// emitted under a single hold of r.mu. after, if set, is the ended channel
// of the dependency whose reset reached t; t does not end before it.
func (r *Runner) beginResetLocked(ctx context.Context, t *Target, after <-chan struct{}, cascade bool) (*Result, *resetOp) {
	st := r.states[t.id]
	switch st.kind {
	case StateResetting:
		if after != nil {
			st.reset.afters = append(st.reset.afters, after)
		}
		return nil, st.reset
	case StateStale:
		return st.resetResult, nil
	}

	var buildDone <-chan struct{}
	if st.kind == StateBuilding {
		buildDone = st.build.done
	}

	op := &resetOp{ended: make(chan struct{}), done: make(chan struct{})}
	if after != nil {
		op.afters = append(op.afters, after)
	}
	staleClock := st.clock + 2
	st.propose(st.clock+1, StateResetting)
	st.reset = op
	r.emitLocked(Event{Type: EventTargetResetStart, Target: t})

	var children []*resetOp
	if cascade {
		for _, dep := range r.dependentsLocked(t.id) {
			if r.states[dep.id].kind == StateInitial {
				continue
			}
			if _, child := r.beginResetLocked(ctx, dep, op.ended, true); child != nil {
				children = append(children, child)
			}
		}
	}

	go r.runReset(context.WithoutCancel(ctx), t, op, buildDone, staleClock, children)
	return nil, op
}

func (r *Runner) runReset(ctx context.Context, t *Target, op *resetOp, buildDone <-chan struct{}, staleClock int64, children []*resetOp) {
	if buildDone != nil {
		<-buildDone
	}

	res := r.doReset(ctx, t)

	// Wait for every dependency reset that reached t, including ones that
	// join while we wait. The loop exits with r.mu held.
	r.mu.Lock()
	for i := 0; i < len(op.afters); i++ {
		after := op.afters[i]
		r.mu.Unlock()
		<-after
		r.mu.Lock()
	}

	st := r.states[t.id]
	if st.propose(staleClock, StateStale) {
		st.resetResult = res
		st.reset = nil
	}
	op.result = res
	r.emitLocked(Event{Type: EventTargetResetEnd, Target: t, Result: res})
	r.mu.Unlock()
	close(op.ended)

	for _, child := range children {
		<-child.done
	}
	close(op.done)
}

func (r *Runner) doReset(ctx context.Context, t *Target) *Result {
	if t.reset == nil {
		return &Result{Status: StatusOK, Value: value.Null{}}
	}

	input, err := computeResetInput(ctx, t)
	if err != nil {
		return &Result{Status: StatusFailed, Logs: err.Error()}
	}

	r.mu.Lock()
	r.emitLocked(Event{Type: EventTargetResetExecute, Target: t})
	r.mu.Unlock()

	return r.invoke(ctx, t.reset.Service, input)
}

// TryBuild builds t and returns its value, or an *UnavailableError when the
// build failed or was skipped. No dependency edge is recorded.
func (r *Runner) TryBuild(ctx context.Context, t *Target) (value.Value, error) {
	return r.tryBuild(ctx, t, nil)
}

// TryBuildAll builds targets in parallel and returns their values in order.
func (r *Runner) TryBuildAll(ctx context.Context, targets []*Target) ([]value.Value, error) {
	return r.tryBuildAll(ctx, targets, nil)
}

// TryBuildMap builds targets in parallel and returns their values by key.
func (r *Runner) TryBuildMap(ctx context.Context, targets map[string]*Target) (map[string]value.Value, error) {
	return r.tryBuildMap(ctx, targets, nil)
}

// tryBuild records the edge before building, so a reset of t that lands
// while dependent waits on it also reaches dependent.
func (r *Runner) tryBuild(ctx context.Context, t *Target, dependent *Target) (value.Value, error) {
	if dependent != nil {
		r.mu.Lock()
		err := r.registerTargetLocked(t)
		if err == nil {
			r.addEdgeLocked(t, dependent)
		}
		r.mu.Unlock()
		if err != nil {
			return nil, err
		}
	}
	res, err := r.Build(ctx, t)
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		return nil, &UnavailableError{TargetID: t.id, Status: res.Status}
	}
	return res.Value, nil
}

// tryBuildAll waits for every build, even after one fails, so that every
// dependency is recorded.
func (r *Runner) tryBuildAll(ctx context.Context, targets []*Target, dependent *Target) ([]value.Value, error) {
	out := make([]value.Value, len(targets))
	var g errgroup.Group
	for i, t := range targets {
		g.Go(func() error {
			v, err := r.tryBuild(ctx, t, dependent)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Runner) tryBuildMap(ctx context.Context, targets map[string]*Target, dependent *Target) (map[string]value.Value, error) {
	keys := make([]string, 0, len(targets))
	for k := range targets {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	vals, err := r.tryBuildAll(ctx, collect(keys, targets), dependent)
	if err != nil {
		return nil, err
	}
	out := make(map[string]value.Value, len(keys))
	for i, k := range keys {
		out[k] = vals[i]
	}
	return out, nil
}

func collect(keys []string, targets map[string]*Target) []*Target {
	out := make([]*Target, len(keys))
	for i, k := range keys {
		out[i] = targets[k]
	}
	return out
}

// InputContext is handed to build input functions. Every target built
// through it is recorded as a dependency of the target being built, whatever
// the outcome.
type InputContext struct {
	runner    *Runner
	dependent *Target
}

// TryBuild builds dep and returns its value. When dep failed or was skipped
// the error is an *UnavailableError; returning it from the input function
// makes the dependent skipped.
func (in *InputContext) TryBuild(ctx context.Context, dep *Target) (value.Value, error) {
	return in.runner.tryBuild(ctx, dep, in.dependent)
}

// TryBuildAll builds deps in parallel and returns their values in order.
func (in *InputContext) TryBuildAll(ctx context.Context, deps []*Target) ([]value.Value, error) {
	return in.runner.tryBuildAll(ctx, deps, in.dependent)
}

// TryBuildMap builds deps in parallel and returns their values by key.
func (in *InputContext) TryBuildMap(ctx context.Context, deps map[string]*Target) (map[string]value.Value, error) {
	return in.runner.tryBuildMap(ctx, deps, in.dependent)
}

// Describe renders a one-line summary of a result, used in logs.
func Describe(res *Result) string {
	if res == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString(string(res.Status))
	if res.Logs != "" {
		b.WriteString(": ")
		b.WriteString(strings.ReplaceAll(res.Logs, "\n", "; "))
	}
	return b.String()
}
