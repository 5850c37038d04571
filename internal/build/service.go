package build

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/roach88/kiln/internal/value"
)

// Status is the outcome of a service call or target build.
type Status string

const (
	// StatusOK means the service returned a value without warnings.
	StatusOK Status = "ok"

	// StatusWarned means the service returned a value and called Warn.
	StatusWarned Status = "warned"

	// StatusFailed means the service returned an error or panicked.
	StatusFailed Status = "failed"

	// StatusSkipped means a target's input could not be computed because a
	// dependency was unavailable. Services never produce it.
	StatusSkipped Status = "skipped"
)

// Result is the outcome of a service call or target build.
//
// Value is set only for ok and warned results. Logs holds the lines written
// through RunContext.Log and Warn joined with "\n"; for failed and skipped
// results it ends with the error that caused them.
type Result struct {
	Status Status
	Value  value.Value
	Logs   string
}

// OK reports whether the result carries a value.
func (r *Result) OK() bool {
	return r != nil && (r.Status == StatusOK || r.Status == StatusWarned)
}

// RunFunc is the body of a service.
type RunFunc func(ctx context.Context, input value.Value, rc *RunContext) (value.Value, error)

// Service is a named unit of work. Services are immutable once created and
// are identified by pointer: registering a second *Service with an id already
// in use is an error.
type Service struct {
	id   string
	pure bool
	run  RunFunc
}

// NewService creates a service. A pure service's output must depend only on
// its input, which allows targets built with it to reuse cached results.
func NewService(id string, pure bool, run RunFunc) *Service {
	return &Service{id: id, pure: pure, run: run}
}

// ID returns the service id.
func (s *Service) ID() string { return s.id }

// Pure reports whether the service is pure.
func (s *Service) Pure() bool { return s.pure }

var identityService = NewService("Identity", true, func(_ context.Context, input value.Value, _ *RunContext) (value.Value, error) {
	return input, nil
})

// IdentityService returns the shared pure service that returns its input.
func IdentityService() *Service {
	return identityService
}

// RunContext is handed to a running service.
//
// Safe for concurrent use by goroutines the service starts, as long as they
// finish before the service returns.
type RunContext struct {
	runner  *Runner
	service *Service

	mu     sync.Mutex
	logs   []string
	warned bool
}

// Log records a line in the result's logs.
func (rc *RunContext) Log(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	rc.append(line, false)
	rc.runner.logger.Debug().Str("service", rc.service.id).Msg(line)
}

// Warn records a line and marks the result warned.
func (rc *RunContext) Warn(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	rc.append(line, true)
	rc.runner.logger.Warn().Str("service", rc.service.id).Msg(line)
}

// Call invokes another service and returns its result untouched.
func (rc *RunContext) Call(ctx context.Context, svc *Service, input value.Value) (*Result, error) {
	return rc.runner.Call(ctx, svc, input)
}

// TryCall invokes another service and folds its logs and warned status into
// this call. A failed nested call is returned as an error, which fails this
// call too unless the service handles it.
func (rc *RunContext) TryCall(ctx context.Context, svc *Service, input value.Value) (value.Value, error) {
	res, err := rc.runner.Call(ctx, svc, input)
	if err != nil {
		return nil, err
	}

	if res.Logs != "" {
		rc.append(res.Logs, res.Status == StatusWarned)
	} else if res.Status == StatusWarned {
		rc.mu.Lock()
		rc.warned = true
		rc.mu.Unlock()
	}

	if !res.OK() {
		return nil, fmt.Errorf("call to service %q failed", svc.id)
	}
	return res.Value, nil
}

func (rc *RunContext) append(line string, warn bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.logs = append(rc.logs, line)
	if warn {
		rc.warned = true
	}
}

func (rc *RunContext) result(v value.Value) *Result {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if v == nil {
		v = value.Null{}
	}
	status := StatusOK
	if rc.warned {
		status = StatusWarned
	}
	return &Result{Status: status, Value: v, Logs: strings.Join(rc.logs, "\n")}
}

func (rc *RunContext) failed(err error) *Result {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	logs := append(rc.logs[:len(rc.logs):len(rc.logs)], err.Error())
	return &Result{Status: StatusFailed, Logs: strings.Join(logs, "\n")}
}

// invoke runs svc and converts errors and panics into a failed Result.
func (r *Runner) invoke(ctx context.Context, svc *Service, input value.Value) (res *Result) {
	rc := &RunContext{runner: r, service: svc}
	defer func() {
		if p := recover(); p != nil {
			res = rc.failed(fmt.Errorf("panic: %v", p))
		}
	}()

	if input == nil {
		input = value.Null{}
	}
	out, err := svc.run(ctx, input, rc)
	if err != nil {
		return rc.failed(err)
	}
	return rc.result(out)
}
