// Package report summarises build passes for humans.
package report

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/roach88/kiln/internal/build"
)

// Stats counts the build outcomes of one pass.
type Stats struct {
	OK       int           `json:"ok"`
	Warned   int           `json:"warned"`
	Failed   int           `json:"failed"`
	Skipped  int           `json:"skipped"`
	Cached   int           `json:"cached"`
	Executed int           `json:"executed"`
	Elapsed  time.Duration `json:"elapsedNs"`
}

// Summary is a runner listener that logs each finished build and tallies
// the outcomes of the current pass.
type Summary struct {
	logger zerolog.Logger
	now    func() time.Time

	mu      sync.Mutex
	start   time.Time
	stats   Stats
	results map[*build.Target]*build.Result
}

// NewSummary returns a Summary logging to logger.
func NewSummary(logger zerolog.Logger) *Summary {
	s := &Summary{logger: logger, now: time.Now}
	s.Begin()
	return s
}

// Attach subscribes s to the build events of r.
func (s *Summary) Attach(r *build.Runner) {
	r.On(build.EventTargetBuildExecute, s.observe)
	r.On(build.EventTargetBuildEnd, s.observe)
}

// Begin starts a new pass, clearing the counters. Results from earlier
// passes are kept so Failed still sees targets served fresh.
func (s *Summary) Begin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.start = s.now()
	s.stats = Stats{}
	if s.results == nil {
		s.results = make(map[*build.Target]*build.Result)
	}
}

func (s *Summary) observe(ev build.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.Type == build.EventTargetBuildExecute {
		s.stats.Executed++
		return
	}
	if ev.Obsolete {
		return
	}
	s.results[ev.Target] = ev.Result

	res := ev.Result
	switch res.Status {
	case build.StatusOK:
		s.stats.OK++
	case build.StatusWarned:
		s.stats.Warned++
	case build.StatusFailed:
		s.stats.Failed++
	case build.StatusSkipped:
		s.stats.Skipped++
	}
	if ev.Cached {
		s.stats.Cached++
	}

	var e *zerolog.Event
	switch res.Status {
	case build.StatusFailed:
		e = s.logger.Error()
	case build.StatusWarned:
		e = s.logger.Warn()
	case build.StatusSkipped:
		e = s.logger.Debug()
	default:
		e = s.logger.Info()
	}
	if res.Logs != "" && res.Status != build.StatusOK {
		e = e.Str("logs", res.Logs)
	}
	e.Str("target", ev.TargetID()).
		Str("status", string(res.Status)).
		Bool("unchanged", ev.Cached).
		Msg("built")
}

// Stats returns the counters of the current pass.
func (s *Summary) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Elapsed = s.now().Sub(s.start)
	return st
}

// Failed returns the ids of the given targets whose latest result is
// neither ok nor warned, in the order given. A target never built counts
// as failed.
func (s *Summary) Failed(targets []*build.Target) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, t := range targets {
		if !s.results[t].OK() {
			ids = append(ids, t.ID())
		}
	}
	return ids
}

// Log writes the pass summary at info, or at error when any of targets
// failed.
func (s *Summary) Log(targets []*build.Target) {
	st := s.Stats()
	failed := s.Failed(targets)
	e := s.logger.Info()
	if len(failed) > 0 {
		e = s.logger.Error().Strs("failed", failed)
	}
	e.Int("ok", st.OK).
		Int("warned", st.Warned).
		Int("failed", st.Failed).
		Int("skipped", st.Skipped).
		Int("cached", st.Cached).
		Int("executed", st.Executed).
		Dur("elapsed", st.Elapsed).
		Msg("build pass finished")
}
