package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/roach88/kiln/internal/build"
	"github.com/roach88/kiln/internal/config"
	"github.com/roach88/kiln/internal/testutil"
	"github.com/roach88/kiln/internal/value"
)

func newRunner() *build.Runner {
	return build.NewRunner(build.WithNow(testutil.NewFakeClock(time.Second).Now))
}

func constTarget(id string, v value.Value) *build.Target {
	return build.NewTarget(build.TargetDefinition{
		ID: id,
		Build: build.BuildSpec{
			Service: build.IdentityService(),
			Input: func(context.Context, any, *build.InputContext) (value.Value, error) {
				return v, nil
			},
		},
	})
}

func failingTarget(id string) *build.Target {
	svc := build.NewService("Fail", false, func(context.Context, value.Value, *build.RunContext) (value.Value, error) {
		return nil, assert.AnError
	})
	return build.NewTarget(build.TargetDefinition{
		ID: id,
		Build: build.BuildSpec{
			Service: svc,
			Input: func(context.Context, any, *build.InputContext) (value.Value, error) {
				return value.Null{}, nil
			},
		},
	})
}

func TestMetricsCountsBuildsAndResets(t *testing.T) {
	r := newRunner()
	m := NewMetrics()
	m.Attach(r)
	ctx := context.Background()
	x := constTarget("x", value.Number(5))

	_, err := r.Build(ctx, x)
	require.NoError(t, err)
	_, err = r.Build(ctx, x) // fresh, no events
	require.NoError(t, err)
	_, err = r.Reset(ctx, x)
	require.NoError(t, err)
	_, err = r.Build(ctx, x) // pure and unchanged, served from cache
	require.NoError(t, err)

	assert.Equal(t, 1.0, promtest.ToFloat64(m.builds.WithLabelValues("ok", "false")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.builds.WithLabelValues("ok", "true")))
	assert.Equal(t, 2.0, promtest.ToFloat64(m.resets.WithLabelValues("ok")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.executions.WithLabelValues("build")))
	assert.Equal(t, 0.0, promtest.ToFloat64(m.executions.WithLabelValues("reset")))
	assert.Equal(t, 0.0, promtest.ToFloat64(m.inFlight))
}

func TestMetricsFailedStatusAndHandler(t *testing.T) {
	r := newRunner()
	m := NewMetrics()
	m.Attach(r)

	res, err := r.Build(context.Background(), failingTarget("bad"))
	require.NoError(t, err)
	require.Equal(t, build.StatusFailed, res.Status)

	assert.Equal(t, 1.0, promtest.ToFloat64(m.builds.WithLabelValues("failed", "false")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `kiln_target_builds_total{cached="false",status="failed"} 1`)
	assert.Contains(t, body, "kiln_target_build_duration_seconds_count 1")
	assert.Contains(t, body, "kiln_targets_in_flight 0")
}

func TestMetricsServeStopsOnCancel(t *testing.T) {
	m := NewMetrics()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Serve(ctx, "127.0.0.1:0", Component(mustLogger(t), "metrics")) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestTracerSpans(t *testing.T) {
	r := newRunner()
	exp := tracetest.NewInMemoryExporter()
	tr := NewTracer(exp)
	tr.Attach(r)
	ctx := context.Background()

	_, err := r.Build(ctx, constTarget("x", value.String("v")))
	require.NoError(t, err)
	_, err = r.Build(ctx, failingTarget("bad"))
	require.NoError(t, err)
	require.NoError(t, tr.Shutdown(ctx))

	spans := exp.GetSpans()
	var names []string
	for _, s := range spans {
		names = append(names, s.Name)
	}
	// Resets end before their builds.
	assert.Equal(t, []string{"reset x", "build x", "reset bad", "build bad"}, names)

	buildX := spans[1]
	assert.Equal(t, codes.Ok, buildX.Status.Code)
	assert.Equal(t, 3*time.Second, buildX.EndTime.Sub(buildX.StartTime))
	assert.Contains(t, buildX.Attributes, attribute.String("kiln.status", "ok"))
	assert.Contains(t, buildX.Attributes, attribute.Bool("kiln.cached", false))
	require.Len(t, buildX.Events, 1)
	assert.Equal(t, "execute", buildX.Events[0].Name)

	buildBad := spans[3]
	assert.Equal(t, codes.Error, buildBad.Status.Code)
	assert.Contains(t, buildBad.Status.Description, assert.AnError.Error())
}

// overlappingBuilds drives x through a build that a reset makes obsolete
// while a second build of x has already started.
func overlappingBuilds(t *testing.T, r *build.Runner) {
	t.Helper()
	ctx := context.Background()

	var calls atomic.Int32
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	svc := build.NewService("blocking", false, func(context.Context, value.Value, *build.RunContext) (value.Value, error) {
		if calls.Add(1) == 1 {
			started <- struct{}{}
			<-release
		}
		return value.String("v"), nil
	})
	x := build.NewTarget(build.TargetDefinition{
		ID: "x",
		Build: build.BuildSpec{
			Service: svc,
			Input: func(context.Context, any, *build.InputContext) (value.Value, error) {
				return value.Null{}, nil
			},
		},
	})

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		_, err := r.Build(ctx, x)
		assert.NoError(t, err)
	}()
	<-started
	go func() {
		defer wg.Done()
		_, err := r.Reset(ctx, x)
		assert.NoError(t, err)
	}()
	require.Eventually(t, func() bool { return r.State(x).Kind == build.StateResetting }, time.Second, time.Millisecond)
	go func() {
		defer wg.Done()
		_, err := r.Build(ctx, x)
		assert.NoError(t, err)
	}()
	require.Eventually(t, func() bool { return r.State(x).Kind == build.StateBuilding }, time.Second, time.Millisecond)

	close(release)
	wg.Wait()
	require.Eventually(t, func() bool { return r.State(x).Kind == build.StateFresh }, time.Second, time.Millisecond)
}

func TestTracerEndsOverlappingBuildSpans(t *testing.T) {
	r := newRunner()
	exp := tracetest.NewInMemoryExporter()
	tr := NewTracer(exp)
	tr.Attach(r)

	overlappingBuilds(t, r)
	require.NoError(t, tr.Shutdown(context.Background()))

	var builds []tracetest.SpanStub
	for _, s := range exp.GetSpans() {
		if s.Name == "build x" {
			builds = append(builds, s)
		}
	}
	require.Len(t, builds, 2)
	assert.Contains(t, builds[0].Attributes, attribute.Bool("kiln.obsolete", true))
	assert.Contains(t, builds[1].Attributes, attribute.Bool("kiln.obsolete", false))
	assert.True(t, builds[0].StartTime.Before(builds[1].StartTime))
	assert.Len(t, builds[1].Events, 1)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	assert.Empty(t, tr.spans)
}

func TestMetricsOverlappingBuilds(t *testing.T) {
	r := newRunner()
	m := NewMetrics()
	m.Attach(r)

	overlappingBuilds(t, r)

	assert.Equal(t, 0.0, promtest.ToFloat64(m.inFlight))
	assert.Equal(t, 2.0, promtest.ToFloat64(m.builds.WithLabelValues("ok", "false")))
	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Empty(t, m.starts)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Info().Msg("hidden")
	watchLogger := Component(logger, "watch")
	watchLogger.Warn().Str("path", "/a").Msg("shown")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "watch", line["component"])
	assert.Equal(t, "/a", line["path"])
	assert.Equal(t, "shown", line["message"])
}

func TestNewLoggerText(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(config.LogConfig{Level: "debug", Format: "text"}, &buf)
	require.NoError(t, err)

	logger.Debug().Str("target", "x").Msg("built")
	assert.Contains(t, buf.String(), "built")
	assert.Contains(t, buf.String(), "target=x")
}

func TestNewLoggerErrors(t *testing.T) {
	_, err := NewLogger(config.LogConfig{Level: "loud"}, &bytes.Buffer{})
	assert.Error(t, err)
	_, err = NewLogger(config.LogConfig{Level: "info", Format: "xml"}, &bytes.Buffer{})
	assert.Error(t, err)
}

func mustLogger(t *testing.T) zerolog.Logger {
	t.Helper()
	logger, err := NewLogger(config.LogConfig{Level: "error", Format: "json"}, &bytes.Buffer{})
	require.NoError(t, err)
	return logger
}
