package telemetry

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/kiln/internal/build"
)

const tracerName = "github.com/roach88/kiln/internal/build"

// Tracer records one span per target build and per target reset. Span
// bounds come from the runner's event timestamps.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer

	mu sync.Mutex
	// Open spans per target and phase, oldest first. A build superseded by
	// a reset can still be running when the next build starts; it ends
	// first.
	spans map[spanKey][]trace.Span
}

type spanKey struct {
	target *build.Target
	phase  string
}

// NewTracer exports spans to exp as they end.
func NewTracer(exp sdktrace.SpanExporter) *Tracer {
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exp),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", "kiln"))),
	)
	return &Tracer{
		provider: provider,
		tracer:   provider.Tracer(tracerName),
		spans:    make(map[spanKey][]trace.Span),
	}
}

// NewStdoutTracer exports spans as pretty-printed JSON to w.
func NewStdoutTracer(w io.Writer) (*Tracer, error) {
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("create stdout exporter: %w", err)
	}
	return NewTracer(exp), nil
}

// Attach subscribes t to every event of r.
func (t *Tracer) Attach(r *build.Runner) {
	r.On(build.EventAll, t.observe)
}

func (t *Tracer) observe(ev build.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev.Type {
	case build.EventTargetBuildStart:
		t.start(ev, "build")
	case build.EventTargetResetStart:
		t.start(ev, "reset")
	case build.EventTargetBuildExecute:
		t.execute(ev, "build")
	case build.EventTargetResetExecute:
		t.execute(ev, "reset")
	case build.EventTargetBuildEnd:
		t.end(ev, "build",
			attribute.Bool("kiln.cached", ev.Cached),
			attribute.Bool("kiln.obsolete", ev.Obsolete))
	case build.EventTargetResetEnd:
		t.end(ev, "reset")
	}
}

func (t *Tracer) start(ev build.Event, phase string) {
	_, span := t.tracer.Start(context.Background(), phase+" "+ev.TargetID(),
		trace.WithTimestamp(ev.Timestamp),
		trace.WithAttributes(
			attribute.String("kiln.target", ev.TargetID()),
			attribute.Int64("kiln.sequence", ev.Sequence),
		))
	key := spanKey{ev.Target, phase}
	t.spans[key] = append(t.spans[key], span)
}

func (t *Tracer) execute(ev build.Event, phase string) {
	if open := t.spans[spanKey{ev.Target, phase}]; len(open) > 0 {
		open[0].AddEvent("execute", trace.WithTimestamp(ev.Timestamp))
	}
}

func (t *Tracer) end(ev build.Event, phase string, attrs ...attribute.KeyValue) {
	key := spanKey{ev.Target, phase}
	open := t.spans[key]
	if len(open) == 0 {
		return
	}
	span := open[0]
	if len(open) == 1 {
		delete(t.spans, key)
	} else {
		t.spans[key] = open[1:]
	}

	span.SetAttributes(append(attrs, attribute.String("kiln.status", string(ev.Result.Status)))...)
	switch ev.Result.Status {
	case build.StatusFailed:
		span.SetStatus(codes.Error, ev.Result.Logs)
	case build.StatusSkipped:
		span.SetStatus(codes.Error, "skipped")
	default:
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(ev.Timestamp))
}

// Shutdown flushes and stops the exporter.
func (t *Tracer) Shutdown(ctx context.Context) error {
	return t.provider.Shutdown(ctx)
}
