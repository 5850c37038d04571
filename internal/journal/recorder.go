package journal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/roach88/kiln/internal/build"
)

// Recorder journals runner events. Create it with NewRecorder, subscribe it
// with Attach, open a run with BeginRun before each pass, and Close it to
// flush.
type Recorder struct {
	store  *Store
	ids    RunIDGenerator
	now    func() time.Time
	logger zerolog.Logger

	q    *queue
	done chan struct{}

	mu    sync.Mutex
	runID string
	err   error
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithRunIDs replaces the UUIDv7 run id generator.
func WithRunIDs(gen RunIDGenerator) RecorderOption {
	return func(rec *Recorder) { rec.ids = gen }
}

// WithClock sets the source of run start times.
func WithClock(now func() time.Time) RecorderOption {
	return func(rec *Recorder) { rec.now = now }
}

// WithLogger sets the logger for write failures.
func WithLogger(logger zerolog.Logger) RecorderOption {
	return func(rec *Recorder) { rec.logger = logger }
}

// NewRecorder starts the writer goroutine for store.
func NewRecorder(store *Store, opts ...RecorderOption) *Recorder {
	rec := &Recorder{
		store:  store,
		ids:    UUIDv7{},
		now:    time.Now,
		logger: zerolog.Nop(),
		q:      newQueue(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(rec)
	}
	go rec.write()
	return rec
}

// Attach subscribes rec to every event of r.
func (rec *Recorder) Attach(r *build.Runner) {
	r.On(build.EventAll, rec.observe)
}

// BeginRun opens a new run and returns its id. Later events belong to it.
func (rec *Recorder) BeginRun(label string) string {
	run := Run{ID: rec.ids.Generate(), Label: label, StartedAt: rec.now()}
	rec.mu.Lock()
	rec.runID = run.ID
	rec.mu.Unlock()
	rec.q.enqueue(item{run: &run})
	return run.ID
}

func (rec *Recorder) observe(ev build.Event) {
	rec.mu.Lock()
	runID := rec.runID
	rec.mu.Unlock()
	if runID == "" {
		rec.logger.Debug().Int64("seq", ev.Sequence).Msg("event outside a run, not journaled")
		return
	}

	e := Entry{
		RunID:     runID,
		Seq:       ev.Sequence,
		Type:      string(ev.Type),
		Target:    ev.TargetID(),
		Cached:    ev.Cached,
		Obsolete:  ev.Obsolete,
		Timestamp: ev.Timestamp,
	}
	if ev.Result != nil {
		e.Status = string(ev.Result.Status)
		e.Logs = ev.Result.Logs
	}
	rec.q.enqueue(item{entry: &e})
}

// write drains the queue until it is closed and empty.
func (rec *Recorder) write() {
	defer close(rec.done)
	ctx := context.Background()
	for {
		for {
			it, ok := rec.q.tryDequeue()
			if !ok {
				break
			}
			var err error
			if it.run != nil {
				err = rec.store.writeRun(ctx, *it.run)
			} else {
				err = rec.store.writeEntry(ctx, *it.entry)
			}
			if err != nil {
				rec.logger.Error().Err(err).Msg("journal write failed")
				rec.mu.Lock()
				rec.err = errors.Join(rec.err, err)
				rec.mu.Unlock()
			}
		}
		if rec.q.drained() {
			return
		}
		<-rec.q.wait()
	}
}

// Close flushes pending events and stops the writer. It returns every write
// error seen. The store stays open.
func (rec *Recorder) Close() error {
	rec.q.close()
	<-rec.done
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.err
}
