package journal

import (
	"context"
	"fmt"
	"time"
)

// Run is one pass of the driving loop.
type Run struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	StartedAt time.Time `json:"startedAt"`
}

// Entry is one journaled runner event.
type Entry struct {
	RunID     string    `json:"runId"`
	Seq       int64     `json:"seq"`
	Type      string    `json:"type"`
	Target    string    `json:"target"`
	Status    string    `json:"status,omitempty"` // empty unless an end event
	Cached    bool      `json:"cached"`
	Obsolete  bool      `json:"obsolete"`
	Logs      string    `json:"logs,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// writeRun inserts a run. A duplicate id is ignored.
func (s *Store) writeRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, label, started_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, run.ID, run.Label, run.StartedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// writeEntry inserts an event. A duplicate (run, seq) is ignored.
func (s *Store) writeEntry(ctx context.Context, e Entry) error {
	var status any
	if e.Status != "" {
		status = e.Status
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (run_id, seq, type, target, status, cached, obsolete, logs, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		e.RunID,
		e.Seq,
		e.Type,
		e.Target,
		status,
		e.Cached,
		e.Obsolete,
		e.Logs,
		e.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}
