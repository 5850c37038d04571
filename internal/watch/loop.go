package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/kiln/internal/build"
	"github.com/roach88/kiln/internal/site"
)

// ErrRestartRequired is returned by Loop.Run when files were added, removed
// or renamed. The target graph is fixed at startup, so the caller must load
// a new Project and Runner.
var ErrRestartRequired = errors.New("watched file set changed, restart required")

// BuildAll builds targets in parallel and returns their results in order.
// The error is non-nil only for registration problems or ctx ending.
func BuildAll(ctx context.Context, r *build.Runner, targets []*build.Target) ([]*build.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	results := make([]*build.Result, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range targets {
		g.Go(func() error {
			res, err := r.Build(gctx, t)
			if err != nil {
				return fmt.Errorf("build %s: %w", t.ID(), err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Loop rebuilds a project whenever its sources change.
type Loop struct {
	Runner  *build.Runner
	Project *site.Project

	// Debounce is the batch window for file events.
	Debounce time.Duration
	Logger   zerolog.Logger

	// BeforePass, if set, runs before each pass with its label: "initial"
	// or "change".
	BeforePass func(label string)
	// AfterPass, if set, runs after each pass with the output results.
	AfterPass func(results []*build.Result)
}

// Run builds all outputs, then watches until ctx ends (returning nil), the
// watcher fails, or the file set changes (returning ErrRestartRequired).
func (l *Loop) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	for _, dir := range l.Project.WatchDirs() {
		if err := addTree(watcher, dir); err != nil {
			return err
		}
	}

	if err := l.pass(ctx, "initial"); err != nil {
		return ignoreCancel(ctx, err)
	}

	go func() {
		for err := range watcher.Errors {
			l.Logger.Warn().Err(err).Msg("watcher error")
		}
	}()

	batches := NewBatcher(watcher.Events, l.Debounce)
	for {
		batch, err := batches.Next(ctx)
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil
		case errors.Is(err, io.EOF):
			return fmt.Errorf("watcher closed")
		case err != nil:
			return err
		}

		changed, err := l.apply(ctx, batch)
		if err != nil {
			return ignoreCancel(ctx, err)
		}
		if !changed {
			continue
		}
		if err := l.pass(ctx, "change"); err != nil {
			return ignoreCancel(ctx, err)
		}
	}
}

// apply resets the sources named by batch. It reports whether any target
// was reset.
func (l *Loop) apply(ctx context.Context, batch []fsnotify.Event) (bool, error) {
	reset := make(map[*build.Target]bool)
	for _, ev := range batch {
		if ev.Op == fsnotify.Chmod {
			continue
		}
		src, known := l.Project.SourceFor(ev.Name)
		if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) || (ev.Has(fsnotify.Create) && !known) {
			l.Logger.Info().Str("path", ev.Name).Str("op", ev.Op.String()).Msg("file set changed")
			return false, ErrRestartRequired
		}
		if !known {
			l.Logger.Debug().Str("path", ev.Name).Msg("ignoring change to unknown file")
			continue
		}
		if reset[src] {
			continue
		}
		reset[src] = true
		l.Logger.Debug().Str("path", ev.Name).Str("target", src.ID()).Msg("source changed")
		if _, err := l.Runner.Reset(ctx, src); err != nil {
			return false, fmt.Errorf("reset %s: %w", src.ID(), err)
		}
	}
	return len(reset) > 0, nil
}

func (l *Loop) pass(ctx context.Context, label string) error {
	if l.BeforePass != nil {
		l.BeforePass(label)
	}
	results, err := BuildAll(ctx, l.Runner, l.Project.Outputs())
	if err != nil {
		return err
	}
	if l.AfterPass != nil {
		l.AfterPass(results)
	}
	return nil
}

// ignoreCancel maps errors caused by ctx ending to nil.
func ignoreCancel(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// addTree watches dir and every directory below it.
func addTree(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
