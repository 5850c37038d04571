package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/roach88/kiln/internal/build"
	"github.com/roach88/kiln/internal/config"
	"github.com/roach88/kiln/internal/journal"
	"github.com/roach88/kiln/internal/report"
	"github.com/roach88/kiln/internal/site"
	"github.com/roach88/kiln/internal/telemetry"
)

// session is one loaded project with its runner and listeners.
type session struct {
	cfg     *config.Config
	logger  zerolog.Logger
	runner  *build.Runner
	project *site.Project
	summary *report.Summary

	tracer   *telemetry.Tracer
	store    *journal.Store
	recorder *journal.Recorder
}

// loadConfig reads the config named by --config, or the first default
// file in the working directory.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	path := opts.Config
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		if path, err = config.Find(wd); err != nil {
			return nil, err
		}
	}
	return config.Load(path)
}

// newLogger builds the logger for cfg, honouring --verbose.
func newLogger(opts *RootOptions, cfg config.LogConfig, w io.Writer) (zerolog.Logger, error) {
	if opts.Verbose {
		cfg.Level = "debug"
	}
	return telemetry.NewLogger(cfg, w)
}

// openSession loads the config, discovers the project and wires the
// listeners the config enables. metrics may be nil.
func openSession(opts *RootOptions, stderr io.Writer, metrics *telemetry.Metrics) (*session, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	logger, err := newLogger(opts, cfg.Log, stderr)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to configure logging", err)
	}

	project, err := site.NewProject(cfg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to discover project", err)
	}

	s := &session{
		cfg:     cfg,
		logger:  logger,
		runner:  build.NewRunner(build.WithLogger(telemetry.Component(logger, "runner"))),
		project: project,
		summary: report.NewSummary(telemetry.Component(logger, "report")),
	}
	if err := project.Register(s.runner); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to register targets", err)
	}
	s.summary.Attach(s.runner)

	if metrics != nil {
		metrics.Attach(s.runner)
	}
	if cfg.Tracing.Enabled {
		if s.tracer, err = telemetry.NewStdoutTracer(stderr); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to configure tracing", err)
		}
		s.tracer.Attach(s.runner)
	}
	if cfg.Journal.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Journal.Path), 0o755); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to create journal directory", err)
		}
		if s.store, err = journal.Open(cfg.Journal.Path); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		s.recorder = journal.NewRecorder(s.store, journal.WithLogger(telemetry.Component(logger, "journal")))
		s.recorder.Attach(s.runner)
	}

	logger.Debug().
		Str("root", cfg.Root).
		Int("outputs", len(project.Outputs())).
		Msg("project loaded")
	return s, nil
}

func (s *session) beginPass(label string) {
	s.summary.Begin()
	if s.recorder != nil {
		s.recorder.BeginRun(label)
	}
}

func (s *session) endPass([]*build.Result) {
	s.summary.Log(s.project.Outputs())
}

// Close flushes the journal and tracer.
func (s *session) Close() error {
	var errs []error
	if s.recorder != nil {
		errs = append(errs, s.recorder.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if s.tracer != nil {
		errs = append(errs, s.tracer.Shutdown(context.Background()))
	}
	return errors.Join(errs...)
}
