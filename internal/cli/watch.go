package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/kiln/internal/telemetry"
	"github.com/roach88/kiln/internal/watch"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Build, then rebuild on every change",
		Long: `Build every output, then watch the source directories and rebuild what
each change affects.

Adding, removing or renaming a file reloads the project. With metrics enabled
in the config, Prometheus metrics are served on metrics.listen.

Example:
  kiln watch --verbose`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(rootOpts, cmd)
		},
	}
}

func runWatch(opts *RootOptions, cmd *cobra.Command) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	// Metrics outlive project reloads.
	cfg, err := loadConfig(opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	var metrics *telemetry.Metrics
	if cfg.Metrics.Enabled {
		metrics = telemetry.NewMetrics()
		logger, err := newLogger(opts, cfg.Log, cmd.ErrOrStderr())
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to configure logging", err)
		}
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Listen, telemetry.Component(logger, "metrics")); err != nil {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	for {
		err := watchOnce(ctx, opts, cmd, metrics)
		if errors.Is(err, watch.ErrRestartRequired) {
			continue
		}
		return err
	}
}

// watchOnce runs one session until ctx ends or the file set changes.
func watchOnce(ctx context.Context, opts *RootOptions, cmd *cobra.Command, metrics *telemetry.Metrics) (err error) {
	s, err := openSession(opts, cmd.ErrOrStderr(), metrics)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil && err == nil {
			err = WrapExitError(ExitCommandError, "failed to close session", closeErr)
		}
	}()

	loop := &watch.Loop{
		Runner:     s.runner,
		Project:    s.project,
		Debounce:   s.cfg.WatchDebounce.Std(),
		Logger:     telemetry.Component(s.logger, "watch"),
		BeforePass: s.beginPass,
		AfterPass:  s.endPass,
	}
	s.logger.Info().Strs("dirs", s.project.WatchDirs()).Msg("watching")
	if err := loop.Run(ctx); err != nil {
		if errors.Is(err, watch.ErrRestartRequired) {
			s.logger.Info().Msg("reloading project")
			return err
		}
		return WrapExitError(ExitFailure, "watch failed", err)
	}
	return nil
}
