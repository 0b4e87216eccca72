package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/tsamp/internal/backend"
	"github.com/srg/tsamp/internal/metrics"
	"github.com/srg/tsamp/internal/session"
	"github.com/srg/tsamp/internal/simaudio"
	"github.com/srg/tsamp/internal/streaming"
	"github.com/srg/tsamp/pkg/config"
	"github.com/srg/tsamp/pkg/telux"
)

// app is what every command runs on: configuration, logger, backend and session.
type app struct {
	cfg     *config.Config
	logger  *logrus.Logger
	backend io.Closer
	sess    *session.Session
	metrics *metrics.StreamMetrics

	stopMetrics context.CancelFunc
	metricsDone <-chan error
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageError("%s", err)
		}
		return nil
	}
}

// commandContext is cancelled on SIGINT/SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

// loadConfig reads the config file and environment, then applies global flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, usageError("%s", err)
	}
	if name, _ := cmd.Flags().GetString("backend"); name != "" {
		cfg.Backend = name
	}
	if scenario, _ := cmd.Flags().GetString("sim-scenario"); scenario != "" {
		cfg.Sim.Scenario = scenario
	}
	return cfg, nil
}

// openApp brings up everything up to an available audio service.
func openApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return nil, usageError("%s", err)
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	a := &app{cfg: cfg, logger: logger}
	if a.metrics, err = metrics.New(); err != nil {
		return nil, err
	}
	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		metricsCtx, cancel := context.WithCancel(context.Background())
		if _, a.metricsDone, err = a.metrics.Serve(metricsCtx, addr, logger); err != nil {
			cancel()
			return nil, err
		}
		a.stopMetrics = cancel
	}

	opts := backend.Options{ScenarioPath: cfg.Sim.Scenario}
	if cfg.Sim.Scenario == "" {
		sc := simaudio.DefaultScenario()
		sc.ServiceDelay = cfg.Sim.ServiceDelay
		sc.TransferDelay = cfg.Sim.TransferDelay
		opts.Scenario = sc
	}
	mgr, closer, err := backend.Open(cfg.Backend, opts, logger)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	a.backend = closer

	a.sess, err = session.Open(ctx, mgr, session.Options{
		ServiceTimeout:  cfg.ServiceTimeout,
		ResponseTimeout: cfg.ResponseTimeout,
		Logger:          logger,
	})
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	return a, nil
}

// streamOptions are the streaming options from config; zero flag values keep them.
func (a *app) streamOptions(name string, poolSize int, waitTimeout time.Duration, extra streaming.Observer) streaming.Options {
	opts := streaming.Options{
		Name:         name,
		PoolSize:     a.cfg.PoolSize,
		WaitTimeout:  a.cfg.WaitTimeout,
		DrainTimeout: a.cfg.DrainTimeout,
		StopTimeout:  a.cfg.StopTimeout,
		Observer:     observers{a.metrics, extra},
		Logger:       a.logger,
	}
	if poolSize > 0 {
		opts.PoolSize = poolSize
	}
	if waitTimeout > 0 {
		opts.WaitTimeout = waitTimeout
	}
	return opts
}

// close deletes the stream, shuts the backend down and stops the metrics server.
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.sess != nil {
		// The command context may already be cancelled; deletion still has to happen.
		if err := a.sess.Close(context.WithoutCancel(ctx)); err != nil {
			errs = append(errs, fmt.Errorf("failed to delete stream: %w", err))
		}
	}
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.stopMetrics != nil {
		a.stopMetrics()
		if err := <-a.metricsDone; err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// observers fans streaming events out to several observers.
type observers []streaming.Observer

func (o observers) OnIssue(stream string, bytes int) {
	for _, obs := range o {
		if obs != nil {
			obs.OnIssue(stream, bytes)
		}
	}
}

func (o observers) OnComplete(stream string, bytes int, code telux.ErrorCode) {
	for _, obs := range o {
		if obs != nil {
			obs.OnComplete(stream, bytes, code)
		}
	}
}

func (o observers) OnShortTransfer(stream string, shortfall int) {
	for _, obs := range o {
		if obs != nil {
			obs.OnShortTransfer(stream, shortfall)
		}
	}
}

func (o observers) OnTimeout(stream string) {
	for _, obs := range o {
		if obs != nil {
			obs.OnTimeout(stream)
		}
	}
}
