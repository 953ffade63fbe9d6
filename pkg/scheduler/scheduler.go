// Package scheduler drives recurring extraction runs: a nightly pass
// over the full catalog with dimensions loaded before facts, and an
// hourly pass over the high-churn fact tables.
package scheduler

import (
	"context"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fieldpipe/fieldpipe/pkg/config"
	"github.com/fieldpipe/fieldpipe/pkg/errors"
	"github.com/fieldpipe/fieldpipe/pkg/extract"
	"github.com/fieldpipe/fieldpipe/pkg/logger"
	"github.com/fieldpipe/fieldpipe/pkg/metrics"
	"github.com/fieldpipe/fieldpipe/pkg/processor"
)

// Scheduler owns the cron loop and the metrics listener.
type Scheduler struct {
	proc    *processor.Processor
	cron    *cron.Cron
	cfg     config.ScheduleConfig
	metrics config.MetricsConfig
	log     *zap.Logger
}

// New builds a Scheduler running in the configured timezone.
func New(proc *processor.Processor, cfg config.ScheduleConfig, metricsCfg config.MetricsConfig) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "load schedule timezone")
	}
	return &Scheduler{
		proc:    proc,
		cron:    cron.New(cron.WithLocation(loc)),
		cfg:     cfg,
		metrics: metricsCfg,
		log:     logger.Get(),
	}, nil
}

// Start registers the jobs and blocks until ctx is cancelled. A failed
// run is logged and the schedule keeps going; the next tick retries
// from the committed watermarks.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.cfg.Nightly, func() { s.runNightly(ctx) }); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "register nightly schedule")
	}
	if _, err := s.cron.AddFunc(s.cfg.Hourly, func() { s.runHourly(ctx) }); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "register hourly schedule")
	}

	var srv *http.Server
	if s.metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv = &http.Server{Addr: s.metrics.Listen, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				s.log.Error("metrics listener failed", zap.Error(err))
			}
		}()
		s.log.Info("metrics listener started", zap.String("addr", s.metrics.Listen))
	}

	s.cron.Start()
	s.log.Info("scheduler started",
		zap.String("nightly", s.cfg.Nightly),
		zap.String("hourly", s.cfg.Hourly),
		zap.String("timezone", s.cfg.Timezone))

	<-ctx.Done()

	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
	s.log.Info("scheduler stopped")
	return ctx.Err()
}

// runNightly extracts the whole catalog, dimensions before facts.
func (s *Scheduler) runNightly(ctx context.Context) {
	s.log.Info("nightly run starting")
	if _, err := s.proc.RunGroup(ctx, processor.GroupDimensions, extract.ModeIncremental); err != nil {
		s.log.Error("nightly dimension run failed", zap.Error(err))
		return
	}
	if _, err := s.proc.RunGroup(ctx, processor.GroupFacts, extract.ModeIncremental); err != nil {
		s.log.Error("nightly fact run failed", zap.Error(err))
		return
	}
	s.log.Info("nightly run complete")
}

// runHourly refreshes the hot fact tables.
func (s *Scheduler) runHourly(ctx context.Context) {
	for _, spec := range processor.HotEntities() {
		if _, err := s.proc.Run(ctx, spec, extract.ModeIncremental); err != nil {
			s.log.Error("hourly run failed",
				zap.String("entity", spec.Name), zap.Error(err))
			return
		}
	}
}
