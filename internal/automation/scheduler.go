package automation

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/chatlabs-hq/agency-ops/internal/bonus"
)

// Config controls the scheduled evaluation loop.
type Config struct {
	Enabled bool
	// Schedule is a 6-field cron expression (with seconds).
	Schedule string
	// Lookback also re-evaluates windows this far back on each tick, so
	// earnings that land late still produce their award.
	Lookback time.Duration
	// Companies to evaluate on each tick.
	Companies []string
}

// Scheduler runs company-wide evaluations on a cron schedule. The clock
// is injected so ticks are testable at fixed instants.
type Scheduler struct {
	cfg    Config
	runner *bonus.Runner
	runlog *RunLog
	clock  func() time.Time

	cron *cron.Cron
	log  *zap.Logger
}

// NewScheduler creates a Scheduler. A nil clock defaults to time.Now.
func NewScheduler(cfg Config, runner *bonus.Runner, runlog *RunLog, clock func() time.Time) *Scheduler {
	if clock == nil {
		clock = time.Now
	}
	return &Scheduler{
		cfg:    cfg,
		runner: runner,
		runlog: runlog,
		clock:  clock,
		log:    zap.L().With(zap.String("component", "automation.scheduler")),
	}
}

// Start registers the cron entry and begins ticking. No-op when disabled.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		s.log.Info("automation disabled, not starting")
		return nil
	}

	s.cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	if _, err := s.cron.AddFunc(s.cfg.Schedule, func() { s.Tick(ctx) }); err != nil {
		return eris.Wrapf(err, "automation: invalid schedule %q", s.cfg.Schedule)
	}
	s.cron.Start()
	s.log.Info("automation started",
		zap.String("schedule", s.cfg.Schedule),
		zap.Duration("lookback", s.cfg.Lookback),
		zap.Int("companies", len(s.cfg.Companies)),
	)
	return nil
}

// Stop halts the cron loop and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.log.Info("automation stopped")
}

// Tick evaluates every configured company at the injected clock's now,
// plus the lookback instant when configured. Failures are logged per
// company; one bad company never stops the others.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.clock().UTC()

	instants := []time.Time{now}
	if s.cfg.Lookback > 0 {
		instants = append(instants, now.Add(-s.cfg.Lookback))
	}

	for _, companyID := range s.cfg.Companies {
		s.runCompany(ctx, companyID, instants)
	}
}

func (s *Scheduler) runCompany(ctx context.Context, companyID string, instants []time.Time) {
	runID, err := s.runlog.Start(ctx, TriggerScheduled, companyID)
	if err != nil {
		s.log.Error("failed to record run start", zap.String("company_id", companyID), zap.Error(err))
		return
	}

	var evaluated, awarded, failed int
	var runErr string
	for _, asOf := range instants {
		byWorker, err := s.runner.RunForCompany(ctx, companyID, asOf)
		if err != nil {
			runErr = err.Error()
			s.log.Error("company run failed",
				zap.String("company_id", companyID),
				zap.Time("as_of", asOf),
				zap.Error(err),
			)
			continue
		}
		for _, outcomes := range byWorker {
			for _, o := range outcomes {
				evaluated++
				if o.Err != nil {
					failed++
					continue
				}
				if o.Snapshot != nil && o.Snapshot.Award != nil {
					awarded++
				}
			}
		}
	}

	if err := s.runlog.Complete(ctx, runID, evaluated, awarded, failed, runErr); err != nil {
		s.log.Error("failed to record run completion", zap.String("run_id", runID), zap.Error(err))
	}

	s.log.Info("scheduled run complete",
		zap.String("company_id", companyID),
		zap.Int("evaluated", evaluated),
		zap.Int("awarded", awarded),
		zap.Int("failed", failed),
	)
}
