package guardrail

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/promohub/promohub-api/internal/domain/reconcile"
)

const jobTimeout = 10 * time.Minute

type Auditor interface {
	AuditAll(ctx context.Context) (*reconcile.AuditReport, error)
}

// Scheduler runs the sweep and the reconciliation audit on cron schedules.
type Scheduler struct {
	cron    *cron.Cron
	svc     *Service
	auditor Auditor

	sweepSchedule string
	auditSchedule string
}

func NewScheduler(svc *Service, auditor Auditor, sweepSchedule, auditSchedule string) *Scheduler {
	cronLogger := log.With().Str("component", "cron").Logger()
	c := cron.New(cron.WithChain(
		cron.Recover(cron.PrintfLogger(&cronLogger)),
		cron.SkipIfStillRunning(cron.DiscardLogger),
	))
	return &Scheduler{
		cron:          c,
		svc:           svc,
		auditor:       auditor,
		sweepSchedule: sweepSchedule,
		auditSchedule: auditSchedule,
	}
}

// Start registers the jobs and starts the cron loop. An empty schedule disables its job.
func (s *Scheduler) Start() error {
	if s.sweepSchedule != "" {
		if _, err := s.cron.AddFunc(s.sweepSchedule, s.runSweep); err != nil {
			return err
		}
		log.Info().Str("schedule", s.sweepSchedule).Msg("scheduled guardrail sweep")
	}
	if s.auditSchedule != "" && s.auditor != nil {
		if _, err := s.cron.AddFunc(s.auditSchedule, s.runAudit); err != nil {
			return err
		}
		log.Info().Str("schedule", s.auditSchedule).Msg("scheduled reconciliation audit")
	}
	s.cron.Start()
	return nil
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if _, err := s.svc.Sweep(ctx, false); err != nil {
		log.Error().Err(err).Msg("scheduled guardrail sweep failed")
	}
}

func (s *Scheduler) runAudit() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	report, err := s.auditor.AuditAll(ctx)
	if err != nil {
		log.Error().Err(err).Msg("scheduled reconciliation audit failed")
		return
	}
	log.Info().Int("checked", report.Checked).Int("mismatched", report.Mismatched).Int("failed", report.Failed).Msg("reconciliation audit finished")
}
