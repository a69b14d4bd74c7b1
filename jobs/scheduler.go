package jobs

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/ecocomply/compliance_backend/config"
	"github.com/ecocomply/compliance_backend/models"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

// ErrPassAlreadyRunning means another scheduler or operator holds the job
// lock. On-demand callers surface it as a conflict; the cadence loop just
// waits for the next tick.
var ErrPassAlreadyRunning = errors.New("pass already running")

const jobLockTTL = 10 * time.Minute

// RunClockPass reconciles the compliance clocks under the job lock, then
// chains the SLA detector whenever deadlines were in scope, so a breach is
// stamped in the same cycle that refreshed its clock.
func RunClockPass(ctx context.Context, scope Scope, only models.ClockEntityType) (*ClockPassResult, error) {
	lock, acquired, err := acquireJobLock(ctx, JobClockReconcile, jobLockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrPassAlreadyRunning
	}
	defer releaseJobLock(ctx, lock)

	result, err := NewClockReconciler().Run(ctx, scope, only)
	if err != nil {
		return nil, err
	}

	if only == "" || only == models.ClockEntityTypeDeadline {
		if _, err := RunSlaPass(ctx, scope); err != nil && err != ErrPassAlreadyRunning {
			config.LogError(config.GetLogger(), "scheduler.go", "RunClockPass", "chained sla pass", scope, err)
		}
	}
	return result, nil
}

func RunEvidencePass(ctx context.Context, scope Scope) (*ExpiryPassResult, error) {
	lock, acquired, err := acquireJobLock(ctx, JobEvidenceExpiry, jobLockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrPassAlreadyRunning
	}
	defer releaseJobLock(ctx, lock)

	return NewEvidenceExpiryRunner().Run(ctx, scope)
}

func RunTriggerPass(ctx context.Context, scope Scope) (*TriggerPassResult, error) {
	lock, acquired, err := acquireJobLock(ctx, JobTriggerRun, jobLockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrPassAlreadyRunning
	}
	defer releaseJobLock(ctx, lock)

	return NewTriggerEngine().Run(ctx, scope)
}

func RunSlaPass(ctx context.Context, scope Scope) (*SlaPassResult, error) {
	lock, acquired, err := acquireJobLock(ctx, JobSlaCheck, jobLockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrPassAlreadyRunning
	}
	defer releaseJobLock(ctx, lock)

	return NewSlaBreachDetector().Run(ctx, scope)
}

// SchedulerEnabled gates the in-process cadence loop. Deployments that drive
// the passes from cron or the cmd binaries leave it off.
//
// Set via env:
// - ENABLE_SCHEDULER=true
func SchedulerEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("ENABLE_SCHEDULER")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// Scheduler runs every pass fleet-wide on a fixed cadence. The per-job locks
// make extra replicas harmless.
type Scheduler struct {
	Interval time.Duration
	Logger   *logrus.Logger
	Tracer   trace.Tracer
}

// NewSchedulerFromEnv reads RECONCILE_INTERVAL (Go duration, default 15m).
func NewSchedulerFromEnv() *Scheduler {
	interval := 15 * time.Minute
	if raw := strings.TrimSpace(os.Getenv("RECONCILE_INTERVAL")); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			interval = d
		}
	}
	return &Scheduler{
		Interval: interval,
		Logger:   config.GetLogger(),
	}
}

func (s *Scheduler) Run(ctx context.Context) {
	s.Logger.WithFields(logrus.Fields{"interval": s.Interval.String()}).Info("scheduler.start")

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Logger.Info("scheduler.stop")
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	if s.Tracer != nil {
		var span trace.Span
		ctx, span = s.Tracer.Start(ctx, "scheduler.cycle")
		defer span.End()
	}

	if _, err := RunClockPass(ctx, Scope{}, ""); err != nil && err != ErrPassAlreadyRunning {
		config.LogError(s.Logger, "scheduler.go", "runCycle", "clock reconcile pass", nil, err)
	}
	if _, err := RunEvidencePass(ctx, Scope{}); err != nil && err != ErrPassAlreadyRunning {
		config.LogError(s.Logger, "scheduler.go", "runCycle", "evidence expiry pass", nil, err)
	}
	if _, err := RunTriggerPass(ctx, Scope{}); err != nil && err != ErrPassAlreadyRunning {
		config.LogError(s.Logger, "scheduler.go", "runCycle", "trigger run pass", nil, err)
	}
}
