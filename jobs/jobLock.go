package jobs

import (
	"context"
	"time"

	"github.com/bsm/redislock"
	"github.com/ecocomply/compliance_backend/config"
)

// Job names. Used as lock keys and as job_name on run reports.
const (
	JobClockReconcile = "clock_reconcile"
	JobEvidenceExpiry = "evidence_expiry"
	JobTriggerRun     = "trigger_run"
	JobSlaCheck       = "sla_check"
)

// acquireJobLock takes a best-effort distributed lock so overlapping
// schedulers don't run the same pass twice. With Redis absent it returns
// a nil lock and the pass runs unguarded; every pass write is idempotent,
// so a duplicate run is wasted work, not corruption.
func acquireJobLock(ctx context.Context, jobName string, ttl time.Duration) (*redislock.Lock, bool, error) {
	locker := config.GetRedisLock()
	if locker == nil {
		return nil, true, nil
	}

	lock, err := locker.Obtain(ctx, "job:"+jobName, ttl, nil)
	if err == redislock.ErrNotObtained {
		return nil, false, nil
	} else if err != nil {
		return nil, false, err
	}
	return lock, true, nil
}

func releaseJobLock(ctx context.Context, lock *redislock.Lock) {
	if lock == nil {
		return
	}
	_ = lock.Release(ctx)
}
