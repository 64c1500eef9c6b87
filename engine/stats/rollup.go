package stats

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/upweb-network/monitor-engine/domain/monitoring"
	"github.com/upweb-network/monitor-engine/infrastructure/logging"
	"github.com/upweb-network/monitor-engine/ports"
)

// dailySchedule runs the rollup job once a day, shortly after UTC midnight,
// so "yesterday" is fully closed before it's rolled up.
const dailySchedule = "0 5 0 * * *"

// RollupJob precomputes yesterday's DayRollup for every active Target, so
// the Stats View's per-day list can be served from the RollupStore (spec
// §4.7). The window's scalar aggregates are still computed from the raw
// Checks of the whole window.
type RollupJob struct {
	targets ports.TargetStore
	checks  ports.CheckStore
	rollups ports.RollupStore
	logger  *logging.Logger
	cron    *cron.Cron
}

func NewRollupJob(targets ports.TargetStore, checks ports.CheckStore, rollups ports.RollupStore, logger *logging.Logger) *RollupJob {
	return &RollupJob{
		targets: targets,
		checks:  checks,
		rollups: rollups,
		logger:  logger,
		cron:    cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC)),
	}
}

// Start schedules the nightly rollup and begins running it in the
// background. Callers must call Stop on shutdown.
func (j *RollupJob) Start() error {
	_, err := j.cron.AddFunc(dailySchedule, j.runOnce)
	if err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

// Stop blocks until any in-flight run finishes.
func (j *RollupJob) Stop() {
	<-j.cron.Stop().Done()
}

func (j *RollupJob) runOnce() {
	ctx := context.Background()
	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	since := time.Date(yesterday.Year(), yesterday.Month(), yesterday.Day(), 0, 0, 0, 0, time.UTC)
	until := since.Add(24 * time.Hour)

	targets, err := j.targets.ListActiveTargets(ctx)
	if err != nil {
		if j.logger != nil {
			j.logger.WithContext(ctx).WithField("error", err.Error()).Error("rollup job: list active targets failed")
		}
		return
	}

	for _, target := range targets {
		j.rollupOne(ctx, target.ID, since, until)
	}
}

func (j *RollupJob) rollupOne(ctx context.Context, targetID string, since, until time.Time) {
	checks, err := j.checks.ListChecks(ctx, targetID, since, until)
	if err != nil {
		if j.logger != nil {
			j.logger.WithContext(ctx).WithField("target_id", targetID).WithField("error", err.Error()).
				Warn("rollup job: list checks failed")
		}
		return
	}

	rollup := monitoring.DayRollup{Date: since.Format("2006-01-02")}
	for _, c := range checks {
		rollup.TotalChecks++
		if c.Success {
			rollup.Successful++
		}
		rollup.AvgResponseMs += float64(c.ResponseTimeMs)
	}
	if rollup.TotalChecks > 0 {
		rollup.AvgResponseMs /= float64(rollup.TotalChecks)
		rollup.UptimePct = float64(rollup.Successful) / float64(rollup.TotalChecks) * 100
	}

	if err := j.rollups.SaveRollup(ctx, targetID, rollup); err != nil && j.logger != nil {
		j.logger.WithContext(ctx).WithField("target_id", targetID).WithField("error", err.Error()).
			Warn("rollup job: save rollup failed")
	}
}

// RunNow executes one rollup pass immediately, used by tests and by an
// operator backfilling a day the job missed.
func (j *RollupJob) RunNow() {
	j.runOnce()
}
