package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"alcyxob/fitness-sessions/internal/service"
)

// ScheduleResetter is the batch the cron job triggers.
type ScheduleResetter interface {
	ResetWeeklySchedules(ctx context.Context) (service.ResetSummary, error)
}

// WeeklyReset rolls trainer templates forward on a cron schedule.
type WeeklyReset struct {
	cron     *cron.Cron
	resetter ScheduleResetter
	timeout  time.Duration
	logger   *zap.Logger
}

// NewWeeklyReset registers spec (standard 5-field cron) in loc.
func NewWeeklyReset(spec string, loc *time.Location, resetter ScheduleResetter, logger *zap.Logger) (*WeeklyReset, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	j := &WeeklyReset{
		cron:     cron.New(cron.WithLocation(loc)),
		resetter: resetter,
		timeout:  10 * time.Minute,
		logger:   logger,
	}
	if _, err := j.cron.AddFunc(spec, j.Run); err != nil {
		return nil, fmt.Errorf("invalid reset schedule %q: %w", spec, err)
	}
	return j, nil
}

// Run executes one reset; it is also what the cron entry calls.
func (j *WeeklyReset) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	start := time.Now()
	summary, err := j.resetter.ResetWeeklySchedules(ctx)
	if err != nil {
		j.logger.Error("weekly schedule reset failed", zap.Error(err), zap.Int("processed", summary.Processed))
		return
	}
	j.logger.Info("weekly schedule reset finished",
		zap.Int("processed", summary.Processed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Duration("took", time.Since(start)))
}

func (j *WeeklyReset) Start() {
	j.cron.Start()
}

// Stop halts scheduling and waits for a running reset to finish or ctx to expire.
func (j *WeeklyReset) Stop(ctx context.Context) {
	done := j.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Next reports when the reset fires next.
func (j *WeeklyReset) Next() time.Time {
	entries := j.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
