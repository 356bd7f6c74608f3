// Package scheduler runs the periodic droplet mirror sweep.
package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"droplet_console/internal/activity"
	"droplet_console/internal/droplets"
)

// Sweeper is the part of droplets.Service the scheduler drives.
type Sweeper interface {
	Sweep(ctx context.Context) (droplets.SweepResult, error)
}

type Scheduler struct {
	cron     *gocron.Scheduler
	sweeper  Sweeper
	rec      *activity.Recorder
	log      *zap.Logger
	interval time.Duration
	timeout  time.Duration
}

// New builds a scheduler that sweeps every interval. An interval of zero
// yields a scheduler whose Start does nothing.
func New(sweeper Sweeper, rec *activity.Recorder, log *zap.Logger, interval time.Duration) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	timeout := interval
	if timeout <= 0 || timeout > 5*time.Minute {
		timeout = 5 * time.Minute
	}
	return &Scheduler{
		cron:     gocron.NewScheduler(time.UTC),
		sweeper:  sweeper,
		rec:      rec,
		log:      log.Named("scheduler"),
		interval: interval,
		timeout:  timeout,
	}
}

// Start schedules the sweep in singleton mode, so a slow run is never
// overlapped by the next tick. The first run happens immediately.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		s.log.Info("droplet sweep disabled")
		return nil
	}
	s.cron.SingletonModeAll()
	if _, err := s.cron.Every(s.interval).Tag("droplet-sweep").Do(s.RunOnce); err != nil {
		return err
	}
	s.cron.StartAsync()
	s.log.Info("droplet sweep scheduled", zap.Duration("interval", s.interval))
	return nil
}

func (s *Scheduler) Stop() {
	if s.cron.IsRunning() {
		s.cron.Stop()
	}
}

// RunOnce performs one sweep and records an activity entry per repaired row.
func (s *Scheduler) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	started := time.Now()
	res, err := s.sweeper.Sweep(ctx)
	if err != nil {
		s.log.Warn("droplet sweep finished with errors", zap.Error(err),
			zap.Int("seen", res.Seen), zap.Int("repaired", res.Repaired))
	} else {
		s.log.Debug("droplet sweep finished",
			zap.Int("seen", res.Seen), zap.Int("repaired", res.Repaired), zap.Duration("took", time.Since(started)))
	}

	if s.rec == nil {
		return
	}
	for i := range res.Mirrored {
		row := res.Mirrored[i]
		s.rec.Record(ctx, activity.Entry{
			UserID:    row.UserID,
			Action:    activity.SweepRepairedMirror,
			DropletID: &row.ID,
			Details:   map[string]any{"do_id": row.DOID, "name": row.Name, "size": row.Size},
		})
	}
}
