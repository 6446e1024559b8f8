package sync

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"progress-sync-service/internal/config"
	"progress-sync-service/internal/logger"
)

type drainTrigger interface {
	TriggerDrain()
}

// Scheduler retries the offline queue on a cron schedule so that entries
// left behind by a missed reconnect event still get flushed.
type Scheduler struct {
	cfg    config.SchedulerConfig
	target drainTrigger
	cron   *cron.Cron

	mu      sync.Mutex
	entryID cron.EntryID
}

func NewScheduler(cfg config.SchedulerConfig, target drainTrigger) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		target: target,
		cron:   cron.New(),
	}
}

func (s *Scheduler) Start() error {
	if !s.cfg.Enabled {
		logger.Log.Info("Scheduler is disabled")
		return nil
	}

	logger.Log.Info("Starting scheduler", zap.String("interval", s.cfg.Interval))

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
		s.entryID = 0
	}

	id, err := s.cron.AddFunc(s.cfg.Interval, s.triggerDrain)
	if err != nil {
		logger.Log.Error("Failed to schedule drain", zap.Error(err))
		return err
	}

	s.entryID = id
	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	<-s.cron.Stop().Done()
	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
		s.entryID = 0
	}
	logger.Log.Info("Stopped scheduler")
}

// Next reports the next scheduled run, zero when not scheduled.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entryID == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

func (s *Scheduler) triggerDrain() {
	logger.Log.Debug("Triggering scheduled drain")
	s.target.TriggerDrain()
}
