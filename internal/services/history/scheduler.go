package history

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"SignalEngine/pkg/logger"
)

const (
	DefaultExpirySchedule    = "@every 1m"
	DefaultRetentionSchedule = "@daily"

	jobTimeout = 5 * time.Minute
)

// Scheduler runs the expiry sweep and, when a retention period is set, the
// periodic history cleanup.
type Scheduler struct {
	service *Service
	cron    *cron.Cron
	logger  *logger.Logger
}

func NewScheduler(service *Service, l *logger.Logger) *Scheduler {
	if l == nil {
		l = logger.NewNop()
	}
	return &Scheduler{
		service: service,
		cron:    cron.New(),
		logger:  l.Component("history_scheduler"),
	}
}

// Start registers the jobs and starts the cron loop. retentionDays <= 0
// disables cleanup.
func (s *Scheduler) Start(expirySchedule, retentionSchedule string, retentionDays int) error {
	if expirySchedule == "" {
		expirySchedule = DefaultExpirySchedule
	}
	if _, err := s.cron.AddFunc(expirySchedule, s.runSweep); err != nil {
		return err
	}
	if retentionDays > 0 {
		if retentionSchedule == "" {
			retentionSchedule = DefaultRetentionSchedule
		}
		if _, err := s.cron.AddFunc(retentionSchedule, func() { s.runRetention(retentionDays) }); err != nil {
			return err
		}
	}
	s.cron.Start()
	s.logger.Info("history scheduler started",
		logger.String("expiry_schedule", expirySchedule),
		logger.String("retention_schedule", retentionSchedule),
		logger.Int("retention_days", retentionDays),
	)
	return nil
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("history scheduler stopped")
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if _, err := s.service.SweepExpired(ctx); err != nil {
		s.logger.Error("expiry sweep failed", logger.Error(err))
	}
}

func (s *Scheduler) runRetention(days int) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if _, err := s.service.ClearHistory(ctx, days); err != nil {
		s.logger.Error("history retention cleanup failed", logger.Error(err))
	}
}
