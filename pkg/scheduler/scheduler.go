// Package scheduler runs the periodic background jobs: SLA breach scanning,
// reminder dispatch and notification delivery.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Default job cadences. Reminder dispatch is date-granular so it runs once a
// day in the morning; escalation thresholds are expressed in hours so an
// hourly scan is enough.
const (
	DefaultEscalationSchedule   = "0 * * * *"
	DefaultReminderSchedule     = "0 8 * * *"
	DefaultNotificationSchedule = "*/5 * * * *"
)

// EscalationScanner checks active instances for SLA breaches.
type EscalationScanner interface {
	CheckSLABreaches(ctx context.Context) (int, error)
}

// ReminderDispatcher fires due reminders.
type ReminderDispatcher interface {
	ProcessDue(ctx context.Context) (int, error)
}

// NotificationDeliverer drains the pending notification queue.
type NotificationDeliverer interface {
	SendPending(ctx context.Context) (int, error)
}

// Config carries per-job cron expressions. Empty fields use the defaults.
type Config struct {
	EscalationSchedule   string
	ReminderSchedule     string
	NotificationSchedule string
}

func (c Config) withDefaults() Config {
	if c.EscalationSchedule == "" {
		c.EscalationSchedule = DefaultEscalationSchedule
	}

	if c.ReminderSchedule == "" {
		c.ReminderSchedule = DefaultReminderSchedule
	}

	if c.NotificationSchedule == "" {
		c.NotificationSchedule = DefaultNotificationSchedule
	}

	return c
}

// Scheduler owns the cron runner for the background jobs. It lives for the
// process lifetime: Start registers the jobs and Stop drains them.
type Scheduler struct {
	escalation    EscalationScanner
	reminders     ReminderDispatcher
	notifications NotificationDeliverer
	config        Config
	logger        *slog.Logger

	cron *cron.Cron
	ctx  context.Context
}

// NewScheduler creates a scheduler. Any job may be nil to disable it.
func NewScheduler(
	escalation EscalationScanner,
	reminders ReminderDispatcher,
	notifications NotificationDeliverer,
	config Config,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		escalation:    escalation,
		reminders:     reminders,
		notifications: notifications,
		config:        config.withDefaults(),
		logger:        logger.With("module", "scheduler"),
	}
}

// Start registers the jobs and starts the cron runner. Slow jobs are skipped
// rather than stacked when the next tick arrives.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx = ctx
	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	jobs := []struct {
		name     string
		schedule string
		run      func(context.Context) (int, error)
	}{
		{"escalation_scan", s.config.EscalationSchedule, s.runEscalation},
		{"reminder_dispatch", s.config.ReminderSchedule, s.runReminders},
		{"notification_delivery", s.config.NotificationSchedule, s.runNotifications},
	}

	for _, job := range jobs {
		name, run := job.name, job.run

		_, err := s.cron.AddFunc(job.schedule, func() {
			count, err := run(s.ctx)
			if err != nil {
				s.logger.Error("Scheduled job failed", "job", name, "error", err)

				return
			}

			s.logger.Debug("Scheduled job completed", "job", name, "processed", count)
		})
		if err != nil {
			return fmt.Errorf("failed to schedule %s job: %w", name, err)
		}

		s.logger.Info("Scheduled job registered", "job", name, "schedule", job.schedule)
	}

	s.cron.Start()
	s.logger.Info("Scheduler started")

	return nil
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}

	stopCtx := s.cron.Stop()
	<-stopCtx.Done()

	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) runEscalation(ctx context.Context) (int, error) {
	if s.escalation == nil {
		return 0, nil
	}

	return s.escalation.CheckSLABreaches(ctx)
}

func (s *Scheduler) runReminders(ctx context.Context) (int, error) {
	if s.reminders == nil {
		return 0, nil
	}

	return s.reminders.ProcessDue(ctx)
}

func (s *Scheduler) runNotifications(ctx context.Context) (int, error) {
	if s.notifications == nil {
		return 0, nil
	}

	return s.notifications.SendPending(ctx)
}
