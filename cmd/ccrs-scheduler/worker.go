package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ccrs/workflow-engine/pkg/escalation"
	"github.com/ccrs/workflow-engine/pkg/eventbus"
	"github.com/ccrs/workflow-engine/pkg/models"
	"github.com/ccrs/workflow-engine/pkg/notification"
	"github.com/ccrs/workflow-engine/pkg/persistence"
	"github.com/ccrs/workflow-engine/pkg/reminder"
	"github.com/ccrs/workflow-engine/pkg/scheduler"
)

const (
	teamsQueue    = "ccrs:notifications:teams"
	calendarQueue = "ccrs:notifications:calendar"
)

// WorkerSchedules carries cron expression overrides for the periodic jobs.
// Empty fields fall back to the scheduler package defaults.
type WorkerSchedules struct {
	Escalation   string
	Reminder     string
	Notification string
}

// Worker hosts the periodic jobs: the SLA breach scan, the reminder
// dispatch and the notification delivery.
type Worker struct {
	id          string
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	redisURL    string
	schedules   WorkerSchedules
	logger      *slog.Logger
	scheduler   *scheduler.Scheduler
}

// NewWorker creates a new Worker instance.
func NewWorker(
	id string,
	p persistence.Persistence,
	eventBus eventbus.EventBus,
	redisURL string,
	schedules WorkerSchedules,
	logger *slog.Logger,
) *Worker {
	return &Worker{
		id:          id,
		persistence: p,
		eventBus:    eventBus,
		redisURL:    redisURL,
		schedules:   schedules,
		logger:      logger.With("module", "worker"),
	}
}

// Start wires the jobs, starts the cron scheduler and blocks until the
// context is cancelled or a termination signal arrives.
func (w *Worker) Start(ctx context.Context) {
	wCtx, cancel := context.WithCancel(ctx)

	w.logger.Info("Starting worker")

	w.handleSignals(cancel)
	w.run(wCtx)
}

// handleSignals sets up signal handling for graceful shutdown.
func (w *Worker) handleSignals(cancel context.CancelFunc) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-signals
		w.logger.Info("Received signal", "signal", sig)
		w.logger.Info("Shutting down gracefully...")
		w.stop(cancel)
	}()
}

func (w *Worker) run(ctx context.Context) {
	scanner := escalation.NewScanner(w.persistence, w.eventBus, w.logger)
	dispatcher := reminder.NewDispatcher(w.persistence, w.eventBus, w.logger)
	deliverer := w.buildDeliverer()

	w.scheduler = scheduler.NewScheduler(scanner, dispatcher, deliverer, scheduler.Config{
		EscalationSchedule:   w.schedules.Escalation,
		ReminderSchedule:     w.schedules.Reminder,
		NotificationSchedule: w.schedules.Notification,
	}, w.logger)

	if err := w.scheduler.Start(ctx); err != nil {
		w.logger.Error("Failed to start scheduler", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	w.logger.Info("Worker context cancelled, stopping...")
}

// buildDeliverer creates the notification deliverer. With a Redis URL
// configured, Teams and calendar notifications are pushed onto Redis
// lists for the external delivery workers; email stays on the default
// transport.
func (w *Worker) buildDeliverer() *notification.Deliverer {
	deliverer := notification.NewDeliverer(w.persistence, w.logger)

	if w.redisURL == "" {
		return deliverer
	}

	for channel, queue := range map[models.Channel]string{
		models.ChannelTeams:    teamsQueue,
		models.ChannelCalendar: calendarQueue,
	} {
		transport, err := notification.NewQueueTransport(w.redisURL, queue, w.logger)
		if err != nil {
			w.logger.Error("Failed to create queue transport, falling back to log transport",
				"channel", channel, "error", err)

			continue
		}

		deliverer.WithTransport(channel, transport)
	}

	return deliverer
}

func (w *Worker) stop(cancel context.CancelFunc) {
	if w.scheduler != nil {
		w.scheduler.Stop()
	}

	cancel()
}
