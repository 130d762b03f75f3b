// Package main provides the CCRS background job runner: SLA escalation
// scanning, reminder dispatch and notification delivery.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/ccrs/workflow-engine/pkg/cmd"
	"github.com/ccrs/workflow-engine/pkg/log"
)

func main() {
	command := &cli.Command{
		Name:                  "ccrs-scheduler",
		Usage:                 "Start the CCRS background job scheduler",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "scheduler-id",
				Aliases: []string{"id"},
				Usage:   "Custom scheduler ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("SCHEDULER_ID"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL for persistence",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for queueing notifications to external senders",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "escalation-schedule",
				Usage:   "Cron expression for the SLA breach scan",
				Sources: cli.EnvVars("ESCALATION_SCHEDULE"),
			},
			&cli.StringFlag{
				Name:    "reminder-schedule",
				Usage:   "Cron expression for the reminder dispatch",
				Sources: cli.EnvVars("REMINDER_SCHEDULE"),
			},
			&cli.StringFlag{
				Name:    "notification-schedule",
				Usage:   "Cron expression for the notification delivery",
				Sources: cli.EnvVars("NOTIFICATION_SCHEDULE"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup("ccrs-scheduler", command.String("log-level"))

			schedulerID := command.String("scheduler-id")
			if schedulerID == "" {
				schedulerID = fmt.Sprintf("scheduler-%s", uuid.New().String()[:8])
			}

			logger := log.WithModule("ccrs-scheduler").With("scheduler_id", schedulerID)

			logger.InfoContext(ctx, "Initializing CCRS scheduler", "scheduler_id", schedulerID)

			eventBus := cmd.NewEventBus(command.String("event-bus"), "ccrs-scheduler", logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			worker := NewWorker(
				schedulerID,
				persistence,
				eventBus,
				command.String("redis-url"),
				WorkerSchedules{
					Escalation:   command.String("escalation-schedule"),
					Reminder:     command.String("reminder-schedule"),
					Notification: command.String("notification-schedule"),
				},
				logger,
			)

			worker.Start(ctx)

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
