package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/segyhp/loan-platform/internal/config"
	"github.com/segyhp/loan-platform/internal/notify"
	"github.com/segyhp/loan-platform/internal/repository"
	"github.com/segyhp/loan-platform/internal/service"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// a digest run never holds the job longer than this
const runTimeout = 5 * time.Minute

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	logger := cfg.Logging.NewLogger()
	logger.Info("starting overdue digest scheduler")

	db, err := sqlx.Connect(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	var mailer service.DigestMailer
	if cfg.SMTP.Host != "" {
		m, err := notify.NewMailer(notify.SMTPConfig{
			Host:       cfg.SMTP.Host,
			Port:       cfg.SMTP.Port,
			Username:   cfg.SMTP.Username,
			Password:   cfg.SMTP.Password,
			From:       cfg.SMTP.From,
			Recipients: cfg.DigestRecipients(),
		}, logger)
		if err != nil {
			logger.Fatalf("Failed to configure mailer: %v", err)
		}
		mailer = m
	} else {
		logger.Info("SMTP_HOST not set, digests are only logged")
	}

	reporter := service.NewOverdueReporter(repository.NewInstallmentRepository(db), cfg.Scheduler.GraceDays, mailer, logger)

	c := newCron(cfg.Location(), logger)

	if _, err := c.AddFunc(cfg.Scheduler.Spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		if _, err := reporter.Run(ctx); err != nil {
			logger.WithError(err).Error("overdue digest run failed")
		}
	}); err != nil {
		logger.Fatalf("Error scheduling overdue digest job: %v", err)
	}

	c.Start()
	logger.WithFields(logrus.Fields{
		"spec":       cfg.Scheduler.Spec,
		"timezone":   cfg.Scheduler.Timezone,
		"grace_days": cfg.Scheduler.GraceDays,
	}).Info("scheduler started")

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down scheduler")
	<-c.Stop().Done()
	logger.Info("scheduler stopped")
}

// newCron routes the scheduler's own messages through logger. A panicking
// run is logged and the next tick still fires.
func newCron(loc *time.Location, logger *logrus.Logger) *cron.Cron {
	cronLogger := cron.PrintfLogger(logger)
	return cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
}
