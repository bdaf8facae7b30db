package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"reliefdesk/internal/config"
	"reliefdesk/internal/database"
	"reliefdesk/internal/domain/notification"
	applog "reliefdesk/internal/pkg/logger"
)

func main() {
	schedule := flag.String("schedule", "", `cron spec to keep running (e.g. "@daily"); empty runs once`)
	batch := flag.Int("batch", notification.DefaultCleanupConfig().BatchSize, "notifications deleted per transaction")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := applog.New(cfg.AppEnv, cfg.LogLevel)

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("db connect failed")
	}

	cleanup := notification.NewCleanupService(notification.NewStore(db), log)
	cleanupCfg := notification.CleanupConfig{RetentionDays: cfg.RetentionDays, BatchSize: *batch}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run := func() {
		deleted, err := cleanup.Run(ctx, cleanupCfg)
		if err != nil {
			log.WithError(err).Error("notification retention failed")
			return
		}
		log.WithFields(logrus.Fields{
			"deleted":        deleted,
			"retention_days": cleanupCfg.RetentionDays,
		}).Info("notification retention completed")
	}

	if *schedule == "" {
		run()
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(*schedule, run); err != nil {
		log.WithError(err).Fatal("invalid schedule")
	}
	c.Start()
	log.WithField("schedule", *schedule).Info("retention scheduler started")

	<-ctx.Done()
	<-c.Stop().Done()
}
