package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"reliefdesk/internal/config"
	"reliefdesk/internal/database"
	"reliefdesk/internal/domain/directory"
	"reliefdesk/internal/domain/notification"
	"reliefdesk/internal/ingest"
	jwtsvc "reliefdesk/internal/pkg/jwt"
	applog "reliefdesk/internal/pkg/logger"
	"reliefdesk/internal/realtime"
	"reliefdesk/internal/server"
)

const (
	tokenTTL        = 24 * time.Hour
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := applog.New(cfg.AppEnv, cfg.LogLevel)

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("db connect failed")
	}
	if err := db.AutoMigrate(append([]any{&directory.User{}}, notification.Models()...)...); err != nil {
		log.WithError(err).Fatal("auto migrate failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := realtime.NewRegistry(log)
	broker, err := newBroker(ctx, cfg, registry, log)
	if err != nil {
		log.WithError(err).Fatal("broker init failed")
	}
	if err := broker.Start(ctx); err != nil {
		log.WithError(err).Fatal("broker start failed")
	}

	srv := server.New(server.Deps{
		Config:   cfg,
		DB:       db,
		JWT:      jwtsvc.New(cfg.JWTSecret, tokenTTL, jwtsvc.WithIssuer(cfg.JWTIssuer), jwtsvc.WithLeeway(cfg.JWTLeeway)),
		Registry: registry,
		Broker:   broker,
		Log:      log,
	})

	var consumer *ingest.Consumer
	if cfg.Kafka.Enabled() {
		consumer, err = ingest.NewKafkaConsumer(ingest.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		}, srv.Notifications, log)
		if err != nil {
			log.WithError(err).Fatal("kafka consumer init failed")
		}
		go func() {
			if err := consumer.Run(ctx); err != nil {
				log.WithError(err).Error("incident consumer stopped")
			}
		}()
	}

	httpSrv := srv.HTTPServer(cfg.HTTPAddr)
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("http server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http server shutdown")
	}
	registry.Close()
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			log.WithError(err).Warn("kafka reader close")
		}
	}
	if err := broker.Close(); err != nil {
		log.WithError(err).Warn("broker close")
	}
	log.Info("server stopped")
}

func newBroker(ctx context.Context, cfg *config.Config, registry *realtime.Registry, log logrus.FieldLogger) (realtime.Broker, error) {
	if !cfg.Redis.Enabled() {
		log.Info("push relay: local")
		return realtime.NewLocalBroker(registry), nil
	}
	client, err := realtime.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}
	log.WithField("channel", cfg.Redis.Channel).Info("push relay: redis")
	return realtime.NewRedisBroker(client, cfg.Redis.Channel, registry, log), nil
}
