package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"reliefdesk/internal/config"
	"reliefdesk/internal/database"
	"reliefdesk/internal/domain/directory"
	"reliefdesk/internal/domain/notification"
	jwtsvc "reliefdesk/internal/pkg/jwt"
	applog "reliefdesk/internal/pkg/logger"
)

var seedUsers = []directory.User{
	{Name: "Portal Admin", Email: "admin@reliefdesk.local", Role: directory.RoleAdmin, Active: true},
	{Name: "District Coordinator", Email: "coordinator@reliefdesk.local", Role: directory.RoleCoordinator, Active: true},
	{Name: "Field Officer North", Email: "officer.north@reliefdesk.local", Role: directory.RoleFieldOfficer, Active: true},
	{Name: "Field Officer South", Email: "officer.south@reliefdesk.local", Role: directory.RoleFieldOfficer, Active: true},
	{Name: "Village Reporter", Email: "reporter@reliefdesk.local", Role: directory.RoleReporter, Active: true},
	{Name: "Retired Officer", Email: "retired@reliefdesk.local", Role: directory.RoleFieldOfficer, Active: false},
}

func main() {
	reset := flag.Bool("reset", false, "delete existing notifications and users first")
	tokens := flag.Bool("tokens", true, "print a development access token per user")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := applog.New(cfg.AppEnv, cfg.LogLevel)
	if config.IsProdLike(cfg.AppEnv) {
		log.Fatal("refusing to seed a production database")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("db connect failed")
	}

	log.Info("running auto migrate")
	if err := db.AutoMigrate(append([]any{&directory.User{}}, notification.Models()...)...); err != nil {
		log.WithError(err).Fatal("auto migrate failed")
	}

	if *reset {
		log.Info("cleaning old data")
		if err := db.Transaction(func(tx *gorm.DB) error {
			for _, table := range []string{"notification_recipients", "notifications", "users"} {
				if err := tx.Exec("DELETE FROM " + table).Error; err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
			log.WithError(err).Fatal("cleanup failed")
		}
	}

	stored, err := directory.NewUserRepository(db).Upsert(context.Background(), seedUsers)
	if err != nil {
		log.WithError(err).Fatal("seed users failed")
	}
	log.WithField("users", len(stored)).Info("seed completed")

	if !*tokens {
		return
	}
	j := jwtsvc.New(cfg.JWTSecret, 30*24*time.Hour, jwtsvc.WithIssuer(cfg.JWTIssuer))
	for _, u := range stored {
		if !u.Active {
			continue
		}
		tok, err := j.GenerateToken(u.ID, string(u.Role))
		if err != nil {
			log.WithError(err).Fatal("issue token")
		}
		fmt.Printf("%-32s %-14s %s\n", u.Email, u.Role, tok)
	}
}
