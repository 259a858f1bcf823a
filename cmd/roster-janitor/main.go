// roster-janitor runs the periodic maintenance jobs: it deletes tokens that
// have been expired or revoked longer than the token retention window, and
// prunes audit events older than the audit retention window.
//
// It shares the ROSTER_* configuration with the API server. Pass -run-once to
// execute a single sweep and exit, for use as a Kubernetes CronJob.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/zuristack/roster/pkg/audit"
	"github.com/zuristack/roster/pkg/config"
	"github.com/zuristack/roster/pkg/storage/postgres"
)

func main() {
	runOnce := flag.Bool("run-once", false, "run one maintenance sweep and exit")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	if *runOnce {
		cfg.Janitor.RunOnce = true
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, postgres.ConnectionConfig{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	janitor := &janitor{
		tokens:         postgres.NewTokenStore(db),
		trail:          audit.NewDBRecorder(db),
		tokenRetention: cfg.Janitor.TokenRetention,
		auditRetention: cfg.Janitor.AuditRetention,
		log:            log,
	}

	if cfg.Janitor.RunOnce {
		janitor.sweep(ctx)
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.Janitor.Schedule, func() { janitor.sweep(ctx) }); err != nil {
		log.WithError(err).WithField("schedule", cfg.Janitor.Schedule).Fatal("invalid janitor schedule")
	}

	log.WithField("schedule", cfg.Janitor.Schedule).Info("janitor started")
	c.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down janitor")
	cancel()
	<-c.Stop().Done()
}

type janitor struct {
	tokens         *postgres.TokenStore
	trail          *audit.DBRecorder
	tokenRetention time.Duration
	auditRetention time.Duration
	log            *logrus.Logger
}

// sweep runs both jobs; each job's failure is logged but does not stop the
// other.
func (j *janitor) sweep(ctx context.Context) {
	now := time.Now().UTC()

	deleted, err := j.tokens.DeleteExpired(ctx, now.Add(-j.tokenRetention))
	if err != nil {
		j.log.WithError(err).Error("token cleanup failed")
	} else {
		j.log.WithField("deleted", deleted).Info("token cleanup complete")
	}

	pruned, err := j.trail.Cleanup(ctx, now.Add(-j.auditRetention))
	if err != nil {
		j.log.WithError(err).Error("audit cleanup failed")
	} else {
		j.log.WithField("pruned", pruned).Info("audit cleanup complete")
	}
}
