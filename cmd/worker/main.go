package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"playlist-exporter/internal/archive"
	"playlist-exporter/internal/config"
	"playlist-exporter/internal/logging"
	"playlist-exporter/internal/notify"
	"playlist-exporter/internal/queue"
	"playlist-exporter/internal/snapshot"
	"playlist-exporter/internal/store"
	"playlist-exporter/internal/telemetry"
	workerproc "playlist-exporter/internal/worker"
)

func main() {
	cfg := config.Load()
	log := logging.New("worker", cfg.Env, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.WithError(err).Fatal("connect postgres")
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		log.WithError(err).Fatal("migrations")
	}

	redisClient := queue.NewClient(cfg)
	defer redisClient.Close()
	q := queue.NewRedisQueue(redisClient, cfg, log)

	// Generate a unique worker ID from hostname or env var
	workerID := os.Getenv("WORKER_ID")
	if workerID == "" {
		hostname, _ := os.Hostname()
		if hostname != "" {
			workerID = hostname
		} else {
			workerID = fmt.Sprintf("worker-%d", os.Getpid())
		}
	}

	var sender notify.Sender
	if cfg.SMTPHost != "" {
		sender = notify.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.MailFrom)
	} else {
		log.Warn("SMTP_HOST not set, exports will only be logged")
		sender = notify.NewLogSender(log)
	}

	processor := workerproc.NewProcessorWithID(cfg, q, snapshot.NewReader(st), sender, log, workerID)

	archiveStore, err := archive.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("init export archive")
	}
	if archiveStore != nil {
		processor.WithArchive(archiveStore)
	}

	metrics := &http.Server{Addr: cfg.MetricsAddr, Handler: telemetry.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Warn("metrics server stopped")
		}
	}()

	log.WithFields(logrus.Fields{
		"visibility":      cfg.VisibilityTimeout.String(),
		"ack_policy":      cfg.AckPolicy,
		"backoff_initial": cfg.BackoffInitial.String(),
	}).Info("worker started")
	if err := processor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("worker stopped")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = metrics.Shutdown(shutdownCtx)
}
