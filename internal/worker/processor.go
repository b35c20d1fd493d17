package worker

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"playlist-exporter/internal/apperr"
	"playlist-exporter/internal/archive"
	"playlist-exporter/internal/config"
	"playlist-exporter/internal/exports"
	"playlist-exporter/internal/models"
	"playlist-exporter/internal/notify"
	"playlist-exporter/internal/queue"
	"playlist-exporter/internal/snapshot"
	"playlist-exporter/internal/telemetry"
)

// Consumer is the broker side the worker reads from.
type Consumer interface {
	Consume(ctx context.Context, queueName string, handler queue.Handler) error
}

// SnapshotReader loads the current state of a playlist.
type SnapshotReader interface {
	Read(ctx context.Context, playlistID string) (models.PlaylistSnapshot, error)
}

// Processor drives the export worker loop.
type Processor struct {
	cfg      config.Config
	consumer Consumer
	reader   SnapshotReader
	sender   notify.Sender
	archive  archive.Store
	log      logrus.FieldLogger
	workerID string
}

func NewProcessor(cfg config.Config, consumer Consumer, reader SnapshotReader, sender notify.Sender, log logrus.FieldLogger) *Processor {
	return NewProcessorWithID(cfg, consumer, reader, sender, log, "")
}

// NewProcessorWithID creates a processor with a specific worker ID for tracking.
func NewProcessorWithID(cfg config.Config, consumer Consumer, reader SnapshotReader, sender notify.Sender, log logrus.FieldLogger, workerID string) *Processor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if workerID != "" {
		log = log.WithField("worker_id", workerID)
	}
	return &Processor{
		cfg:      cfg,
		consumer: consumer,
		reader:   reader,
		sender:   sender,
		log:      log,
		workerID: workerID,
	}
}

// WithArchive keeps a copy of every delivered export in store.
func (p *Processor) WithArchive(store archive.Store) *Processor {
	p.archive = store
	return p
}

// Run consumes export jobs until context cancellation.
func (p *Processor) Run(ctx context.Context) error {
	p.log.WithField("ack_policy", p.cfg.AckPolicy).Info("export worker consuming " + exports.QueueName)
	return p.consumer.Consume(ctx, exports.QueueName, p.Handle)
}

// Handle processes one delivery and always settles it.
func (p *Processor) Handle(ctx context.Context, d *queue.Delivery) {
	log := p.log.WithFields(logrus.Fields{"tag": d.Tag, "attempt": d.Attempt})
	// Settlement must reach the broker even when the job context expired.
	settleCtx := context.WithoutCancel(ctx)

	job, err := exports.DecodeJob(d.Body)
	if err != nil {
		telemetry.WorkerFailures.WithLabelValues("parse").Inc()
		log.WithError(err).Warn("dropping unparseable export job")
		p.settle(settleCtx, log, d, err, true)
		return
	}
	log = log.WithField("playlist_id", job.PlaylistID)

	err = p.export(ctx, log, job)
	if err == nil {
		telemetry.WorkerSuccess.Inc()
		log.Info("export sent")
	}
	if err != nil && ctx.Err() != nil {
		// Shutdown cut the export short; requeue it under either ack policy.
		log.WithError(err).Warn("export interrupted, requeueing")
		if err := d.Nack(settleCtx, 0); err != nil && !errors.Is(err, queue.ErrAlreadySettled) {
			log.WithError(err).Error("requeue interrupted export")
		}
		return
	}
	p.settle(settleCtx, log, d, err, apperr.Is(err, apperr.KindNotFound))
}

func (p *Processor) export(ctx context.Context, log logrus.FieldLogger, job models.ExportJob) error {
	if p.cfg.ExportSendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.ExportSendTimeout)
		defer cancel()
	}

	snap, err := p.reader.Read(ctx, job.PlaylistID)
	if err != nil {
		telemetry.WorkerFailures.WithLabelValues("read").Inc()
		log.WithError(err).Error("read playlist snapshot")
		return err
	}
	content, err := snapshot.Render(snap)
	if err != nil {
		telemetry.WorkerFailures.WithLabelValues("render").Inc()
		log.WithError(err).Error("render playlist snapshot")
		return err
	}
	if err := p.sender.Send(ctx, job.TargetEmail, content); err != nil {
		telemetry.WorkerFailures.WithLabelValues("send").Inc()
		log.WithError(err).Error("send export")
		return err
	}

	if p.archive != nil {
		key := archive.Key(job.PlaylistID, time.Now())
		if loc, err := p.archive.Put(ctx, key, content, "application/json"); err != nil {
			log.WithError(err).Warn("archive export")
		} else {
			log.WithField("location", loc).Debug("export archived")
		}
	}
	return nil
}

// settle acknowledges, retries or dead-letters d according to the ack policy.
// Under the always policy every outcome is acknowledged and failures are
// only logged.
func (p *Processor) settle(ctx context.Context, log logrus.FieldLogger, d *queue.Delivery, cause error, permanent bool) {
	var err error
	switch {
	case cause == nil || permanent || p.cfg.AckPolicy != config.AckRetry:
		err = d.Ack(ctx)
	case d.Attempt >= p.maxAttempts():
		err = d.DeadLetter(ctx, cause.Error())
		if err == nil {
			telemetry.WorkerDeadLetter.Inc()
			log.WithError(cause).Warn("export moved to dead letter")
		}
	default:
		delay := backoffWithJitter(p.cfg.BackoffInitial, p.cfg.BackoffMax, d.Attempt)
		err = d.Nack(ctx, delay)
		if err == nil {
			telemetry.WorkerRequeued.Inc()
			log.WithField("retry_in", delay.String()).Info("export scheduled for retry")
		}
	}
	if err != nil && !errors.Is(err, queue.ErrAlreadySettled) {
		log.WithError(err).Error("settle delivery")
	}
}

func (p *Processor) maxAttempts() int {
	if p.cfg.MaxAttempts <= 0 {
		return 1
	}
	return p.cfg.MaxAttempts
}

func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt <= 0 {
		return base
	}
	exp := float64(base) * math.Pow(2, float64(attempt-1))
	wait := time.Duration(exp)
	if wait > max {
		wait = max
	}
	if wait < 2 {
		return wait
	}
	jitter := time.Duration(rand.Int63n(int64(wait / 2)))
	return wait/2 + jitter
}
