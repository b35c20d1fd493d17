// Package exports accepts playlist export requests and turns them into queued
// jobs. Delivery happens later in the worker process.
package exports

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"playlist-exporter/internal/apperr"
	"playlist-exporter/internal/models"
	"playlist-exporter/internal/ratelimit"
	"playlist-exporter/internal/telemetry"
	"playlist-exporter/internal/validate"
)

// QueueName is the durable queue dedicated to playlist exports.
const QueueName = "export:playlist"

// Request is the client payload of an export.
type Request struct {
	TargetEmail string `json:"targetEmail" validate:"required,email"`
}

// Authorizer is the access check an export needs.
type Authorizer interface {
	RequireAccess(ctx context.Context, playlistID, userID string) error
}

// Publisher hands a message to the broker.
type Publisher interface {
	Publish(ctx context.Context, queueName string, body []byte) error
}

// Limiter throttles export requests per caller. It may be nil.
type Limiter interface {
	Allow(ctx context.Context, key string) (ratelimit.Decision, error)
}

// Gateway validates, authorizes and enqueues export requests.
type Gateway struct {
	guard     Authorizer
	publisher Publisher
	limiter   Limiter
	log       logrus.FieldLogger
}

func NewGateway(guard Authorizer, publisher Publisher, limiter Limiter, log logrus.FieldLogger) *Gateway {
	return &Gateway{guard: guard, publisher: publisher, limiter: limiter, log: log}
}

// Request enqueues an export of playlistID for an already authenticated
// caller. A nil error means the job is durably queued, not that it was sent.
func (g *Gateway) Request(ctx context.Context, callerID, playlistID string, req Request) error {
	err := g.request(ctx, callerID, playlistID, req)
	telemetry.ExportRequests.WithLabelValues(outcome(err)).Inc()
	return err
}

func (g *Gateway) request(ctx context.Context, callerID, playlistID string, req Request) error {
	if callerID == "" {
		return apperr.Authentication("missing authentication")
	}
	if err := validate.Struct(req); err != nil {
		return err
	}
	if err := g.guard.RequireAccess(ctx, playlistID, callerID); err != nil {
		return err
	}
	if g.limiter != nil {
		decision, err := g.limiter.Allow(ctx, callerID)
		if err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
		if !decision.Allowed {
			telemetry.RateLimitRejects.Inc()
			return apperr.RateLimited("too many export requests, try again later")
		}
	}

	body, err := EncodeJob(models.ExportJob{PlaylistID: playlistID, TargetEmail: req.TargetEmail})
	if err != nil {
		return err
	}
	if err := g.publisher.Publish(ctx, QueueName, body); err != nil {
		return apperr.Transport("publish export job", err)
	}
	telemetry.ExportsPublished.Inc()
	g.log.WithFields(logrus.Fields{"playlist_id": playlistID, "user_id": callerID}).Info("export queued")
	return nil
}

func outcome(err error) string {
	if err == nil {
		return "queued"
	}
	return apperr.KindOf(err).String()
}

// EncodeJob renders the wire format {"playlistId","targetEmail"}.
func EncodeJob(job models.ExportJob) ([]byte, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encode export job: %w", err)
	}
	return body, nil
}

// DecodeJob parses a queued message. Both fields must be present.
func DecodeJob(body []byte) (models.ExportJob, error) {
	var job models.ExportJob
	if err := json.Unmarshal(body, &job); err != nil {
		return models.ExportJob{}, apperr.Wrap(apperr.KindValidation, "malformed export job", err)
	}
	if job.PlaylistID == "" || job.TargetEmail == "" {
		return models.ExportJob{}, apperr.Validation("export job is missing playlistId or targetEmail")
	}
	return job, nil
}
