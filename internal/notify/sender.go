// Package notify delivers rendered exports to an external address.
package notify

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Sender is the outbound transport. Implementations do not retry; failures
// are reported as apperr Transport errors.
type Sender interface {
	Send(ctx context.Context, to string, content []byte) error
}

// LogSender writes exports to the log instead of sending them. It is used when
// no SMTP relay is configured.
type LogSender struct {
	log logrus.FieldLogger
}

func NewLogSender(log logrus.FieldLogger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, to string, content []byte) error {
	s.log.WithFields(logrus.Fields{"to": to, "bytes": len(content)}).Info("export delivered to log sender")
	return nil
}
