package notify

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"

	"playlist-exporter/internal/apperr"
)

const (
	exportSubject  = "Playlist export"
	exportBody     = "Your playlist export is attached."
	attachmentName = "playlist.json"
)

// SMTPSender mails exports as a JSON attachment through an SMTP relay.
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	from     string
	now      func() time.Time
}

func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	return &SMTPSender{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		now:      time.Now,
	}
}

// Send submits one message. STARTTLS is used when the relay offers it, and
// PLAIN auth when a username is configured. Only ctx bounds the session.
func (s *SMTPSender) Send(ctx context.Context, to string, content []byte) error {
	msg, err := newMessage(s.from, to, content, s.now())
	if err != nil {
		return apperr.Transport("build message", err)
	}
	client, err := mail.NewClient(s.host, s.options()...)
	if err != nil {
		return apperr.Transport("smtp client", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return apperr.Transport("smtp send", err)
	}
	return nil
}

func (s *SMTPSender) options() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(s.port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if s.username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.username),
			mail.WithPassword(s.password),
		)
	}
	return opts
}

// newMessage builds a message with a short text body and content attached as
// playlist.json.
func newMessage(from, to string, content []byte, at time.Time) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	if err := m.To(to); err != nil {
		return nil, fmt.Errorf("to address: %w", err)
	}
	m.Subject(exportSubject)
	m.SetDateWithValue(at.UTC())
	m.SetBodyString(mail.TypeTextPlain, exportBody)
	if err := m.AttachReader(attachmentName, bytes.NewReader(content), mail.WithFileContentType(mail.ContentType("application/json"))); err != nil {
		return nil, fmt.Errorf("attach export: %w", err)
	}
	return m, nil
}
