package email

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/gomail.v2"
)

type smtpSender struct {
	dialer *gomail.Dialer
	cfg    Config
	limit  int
}

// NewSMTPSender relays through an SMTP server, one connection per batch.
func NewSMTPSender(cfg Config) (Sender, error) {
	if cfg.SMTPHost == "" {
		return nil, fmt.Errorf("%w: SMTPHost is required", ErrInvalidConfig)
	}
	if err := validateSender(cfg); err != nil {
		return nil, err
	}
	limit := cfg.SMTPBatchSize
	if limit <= 0 {
		limit = 1000
	}
	return &smtpSender{
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword),
		cfg:    cfg,
		limit:  limit,
	}, nil
}

func (s *smtpSender) MaxBatchSize() int { return s.limit }

func (s *smtpSender) Send(ctx context.Context, msgs []Message) ([]Result, error) {
	if err := validateBatch(msgs, s.limit); err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}

	conn, err := s.dialer.Dial()
	if err != nil {
		return nil, errors.Join(ErrFailedToSendEmail, err)
	}
	defer conn.Close()

	results := make([]Result, len(msgs))
	for i, m := range msgs {
		results[i] = Result{To: m.To}
		if err := ctx.Err(); err != nil {
			results[i].Err = err
			continue
		}
		if err := gomail.Send(conn, s.compose(m)); err != nil {
			results[i].Err = errors.Join(ErrFailedToSendEmail, err)
		}
	}
	return results, nil
}

func (s *smtpSender) compose(m Message) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", s.cfg.SenderEmail, s.cfg.SenderName)
	if m.Name != "" {
		msg.SetAddressHeader("To", m.To, m.Name)
	} else {
		msg.SetHeader("To", m.To)
	}
	if s.cfg.SupportEmail != "" {
		msg.SetHeader("Reply-To", s.cfg.SupportEmail)
	}
	msg.SetHeader("Subject", m.Subject)
	if !m.SendAt.IsZero() {
		msg.SetDateHeader("Date", m.SendAt)
	}
	switch {
	case m.BodyHTML != "" && m.BodyText != "":
		msg.SetBody("text/plain", m.BodyText)
		msg.AddAlternative("text/html", m.BodyHTML)
	case m.BodyHTML != "":
		msg.SetBody("text/html", m.BodyHTML)
	default:
		msg.SetBody("text/plain", m.BodyText)
	}
	return msg
}
