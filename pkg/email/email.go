// Package email delivers batches of rendered messages through Postmark, an
// SMTP relay or, in development, the local filesystem.
package email

import (
	"context"
	"fmt"
	"net/mail"
	"time"
)

// Message is one rendered email addressed to a single recipient.
type Message struct {
	To       string            `json:"to"`
	Name     string            `json:"name,omitempty"`
	Subject  string            `json:"subject"`
	BodyHTML string            `json:"body_html,omitempty"`
	BodyText string            `json:"body_text,omitempty"`
	Tag      string            `json:"tag,omitempty"`
	SendAt   time.Time         `json:"send_at"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Validate checks the fields every provider needs.
func (m Message) Validate() error {
	if _, err := mail.ParseAddress(m.To); err != nil {
		return fmt.Errorf("%w: recipient %q: %v", ErrInvalidMessage, m.To, err)
	}
	if m.Subject == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidMessage)
	}
	if m.BodyHTML == "" && m.BodyText == "" {
		return fmt.Errorf("%w: body is required", ErrInvalidMessage)
	}
	return nil
}

// Result reports the outcome for one message of a batch. Err is set when the
// provider accepted the call but rejected this message.
type Result struct {
	To        string
	MessageID string
	Err       error
}

// Sender delivers a batch in a single provider call. An error return means
// the call as a whole failed and nothing can be assumed delivered.
type Sender interface {
	Send(ctx context.Context, msgs []Message) ([]Result, error)
	// MaxBatchSize is the provider's hard cap on messages per call.
	MaxBatchSize() int
}

// New returns the sender selected by cfg.Provider.
func New(cfg Config) (Sender, error) {
	switch cfg.Provider {
	case ProviderPostmark:
		return NewPostmarkSender(cfg)
	case ProviderSMTP:
		return NewSMTPSender(cfg)
	case ProviderDev, "":
		return NewDevSender(cfg.DevDir), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

func validateBatch(msgs []Message, limit int) error {
	if len(msgs) > limit {
		return fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(msgs), limit)
	}
	for _, m := range msgs {
		if err := m.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func validateSender(cfg Config) error {
	if cfg.SenderEmail == "" {
		return fmt.Errorf("%w: SenderEmail is required", ErrInvalidConfig)
	}
	if _, err := mail.ParseAddress(cfg.SenderEmail); err != nil {
		return fmt.Errorf("%w: SenderEmail must be a valid email address", ErrInvalidConfig)
	}
	return nil
}
