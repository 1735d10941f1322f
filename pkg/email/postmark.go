package email

import (
	"context"
	"errors"
	"fmt"
	"net/mail"

	"github.com/mrz1836/postmark"
)

// PostmarkBatchLimit is the message cap of the batch endpoint.
const PostmarkBatchLimit = 500

type postmarkSender struct {
	client *postmark.Client
	from   string
	cfg    Config
}

// NewPostmarkSender sends through the Postmark batch API.
func NewPostmarkSender(cfg Config, opts ...PostmarkOption) (Sender, error) {
	if cfg.PostmarkServerToken == "" {
		return nil, fmt.Errorf("%w: PostmarkServerToken is required", ErrInvalidConfig)
	}
	if err := validateSender(cfg); err != nil {
		return nil, err
	}
	client := postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken)
	for _, opt := range opts {
		opt(client)
	}
	from := (&mail.Address{Name: cfg.SenderName, Address: cfg.SenderEmail}).String()
	return &postmarkSender{client: client, from: from, cfg: cfg}, nil
}

// PostmarkOption tweaks the underlying API client.
type PostmarkOption func(*postmark.Client)

// WithPostmarkBaseURL points the client at another API root.
func WithPostmarkBaseURL(url string) PostmarkOption {
	return func(c *postmark.Client) { c.BaseURL = url }
}

func (s *postmarkSender) MaxBatchSize() int { return PostmarkBatchLimit }

func (s *postmarkSender) Send(ctx context.Context, msgs []Message) ([]Result, error) {
	if err := validateBatch(msgs, PostmarkBatchLimit); err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}

	batch := make([]postmark.Email, len(msgs))
	for i, m := range msgs {
		to := m.To
		if m.Name != "" {
			to = (&mail.Address{Name: m.Name, Address: m.To}).String()
		}
		batch[i] = postmark.Email{
			From:          s.from,
			ReplyTo:       s.cfg.SupportEmail,
			To:            to,
			Subject:       m.Subject,
			Tag:           m.Tag,
			HTMLBody:      m.BodyHTML,
			TextBody:      m.BodyText,
			Metadata:      m.Metadata,
			MessageStream: s.cfg.PostmarkStream,
			TrackOpens:    true,
			TrackLinks:    "HtmlOnly",
		}
	}

	resp, err := s.client.SendEmailBatch(ctx, batch)
	if err != nil {
		return nil, errors.Join(ErrFailedToSendEmail, err)
	}

	results := make([]Result, len(msgs))
	for i, m := range msgs {
		results[i] = Result{To: m.To}
		if i >= len(resp) {
			results[i].Err = fmt.Errorf("%w: missing response", ErrFailedToSendEmail)
			continue
		}
		results[i].MessageID = resp[i].MessageID
		if resp[i].ErrorCode > 0 {
			results[i].Err = fmt.Errorf("%w: postmark error %d: %s", ErrFailedToSendEmail, resp[i].ErrorCode, resp[i].Message)
		}
	}
	return results, nil
}
