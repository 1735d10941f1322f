package delivery

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v4"

	"github.com/prytaneum/townhall-notifier/pkg/jwt"
)

const (
	DefaultBatchCap = 1000
	DefaultTokenTTL = 7 * 24 * time.Hour

	AudienceInvite      = "invite"
	AudienceUnsubscribe = "unsubscribe"
)

// TokenSigner turns link claims into a signed token.
type TokenSigner interface {
	Sign(claims jwt.Claims) (string, error)
}

// Target identifies what the links in a batch point at.
type Target struct {
	EventID string
	Region  string
}

// RecipientVars are the per-recipient substitution values of a batch.
type RecipientVars struct {
	Recipient
	InviteToken      string
	UnsubscribeToken string
	InviteLink       string
	UnsubscribeLink  string
}

// Batch is an ordered slice of recipients sent in one provider call.
type Batch struct {
	Index      int
	Recipients []RecipientVars
}

func (b Batch) Len() int { return len(b.Recipients) }

// Emails returns the batch addresses in order.
func (b Batch) Emails() []string {
	out := make([]string, len(b.Recipients))
	for i, r := range b.Recipients {
		out[i] = r.Email
	}
	return out
}

// Partition splits recipients into contiguous chunks of at most size
// recipients. Concatenating the chunks reproduces the input.
func Partition(recipients []Recipient, size int) ([][]Recipient, error) {
	if size <= 0 {
		return nil, ErrInvalidCap
	}
	chunks := make([][]Recipient, 0, (len(recipients)+size-1)/size)
	for start := 0; start < len(recipients); start += size {
		end := min(start+size, len(recipients))
		chunks = append(chunks, recipients[start:end:end])
	}
	return chunks, nil
}

// BatcherConfig is read from the environment.
type BatcherConfig struct {
	Cap      int           `env:"BATCH_CAP" envDefault:"1000"`
	Origin   string        `env:"ORIGIN" envDefault:"http://localhost:3000"`
	TokenTTL time.Duration `env:"LINK_TOKEN_TTL" envDefault:"168h"`
}

// Batcher partitions recipients and derives the signed links for each one.
type Batcher struct {
	signer TokenSigner
	cap    int
	origin string
	ttl    time.Duration
	now    func() time.Time
}

type BatcherOption func(*Batcher)

func WithBatcherClock(now func() time.Time) BatcherOption {
	return func(b *Batcher) {
		if now != nil {
			b.now = now
		}
	}
}

func NewBatcher(signer TokenSigner, cfg BatcherConfig, opts ...BatcherOption) (*Batcher, error) {
	if signer == nil {
		return nil, ErrMissingSigner
	}
	b := &Batcher{
		signer: signer,
		cap:    cfg.Cap,
		origin: strings.TrimRight(cfg.Origin, "/"),
		ttl:    cfg.TokenTTL,
		now:    time.Now,
	}
	if b.cap <= 0 {
		b.cap = DefaultBatchCap
	}
	if b.ttl <= 0 {
		b.ttl = DefaultTokenTTL
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Cap is the configured recipients-per-batch ceiling.
func (b *Batcher) Cap() int { return b.cap }

// Build partitions recipients into batches of at most limit recipients
// (the configured cap when limit is not positive) and signs the links of
// every recipient.
func (b *Batcher) Build(recipients []Recipient, target Target, limit int) ([]Batch, error) {
	if limit <= 0 {
		limit = b.cap
	}
	chunks, err := Partition(recipients, limit)
	if err != nil {
		return nil, err
	}

	issued := b.now()
	batches := make([]Batch, len(chunks))
	for i, chunk := range chunks {
		vars := make([]RecipientVars, len(chunk))
		for j, r := range chunk {
			v, err := b.vars(r, target, issued)
			if err != nil {
				return nil, err
			}
			vars[j] = v
		}
		batches[i] = Batch{Index: i, Recipients: vars}
	}
	return batches, nil
}

func (b *Batcher) vars(r Recipient, target Target, issued time.Time) (RecipientVars, error) {
	invite, err := b.sign(r, target, AudienceInvite, issued)
	if err != nil {
		return RecipientVars{}, err
	}
	unsub, err := b.sign(r, target, AudienceUnsubscribe, issued)
	if err != nil {
		return RecipientVars{}, err
	}
	return RecipientVars{
		Recipient:        r,
		InviteToken:      invite,
		UnsubscribeToken: unsub,
		InviteLink:       b.origin + "/invited/" + url.PathEscape(invite),
		UnsubscribeLink:  b.origin + "/unsubscribe/" + url.PathEscape(unsub),
	}, nil
}

func (b *Batcher) sign(r Recipient, target Target, audience string, issued time.Time) (string, error) {
	token, err := b.signer.Sign(jwt.Claims{
		EventID: target.EventID,
		Region:  target.Region,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   r.ID(),
			Audience:  jwtlib.ClaimStrings{audience},
			IssuedAt:  jwtlib.NewNumericDate(issued),
			ExpiresAt: jwtlib.NewNumericDate(issued.Add(b.ttl)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("delivery: sign %s token: %w", audience, err)
	}
	return token, nil
}
