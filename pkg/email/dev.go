package email

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DevBatchLimit mirrors the default provider cap so batching behaves the same
// locally.
const DevBatchLimit = 1000

// DevSender writes each message to dir as an .html body and a .json envelope
// instead of sending it.
type DevSender struct {
	dir string
}

func NewDevSender(dir string) *DevSender {
	return &DevSender{dir: dir}
}

func (d *DevSender) MaxBatchSize() int { return DevBatchLimit }

func (d *DevSender) Send(_ context.Context, msgs []Message) ([]Result, error) {
	if err := validateBatch(msgs, DevBatchLimit); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create directory: %v", ErrFailedToSendEmail, err)
	}

	stamp := time.Now().Format("2006_01_02_150405")
	results := make([]Result, len(msgs))
	for i, m := range msgs {
		id := uuid.NewString()
		base := filepath.Join(d.dir, fmt.Sprintf("%s_%s_%s", stamp, sanitizeFilename(m.To), id[:8]))
		results[i] = Result{To: m.To, MessageID: id}

		body := m.BodyHTML
		if body == "" {
			body = m.BodyText
		}
		if err := os.WriteFile(base+".html", []byte(body), 0o644); err != nil {
			results[i].Err = fmt.Errorf("%w: write body: %v", ErrFailedToSendEmail, err)
			continue
		}

		envelope := m
		envelope.BodyHTML, envelope.BodyText = "", ""
		data, err := json.MarshalIndent(envelope, "", "  ")
		if err != nil {
			results[i].Err = fmt.Errorf("%w: marshal envelope: %v", ErrFailedToSendEmail, err)
			continue
		}
		if err := os.WriteFile(base+".json", data, 0o644); err != nil {
			results[i].Err = fmt.Errorf("%w: write envelope: %v", ErrFailedToSendEmail, err)
		}
	}
	return results, nil
}

var unsafeFilename = regexp.MustCompile(`[^a-zA-Z0-9\-_.]`)

func sanitizeFilename(s string) string {
	s = unsafeFilename.ReplaceAllString(strings.ReplaceAll(s, "@", "_at_"), "")
	if len(s) > 64 {
		s = s[:64]
	}
	if s == "" {
		s = "email"
	}
	return strings.ToLower(s)
}
