package delivery_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/prytaneum/townhall-notifier/core"
	"github.com/prytaneum/townhall-notifier/pkg/email"
	"github.com/prytaneum/townhall-notifier/pkg/jwt"
	"github.com/prytaneum/townhall-notifier/pkg/retry"
	"github.com/prytaneum/townhall-notifier/svc/delivery"
)

type mockSender struct {
	mock.Mock
	mu    sync.Mutex
	calls [][]string
}

func (m *mockSender) Send(ctx context.Context, msgs []email.Message) ([]email.Result, error) {
	to := make([]string, len(msgs))
	for i, msg := range msgs {
		to[i] = msg.To
	}
	m.mu.Lock()
	m.calls = append(m.calls, to)
	m.mu.Unlock()

	args := m.Called(ctx, to)
	results, _ := args.Get(0).([]email.Result)
	return results, args.Error(1)
}

func (m *mockSender) MaxBatchSize() int {
	return m.Called().Int(0)
}

func (m *mockSender) recorded() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func accepted(to []string) []email.Result {
	out := make([]email.Result, len(to))
	for i, e := range to {
		out[i] = email.Result{To: e, MessageID: "id-" + e}
	}
	return out
}

func emails(n int) []delivery.Recipient {
	out := make([]delivery.Recipient, n)
	for i := range out {
		out[i] = delivery.NewRecipient(fmt.Sprintf("user%d@x.com", i), "", "")
	}
	return out
}

func newSigner(t *testing.T) *jwt.Service {
	t.Helper()
	svc, err := jwt.New(jwt.Config{Secret: "secret", Issuer: "test"})
	require.NoError(t, err)
	return svc
}

func newPipeline(t *testing.T, sender email.Sender, cap int) *delivery.Pipeline {
	t.Helper()
	batcher, err := delivery.NewBatcher(newSigner(t), delivery.BatcherConfig{Cap: cap, Origin: "https://prytaneum.io/"})
	require.NoError(t, err)

	coordinator := retry.New(retry.WithDefaults(retry.Config{MaxAttempts: 2, Interval: time.Millisecond}))
	t.Cleanup(coordinator.Close)

	dispatcher := delivery.NewDispatcher(sender, coordinator, delivery.DispatcherConfig{
		Concurrency:   3,
		MaxAttempts:   2,
		RetryInterval: time.Millisecond,
	})
	return delivery.NewPipeline(batcher, dispatcher, nil)
}

func TestPartition(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct{ length, cap int }{
		{0, 1000}, {1, 1000}, {999, 1000}, {1000, 1000}, {1001, 1000}, {2500, 1000}, {7, 3}, {9, 3}, {5, 1},
	} {
		t.Run(fmt.Sprintf("%d/%d", tc.length, tc.cap), func(t *testing.T) {
			t.Parallel()
			in := emails(tc.length)
			chunks, err := delivery.Partition(in, tc.cap)
			require.NoError(t, err)

			assert.Len(t, chunks, (tc.length+tc.cap-1)/tc.cap)
			var joined []delivery.Recipient
			for _, c := range chunks {
				assert.LessOrEqual(t, len(c), tc.cap)
				assert.NotEmpty(t, c)
				joined = append(joined, c...)
			}
			if tc.length == 0 {
				assert.Empty(t, joined)
				return
			}
			assert.Equal(t, in, joined)
		})
	}

	t.Run("invalid cap", func(t *testing.T) {
		t.Parallel()
		_, err := delivery.Partition(emails(3), 0)
		assert.ErrorIs(t, err, delivery.ErrInvalidCap)
	})
}

func TestFilterUnsubscribed(t *testing.T) {
	t.Parallel()

	candidates := delivery.RecipientsFromEmails([]string{"a@x.com", "B@X.com", " c@x.com ", "b@x.com", "d@x.com"})
	unsubscribed := []string{"A@x.com", "d@x.com", "z@x.com"}

	got := delivery.FilterUnsubscribed(candidates, unsubscribed)

	var out []string
	for _, r := range got {
		out = append(out, r.Email)
	}
	assert.Equal(t, []string{"b@x.com", "c@x.com"}, out)

	excluded := map[string]bool{}
	for _, u := range unsubscribed {
		excluded[delivery.NormalizeEmail(u)] = true
	}
	for _, r := range got {
		assert.False(t, excluded[r.Email], "unsubscribed address %s leaked", r.Email)
	}

	assert.Empty(t, delivery.FilterUnsubscribed(nil, unsubscribed))
	assert.Len(t, delivery.FilterUnsubscribed(candidates, nil), 4)
}

func TestScheduler_ResolveSendTime(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := delivery.NewScheduler(delivery.WithSchedulerClock(func() time.Time { return now }))

	t.Run("absent means now", func(t *testing.T) {
		t.Parallel()
		got, err := s.ResolveSendTime("")
		require.NoError(t, err)
		assert.True(t, got.Equal(now))
	})

	t.Run("future instant is kept", func(t *testing.T) {
		t.Parallel()
		got, err := s.ResolveSendTime("2099-01-01T00:00:00Z")
		require.NoError(t, err)
		assert.True(t, got.Equal(time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)))
	})

	t.Run("offsets are honored", func(t *testing.T) {
		t.Parallel()
		got, err := s.ResolveSendTime("2099-01-01T05:00:00+05:00")
		require.NoError(t, err)
		assert.True(t, got.Equal(time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)))
	})

	t.Run("date only", func(t *testing.T) {
		t.Parallel()
		got, err := s.ResolveSendTime("2099-06-30")
		require.NoError(t, err)
		assert.True(t, got.Equal(time.Date(2099, 6, 30, 0, 0, 0, 0, time.UTC)))
	})

	t.Run("past instant is sent immediately", func(t *testing.T) {
		t.Parallel()
		got, err := s.ResolveSendTime("2001-01-01T00:00:00Z")
		require.NoError(t, err)
		assert.True(t, got.Equal(now))
	})

	t.Run("invalid format", func(t *testing.T) {
		t.Parallel()
		_, err := s.ResolveSendTime("not-a-date")
		require.Error(t, err)
		assert.ErrorIs(t, err, delivery.ErrInvalidFormat)
		ce, ok := core.AsClientError(err)
		require.True(t, ok)
		assert.Equal(t, "Invalid ISO Date format", ce.Message)
	})

	t.Run("real clock", func(t *testing.T) {
		t.Parallel()
		got, err := delivery.NewScheduler().ResolveSendTime("")
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now(), got, time.Second)
	})

	t.Run("due", func(t *testing.T) {
		t.Parallel()
		assert.True(t, s.Due(now))
		assert.False(t, s.Due(now.Add(time.Second)))
	})
}

func TestBatcher_Build(t *testing.T) {
	t.Parallel()

	signer := newSigner(t)
	issued := time.Now().Truncate(time.Second)
	batcher, err := delivery.NewBatcher(signer, delivery.BatcherConfig{Origin: "https://prytaneum.io/"},
		delivery.WithBatcherClock(func() time.Time { return issued }))
	require.NoError(t, err)
	assert.Equal(t, delivery.DefaultBatchCap, batcher.Cap())

	recipients := []delivery.Recipient{delivery.NewRecipient("Ann@X.com", "Ann", "Lee"), delivery.NewRecipient("bo@x.com", "", "")}
	batches, err := batcher.Build(recipients, delivery.Target{EventID: "evt-9", Region: "west"}, 1)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, 0, batches[0].Index)
	assert.Equal(t, 1, batches[1].Index)
	assert.Equal(t, []string{"ann@x.com"}, batches[0].Emails())

	v := batches[0].Recipients[0]
	assert.True(t, strings.HasPrefix(v.InviteLink, "https://prytaneum.io/invited/"))
	assert.True(t, strings.HasPrefix(v.UnsubscribeLink, "https://prytaneum.io/unsubscribe/"))
	assert.NotEqual(t, v.InviteToken, v.UnsubscribeToken)

	invite, err := signer.Parse(v.InviteToken, delivery.AudienceInvite)
	require.NoError(t, err)
	assert.Equal(t, "evt-9", invite.EventID)
	assert.Equal(t, v.ID(), invite.Subject)
	assert.NotContains(t, invite.Subject, "ann", "subject is opaque")
	assert.Equal(t, issued.Add(delivery.DefaultTokenTTL).Unix(), invite.ExpiresAt.Unix())

	_, err = signer.Parse(v.UnsubscribeToken, delivery.AudienceInvite)
	assert.ErrorIs(t, err, jwt.ErrInvalidAudience, "unsubscribe tokens are not valid invites")
	unsub, err := signer.Parse(v.UnsubscribeToken, delivery.AudienceUnsubscribe)
	require.NoError(t, err)
	assert.Equal(t, invite.Subject, unsub.Subject)

	t.Run("empty input", func(t *testing.T) {
		t.Parallel()
		batches, err := batcher.Build(nil, delivery.Target{}, 0)
		require.NoError(t, err)
		assert.Empty(t, batches)
	})

	t.Run("missing signer", func(t *testing.T) {
		t.Parallel()
		_, err := delivery.NewBatcher(nil, delivery.BatcherConfig{})
		assert.ErrorIs(t, err, delivery.ErrMissingSigner)
	})
}

func TestTemplate_Render(t *testing.T) {
	t.Parallel()

	tpl := delivery.InviteTemplate(delivery.Event{
		MoC:              "Rep. <Smith>",
		Topic:            "Healthcare",
		EventDateTime:    "July 4 at 7pm",
		ConstituentScope: "state",
	})
	v := delivery.RecipientVars{
		Recipient:       delivery.NewRecipient("a@x.com", "Ann", ""),
		InviteLink:      "https://p.io/invited/t1",
		UnsubscribeLink: "https://p.io/unsubscribe/t2",
	}
	sendAt := time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)

	msg, err := tpl.Render(context.Background(), v, sendAt)
	require.NoError(t, err)
	require.NoError(t, msg.Validate())
	assert.Equal(t, delivery.InviteSubject, msg.Subject)
	assert.Equal(t, "a@x.com", msg.To)
	assert.Equal(t, sendAt, msg.SendAt)
	assert.Contains(t, msg.BodyHTML, "Dear Ann,")
	assert.Contains(t, msg.BodyHTML, "Rep. &lt;Smith&gt;")
	assert.Contains(t, msg.BodyHTML, "https://p.io/invited/t1")
	assert.Contains(t, msg.BodyText, "https://p.io/unsubscribe/t2")

	note, err := delivery.NotificationTemplate(sendAt).Render(context.Background(), v, sendAt)
	require.NoError(t, err)
	assert.Equal(t, delivery.NotificationSubject, note.Subject)
	assert.NotContains(t, note.BodyHTML, "invited")
	assert.Contains(t, note.BodyHTML, "unsubscribe/t2")
}

func TestPipeline_EndToEnd(t *testing.T) {
	t.Parallel()

	sender := &mockSender{}
	sender.On("MaxBatchSize").Return(1000)
	sender.On("Send", mock.Anything, []string{"b@x.com"}).Return(accepted([]string{"b@x.com"}), nil).Once()

	p := newPipeline(t, sender, delivery.DefaultBatchCap)
	report, err := p.Run(context.Background(), delivery.Request{
		JobID:        "job-west",
		Target:       delivery.Target{Region: "west"},
		Candidates:   delivery.RecipientsFromEmails([]string{"a@x.com", "b@x.com"}),
		Unsubscribed: []string{"a@x.com"},
		Template:     delivery.NotificationTemplate(time.Now()),
		SendAt:       time.Now(),
	})

	require.NoError(t, err)
	assert.Equal(t, 1, report.Batches)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, [][]string{{"b@x.com"}}, sender.recorded())
	sender.AssertExpectations(t)
}

func TestPipeline_EmptyAfterFilter(t *testing.T) {
	t.Parallel()

	sender := &mockSender{}
	p := newPipeline(t, sender, delivery.DefaultBatchCap)

	report, err := p.Run(context.Background(), delivery.Request{
		JobID:        "job-empty",
		Candidates:   delivery.RecipientsFromEmails([]string{"a@x.com"}),
		Unsubscribed: []string{"a@x.com"},
		Template:     delivery.NotificationTemplate(time.Now()),
	})

	require.NoError(t, err)
	assert.Zero(t, report.Batches)
	assert.Empty(t, sender.recorded())
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestPipeline_BatchCapClampedToProvider(t *testing.T) {
	t.Parallel()

	sender := &mockSender{}
	sender.On("MaxBatchSize").Return(2)
	sender.On("Send", mock.Anything, mock.Anything).Return(nil, nil)

	p := newPipeline(t, sender, 1000)
	assert.Equal(t, 2, p.BatchCap())

	report, err := p.Run(context.Background(), delivery.Request{
		JobID:      "job-cap",
		Candidates: emails(5),
		Template:   delivery.NotificationTemplate(time.Now()),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Batches)
	for _, call := range sender.recorded() {
		assert.LessOrEqual(t, len(call), 2)
	}
}

func TestPipeline_BatchFailureIsolation(t *testing.T) {
	t.Parallel()

	sender := &mockSender{}
	sender.On("MaxBatchSize").Return(1000)
	boom := errors.New("provider 503")
	sender.On("Send", mock.Anything, []string{"user2@x.com", "user3@x.com"}).Return(nil, boom)
	sender.On("Send", mock.Anything, mock.Anything).Return(nil, nil)

	p := newPipeline(t, sender, 2)
	report, err := p.Run(context.Background(), delivery.Request{
		JobID:      "job-partial",
		Candidates: emails(6),
		Template:   delivery.NotificationTemplate(time.Now()),
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, delivery.ErrBatchesFailed)
	assert.ErrorIs(t, err, boom)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, 1, report.Failed[0].Index)
	assert.Equal(t, 3, report.Batches)

	var failing int
	for _, call := range sender.recorded() {
		if call[0] == "user2@x.com" {
			failing++
		}
	}
	assert.Equal(t, 2, failing, "the failing batch is retried up to the ceiling")
	assert.Len(t, sender.recorded(), 4, "sibling batches are sent once each")
}

func TestPipeline_RejectedRecipients(t *testing.T) {
	t.Parallel()

	sender := &mockSender{}
	sender.On("MaxBatchSize").Return(1000)
	sender.On("Send", mock.Anything, mock.Anything).Return([]email.Result{
		{To: "user0@x.com", MessageID: "m0"},
		{To: "user1@x.com", Err: email.ErrFailedToSendEmail},
	}, nil)

	p := newPipeline(t, sender, 1000)
	report, err := p.Run(context.Background(), delivery.Request{
		JobID:      "job-rejected",
		Candidates: emails(2),
		Template:   delivery.NotificationTemplate(time.Now()),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	require.Len(t, report.Rejected, 1)
	assert.Equal(t, "user1@x.com", report.Rejected[0].To)
}

func TestPipeline_InvalidAddressDoesNotSinkBatch(t *testing.T) {
	t.Parallel()

	p := newPipeline(t, email.NewDevSender(t.TempDir()), delivery.DefaultBatchCap)
	report, err := p.Run(context.Background(), delivery.Request{
		JobID:      "job-typo",
		Target:     delivery.Target{Region: "west"},
		Candidates: delivery.RecipientsFromEmails([]string{"good@x.com", "not-an-email", "half@domain"}),
		Template:   delivery.NotificationTemplate(time.Now()),
		SendAt:     time.Now(),
	})

	require.NoError(t, err)
	assert.Equal(t, 1, report.Batches)
	assert.Equal(t, 1, report.Sent)
	assert.Empty(t, report.Failed)
	assert.Equal(t, []string{"not-an-email", "half@domain"}, report.Invalid)
}

func TestPipeline_OnlyInvalidAddresses(t *testing.T) {
	t.Parallel()

	sender := &mockSender{}
	p := newPipeline(t, sender, delivery.DefaultBatchCap)
	report, err := p.Run(context.Background(), delivery.Request{
		JobID:      "job-all-typos",
		Candidates: delivery.RecipientsFromEmails([]string{"nope", "@x.com"}),
		Template:   delivery.NotificationTemplate(time.Now()),
	})

	require.NoError(t, err)
	assert.Zero(t, report.Batches)
	assert.Len(t, report.Invalid, 2)
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestSplitValid(t *testing.T) {
	t.Parallel()

	valid, invalid := delivery.SplitValid(delivery.RecipientsFromEmails([]string{
		"a@x.com", "", "b@x", " C@X.COM ", "d@@x.com",
	}))
	require.Len(t, valid, 2)
	assert.Equal(t, "a@x.com", valid[0].Email)
	assert.Equal(t, "c@x.com", valid[1].Email)
	assert.Equal(t, []string{"", "b@x", "d@@x.com"}, invalid)
}

func TestRecipient(t *testing.T) {
	t.Parallel()

	r := delivery.NewRecipient("  Jane.Doe@Example.COM ", " Jane ", "Doe")
	assert.Equal(t, "jane.doe@example.com", r.Email)
	assert.Equal(t, "Jane Doe", r.DisplayName())
	assert.Equal(t, "Jane", r.Greeting())
	assert.Equal(t, delivery.NewRecipient("jane.doe@example.com", "", "").ID(), r.ID())

	anon := delivery.NewRecipient("bob@x.com", "", "")
	assert.Equal(t, "bob", anon.DisplayName())
	assert.Equal(t, "bob", anon.Greeting())
}
