package delivery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/a-h/templ"

	"github.com/prytaneum/townhall-notifier/pkg/email"
	"github.com/prytaneum/townhall-notifier/pkg/email/templates"
)

// Kind selects the body a Template renders.
type Kind string

const (
	KindInvite       Kind = "invite"
	KindNotification Kind = "notification"
)

const (
	InviteSubject       = "Prytaneum Town Hall Invite"
	NotificationSubject = "Prytaneum Notification"
)

// Event holds the values shared by every recipient of an invite.
type Event struct {
	MoC              string `json:"MoC"`
	Topic            string `json:"topic"`
	EventDateTime    string `json:"eventDateTime"`
	ConstituentScope string `json:"constituentScope"`
}

// Template is a message template bound to its job-wide values. Render fills
// in the per-recipient values.
type Template struct {
	Kind    Kind
	Subject string
	Event   Event
	Note    string
}

func InviteTemplate(ev Event) Template {
	return Template{Kind: KindInvite, Subject: InviteSubject, Event: ev}
}

// NotificationTemplate announces an upcoming town hall to subscribers.
func NotificationTemplate(date time.Time) Template {
	return Template{
		Kind:    KindNotification,
		Subject: NotificationSubject,
		Note:    "A town hall in your region is scheduled for " + date.UTC().Format("Monday, January 2, 2006 at 15:04 MST") + ".",
	}
}

// Render produces the message for one recipient.
func (t Template) Render(ctx context.Context, v RecipientVars, sendAt time.Time) (email.Message, error) {
	html, err := templates.Render(ctx, t.component(v))
	if err != nil {
		return email.Message{}, fmt.Errorf("delivery: render %s: %w", t.Kind, err)
	}
	return email.Message{
		To:       v.Email,
		Name:     v.DisplayName(),
		Subject:  t.Subject,
		BodyHTML: html,
		BodyText: t.text(v),
		Tag:      string(t.Kind),
		SendAt:   sendAt,
		Metadata: map[string]string{"recipient_id": v.ID()},
	}, nil
}

func (t Template) paragraphs() []string {
	if t.Kind == KindInvite {
		e := t.Event
		return []string{
			fmt.Sprintf("Your Member of Congress, %s, will be participating in an online Deliberative Townhall on %s at %s.", e.MoC, e.Topic, e.EventDateTime),
			fmt.Sprintf("All %s constituents are invited to attend this event. If you would like to participate, please register here:", e.ConstituentScope),
		}
	}
	return []string{t.Note}
}

func (t Template) text(v RecipientVars) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Dear %s,\n\n", v.Greeting())
	for _, p := range t.paragraphs() {
		sb.WriteString(p)
		sb.WriteString("\n\n")
	}
	if t.Kind == KindInvite {
		sb.WriteString(v.InviteLink + "\n\n")
	}
	sb.WriteString("Don't want emails from Prytaneum?\n")
	sb.WriteString(v.UnsubscribeLink + "\n")
	return sb.String()
}

func (t Template) component(v RecipientVars) templ.Component {
	data := templates.MessageData{
		Greeting:       v.Greeting(),
		Paragraphs:     t.paragraphs(),
		UnsubscribeURL: v.UnsubscribeLink,
	}
	if t.Kind == KindInvite {
		data.ActionURL = v.InviteLink
		data.ActionLabel = "Register for the town hall"
	}
	return templates.Message(data)
}
