package templates_test

import (
	"context"
	"strings"
	"testing"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prytaneum/townhall-notifier/pkg/email/templates"
)

func TestMessage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	html, err := templates.Render(ctx, templates.Message(templates.MessageData{
		Greeting:       "Ann <3",
		Paragraphs:     []string{"First & foremost.", "Second."},
		ActionURL:      "https://p.io/invited/t1?a=1&b=2",
		ActionLabel:    "Register",
		UnsubscribeURL: "https://p.io/unsubscribe/t2",
	}))
	require.NoError(t, err)
	assert.Contains(t, html, "<p>Dear Ann &lt;3,</p>")
	assert.Contains(t, html, "<p>First &amp; foremost.</p><p>Second.</p>")
	assert.Contains(t, html, `<a href="https://p.io/invited/t1?a=1&amp;b=2">Register</a>`)
	assert.Contains(t, html, `<a href="https://p.io/unsubscribe/t2">Unsubscribe</a>`)

	t.Run("without action", func(t *testing.T) {
		t.Parallel()
		html, err := templates.Render(ctx, templates.Message(templates.MessageData{
			Greeting:       "Bob",
			UnsubscribeURL: "https://p.io/unsubscribe/t3",
		}))
		require.NoError(t, err)
		assert.Equal(t, 1, strings.Count(html, "<a "))
	})

	t.Run("unsafe links are neutralized", func(t *testing.T) {
		t.Parallel()
		html, err := templates.Render(ctx, templates.Message(templates.MessageData{
			ActionURL:      "javascript:alert(1)",
			ActionLabel:    "Click",
			UnsubscribeURL: "https://p.io/unsubscribe/t4",
		}))
		require.NoError(t, err)
		assert.NotContains(t, html, "javascript:")
		assert.Contains(t, html, string(templ.FailedSanitizationURL))
	})
}
