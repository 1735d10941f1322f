package templates

// MessageData holds the per-recipient values of a Message. ActionURL is
// optional; links failing templ's URL sanitization render as an inert URL.
type MessageData struct {
	Greeting       string
	Paragraphs     []string
	ActionURL      string
	ActionLabel    string
	UnsubscribeURL string
}
