package delivery

import (
	"strings"

	"github.com/google/uuid"

	"github.com/prytaneum/townhall-notifier/pkg/validator"
)

// Recipient is one addressee of a job. Email is the identity key and is
// always stored normalized.
type Recipient struct {
	Email     string `json:"email"`
	FirstName string `json:"fName,omitempty"`
	LastName  string `json:"lName,omitempty"`
}

func NewRecipient(email, firstName, lastName string) Recipient {
	return Recipient{
		Email:     NormalizeEmail(email),
		FirstName: strings.TrimSpace(firstName),
		LastName:  strings.TrimSpace(lastName),
	}
}

// RecipientsFromEmails builds nameless recipients, as used for subscriber
// lists that only hold addresses.
func RecipientsFromEmails(emails []string) []Recipient {
	out := make([]Recipient, 0, len(emails))
	for _, e := range emails {
		out = append(out, NewRecipient(e, "", ""))
	}
	return out
}

// Valid reports whether Email is an address a provider will accept.
func (r Recipient) Valid() bool {
	return validator.Apply(validator.ValidEmail("email", r.Email)) == nil
}

// SplitValid separates recipients with a deliverable address from the raw
// addresses that have none. Order is preserved.
func SplitValid(recipients []Recipient) (valid []Recipient, invalid []string) {
	valid = make([]Recipient, 0, len(recipients))
	for _, r := range recipients {
		if r.Valid() {
			valid = append(valid, r)
			continue
		}
		invalid = append(invalid, r.Email)
	}
	return valid, invalid
}

// DisplayName falls back to the local part of the address.
func (r Recipient) DisplayName() string {
	if name := strings.TrimSpace(r.FirstName + " " + r.LastName); name != "" {
		return name
	}
	local, _, _ := strings.Cut(r.Email, "@")
	return local
}

// Greeting is the first name, or the display name when no first name is known.
func (r Recipient) Greeting() string {
	if r.FirstName != "" {
		return r.FirstName
	}
	return r.DisplayName()
}

// ID is the opaque identity placed in link tokens: a name-based UUID of the
// normalized address.
func (r Recipient) ID() string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(NormalizeEmail(r.Email))).String()
}

// NormalizeEmail is the single representation used for set membership in
// stores and filters.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
