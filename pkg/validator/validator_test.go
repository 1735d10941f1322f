package validator_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prytaneum/townhall-notifier/pkg/validator"
)

func TestValidEmail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value string
		valid bool
	}{
		{"a@x.com", true},
		{"first.last+tag@sub.example.org", true},
		{"", false},
		{"   ", false},
		{"plain", false},
		{"a@localhost", false},
		{"a@x..com", false},
		{"Ann <a@x.com>", false},
		{"@x.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Parallel()
			err := validator.Apply(validator.ValidEmail("email", tt.value))
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
		})
	}
}

func TestApply(t *testing.T) {
	t.Parallel()

	err := validator.Apply(
		validator.Required("region", " "),
		validator.MaxLen("topic", "héllo", 5),
		validator.MaxLen("moc", "toolong", 3),
		validator.RequiredSlice("invitees", []string{}),
		validator.MaxLenSlice("invitees", []int{1, 2, 3}, 2),
		validator.InList("format", "xml", []string{"json", "csv"}),
		validator.When(false, validator.Required("skipped", "")),
	)
	require.Error(t, err)
	assert.True(t, validator.IsValidationError(err))

	ve := validator.ExtractValidationErrors(fmt.Errorf("wrapped: %w", err))
	require.Len(t, ve, 5)
	assert.True(t, ve.Has("region"))
	assert.False(t, ve.Has("topic"), "length is counted in runes")
	assert.False(t, ve.Has("skipped"))
	assert.Equal(t, []string{"must not be empty", "must contain at most 2 items"}, ve.Get("invitees"))
	assert.Contains(t, ve.Error(), "region: field is required")

	assert.NoError(t, validator.Apply(validator.Required("region", "west")))
	assert.Nil(t, validator.ExtractValidationErrors(errors.New("other")))
	assert.Equal(t, "validation failed", validator.ValidationErrors{}.Error())
}
