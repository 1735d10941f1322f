package townhall

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/prytaneum/townhall-notifier/core"
	"github.com/prytaneum/townhall-notifier/svc/notify"
)

var (
	ErrInvalidFileType = errors.New("invite file must be a .csv file")
	ErrInvalidCSV      = errors.New("invalid invite file")
)

// parseInvitees reads an invitee CSV. The header row names the columns;
// email is required, fName and lName are optional and matched
// case-insensitively.
func parseInvitees(content []byte) ([]notify.Invitee, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, invalidCSV("file is empty", err)
	}
	if err != nil {
		return nil, invalidCSV("unreadable header", err)
	}
	cols := map[string]int{}
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	emailCol, ok := cols["email"]
	if !ok {
		return nil, invalidCSV("missing email column", nil)
	}

	cell := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var out []notify.Invitee
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, invalidCSV("malformed row", err)
		}
		if emailCol >= len(rec) || strings.TrimSpace(rec[emailCol]) == "" {
			continue
		}
		out = append(out, notify.Invitee{
			Email:     strings.TrimSpace(rec[emailCol]),
			FirstName: cell(rec, "fname"),
			LastName:  cell(rec, "lname"),
		})
	}
	return out, nil
}

func invalidCSV(reason string, cause error) error {
	err := fmt.Errorf("%w: %s", ErrInvalidCSV, reason)
	if cause != nil {
		err = errors.Join(err, cause)
	}
	return core.NewClientError("Invalid invite file: "+reason, err)
}
