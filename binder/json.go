// Package binder decodes HTTP request bodies into request structs.
package binder

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
)

// Func binds r into v, which must be a pointer to a struct.
type Func func(r *http.Request, v any) error

// JSON decodes an application/json body strictly: unknown fields and
// trailing data are rejected. Other media types are ErrNotApplicable.
func JSON() Func {
	return func(r *http.Request, v any) error {
		mediaType, err := mediaType(r)
		if err != nil {
			return err
		}
		if mediaType != "application/json" {
			return ErrNotApplicable
		}

		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(v); err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: empty body", ErrInvalidJSON)
			}
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return fmt.Errorf("%w: body exceeds %d bytes", ErrFileTooLarge, tooLarge.Limit)
			}
			return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
		}
		if dec.More() {
			return fmt.Errorf("%w: unexpected data after JSON object", ErrInvalidJSON)
		}
		return nil
	}
}

func mediaType(r *http.Request) (string, error) {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return "", ErrMissingContentType
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedMediaType, err)
	}
	return mt, nil
}
