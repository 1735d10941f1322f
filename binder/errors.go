package binder

import "errors"

var (
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrInvalidJSON          = errors.New("invalid JSON")
	ErrInvalidForm          = errors.New("invalid form data")
	ErrMissingContentType   = errors.New("missing content type")
	// ErrNotApplicable lets a handler accept several encodings: a binder
	// returns it for requests it does not handle and the next one is tried.
	ErrNotApplicable = errors.New("binder not applicable")
	ErrFileTooLarge  = errors.New("file too large")
)

// IsBindError reports whether err came from decoding the request, which is
// always the client's fault.
func IsBindError(err error) bool {
	return errors.Is(err, ErrUnsupportedMediaType) ||
		errors.Is(err, ErrInvalidJSON) ||
		errors.Is(err, ErrInvalidForm) ||
		errors.Is(err, ErrMissingContentType) ||
		errors.Is(err, ErrFileTooLarge)
}
