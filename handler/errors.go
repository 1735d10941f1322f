package handler

import "errors"

var (
	ErrNilResponse     = errors.New("handler returned nil response")
	ErrNoBinderForType = errors.New("no binder accepts the request content type")
)
