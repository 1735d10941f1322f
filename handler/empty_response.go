package handler

import "net/http"

type emptyResponse struct {
	status int
}

func (e emptyResponse) Render(w http.ResponseWriter, _ *http.Request) error {
	w.WriteHeader(e.status)
	return nil
}

// OK is an empty 200.
func OK() Response {
	return emptyResponse{status: http.StatusOK}
}

func EmptyWithStatus(status int) Response {
	return emptyResponse{status: status}
}

type errorResponse struct {
	err error
}

func (e errorResponse) Render(http.ResponseWriter, *http.Request) error {
	return e.err
}

// Error hands err to the route's ErrorHandler.
func Error(err error) Response {
	return errorResponse{err: err}
}
