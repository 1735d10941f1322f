package handler

import (
	"log/slog"
	"net/http"

	"github.com/prytaneum/townhall-notifier/binder"
	"github.com/prytaneum/townhall-notifier/core"
	"github.com/prytaneum/townhall-notifier/pkg/logger"
	"github.com/prytaneum/townhall-notifier/pkg/validator"
)

// ErrorHandler writes the response for a failed request.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Classify returns the status and the body shown to the caller. Server
// errors have an empty body; their details only go to the log.
func Classify(err error) (int, string) {
	if ce, ok := core.AsClientError(err); ok {
		code := ce.Code
		if code < 400 || code > 499 {
			code = http.StatusBadRequest
		}
		return code, ce.Message
	}
	if validator.IsValidationError(err) {
		return http.StatusBadRequest, validator.ExtractValidationErrors(err).Error()
	}
	if binder.IsBindError(err) {
		return http.StatusBadRequest, err.Error()
	}
	return http.StatusInternalServerError, ""
}

// DefaultErrorHandler writes Classify's status and body as plain text.
func DefaultErrorHandler(log *slog.Logger) ErrorHandler {
	if log == nil {
		log = logger.Discard()
	}
	return func(w http.ResponseWriter, r *http.Request, err error) {
		status, body := Classify(err)
		if status >= http.StatusInternalServerError {
			log.ErrorContext(r.Context(), "request failed",
				slog.String("method", r.Method), slog.String("path", r.URL.Path), logger.Error(err))
		} else {
			log.WarnContext(r.Context(), "request rejected",
				slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.Int("status", status), logger.Error(err))
		}

		if body == "" {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}
