package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/prytaneum/townhall-notifier/binder"
)

// HandlerFunc handles a decoded request.
type HandlerFunc[R any] func(ctx context.Context, req R) Response

// Response renders itself. A render error goes to the ErrorHandler, so it
// must be returned before anything is written.
type Response interface {
	Render(w http.ResponseWriter, r *http.Request) error
}

type wrapConfig struct {
	binders      []binder.Func
	errorHandler ErrorHandler
}

type WrapOption func(*wrapConfig)

// WithBinders sets the binders tried in order. Binders returning
// binder.ErrNotApplicable are skipped; the first applicable one decodes the
// request.
func WithBinders(binders ...binder.Func) WrapOption {
	return func(c *wrapConfig) { c.binders = append(c.binders, binders...) }
}

func WithErrorHandler(h ErrorHandler) WrapOption {
	return func(c *wrapConfig) {
		if h != nil {
			c.errorHandler = h
		}
	}
}

// Wrap converts h into an http.HandlerFunc.
func Wrap[R any](h HandlerFunc[R], opts ...WrapOption) http.HandlerFunc {
	cfg := &wrapConfig{errorHandler: DefaultErrorHandler(nil)}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req R
		if err := bind(r, &req, cfg.binders); err != nil {
			cfg.errorHandler(w, r, err)
			return
		}

		resp := h(r.Context(), req)
		if resp == nil {
			cfg.errorHandler(w, r, ErrNilResponse)
			return
		}
		if err := resp.Render(w, r); err != nil {
			cfg.errorHandler(w, r, err)
		}
	}
}

func bind(r *http.Request, v any, binders []binder.Func) error {
	if len(binders) == 0 {
		return nil
	}
	applied := false
	for _, b := range binders {
		err := b(r, v)
		if errors.Is(err, binder.ErrNotApplicable) {
			continue
		}
		if err != nil {
			return err
		}
		applied = true
	}
	if !applied {
		return errors.Join(binder.ErrUnsupportedMediaType, ErrNoBinderForType)
	}
	return nil
}
