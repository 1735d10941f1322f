// Package handler adapts typed request handlers to net/http.
//
// A HandlerFunc receives a request struct already decoded by the configured
// binders and returns a Response. Errors from binding, from the handler and
// from rendering all reach one ErrorHandler, which maps client errors to 400
// with their message and everything else to an empty 500:
//
//	type subscribeRequest struct {
//		Email  string `json:"email"`
//		Region string `json:"region"`
//	}
//
//	r.Post("/subscribe", handler.Wrap(func(ctx context.Context, req subscribeRequest) handler.Response {
//		if err := subs.Subscribe(ctx, req.Email, req.Region); err != nil {
//			return handler.Error(err)
//		}
//		return handler.OK()
//	}, handler.WithBinders(binder.JSON())))
package handler
