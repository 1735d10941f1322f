// Package httpserver runs the notifier's HTTP boundary with graceful
// shutdown and provides the liveness and readiness handlers.
//
// Run listens on the configured address and blocks until ctx is cancelled,
// then drains in-flight requests within the shutdown timeout:
//
//	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))
//	err := srv.Run(ctx, router)
//
// Readiness takes named checks (the mongo, redis and postgres healthchecks)
// and reports 503 with the failing names when any of them errors.
package httpserver
