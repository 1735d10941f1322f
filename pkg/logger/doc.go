// Package logger builds *slog.Logger instances from functional options.
//
// New picks a text or JSON handler, applies static attributes and wraps the
// result in a ContextHandler that appends attributes pulled from the record's
// context (for example the current job set by WithJob).
//
//	log := logger.New(
//		logger.WithEnvironment(cfg.Env, "townhall-notifier"),
//		logger.WithContextExtractors(logger.JobExtractor),
//	)
//	log.InfoContext(ctx, "batch sent", logger.Batch(0, 1000))
//
// Attribute helpers such as Error, Region and Transition keep key names
// consistent across packages.
package logger
