package logger

import (
	"context"
	"log/slog"
)

// ContextExtractor extracts a slog attribute from context.
type ContextExtractor func(ctx context.Context) (slog.Attr, bool)

// ContextHandler decorates a slog.Handler, appending attributes produced by
// its extractors to every record.
type ContextHandler struct {
	next       slog.Handler
	extractors []ContextExtractor
}

func NewContextHandler(next slog.Handler, extractors ...ContextExtractor) slog.Handler {
	return &ContextHandler{next: next, extractors: extractors}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, rec slog.Record) error {
	for _, ex := range h.extractors {
		if attr, ok := ex(ctx); ok {
			rec.AddAttrs(attr)
		}
	}
	return h.next.Handle(ctx, rec)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{next: h.next.WithAttrs(attrs), extractors: h.extractors}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{next: h.next.WithGroup(name), extractors: h.extractors}
}

type jobCtxKey struct{}

type jobInfo struct {
	id     string
	region string
}

// WithJob stores the job id and region in ctx so JobExtractor can log them.
func WithJob(ctx context.Context, id, region string) context.Context {
	return context.WithValue(ctx, jobCtxKey{}, jobInfo{id: id, region: region})
}

// JobExtractor adds job_id and region attributes for contexts built by WithJob.
func JobExtractor(ctx context.Context) (slog.Attr, bool) {
	info, ok := ctx.Value(jobCtxKey{}).(jobInfo)
	if !ok {
		return slog.Attr{}, false
	}
	return slog.Group("job", slog.String("id", info.id), slog.String("region", info.region)), true
}
