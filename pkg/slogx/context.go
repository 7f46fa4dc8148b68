package slogx

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the request scoped logger, or the default one.
func FromContext(ctx context.Context) *slog.Logger {
	l, ok := ctx.Value(ctxKey{}).(*slog.Logger)
	if !ok {
		return slog.Default()
	}
	return l
}

func WithRequestID(ctx context.Context, reqID string) context.Context {
	return WithContext(ctx, FromContext(ctx).With("req_id", reqID))
}

// WithAuthorisation tags every later log line with the authorisation being
// worked on.
func WithAuthorisation(ctx context.Context, authorisationID, authorisationType string) context.Context {
	return WithContext(ctx, FromContext(ctx).With(
		"authorisation_id", authorisationID,
		"authorisation_type", authorisationType,
	))
}
