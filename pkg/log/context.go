package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey struct{}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// Ctx retrieves the request-scoped logger, falling back to the global one.
func Ctx(ctx context.Context) zerolog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(zerolog.Logger); ok {
		return l
	}
	return L()
}

// WithRoom returns a context whose logger carries the room slug.
func WithRoom(ctx context.Context, slug string) context.Context {
	l := Ctx(ctx)
	return WithLogger(ctx, l.With().Str(FieldRoomSlug, slug).Logger())
}

// WithParticipant returns a context whose logger carries the participant id.
func WithParticipant(ctx context.Context, participantID string) context.Context {
	l := Ctx(ctx)
	return WithLogger(ctx, l.With().Str(FieldParticipantID, participantID).Logger())
}
