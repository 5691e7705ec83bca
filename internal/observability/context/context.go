package context

import (
	"context"
	"strings"
)

type requestIDKey struct{}
type actorKey struct{}
type bookingIDKey struct{}

type actor struct {
	Type string
	ID   string
}

// WithRequestID stores the inbound request id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey{}).(string)
	return value
}

// WithActor stores who is acting on the request, e.g. ("admin", "123").
func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor{
		Type: strings.TrimSpace(actorType),
		ID:   strings.TrimSpace(actorID),
	})
}

func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	value, ok := ctx.Value(actorKey{}).(actor)
	if !ok {
		return "", ""
	}
	return value.Type, value.ID
}

func WithBookingID(ctx context.Context, bookingID string) context.Context {
	bookingID = strings.TrimSpace(bookingID)
	if bookingID == "" {
		return ctx
	}
	return context.WithValue(ctx, bookingIDKey{}, bookingID)
}

func BookingIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(bookingIDKey{}).(string)
	return value
}
