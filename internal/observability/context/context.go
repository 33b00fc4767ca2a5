package context

import "context"

type ctxKey int

const (
	requestIDKey ctxKey = iota
	eventIDKey
	eventTypeKey
)

// WithRequestID stores the inbound request id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// WithEvent stores the gateway event being processed so every log line
// emitted while handling it carries the event id.
func WithEvent(ctx context.Context, eventID, eventType string) context.Context {
	if eventID != "" {
		ctx = context.WithValue(ctx, eventIDKey, eventID)
	}
	if eventType != "" {
		ctx = context.WithValue(ctx, eventTypeKey, eventType)
	}
	return ctx
}

func EventFromContext(ctx context.Context) (eventID, eventType string) {
	if ctx == nil {
		return "", ""
	}
	eventID, _ = ctx.Value(eventIDKey).(string)
	eventType, _ = ctx.Value(eventTypeKey).(string)
	return eventID, eventType
}
