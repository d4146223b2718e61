package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyRequestID     contextKey = "request_id"
	keyParticipantID contextKey = "participant_id"
	keyRoomName      contextKey = "room_name"
)

// WithRequestID adds request ID to context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, keyRequestID, requestID)
}

// RequestID extracts request ID from context.
func RequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRequestID).(string)
	return v, ok && v != ""
}

// WithParticipantID adds the connected participant's ID to context.
func WithParticipantID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyParticipantID, id)
}

// ParticipantID extracts participant ID from context.
func ParticipantID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyParticipantID).(string)
	return v, ok && v != ""
}

// WithRoomName adds room name to context.
func WithRoomName(ctx context.Context, room string) context.Context {
	return context.WithValue(ctx, keyRoomName, room)
}

// RoomName extracts room name from context.
func RoomName(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRoomName).(string)
	return v, ok && v != ""
}
