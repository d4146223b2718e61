package types

import (
	"context"
	"testing"
)

func TestContextHelpers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	if _, ok := RoomName(ctx); ok {
		t.Fatalf("expected no room name on empty context")
	}

	ctx = WithRequestID(ctx, "r1")
	if got, ok := RequestID(ctx); !ok || got != "r1" {
		t.Fatalf("RequestID mismatch: %v %v", got, ok)
	}

	ctx = WithParticipantID(ctx, "p1")
	if got, ok := ParticipantID(ctx); !ok || got != "p1" {
		t.Fatalf("ParticipantID mismatch: %v %v", got, ok)
	}

	ctx = WithRoomName(ctx, "lobby")
	if got, ok := RoomName(ctx); !ok || got != "lobby" {
		t.Fatalf("RoomName mismatch: %v %v", got, ok)
	}

	ctx = WithRoomName(ctx, "")
	if _, ok := RoomName(ctx); ok {
		t.Fatalf("expected empty room name to report missing")
	}
}
