package chat

import (
	"context"
	"errors"
	"time"
)

// Session kinds.
const (
	KindParticipant = "participant"
	KindOperator    = "operator"
)

// Handler reacts to the events of one connection. The orchestrator calls a
// handler from the connection's goroutine only, in arrival order.
type Handler interface {
	Kind() string
	OnConnect(ctx context.Context, s *Session) error
	OnJoin(ctx context.Context, s *Session, room string) error
	OnMessage(ctx context.Context, s *Session, room, text string) error
	OnLeave(ctx context.Context, s *Session, room string) error
	OnDisconnect(ctx context.Context, s *Session) error
}

// errSessionEnded is returned by a handler that has finished the session.
// The orchestrator then disconnects without reporting an error.
var errSessionEnded = errors.New("chat: session ended")

// Recorder receives chat metrics.
type Recorder interface {
	SessionOpened(kind string)
	SessionClosed(kind string)
	RecordMessage(senderKind string)
	RecordProcess(bot, outcome string, duration time.Duration)
	RecordFlush(messages int, duration time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) SessionOpened(string) {}
func (nopRecorder) SessionClosed(string) {}
func (nopRecorder) RecordMessage(string) {}
func (nopRecorder) RecordProcess(string, string, time.Duration) {}
func (nopRecorder) RecordFlush(int, time.Duration, error) {}
