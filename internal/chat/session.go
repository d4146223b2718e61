package chat

import (
	"context"
	"errors"

	"github.com/BaSui01/chatflow/internal/dialog"
	"github.com/BaSui01/chatflow/internal/transport"
	"github.com/BaSui01/chatflow/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Session is the runtime state of one connection: the room it is in and,
// for participants, the dialogue machine and its position.
type Session struct {
	ID   string
	User string
	Kind string

	conn   transport.Conn
	logger *zap.Logger

	room   string
	roomID string
	bot    string

	machine  *dialog.Machine
	state    int
	msgCount int64

	subID    string
	leave    context.CancelFunc
	pumpDone chan struct{}
}

func newSession(kind, user string, conn transport.Conn, logger *zap.Logger) *Session {
	id := uuid.NewString()
	if user == "" {
		user = DefaultUser
	}
	return &Session{
		ID:     id,
		User:   user,
		Kind:   kind,
		conn:   conn,
		logger: logger.With(zap.String("session", id), zap.String("kind", kind)),
	}
}

// DefaultUser names participants that did not identify themselves.
const DefaultUser = "AnonymousUser"

// Room returns the joined room, empty when none.
func (s *Session) Room() string { return s.room }

// RoomID returns the persisted id of the joined room.
func (s *Session) RoomID() string { return s.roomID }

// State returns the dialogue position.
func (s *Session) State() int { return s.state }

// MsgCount returns the last sequence number this session knows of.
func (s *Session) MsgCount() int64 { return s.msgCount }

// InRoom reports whether the session has joined a room.
func (s *Session) InRoom() bool { return s.room != "" }

// send writes ev to this connection only.
func (s *Session) send(ctx context.Context, ev transport.Event) {
	if err := s.conn.Write(ctx, ev); err != nil && !errors.Is(err, transport.ErrConnClosed) {
		s.logger.Debug("write failed", zap.String("event", ev.Name), zap.Error(err))
	}
}

// sendError reports err to this connection as an error event.
func (s *Session) sendError(ctx context.Context, err error) {
	data := transport.ErrorData{Code: string(types.ErrInternalError), Message: "internal error"}
	if e, ok := types.AsError(err); ok {
		data.Code = string(e.Code)
		data.Message = e.Message
	}
	s.send(ctx, transport.Event{Name: transport.EventError, Room: s.room, Data: data})
}

// subscribe joins the hub room and forwards its events to the connection
// until unsubscribe.
func (s *Session) subscribe(ctx context.Context, hub *transport.Hub, room string) {
	subCtx, cancel := context.WithCancel(ctx)
	ch, subID := hub.Subscribe(subCtx, room)

	s.subID = subID
	s.leave = cancel
	s.pumpDone = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		for ev := range ch {
			s.send(ctx, ev)
		}
	}(s.pumpDone)
}

// unsubscribe leaves the hub room and waits for in-flight events to drain.
func (s *Session) unsubscribe(hub *transport.Hub) {
	if s.leave == nil {
		return
	}
	hub.Unsubscribe(s.room, s.subID)
	s.leave()
	<-s.pumpDone

	s.leave = nil
	s.subID = ""
	s.pumpDone = nil
}

// reset forgets the joined room.
func (s *Session) reset() {
	s.room, s.roomID, s.bot = "", "", ""
	s.machine = nil
	s.state = 0
	s.msgCount = 0
}
