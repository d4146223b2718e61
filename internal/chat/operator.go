package chat

import (
	"context"
	"strings"

	"github.com/BaSui01/chatflow/internal/transport"
	"github.com/BaSui01/chatflow/types"
	"go.uber.org/zap"
)

// operatorHandler serves live chat operators. Operators only join rooms
// that already have a record, and never move the dialogue state.
type operatorHandler struct {
	handlerBase
}

func (o *operatorHandler) Kind() string { return KindOperator }

func (o *operatorHandler) OnConnect(_ context.Context, s *Session) error {
	s.logger.Debug("operator connected")
	return nil
}

// OnJoin enters an existing room. An unknown room ends the session.
func (o *operatorHandler) OnJoin(ctx context.Context, s *Session, room string) error {
	room = strings.TrimSpace(room)
	if room == "" {
		return types.NewInvalidRequestError("room name is required")
	}
	if s.room == room {
		return nil
	}

	rec, err := o.repo.FindRoomByName(ctx, room)
	if err != nil {
		if errRoomNotFound(err) {
			s.logger.Info("operator joined unknown room", zap.String("room", room))
			s.sendError(ctx, types.Errorf(types.ErrRoomNotFound, "room %q not found", room))
			return errSessionEnded
		}
		return err
	}

	if err := o.leave(ctx, s, false); err != nil {
		s.logger.Warn("flush on room change failed", zap.Error(err))
	}

	s.room = room
	s.roomID = rec.ID
	s.msgCount = rec.MsgCount
	s.subscribe(ctx, o.hub, room)

	s.logger.Info("operator entered room", zap.String("room", room))
	return nil
}

// OnMessage broadcasts text to the room, the sender included, and logs it.
func (o *operatorHandler) OnMessage(ctx context.Context, s *Session, room, text string) error {
	if !s.InRoom() || (room != "" && room != s.room) {
		return types.NewInvalidRequestError("not in room " + room)
	}

	o.hub.Publish(s.room, transport.Event{Name: transport.EventMessage, Data: TextPayload{Data: text}}, "")

	if err := o.record(ctx, s, s.User, text); err != nil {
		return err
	}
	o.recorder.RecordMessage(KindOperator)
	return nil
}

func (o *operatorHandler) OnLeave(ctx context.Context, s *Session, room string) error {
	if strings.TrimSpace(room) != s.room || !s.InRoom() {
		return nil
	}
	return o.leave(ctx, s, false)
}

func (o *operatorHandler) OnDisconnect(ctx context.Context, s *Session) error {
	return o.leave(ctx, s, false)
}

var _ Handler = (*operatorHandler)(nil)
