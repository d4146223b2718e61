package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/BaSui01/chatflow/config"
	"github.com/BaSui01/chatflow/internal/dialog"
	"github.com/BaSui01/chatflow/internal/kvstore"
	"github.com/BaSui01/chatflow/internal/persistence"
	"github.com/BaSui01/chatflow/internal/placeholder"
	"github.com/BaSui01/chatflow/internal/template"
	"github.com/BaSui01/chatflow/internal/transport"
	"github.com/BaSui01/chatflow/types"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Reply types and texts sent to rooms.
const (
	ReplyTypeChatMessage = "chat_message_to_client"
	NoMessageType        = "None"
	RedirectText         = "Redirecting to admin chat...."
)

// ReplyPayload is the data of a bot reply event.
type ReplyPayload struct {
	Type        string `json:"type"`
	RoomName    string `json:"room_name"`
	Data        string `json:"data"`
	MessageType string `json:"message_type"`
}

// TextPayload is the data of a plain message or livechat event.
type TextPayload struct {
	Data string `json:"data"`
}

// HistoryItem is the data of a history event.
type HistoryItem struct {
	Seq    int64     `json:"seq"`
	Sender string    `json:"sender"`
	Data   string    `json:"data"`
	SentAt time.Time `json:"sent_at"`
}

// handlerBase holds what both session kinds share.
type handlerBase struct {
	hub      *transport.Hub
	repo     *persistence.Repository
	log      *MessageLog
	flusher  *Flusher
	recorder Recorder
	logger   *zap.Logger
}

// record appends text to the room's message log under the session's count.
func (b *handlerBase) record(ctx context.Context, s *Session, sender, text string) error {
	seq, err := b.log.Append(ctx, s.room, s.roomID, sender, text, s.msgCount)
	if err != nil {
		return err
	}
	s.msgCount = seq
	return nil
}

// flush persists the session's room. withState also stores the dialogue
// position.
func (b *handlerBase) flush(ctx context.Context, s *Session, withState bool) error {
	req := FlushRequest{Room: s.room, RoomID: s.roomID, MsgCount: s.msgCount}
	if withState {
		state := s.state
		req.State = &state
	}
	_, err := b.flusher.Flush(ctx, req)
	return err
}

// leave flushes and leaves the session's current room, if any. The room is
// left even when the flush fails; the logged messages stay in the store for
// the next flush.
func (b *handlerBase) leave(ctx context.Context, s *Session, withState bool) error {
	if !s.InRoom() {
		return nil
	}
	err := b.flush(ctx, s, withState)
	s.unsubscribe(b.hub)
	s.logger.Info("left room", zap.String("room", s.room))
	s.reset()
	return err
}

// participantHandler drives bot conversations.
type participantHandler struct {
	handlerBase
	registry *Registry
	store    kvstore.Store
	keys     Keys
	cfg      config.ChatConfig
	tracer   trace.Tracer
}

func (p *participantHandler) Kind() string { return KindParticipant }

func (p *participantHandler) OnConnect(_ context.Context, s *Session) error {
	s.logger.Debug("participant connected")
	return nil
}

// OnJoin enters room: the room record is created on first use, the dialogue
// resumes from its stored state and recent history is replayed to the
// joiner.
func (p *participantHandler) OnJoin(ctx context.Context, s *Session, room string) error {
	room = strings.TrimSpace(room)
	if room == "" {
		return types.NewInvalidRequestError("room name is required")
	}
	if s.room == room {
		return nil
	}
	if err := p.leave(ctx, s, true); err != nil {
		s.logger.Warn("flush on room change failed", zap.Error(err))
	}

	bot, graph, err := p.registry.Resolve(room)
	if err != nil {
		return err
	}
	rec, created, err := p.repo.FindOrCreateRoom(ctx, room, bot)
	if err != nil {
		return err
	}

	var (
		history []persistence.ChatMessage
		logged  int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		history, err = p.repo.ListRecentMessages(gctx, rec.ID, p.cfg.HistorySize)
		return err
	})
	g.Go(func() error {
		var err error
		logged, err = p.log.Count(gctx, room)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	state := 1
	if graph.Valid(rec.CurrentState) {
		state = rec.CurrentState
	}

	s.room = room
	s.roomID = rec.ID
	s.bot = bot
	s.state = state
	s.msgCount = max(rec.MsgCount, logged)
	s.machine = dialog.New(graph,
		placeholder.NewBindings(p.store, p.keys.Bindings(room)),
		dialog.WithMaxChainDepth(p.cfg.MaxChainDepth),
		dialog.WithTracer(p.tracer))
	s.subscribe(ctx, p.hub, room)

	for _, m := range history {
		s.send(ctx, transport.Event{
			Name: transport.EventHistory,
			Room: room,
			Data: HistoryItem{Seq: m.Seq, Sender: m.Sender, Data: m.Text, SentAt: m.CreatedAt},
		})
	}

	s.logger.Info("entered room",
		zap.String("room", room),
		zap.String("bot", bot),
		zap.Bool("created", created),
		zap.Int("state", state),
		zap.Int64("msg_count", s.msgCount))
	return nil
}

// OnMessage logs the participant's message, handles keywords and answers
// with the bot's reply while the conversation has not ended.
func (p *participantHandler) OnMessage(ctx context.Context, s *Session, room, text string) error {
	if !s.InRoom() || (room != "" && room != s.room) {
		return types.NewInvalidRequestError("not in room " + room)
	}

	if err := p.record(ctx, s, s.User, text); err != nil {
		return err
	}
	p.recorder.RecordMessage(KindParticipant)

	if p.cfg.EchoMessages {
		p.hub.Publish(s.room, transport.Event{Name: transport.EventMessage, Data: TextPayload{Data: text}}, "")
	}

	switch {
	case p.cfg.FlushKeyword != "" && text == p.cfg.FlushKeyword:
		if err := p.flush(ctx, s, true); err != nil {
			return err
		}
	case p.cfg.OperatorKeyword != "" && text == p.cfg.OperatorKeyword:
		p.hub.Publish(s.room, transport.Event{Name: transport.EventLivechat, Data: TextPayload{Data: RedirectText}}, "")
		return errSessionEnded
	}

	if s.state == template.End {
		return nil
	}

	start := time.Now()
	reply, err := s.machine.Process(ctx, text, s.state)
	if err != nil {
		outcome := string(types.GetErrorCode(err))
		if outcome == "" {
			outcome = "error"
		}
		p.recorder.RecordProcess(s.bot, outcome, time.Since(start))
		return err
	}
	p.recorder.RecordProcess(s.bot, processOutcome(reply), time.Since(start))

	msgType := reply.Type
	if msgType == "" {
		msgType = NoMessageType
	}
	p.hub.Publish(s.room, transport.Event{
		Name: transport.EventMessage,
		Data: ReplyPayload{
			Type:        ReplyTypeChatMessage,
			RoomName:    s.room,
			Data:        reply.Text,
			MessageType: msgType,
		},
	}, "")
	s.state = reply.NextState

	if err := p.record(ctx, s, s.bot, reply.Text); err != nil {
		return err
	}
	p.recorder.RecordMessage("bot")
	return nil
}

func processOutcome(r dialog.Reply) string {
	switch {
	case r.InvalidOption:
		return "invalid_option"
	case r.Ended():
		return "ended"
	default:
		return "ok"
	}
}

// OnLeave leaves room when it is the session's current room.
func (p *participantHandler) OnLeave(ctx context.Context, s *Session, room string) error {
	if strings.TrimSpace(room) != s.room || !s.InRoom() {
		return nil
	}
	return p.leave(ctx, s, true)
}

func (p *participantHandler) OnDisconnect(ctx context.Context, s *Session) error {
	return p.leave(ctx, s, true)
}

var _ Handler = (*participantHandler)(nil)

// errRoomNotFound reports whether err is a missing room record.
func errRoomNotFound(err error) bool { return errors.Is(err, persistence.ErrNotFound) }
