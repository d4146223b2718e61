package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/chatflow/config"
	"github.com/BaSui01/chatflow/internal/counter"
	"github.com/BaSui01/chatflow/internal/kvstore"
	"github.com/BaSui01/chatflow/internal/persistence"
	"github.com/BaSui01/chatflow/internal/transport"
	"github.com/BaSui01/chatflow/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// disconnectTimeout bounds the flush that runs when a connection ends.
const disconnectTimeout = 10 * time.Second

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Registry *Registry
	Store    kvstore.Store
	Counter  *counter.Coordinator
	Repo     *persistence.Repository
	Hub      *transport.Hub
	Config   config.ChatConfig
	// Recorder is optional.
	Recorder Recorder
	// Logger is optional.
	Logger *zap.Logger
	// Tracer is optional; the global provider is used when nil.
	Tracer trace.Tracer
}

// Orchestrator runs chat sessions: it reads frames from a connection and
// dispatches them to a participant or operator handler.
type Orchestrator struct {
	hub      *transport.Hub
	recorder Recorder
	logger   *zap.Logger
	tracer   trace.Tracer

	participant *participantHandler
	operator    *operatorHandler
}

// NewOrchestrator wires the chat handlers over deps.
func NewOrchestrator(deps Deps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer("github.com/BaSui01/chatflow/internal/chat")
	}
	if deps.Counter == nil {
		deps.Counter = counter.New(deps.Store,
			counter.WithMaxAttempts(deps.Config.MaxReserveAttempts),
			counter.WithLogger(deps.Logger))
	}
	if d, ok := deps.Recorder.(interface{ RecordDroppedEvent(room string) }); ok {
		deps.Hub.OnDrop(d.RecordDroppedEvent)
	}

	logger := deps.Logger.With(zap.String("component", "chat"))
	keys := NewKeys(deps.Config.KeyPrefix)
	log := NewMessageLog(deps.Store, deps.Counter, keys)
	flusher := &Flusher{
		repo:      deps.Repo,
		log:       log,
		batchSize: deps.Config.FlushBatchSize,
		logger:    logger,
		recorder:  deps.Recorder,
		tracer:    deps.Tracer,
	}

	base := handlerBase{
		hub:      deps.Hub,
		repo:     deps.Repo,
		log:      log,
		flusher:  flusher,
		recorder: deps.Recorder,
		logger:   logger,
	}

	return &Orchestrator{
		hub:      deps.Hub,
		recorder: deps.Recorder,
		logger:   logger,
		tracer:   deps.Tracer,
		participant: &participantHandler{
			handlerBase: base,
			registry:    deps.Registry,
			store:       deps.Store,
			keys:        keys,
			cfg:         deps.Config,
			tracer:      deps.Tracer,
		},
		operator: &operatorHandler{handlerBase: base},
	}
}

// Participant returns the handler for bot conversations.
func (o *Orchestrator) Participant() Handler { return o.participant }

// Operator returns the handler for live chat operators.
func (o *Orchestrator) Operator() Handler { return o.operator }

// Serve runs one session over conn until the peer disconnects, ctx is
// cancelled or the handler ends the session. The connection is closed on
// return.
func (o *Orchestrator) Serve(ctx context.Context, h Handler, conn transport.Conn, user string) error {
	s := newSession(h.Kind(), user, conn, o.logger)
	if id, ok := types.RequestID(ctx); ok {
		s.logger = s.logger.With(zap.String("request_id", id))
	}
	o.recorder.SessionOpened(s.Kind)
	s.logger.Info("session opened", zap.String("user", s.User))

	defer func() {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), disconnectTimeout)
		defer cancel()
		if err := h.OnDisconnect(dctx, s); err != nil {
			s.logger.Error("disconnect failed", zap.Error(err))
		}
		_ = conn.Close("session closed")
		o.recorder.SessionClosed(s.Kind)
		s.logger.Info("session closed")
	}()

	if err := h.OnConnect(ctx, s); err != nil {
		return err
	}

	for {
		in, err := conn.Read(ctx)
		if err != nil {
			if errors.Is(err, transport.ErrBadFrame) {
				s.sendError(ctx, types.NewInvalidRequestError(err.Error()))
				continue
			}
			s.logger.Debug("read loop ended", zap.Error(err))
			return nil
		}

		if err := o.dispatch(ctx, h, s, in); err != nil {
			if errors.Is(err, errSessionEnded) {
				return nil
			}
			return err
		}
	}
}

// dispatch routes one inbound frame. Handler failures are reported to the
// peer as error events and do not end the session.
func (o *Orchestrator) dispatch(ctx context.Context, h Handler, s *Session, in transport.Inbound) error {
	ctx, span := o.tracer.Start(ctx, "chat."+in.Event, trace.WithAttributes(
		attribute.String("session", s.ID),
		attribute.String("kind", s.Kind),
		attribute.String("room", in.Room),
	))
	defer span.End()

	ctx = types.WithParticipantID(ctx, s.ID)
	if room := s.Room(); room != "" {
		ctx = types.WithRoomName(ctx, room)
	}

	var err error
	switch in.Event {
	case transport.EventEnterRoom:
		err = h.OnJoin(ctx, s, in.Room)
	case transport.EventMessage:
		err = h.OnMessage(ctx, s, in.Room, in.Data)
	case transport.EventExitRoom:
		room := in.Data
		if room == "" {
			room = in.Room
		}
		err = h.OnLeave(ctx, s, room)
	default:
		err = types.NewInvalidRequestError(fmt.Sprintf("unknown event %q", in.Event))
	}

	if err == nil || errors.Is(err, errSessionEnded) {
		return err
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.logger.Warn("event failed", eventFields(ctx, in, err)...)
	s.sendError(ctx, err)
	return nil
}

// eventFields describes a failed event. The room comes from the frame when
// the session has not joined one yet.
func eventFields(ctx context.Context, in transport.Inbound, err error) []zap.Field {
	fields := []zap.Field{zap.String("event", in.Event), zap.Error(err)}
	room, ok := types.RoomName(ctx)
	if !ok {
		room = in.Room
	}
	if room != "" {
		fields = append(fields, zap.String("room", room))
	}
	if code := types.GetErrorCode(err); code != "" {
		fields = append(fields, zap.String("code", string(code)))
	}
	return fields
}
