package chat

import (
	"context"
	"time"

	"github.com/BaSui01/chatflow/internal/persistence"
	"github.com/BaSui01/chatflow/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// FlushRequest describes what a flush writes for one room.
type FlushRequest struct {
	Room   string
	RoomID string
	// State is the dialogue position to persist. Nil keeps the stored one.
	State *int
	// MsgCount is the session's count; the room counter wins when higher.
	MsgCount int64
}

// Flusher moves a room's logged messages into the database.
type Flusher struct {
	repo      *persistence.Repository
	log       *MessageLog
	batchSize int
	logger    *zap.Logger
	recorder  Recorder
	tracer    trace.Tracer
}

// Flush writes the room record and every logged message in one transaction,
// then deletes the written messages from the shared store. When the
// transaction fails nothing is deleted, so the next flush retries the same
// messages; rows already stored are skipped.
func (f *Flusher) Flush(ctx context.Context, req FlushRequest) (written int, err error) {
	ctx, span := f.tracer.Start(ctx, "chat.Flush", trace.WithAttributes(
		attribute.String("room", req.Room),
	))
	start := time.Now()
	defer func() {
		f.recorder.RecordFlush(written, time.Since(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	msgs, err := f.log.List(ctx, req.Room)
	if err != nil {
		return 0, err
	}
	count, err := f.log.Count(ctx, req.Room)
	if err != nil {
		return 0, err
	}
	msgCount := max(req.MsgCount, count)

	rows := make([]persistence.ChatMessage, 0, len(msgs))
	keys := make([]string, 0, len(msgs))
	for _, m := range msgs {
		roomID := m.RoomID
		if roomID == "" {
			roomID = req.RoomID
		}
		rows = append(rows, persistence.ChatMessage{RoomID: roomID, Seq: m.Seq, Sender: m.Sender, Text: m.Text})
		keys = append(keys, m.Key)
	}

	err = f.repo.WithTransaction(ctx, func(tx *persistence.Repository) error {
		if req.State != nil {
			if err := tx.UpdateRoomState(ctx, req.RoomID, *req.State, msgCount); err != nil {
				return err
			}
		} else if err := tx.UpdateRoomMsgCount(ctx, req.RoomID, msgCount); err != nil {
			return err
		}
		return tx.AppendMessages(ctx, rows)
	})
	if err != nil {
		return 0, err
	}

	if err := f.log.Delete(ctx, keys, f.batchSize); err != nil {
		// Stored rows are durable; leftovers are skipped on the next flush.
		f.logger.Warn("failed to delete flushed messages",
			zap.String("room", req.Room), zap.Int("messages", len(keys)), zap.Error(err))
	}

	span.SetAttributes(attribute.Int("messages", len(rows)), attribute.Int64("msg_count", msgCount))
	fields := []zap.Field{
		zap.String("room", req.Room),
		zap.Int("messages", len(rows)),
		zap.Int64("msg_count", msgCount),
	}
	if sid, ok := types.ParticipantID(ctx); ok {
		fields = append(fields, zap.String("session", sid))
	}
	f.logger.Debug("room flushed", fields...)
	return len(rows), nil
}
