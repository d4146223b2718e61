package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/BaSui01/chatflow/internal/persistence"
	"github.com/BaSui01/chatflow/types"
	"go.uber.org/zap"
)

// =============================================================================
// 🏠 房间查询 Handler（只读）
// =============================================================================

const (
	defaultMessageLimit = 50
	maxMessageLimit     = 500
)

// RoomView 房间记录
type RoomView struct {
	ID           string    `json:"id"`
	RoomName     string    `json:"room_name"`
	BotName      string    `json:"bot_name"`
	CurrentState int       `json:"current_state"`
	MsgCount     int64     `json:"msg_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// MessageView 已落库的消息
type MessageView struct {
	Seq       int64     `json:"seq"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// RoomHandler 房间查询处理器
type RoomHandler struct {
	repo   *persistence.Repository
	logger *zap.Logger
}

// NewRoomHandler 创建房间查询处理器
func NewRoomHandler(repo *persistence.Repository, logger *zap.Logger) *RoomHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoomHandler{repo: repo, logger: logger.With(zap.String("handler", "rooms"))}
}

// HandleGetRoom 处理 GET /api/v1/rooms/{room}
func (h *RoomHandler) HandleGetRoom(w http.ResponseWriter, r *http.Request) {
	room, ok := h.findRoom(w, r)
	if !ok {
		return
	}
	WriteSuccess(w, RoomView{
		ID:           room.ID,
		RoomName:     room.RoomName,
		BotName:      room.BotName,
		CurrentState: room.CurrentState,
		MsgCount:     room.MsgCount,
		CreatedAt:    room.CreatedAt,
		UpdatedAt:    room.UpdatedAt,
	})
}

// HandleListMessages 处理 GET /api/v1/rooms/{room}/messages?limit=N
func (h *RoomHandler) HandleListMessages(w http.ResponseWriter, r *http.Request) {
	limit := defaultMessageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxMessageLimit {
			WriteError(w, types.Errorf(types.ErrInvalidRequest, "limit must be between 1 and %d", maxMessageLimit), h.logger)
			return
		}
		limit = n
	}

	room, ok := h.findRoom(w, r)
	if !ok {
		return
	}

	msgs, err := h.repo.ListRecentMessages(r.Context(), room.ID, limit)
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}

	out := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MessageView{Seq: m.Seq, Sender: m.Sender, Text: m.Text, CreatedAt: m.CreatedAt})
	}
	WriteSuccess(w, out)
}

func (h *RoomHandler) findRoom(w http.ResponseWriter, r *http.Request) (*persistence.ChatRoom, bool) {
	name := r.PathValue("room")
	if name == "" {
		WriteError(w, types.NewInvalidRequestError("room name is required"), h.logger)
		return nil, false
	}

	room, err := h.repo.FindRoomByName(r.Context(), name)
	if errors.Is(err, persistence.ErrNotFound) {
		WriteError(w, types.Errorf(types.ErrRoomNotFound, "room %q not found", name), h.logger)
		return nil, false
	}
	if err != nil {
		WriteErr(w, err, h.logger)
		return nil, false
	}
	return room, true
}
