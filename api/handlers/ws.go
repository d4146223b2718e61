package handlers

import (
	"net/http"
	"strings"

	"github.com/BaSui01/chatflow/internal/chat"
	"github.com/BaSui01/chatflow/internal/transport"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// =============================================================================
// 💬 WebSocket 聊天 Handler
// =============================================================================

// maxFrameBytes 单个入站帧的上限
const maxFrameBytes = 64 << 10

// ChatHandler 将 WebSocket 连接交给聊天编排器
type ChatHandler struct {
	orch    *chat.Orchestrator
	origins []string
	track   func() (done func())
	logger  *zap.Logger
}

// NewChatHandler 创建聊天处理器。origins 为允许的跨域 Origin 模式，为空时只允许同源。
func NewChatHandler(orch *chat.Orchestrator, origins []string, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{
		orch:    orch,
		origins: origins,
		logger:  logger.With(zap.String("handler", "chat")),
	}
}

// WithTracker 为每个会话登记生命周期，用于优雅关闭时等待落库
func (h *ChatHandler) WithTracker(track func() (done func())) *ChatHandler {
	h.track = track
	return h
}

// HandleParticipant 处理 /ws/chat
func (h *ChatHandler) HandleParticipant(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.orch.Participant())
}

// HandleOperator 处理 /ws/admin
func (h *ChatHandler) HandleOperator(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.orch.Operator())
}

func (h *ChatHandler) serve(w http.ResponseWriter, r *http.Request, handler chat.Handler) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		// Accept 已写出错误响应
		h.logger.Warn("websocket upgrade failed",
			zap.String("remote", r.RemoteAddr),
			zap.String("origin", r.Header.Get("Origin")),
			zap.Error(err))
		return
	}
	c.SetReadLimit(maxFrameBytes)

	if h.track != nil {
		done := h.track()
		defer done()
	}

	user := strings.TrimSpace(r.URL.Query().Get("user"))
	conn := transport.NewWSConn(c, h.logger)
	if err := h.orch.Serve(r.Context(), handler, conn, user); err != nil {
		h.logger.Error("chat session failed", zap.String("kind", handler.Kind()), zap.Error(err))
	}
}
