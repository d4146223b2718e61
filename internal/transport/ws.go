package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

var (
	// ErrConnClosed is returned by writes after Close.
	ErrConnClosed = errors.New("connection closed")
	// ErrBadFrame wraps a frame that is not a valid Inbound document. The
	// connection stays usable.
	ErrBadFrame = errors.New("malformed frame")
)

// Conn is one client connection as seen by the chat handlers.
type Conn interface {
	Read(ctx context.Context) (Inbound, error)
	Write(ctx context.Context, ev Event) error
	Close(reason string) error
}

// DefaultWriteTimeout bounds a single frame write.
const DefaultWriteTimeout = 10 * time.Second

// WSConn adapts a websocket connection to Conn. Writes are serialized since
// the websocket does not allow concurrent writers.
type WSConn struct {
	conn         *websocket.Conn
	logger       *zap.Logger
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

// NewWSConn wraps an accepted or dialed websocket.
func NewWSConn(conn *websocket.Conn, logger *zap.Logger) *WSConn {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSConn{
		conn:         conn,
		logger:       logger.With(zap.String("component", "ws_conn")),
		writeTimeout: DefaultWriteTimeout,
	}
}

// Read blocks for the next frame. A frame that does not decode returns an
// error wrapping ErrBadFrame; any other error means the connection is gone.
func (w *WSConn) Read(ctx context.Context) (Inbound, error) {
	var in Inbound

	typ, data, err := w.conn.Read(ctx)
	if err != nil {
		return in, fmt.Errorf("websocket read: %w", err)
	}
	if typ != websocket.MessageText {
		return in, fmt.Errorf("%w: binary frame", ErrBadFrame)
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return in, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	return in, nil
}

// Write sends ev as a JSON text frame.
func (w *WSConn) Write(ctx context.Context, ev Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrConnClosed
	}

	ctx, cancel := context.WithTimeout(ctx, w.writeTimeout)
	defer cancel()

	if err := wsjson.Write(ctx, w.conn, ev); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// Close sends a normal closure. Repeated calls are no-ops.
func (w *WSConn) Close(reason string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.conn.Close(websocket.StatusNormalClosure, reason); err != nil {
		w.logger.Debug("websocket close", zap.Error(err))
		return err
	}
	return nil
}
