package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/chatflow/config"
	"github.com/BaSui01/chatflow/internal/kvstore"
	"github.com/BaSui01/chatflow/internal/persistence"
	"github.com/BaSui01/chatflow/internal/transport"
	"github.com/BaSui01/chatflow/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const waitTimeout = 2 * time.Second

type frame struct {
	msg transport.Inbound
	err error
}

// fakeConn is an in-memory transport.Conn.
type fakeConn struct {
	in     chan frame
	closed chan struct{}
	once   sync.Once

	mu     sync.Mutex
	out    []transport.Event
	reason string
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan frame, 16), closed: make(chan struct{})}
}

func (c *fakeConn) Read(ctx context.Context) (transport.Inbound, error) {
	select {
	case f, ok := <-c.in:
		if !ok {
			return transport.Inbound{}, transport.ErrConnClosed
		}
		return f.msg, f.err
	case <-c.closed:
		return transport.Inbound{}, transport.ErrConnClosed
	case <-ctx.Done():
		return transport.Inbound{}, ctx.Err()
	}
}

func (c *fakeConn) Write(_ context.Context, ev transport.Event) error {
	select {
	case <-c.closed:
		return transport.ErrConnClosed
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out = append(c.out, ev)
	return nil
}

func (c *fakeConn) Close(reason string) error {
	c.once.Do(func() {
		c.mu.Lock()
		c.reason = reason
		c.mu.Unlock()
		close(c.closed)
	})
	return nil
}

func (c *fakeConn) send(event, room, data string) {
	c.in <- frame{msg: transport.Inbound{Event: event, Room: room, Data: data}}
}

// hangUp ends the read loop as a peer disconnect would.
func (c *fakeConn) hangUp() { close(c.in) }

func (c *fakeConn) events() []transport.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]transport.Event(nil), c.out...)
}

func (c *fakeConn) named(name string) []transport.Event {
	var out []transport.Event
	for _, ev := range c.events() {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func (c *fakeConn) replies() []ReplyPayload {
	var out []ReplyPayload
	for _, ev := range c.named(transport.EventMessage) {
		if p, ok := ev.Data.(ReplyPayload); ok {
			out = append(out, p)
		}
	}
	return out
}

func (c *fakeConn) errors() []transport.ErrorData {
	var out []transport.ErrorData
	for _, ev := range c.named(transport.EventError) {
		out = append(out, ev.Data.(transport.ErrorData))
	}
	return out
}

// waitReplies blocks until the connection has received n bot replies.
func (c *fakeConn) waitReplies(t *testing.T, n int) []ReplyPayload {
	t.Helper()
	require.Eventually(t, func() bool { return len(c.replies()) >= n }, waitTimeout, 5*time.Millisecond)
	return c.replies()
}

func (c *fakeConn) waitErrors(t *testing.T, n int) []transport.ErrorData {
	t.Helper()
	require.Eventually(t, func() bool { return len(c.errors()) >= n }, waitTimeout, 5*time.Millisecond)
	return c.errors()
}

type fakeChatRecorder struct {
	mu        sync.Mutex
	opened    map[string]int
	closed    map[string]int
	messages  map[string]int
	outcomes  []string
	flushes   int
	flushErrs int
	dropped   int
}

func newFakeChatRecorder() *fakeChatRecorder {
	return &fakeChatRecorder{
		opened:   map[string]int{},
		closed:   map[string]int{},
		messages: map[string]int{},
	}
}

func (r *fakeChatRecorder) SessionOpened(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened[kind]++
}

func (r *fakeChatRecorder) SessionClosed(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed[kind]++
}

func (r *fakeChatRecorder) RecordMessage(senderKind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[senderKind]++
}

func (r *fakeChatRecorder) RecordProcess(_, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *fakeChatRecorder) RecordFlush(_ int, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes++
	if err != nil {
		r.flushErrs++
	}
}

func (r *fakeChatRecorder) RecordDroppedEvent(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped++
}

type testEnv struct {
	orch  *Orchestrator
	store kvstore.Store
	repo  *persistence.Repository
	hub   *transport.Hub
	keys  Keys
	rec   *fakeChatRecorder
	cfg   config.ChatConfig
}

func testChatConfig() config.ChatConfig {
	cfg := config.DefaultChatConfig()
	cfg.TemplateDir = "../../templates"
	cfg.Rooms = map[string]string{"lobby": "Susan", DefaultRoom: "Gerald"}
	cfg.KeyPrefix = "test"
	cfg.FlushBatchSize = 2
	return cfg
}

func newSQLiteRepo(t *testing.T) *persistence.Repository {
	return testutil.NewRepository(t)
}

func newRedisStore(t *testing.T) kvstore.Store {
	s, _ := testutil.NewRedisStore(t)
	return s
}

func newTestEnv(t *testing.T, store kvstore.Store, mutate func(*config.ChatConfig)) *testEnv {
	t.Helper()
	if store == nil {
		store = kvstore.NewMemoryStore()
	}
	cfg := testChatConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	hub := transport.NewHub(zap.NewNop())
	t.Cleanup(hub.Close)

	env := &testEnv{
		store: store,
		repo:  newSQLiteRepo(t),
		hub:   hub,
		keys:  NewKeys(cfg.KeyPrefix),
		rec:   newFakeChatRecorder(),
		cfg:   cfg,
	}
	env.orch = NewOrchestrator(Deps{
		Registry: NewRegistry(cfg.TemplateDir, cfg.Rooms, zap.NewNop()),
		Store:    store,
		Repo:     env.repo,
		Hub:      hub,
		Config:   cfg,
		Recorder: env.rec,
		Logger:   zap.NewNop(),
	})
	return env
}

type running struct {
	conn *fakeConn
	done chan error
}

// serve runs a session in the background.
func (e *testEnv) serve(t *testing.T, h Handler, user string) *running {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	r := &running{conn: newFakeConn(), done: make(chan error, 1)}
	go func() { r.done <- e.orch.Serve(ctx, h, r.conn, user) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-r.done:
		case <-time.After(waitTimeout):
		}
	})
	return r
}

// wait blocks until the session ends and returns Serve's result.
func (r *running) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.done:
		r.done <- err
		return err
	case <-time.After(waitTimeout):
		t.Fatal("session did not end")
		return nil
	}
}

func (e *testEnv) storedMessages(t *testing.T, room string) []LoggedMessage {
	t.Helper()
	log := NewMessageLog(e.store, nil, e.keys)
	msgs, err := log.List(context.Background(), room)
	require.NoError(t, err)
	return msgs
}
