package chat

import (
	"context"
	"testing"

	"github.com/BaSui01/chatflow/internal/counter"
	"github.com/BaSui01/chatflow/internal/kvstore"
	"github.com/BaSui01/chatflow/internal/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

func newTestFlusher(t *testing.T) (*Flusher, *MessageLog, *persistence.Repository, *fakeChatRecorder) {
	t.Helper()
	store := kvstore.NewMemoryStore()
	log := NewMessageLog(store, counter.New(store), NewKeys("t"))
	repo := newSQLiteRepo(t)
	rec := newFakeChatRecorder()
	return &Flusher{
		repo:      repo,
		log:       log,
		batchSize: 2,
		logger:    zap.NewNop(),
		recorder:  rec,
		tracer:    noop.NewTracerProvider().Tracer("test"),
	}, log, repo, rec
}

func TestFlusher_Flush(t *testing.T) {
	ctx := context.Background()
	f, log, repo, rec := newTestFlusher(t)

	room, _, err := repo.FindOrCreateRoom(ctx, "lobby", "Susan")
	require.NoError(t, err)

	for i, text := range []string{"one", "two", "three"} {
		_, err := log.Append(ctx, "lobby", room.ID, "ada", text, int64(i))
		require.NoError(t, err)
	}

	state := 4
	n, err := f.Flush(ctx, FlushRequest{Room: "lobby", RoomID: room.ID, State: &state, MsgCount: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := repo.FindRoomByName(ctx, "lobby")
	require.NoError(t, err)
	assert.Equal(t, 4, got.CurrentState)
	// The counter is ahead of the session's count.
	assert.Equal(t, int64(3), got.MsgCount)

	stored, err := repo.ListRecentMessages(ctx, room.ID, 10)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, "three", stored[2].Text)

	pending, err := log.List(ctx, "lobby")
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Nothing new: the flush still refreshes the count and keeps the state.
	n, err = f.Flush(ctx, FlushRequest{Room: "lobby", RoomID: room.ID, MsgCount: 7})
	require.NoError(t, err)
	assert.Zero(t, n)
	got, err = repo.FindRoomByName(ctx, "lobby")
	require.NoError(t, err)
	assert.Equal(t, 4, got.CurrentState)
	assert.Equal(t, int64(7), got.MsgCount)

	assert.Equal(t, 2, rec.flushes)
	assert.Zero(t, rec.flushErrs)
}

func TestFlusher_FailureKeepsLog(t *testing.T) {
	ctx := context.Background()
	f, log, repo, rec := newTestFlusher(t)

	_, err := log.Append(ctx, "lobby", "missing-room", "ada", "hello", 0)
	require.NoError(t, err)

	state := 2
	_, err = f.Flush(ctx, FlushRequest{Room: "lobby", RoomID: "missing-room", State: &state})
	assert.ErrorIs(t, err, persistence.ErrNotFound)

	pending, err := log.List(ctx, "lobby")
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	count, err := repo.CountMessages(ctx, "missing-room")
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Equal(t, 1, rec.flushErrs)
}

func TestFlusher_SkipsAlreadyStored(t *testing.T) {
	ctx := context.Background()
	f, log, repo, _ := newTestFlusher(t)

	room, _, err := repo.FindOrCreateRoom(ctx, "lobby", "Susan")
	require.NoError(t, err)
	require.NoError(t, repo.AppendMessages(ctx, []persistence.ChatMessage{
		{RoomID: room.ID, Seq: 1, Sender: "ada", Text: "hello"},
	}))

	// A previous flush stored seq 1 but failed to delete it.
	_, err = log.Append(ctx, "lobby", room.ID, "ada", "hello", 0)
	require.NoError(t, err)
	_, err = log.Append(ctx, "lobby", room.ID, "Susan", "hi", 1)
	require.NoError(t, err)

	_, err = f.Flush(ctx, FlushRequest{Room: "lobby", RoomID: room.ID})
	require.NoError(t, err)

	count, err := repo.CountMessages(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
