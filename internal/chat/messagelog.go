package chat

import (
	"context"
	"sort"
	"strconv"

	"github.com/BaSui01/chatflow/internal/counter"
	"github.com/BaSui01/chatflow/internal/kvstore"
)

// Message hash fields.
const (
	fieldRoomName = "room_name"
	fieldRoomID   = "room_id"
	fieldSender   = "sender"
	fieldText     = "text"
	fieldSeq      = "seq"
)

// LoggedMessage is a message held in the shared store until it is flushed.
type LoggedMessage struct {
	Key      string
	RoomName string
	RoomID   string
	Sender   string
	Text     string
	Seq      int64
}

// MessageLog records room messages in the shared store, numbered by the
// room's counter.
type MessageLog struct {
	store   kvstore.Store
	counter *counter.Coordinator
	keys    Keys
}

// NewMessageLog creates a message log.
func NewMessageLog(store kvstore.Store, c *counter.Coordinator, keys Keys) *MessageLog {
	return &MessageLog{store: store, counter: c, keys: keys}
}

// Append reserves the next sequence number after the caller's last known
// count and records the message under it.
func (l *MessageLog) Append(ctx context.Context, room, roomID, sender, text string, after int64) (int64, error) {
	seq, err := l.counter.Reserve(ctx, l.keys.Counter(room), after+1)
	if err != nil {
		return 0, err
	}

	err = l.store.HSet(ctx, l.keys.Message(room, seq), map[string]string{
		fieldRoomName: room,
		fieldRoomID:   roomID,
		fieldSender:   sender,
		fieldText:     text,
		fieldSeq:      strconv.FormatInt(seq, 10),
	})
	if err != nil {
		return 0, err
	}
	return seq, nil
}

// Count returns the room's counter value.
func (l *MessageLog) Count(ctx context.Context, room string) (int64, error) {
	return l.counter.Get(ctx, l.keys.Counter(room))
}

// List returns the room's logged messages ordered by sequence number.
// Records without a numeric seq are skipped.
func (l *MessageLog) List(ctx context.Context, room string) ([]LoggedMessage, error) {
	var keys []string
	err := l.store.ScanPrefix(ctx, l.keys.MessagePrefix(room), func(key string) error {
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return nil, err
	}

	msgs := make([]LoggedMessage, 0, len(keys))
	for _, key := range keys {
		fields, err := l.store.HGetAll(ctx, key)
		if err != nil {
			return nil, err
		}
		seq, err := strconv.ParseInt(fields[fieldSeq], 10, 64)
		if err != nil {
			continue
		}
		msgs = append(msgs, LoggedMessage{
			Key:      key,
			RoomName: fields[fieldRoomName],
			RoomID:   fields[fieldRoomID],
			Sender:   fields[fieldSender],
			Text:     fields[fieldText],
			Seq:      seq,
		})
	}

	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Seq < msgs[j].Seq })
	return msgs, nil
}

// Delete removes keys in batches of batchSize.
func (l *MessageLog) Delete(ctx context.Context, keys []string, batchSize int) error {
	if batchSize <= 0 {
		batchSize = len(keys)
	}
	for start := 0; start < len(keys); start += batchSize {
		end := min(start+batchSize, len(keys))
		if err := l.store.Delete(ctx, keys[start:end]...); err != nil {
			return err
		}
	}
	return nil
}
