// Package persistence stores rooms and flushed chat messages in the
// relational database.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/BaSui01/chatflow/internal/database"
	"github.com/BaSui01/chatflow/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound is returned when a room does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrAlreadyExists is returned when a room name is taken.
	ErrAlreadyExists = errors.New("persistence: already exists")
)

// Repository reads and writes chat rooms and messages.
type Repository struct {
	db       *gorm.DB
	transact func(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// New creates a repository over db.
func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// NewFromPool creates a repository over the pool's connection. Transactions
// go through the pool and are retried on lock conflicts.
func NewFromPool(pm *database.PoolManager) *Repository {
	return &Repository{db: pm.DB(), transact: pm.Transact}
}

// AutoMigrate creates the tables from the models. The SQL migrations are the
// authoritative schema; this is for tests and throwaway SQLite files.
func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&ChatRoom{}, &ChatMessage{})
}

// WithTransaction runs fn with a repository bound to one transaction. fn may
// run more than once when the repository was built from a pool.
func (r *Repository) WithTransaction(ctx context.Context, fn func(tx *Repository) error) error {
	body := func(tx *gorm.DB) error { return fn(&Repository{db: tx}) }
	if r.transact != nil {
		return r.transact(ctx, body)
	}
	return r.db.WithContext(ctx).Transaction(body)
}

// FindRoomByName returns the room or ErrNotFound.
func (r *Repository) FindRoomByName(ctx context.Context, name string) (*ChatRoom, error) {
	var room ChatRoom
	err := r.db.WithContext(ctx).Where("room_name = ?", name).First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr("find room", err)
	}
	return &room, nil
}

// CreateRoom inserts room.
func (r *Repository) CreateRoom(ctx context.Context, room *ChatRoom) error {
	if room.CurrentState == 0 {
		room.CurrentState = 1
	}
	if err := r.db.WithContext(ctx).Create(room).Error; err != nil {
		if isDuplicate(err) {
			return ErrAlreadyExists
		}
		return storeErr("create room", err)
	}
	return nil
}

// FindOrCreateRoom returns the room called name, creating it for bot when
// missing. created reports whether a new row was written.
func (r *Repository) FindOrCreateRoom(ctx context.Context, name, bot string) (room *ChatRoom, created bool, err error) {
	room, err = r.FindRoomByName(ctx, name)
	if err == nil {
		return room, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	room = &ChatRoom{RoomName: name, BotName: bot, CurrentState: 1}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "room_name"}}, DoNothing: true}).
		Create(room)
	if res.Error != nil {
		return nil, false, storeErr("create room", res.Error)
	}
	if res.RowsAffected == 0 {
		// Lost the race to another connection; read its row.
		room, err = r.FindRoomByName(ctx, name)
		return room, false, err
	}
	return room, true, nil
}

// UpdateRoomState records the dialogue position and message count.
func (r *Repository) UpdateRoomState(ctx context.Context, roomID string, state int, msgCount int64) error {
	res := r.db.WithContext(ctx).Model(&ChatRoom{}).
		Where("id = ?", roomID).
		Updates(map[string]any{"current_state": state, "msg_count": msgCount})
	if res.Error != nil {
		return storeErr("update room", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateRoomMsgCount records the message count, leaving the state alone.
func (r *Repository) UpdateRoomMsgCount(ctx context.Context, roomID string, msgCount int64) error {
	res := r.db.WithContext(ctx).Model(&ChatRoom{}).
		Where("id = ?", roomID).
		Update("msg_count", msgCount)
	if res.Error != nil {
		return storeErr("update room", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendMessages inserts msgs, skipping any (room, seq) already stored.
func (r *Repository) AppendMessages(ctx context.Context, msgs []ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "room_id"}, {Name: "seq"}},
			DoNothing: true,
		}).
		CreateInBatches(msgs, 200).Error
	if err != nil {
		return storeErr("append messages", err)
	}
	return nil
}

// ListRecentMessages returns up to limit of the room's latest messages,
// oldest first.
func (r *Repository) ListRecentMessages(ctx context.Context, roomID string, limit int) ([]ChatMessage, error) {
	if limit <= 0 {
		return nil, nil
	}
	var msgs []ChatMessage
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("seq DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, storeErr("list messages", err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// CountMessages returns how many messages are stored for the room.
func (r *Repository) CountMessages(ctx context.Context, roomID string) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&ChatMessage{}).Where("room_id = ?", roomID).Count(&n).Error; err != nil {
		return 0, storeErr("count messages", err)
	}
	return n, nil
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate")
}

func storeErr(op string, err error) error {
	return types.NewStoreError(fmt.Sprintf("persistence: %s", op), err)
}
