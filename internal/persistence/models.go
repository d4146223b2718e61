package persistence

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChatRoom is the durable record of one room: which bot serves it, where its
// dialogue stands and how many messages have been flushed for it.
type ChatRoom struct {
	ID           string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	RoomName     string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"room_name"`
	BotName      string    `gorm:"type:varchar(255);not null;default:''" json:"bot_name"`
	CurrentState int       `gorm:"not null;default:1" json:"current_state"`
	MsgCount     int64     `gorm:"not null;default:0" json:"msg_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName pins the table name used by the SQL migrations.
func (ChatRoom) TableName() string { return "chat_rooms" }

// BeforeCreate assigns a UUID when none is set.
func (r *ChatRoom) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// ChatMessage is one flushed message. (RoomID, Seq) is unique so replaying a
// flush is harmless.
type ChatMessage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RoomID    string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_chat_messages_room_seq" json:"room_id"`
	Seq       int64     `gorm:"not null;uniqueIndex:idx_chat_messages_room_seq" json:"seq"`
	Sender    string    `gorm:"type:varchar(255);not null" json:"sender"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName pins the table name used by the SQL migrations.
func (ChatMessage) TableName() string { return "chat_messages" }
