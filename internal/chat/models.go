package chat

import (
	"time"

	"gorm.io/datatypes"
)

type Session struct {
	ID            uint64     `gorm:"primaryKey;autoIncrement" json:"-"`
	SessionID     string     `gorm:"type:varchar(26);uniqueIndex;not null" json:"session_id"`
	ClientID      uint64     `gorm:"index;not null" json:"client_id"`
	Title         string     `gorm:"type:varchar(255);not null" json:"title"`
	IsActive      bool       `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time  `json:"created_at"`
	LastMessageAt *time.Time `gorm:"index" json:"last_message_at"`
}

func (Session) TableName() string { return "chat_sessions" }

// Message is one stored turn. Rows are never updated; closing or deleting a session leaves them.
type Message struct {
	ID        uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID string         `gorm:"type:varchar(26);not null;index:idx_chat_msg_session_created,priority:1" json:"session_id"`
	Role      string         `gorm:"type:varchar(16);not null" json:"role"`
	Content   string         `gorm:"type:text;not null" json:"content"`
	Metadata  datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt time.Time      `gorm:"index:idx_chat_msg_session_created,priority:2" json:"created_at"`
}

func (Message) TableName() string { return "chat_messages" }
