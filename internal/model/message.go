package model

import (
	"time"

	"github.com/google/uuid"
)

// MessageType defines the type of message content
type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeFile   MessageType = "file"
	MessageTypeSystem MessageType = "system" // membership events, authored by the platform
)

// Message represents a chat message. Rows are append-only: a message is
// never mutated after creation, only deleted by its sender.
type Message struct {
	ID             uuid.UUID   `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ConversationID uuid.UUID   `json:"conversation_id" gorm:"type:uuid;index;not null"`
	SenderID       uuid.UUID   `json:"sender_id" gorm:"type:uuid;index;not null"`
	ReceiverID     *uuid.UUID  `json:"receiver_id,omitempty" gorm:"type:uuid"` // direct chats only: the other party
	Content        string      `json:"content" gorm:"type:text"`               // empty allowed for file-only messages
	Type           MessageType `json:"type" gorm:"type:varchar(20);default:'text'"`
	FileURL        string      `json:"file_url,omitempty" gorm:"size:500"`
	FileName       string      `json:"file_name,omitempty" gorm:"size:255"`
	FileMimeType   string      `json:"file_mime_type,omitempty" gorm:"size:100"`
	FileSize       int64       `json:"file_size,omitempty"`
	IsAI           bool        `json:"is_ai" gorm:"not null;default:false"` // authored by the assistant
	CreatedAt      time.Time   `json:"created_at"`                          // immutable, defines history order

	// Relations
	Sender       User         `json:"sender" gorm:"foreignKey:SenderID"`
	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID"`
}

// Reaction is a (message, user, emoji) tagging. The unique triple lets a
// user hold several different emojis on one message but never the same
// emoji twice.
type Reaction struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	MessageID uuid.UUID `json:"message_id" gorm:"type:uuid;uniqueIndex:idx_msg_user_emoji;not null"`
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;uniqueIndex:idx_msg_user_emoji;not null"`
	Emoji     string    `json:"emoji" gorm:"size:32;uniqueIndex:idx_msg_user_emoji;not null"`
	CreatedAt time.Time `json:"created_at"`

	// Relations
	Message Message `json:"-" gorm:"foreignKey:MessageID"`
}

// ReactionGroup is the per-emoji projection of a message's reactions:
// count plus the reacting user ids.
type ReactionGroup struct {
	Emoji string      `json:"emoji"`
	Count int         `json:"count"`
	Users []uuid.UUID `json:"users"`
}

// ReadReceipt tracks when a user read a message. (message_id, user_id)
// is unique; re-marking refreshes read_at instead of erroring.
type ReadReceipt struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	MessageID uuid.UUID `json:"message_id" gorm:"type:uuid;uniqueIndex:idx_msg_reader;not null"`
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;uniqueIndex:idx_msg_reader;not null"`
	ReadAt    time.Time `json:"read_at" gorm:"not null"`

	// Relations
	Message Message `json:"-" gorm:"foreignKey:MessageID"`
}
