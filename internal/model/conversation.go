package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Conversation represents a chat thread: a direct 1-1 chat, a named
// group, or a per-user assistant thread.
type Conversation struct {
	ID          uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	IsGroup     bool       `json:"is_group" gorm:"not null;default:false"`
	IsAI        bool       `json:"is_ai" gorm:"not null;default:false"`
	Name        string     `json:"name,omitempty" gorm:"size:100"`        // group name, empty for direct
	Description string     `json:"description,omitempty" gorm:"size:500"` // group description
	OwnerID     *uuid.UUID `json:"owner_id,omitempty" gorm:"type:uuid"`   // set iff group

	// Normalized "smallerID:largerID" pair for direct conversations.
	// The unique index makes concurrent creation converge to one row.
	DirectKey *string `json:"-" gorm:"uniqueIndex;size:80"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"` // bumped on every message, drives inbox order

	// Relations
	Participants []Participant  `json:"participants,omitempty" gorm:"foreignKey:ConversationID"`
	Settings     *GroupSettings `json:"settings,omitempty" gorm:"foreignKey:ConversationID"`
	LastMessage  *Message       `json:"last_message,omitempty" gorm:"-"` // populated manually
}

// DirectKeyFor builds the canonical lookup key for a direct conversation
// between two users, independent of argument order.
func DirectKeyFor(a, b uuid.UUID) string {
	if a.String() > b.String() {
		a, b = b, a
	}
	return fmt.Sprintf("%s:%s", a, b)
}

// Participant represents a user's membership in a conversation.
// (conversation_id, user_id) is unique.
type Participant struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ConversationID uuid.UUID `json:"conversation_id" gorm:"type:uuid;uniqueIndex:idx_conv_participant;not null"`
	UserID         uuid.UUID `json:"user_id" gorm:"type:uuid;uniqueIndex:idx_conv_participant;not null"`
	JoinedAt       time.Time `json:"joined_at" gorm:"autoCreateTime"`

	// Relations
	User         User         `json:"user" gorm:"foreignKey:UserID"`
	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID"`
}

// GroupSettings holds per-group behavior flags, one-to-one with a group
// conversation. Created alongside the group with defaults if omitted.
type GroupSettings struct {
	ID                 uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ConversationID     uuid.UUID `json:"conversation_id" gorm:"type:uuid;uniqueIndex;not null"`
	IsPrivate          bool      `json:"is_private" gorm:"default:false"`
	AllowMemberInvites bool      `json:"allow_member_invites" gorm:"default:false"`
	RequireApproval    bool      `json:"require_approval" gorm:"default:false"`
	MuteNotifications  bool      `json:"mute_notifications" gorm:"default:false"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// GroupAdmin marks elevated privilege within a group. The owner always
// holds an admin row; it moves only when ownership moves.
type GroupAdmin struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ConversationID uuid.UUID `json:"conversation_id" gorm:"type:uuid;uniqueIndex:idx_conv_admin;not null"`
	UserID         uuid.UUID `json:"user_id" gorm:"type:uuid;uniqueIndex:idx_conv_admin;not null"`
	CreatedAt      time.Time `json:"created_at"`
}
