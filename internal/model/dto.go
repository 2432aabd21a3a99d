package model

import (
	"time"

	"github.com/google/uuid"
)

// ========== Conversation DTOs ==========

// ParticipantRef is the single well-typed participant input contract.
// Clients send ids only; normalization happens once at ingress.
type ParticipantRef struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

type CreateGroupRequest struct {
	Name         string              `json:"name" binding:"required,min=1,max=100"`
	Description  string              `json:"description" binding:"max=500"`
	Participants []ParticipantRef    `json:"participants" binding:"required,min=1,dive"`
	Settings     *GroupSettingsInput `json:"settings"`
}

// GroupSettingsInput carries optional settings at group creation.
// Nil fields fall back to defaults.
type GroupSettingsInput struct {
	IsPrivate          *bool `json:"is_private"`
	AllowMemberInvites *bool `json:"allow_member_invites"`
	RequireApproval    *bool `json:"require_approval"`
	MuteNotifications  *bool `json:"mute_notifications"`
}

type AddMemberRequest struct {
	Participant ParticipantRef `json:"participant" binding:"required"`
}

// ConversationResponse decorates a conversation for the inbox list.
type ConversationResponse struct {
	Conversation
	UnreadCount int `json:"unread_count"`
}

// ========== Message DTOs ==========

type SendMessageRequest struct {
	Content      string `json:"content" binding:"required_without=FileURL"`
	FileURL      string `json:"file_url,omitempty"`
	FileName     string `json:"file_name,omitempty"`
	FileMimeType string `json:"file_mime_type,omitempty"`
	FileSize     int64  `json:"file_size,omitempty"`
}

// FileOnly reports whether the request carries an attachment but no text.
func (r SendMessageRequest) FileOnly() bool {
	return r.Content == "" && r.FileURL != ""
}

type MessageListRequest struct {
	Before string `form:"before"` // cursor: message ID to page before
	Limit  int    `form:"limit,default=50"`
}

// ReadMarker is the per-user read annotation projected into history.
type ReadMarker struct {
	UserID uuid.UUID `json:"user_id"`
	ReadAt time.Time `json:"read_at"`
}

// MessageResponse is a message with its reaction groups and read
// markers projected in, as returned by history.
type MessageResponse struct {
	Message
	Reactions []ReactionGroup `json:"reactions"`
	ReadBy    []ReadMarker    `json:"read_by"`
}

type ReactionRequest struct {
	Emoji string `json:"emoji" binding:"required,min=1,max=32"`
}

// ========== WebSocket Event DTOs ==========

type WSEvent struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// Broadcast event names
const (
	WSEventReceiveMessage  = "receiveMessage"
	WSEventMessageDeleted  = "messageDeleted"
	WSEventMessageRead     = "messageRead"
	WSEventTyping          = "typing"
	WSEventStopTyping      = "stopTyping"
	WSEventGroupCreated    = "groupCreated"
	WSEventMemberAdded     = "memberAdded"
	WSEventMemberRemoved   = "memberRemoved"
	WSEventGroupDeleted    = "groupDeleted"
	WSEventReactionAdded   = "reactionAdded"
	WSEventReactionRemoved = "reactionRemoved"
	WSEventOnline          = "online"
	WSEventOffline         = "offline"
)

// TypingEvent is ephemeral: relayed to the conversation room, never
// persisted, no delivery guarantee.
type TypingEvent struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
}

type MessageReadEvent struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	MessageID      uuid.UUID `json:"message_id"`
	UserID         uuid.UUID `json:"user_id"`
	ReadAt         time.Time `json:"read_at"`
}

type MessageDeletedEvent struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	MessageID      uuid.UUID `json:"message_id"`
}

type ReactionEvent struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	MessageID      uuid.UUID `json:"message_id"`
	UserID         uuid.UUID `json:"user_id"`
	Emoji          string    `json:"emoji"`
}

type MembershipEvent struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
	ActorID        uuid.UUID `json:"actor_id"`
}

type OnlineEvent struct {
	UserID   uuid.UUID `json:"user_id"`
	IsOnline bool      `json:"is_online"`
}

// ========== Upload DTOs ==========

// UploadResponse is returned after a successful file upload
type UploadResponse struct {
	URL      string `json:"url"`
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
	MimeType string `json:"mime_type"`
}

// ========== Common ==========

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
