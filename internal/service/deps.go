package service

import (
	"time"

	"github.com/google/uuid"

	"github.com/converseapp/converse/internal/model"
)

// Broadcaster is the real-time fan-out dependency. Publishes are
// fire-and-forget: no sessions in a room is a silent no-op, and a
// failed delivery never affects the durable write that preceded it.
type Broadcaster interface {
	PublishToConversation(conversationID uuid.UUID, event string, payload interface{})
	PublishToUser(userID uuid.UUID, event string, payload interface{})
}

// NopBroadcaster discards all publishes. Used by the seeder and as a
// safe default when no hub is attached.
type NopBroadcaster struct{}

func (NopBroadcaster) PublishToConversation(uuid.UUID, string, interface{}) {}
func (NopBroadcaster) PublishToUser(uuid.UUID, string, interface{})         {}

// ConversationStore is the persistence surface for conversations and
// participant rows. Implemented by repository.ConversationRepository.
type ConversationStore interface {
	Create(conv *model.Conversation) error
	FindByID(id uuid.UUID) (*model.Conversation, error)
	FindDirect(userA, userB uuid.UUID) (*model.Conversation, error)
	FindAIThread(userID uuid.UUID) (*model.Conversation, error)
	GetUserConversations(userID uuid.UUID) ([]model.Conversation, error)
	IsParticipant(conversationID, userID uuid.UUID) (bool, error)
	GetParticipantIDs(conversationID uuid.UUID) ([]uuid.UUID, error)
	TouchUpdatedAt(conversationID uuid.UUID) error
	Delete(conversationID uuid.UUID) error
	CreateGroup(conv *model.Conversation, settings *model.GroupSettings) error
}

// MessageStore is the append-only message ledger surface. Implemented
// by repository.MessageRepository.
type MessageStore interface {
	Create(msg *model.Message) error
	FindByID(id uuid.UUID) (*model.Message, error)
	GetConversationMessages(conversationID uuid.UUID, before *uuid.UUID, limit int) ([]model.Message, error)
	GetLastMessage(conversationID uuid.UUID) (*model.Message, error)
	CountUnread(conversationID, userID uuid.UUID) (int64, error)
	Delete(messageID uuid.UUID) error
}

// ReactionStore is implemented by repository.ReactionRepository.
type ReactionStore interface {
	Create(reaction *model.Reaction) error
	Exists(messageID, userID uuid.UUID, emoji string) (bool, error)
	Delete(messageID, userID uuid.UUID, emoji string) (int64, error)
	ListForMessage(messageID uuid.UUID) ([]model.Reaction, error)
	ListForMessages(messageIDs []uuid.UUID) ([]model.Reaction, error)
}

// ReceiptStore is implemented by repository.ReceiptRepository.
type ReceiptStore interface {
	Upsert(messageID, userID uuid.UUID, readAt time.Time) error
	ListForMessages(messageIDs []uuid.UUID) ([]model.ReadReceipt, error)
}

// UserStore is implemented by repository.UserRepository.
type UserStore interface {
	FindByID(id uuid.UUID) (*model.User, error)
	CountByIDs(ids []uuid.UUID) (int64, error)
}

// GroupStore applies membership mutations transactionally. Implemented
// by repository.GroupRepository.
type GroupStore interface {
	LoadState(conversationID uuid.UUID) (*model.GroupState, error)
	AddMember(conversationID, userID uuid.UUID, sysMsg *model.Message) error
	RemoveMember(conversationID, targetID uuid.UUID, newOwnerID *uuid.UUID, sysMsg *model.Message) error
	Promote(conversationID, userID uuid.UUID) error
	Demote(conversationID, userID uuid.UUID) error
}
