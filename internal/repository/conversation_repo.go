package repository

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/converseapp/converse/internal/model"
)

// ConversationRepository handles database operations for Conversation
// and its participant rows.
type ConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// Create inserts a conversation together with its participant rows.
func (r *ConversationRepository) Create(conv *model.Conversation) error {
	return r.db.Create(conv).Error
}

// FindByID finds a conversation by ID with participants and settings
func (r *ConversationRepository) FindByID(id uuid.UUID) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.
		Preload("Participants.User").
		Preload("Settings").
		Where("id = ?", id).
		First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// FindDirect finds the direct conversation between two users via the
// canonical pair key.
func (r *ConversationRepository) FindDirect(userA, userB uuid.UUID) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.
		Preload("Participants.User").
		Where("direct_key = ?", model.DirectKeyFor(userA, userB)).
		First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// FindAIThread finds the user's singleton assistant thread.
func (r *ConversationRepository) FindAIThread(userID uuid.UUID) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.
		Joins("JOIN participants ON participants.conversation_id = conversations.id").
		Where("conversations.is_ai = TRUE").
		Where("participants.user_id = ?", userID).
		Preload("Participants.User").
		First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// GetUserConversations returns all conversations for a user, ordered by
// latest activity (newest first).
func (r *ConversationRepository) GetUserConversations(userID uuid.UUID) ([]model.Conversation, error) {
	var conversations []model.Conversation
	err := r.db.
		Joins("JOIN participants ON participants.conversation_id = conversations.id").
		Where("participants.user_id = ?", userID).
		Preload("Participants.User").
		Preload("Settings").
		Order("conversations.updated_at DESC").
		Find(&conversations).Error
	return conversations, err
}

// IsParticipant checks if a user belongs to a conversation
func (r *ConversationRepository) IsParticipant(conversationID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.Model(&model.Participant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	return count > 0, err
}

// GetParticipantIDs returns all participant user IDs for a conversation
func (r *ConversationRepository) GetParticipantIDs(conversationID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.Model(&model.Participant{}).
		Where("conversation_id = ?", conversationID).
		Pluck("user_id", &ids).Error
	return ids, err
}

// TouchUpdatedAt bumps the updated_at timestamp (to sort by latest activity)
func (r *ConversationRepository) TouchUpdatedAt(conversationID uuid.UUID) error {
	return r.db.Model(&model.Conversation{}).
		Where("id = ?", conversationID).
		Update("updated_at", gorm.Expr("NOW()")).Error
}

// Delete removes a conversation and everything hanging off it:
// reactions, receipts, messages, admins, settings, participants.
func (r *ConversationRepository) Delete(conversationID uuid.UUID) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		msgIDs := tx.Model(&model.Message{}).
			Select("id").
			Where("conversation_id = ?", conversationID)

		if err := tx.Where("message_id IN (?)", msgIDs).Delete(&model.Reaction{}).Error; err != nil {
			return err
		}
		if err := tx.Where("message_id IN (?)", msgIDs).Delete(&model.ReadReceipt{}).Error; err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", conversationID).Delete(&model.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", conversationID).Delete(&model.GroupAdmin{}).Error; err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", conversationID).Delete(&model.GroupSettings{}).Error; err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", conversationID).Delete(&model.Participant{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", conversationID).Delete(&model.Conversation{}).Error
	})
}

// CreateGroup creates the conversation, participant rows, the owner's
// admin row and the settings row as one transaction. Partial creation
// is never observable.
func (r *ConversationRepository) CreateGroup(conv *model.Conversation, settings *model.GroupSettings) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(conv).Error; err != nil {
			return err
		}
		if conv.OwnerID != nil {
			admin := model.GroupAdmin{ConversationID: conv.ID, UserID: *conv.OwnerID}
			if err := tx.Create(&admin).Error; err != nil {
				return err
			}
		}
		settings.ConversationID = conv.ID
		return tx.Create(settings).Error
	})
}
