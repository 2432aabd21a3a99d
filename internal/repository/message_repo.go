package repository

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/converseapp/converse/internal/model"
)

// MessageRepository handles database operations for Message
type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create inserts a new message
func (r *MessageRepository) Create(msg *model.Message) error {
	return r.db.Create(msg).Error
}

// FindByID finds a message by ID
func (r *MessageRepository) FindByID(id uuid.UUID) (*model.Message, error) {
	var msg model.Message
	err := r.db.
		Preload("Sender").
		Where("id = ?", id).
		First(&msg).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetConversationMessages returns the newest page of a conversation's
// messages, ascending by creation time with ties broken by id. The
// fetch runs descending so the limit keeps the latest rows; the page is
// reversed before returning. A before cursor pages into older history.
func (r *MessageRepository) GetConversationMessages(conversationID uuid.UUID, before *uuid.UUID, limit int) ([]model.Message, error) {
	messages := []model.Message{}
	query := r.db.
		Preload("Sender").
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC")

	if before != nil {
		var beforeMsg model.Message
		if err := r.db.Select("created_at").Where("id = ?", before).First(&beforeMsg).Error; err != nil {
			return nil, err
		}
		query = query.Where("created_at < ?", beforeMsg.CreatedAt)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&messages).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// GetLastMessage returns the most recent message in a conversation
func (r *MessageRepository) GetLastMessage(conversationID uuid.UUID) (*model.Message, error) {
	var msg model.Message
	err := r.db.
		Preload("Sender").
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC").
		First(&msg).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// CountUnread counts messages from others that the user has not yet
// marked read.
func (r *MessageRepository) CountUnread(conversationID, userID uuid.UUID) (int64, error) {
	var count int64
	readIDs := r.db.Model(&model.ReadReceipt{}).
		Select("message_id").
		Where("user_id = ?", userID)

	err := r.db.Model(&model.Message{}).
		Where("conversation_id = ? AND sender_id != ?", conversationID, userID).
		Where("id NOT IN (?)", readIDs).
		Count(&count).Error
	return count, err
}

// Delete removes a message and its reactions and receipts.
func (r *MessageRepository) Delete(messageID uuid.UUID) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("message_id = ?", messageID).Delete(&model.Reaction{}).Error; err != nil {
			return err
		}
		if err := tx.Where("message_id = ?", messageID).Delete(&model.ReadReceipt{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", messageID).Delete(&model.Message{}).Error
	})
}
