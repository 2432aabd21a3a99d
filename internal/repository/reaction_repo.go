package repository

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/converseapp/converse/internal/model"
)

// ReactionRepository handles database operations for Reaction
type ReactionRepository struct {
	db *gorm.DB
}

func NewReactionRepository(db *gorm.DB) *ReactionRepository {
	return &ReactionRepository{db: db}
}

// Create inserts a reaction. The unique (message, user, emoji) index is
// authoritative under concurrent adds.
func (r *ReactionRepository) Create(reaction *model.Reaction) error {
	return r.db.Create(reaction).Error
}

// Exists reports whether the exact (message, user, emoji) triple is present.
func (r *ReactionRepository) Exists(messageID, userID uuid.UUID, emoji string) (bool, error) {
	var count int64
	err := r.db.Model(&model.Reaction{}).
		Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).
		Count(&count).Error
	return count > 0, err
}

// Delete removes the triple and reports how many rows went away.
func (r *ReactionRepository) Delete(messageID, userID uuid.UUID, emoji string) (int64, error) {
	res := r.db.
		Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).
		Delete(&model.Reaction{})
	return res.RowsAffected, res.Error
}

// ListForMessage returns all reactions on one message, oldest first.
func (r *ReactionRepository) ListForMessage(messageID uuid.UUID) ([]model.Reaction, error) {
	var reactions []model.Reaction
	err := r.db.
		Where("message_id = ?", messageID).
		Order("created_at ASC").
		Find(&reactions).Error
	return reactions, err
}

// ListForMessages batch-loads reactions for a history page.
func (r *ReactionRepository) ListForMessages(messageIDs []uuid.UUID) ([]model.Reaction, error) {
	var reactions []model.Reaction
	if len(messageIDs) == 0 {
		return reactions, nil
	}
	err := r.db.
		Where("message_id IN ?", messageIDs).
		Order("created_at ASC").
		Find(&reactions).Error
	return reactions, err
}
