package repository

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/converseapp/converse/internal/model"
)

// ReceiptRepository handles database operations for ReadReceipt
type ReceiptRepository struct {
	db *gorm.DB
}

func NewReceiptRepository(db *gorm.DB) *ReceiptRepository {
	return &ReceiptRepository{db: db}
}

// Upsert records that a user read a message. Re-marking refreshes
// read_at via ON CONFLICT, so repeated calls never error.
func (r *ReceiptRepository) Upsert(messageID, userID uuid.UUID, readAt time.Time) error {
	receipt := model.ReadReceipt{
		MessageID: messageID,
		UserID:    userID,
		ReadAt:    readAt,
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_id"}, {Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"read_at": readAt}),
	}).Create(&receipt).Error
}

// ListForMessages batch-loads receipts for a history page.
func (r *ReceiptRepository) ListForMessages(messageIDs []uuid.UUID) ([]model.ReadReceipt, error) {
	var receipts []model.ReadReceipt
	if len(messageIDs) == 0 {
		return receipts, nil
	}
	err := r.db.
		Where("message_id IN ?", messageIDs).
		Order("read_at ASC").
		Find(&receipts).Error
	return receipts, err
}
