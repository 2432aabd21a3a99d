package repository

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/converseapp/converse/internal/apperr"
	"github.com/converseapp/converse/internal/model"
)

// GroupRepository applies membership mutations to the relational
// Participant/GroupAdmin rows. Each mutation re-validates its invariant
// inside the transaction so two concurrent admin actions cannot both
// succeed against a stale read.
type GroupRepository struct {
	db *gorm.DB
}

func NewGroupRepository(db *gorm.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// LoadState loads the full membership snapshot for a group.
func (r *GroupRepository) LoadState(conversationID uuid.UUID) (*model.GroupState, error) {
	var state model.GroupState
	err := r.db.
		Where("id = ?", conversationID).
		First(&state.Conversation).Error
	if err != nil {
		return nil, err
	}
	if err := r.db.
		Where("conversation_id = ?", conversationID).
		First(&state.Settings).Error; err != nil && err != gorm.ErrRecordNotFound {
		return nil, err
	}
	if err := r.db.
		Where("conversation_id = ?", conversationID).
		Order("joined_at ASC, id ASC").
		Find(&state.Participants).Error; err != nil {
		return nil, err
	}
	if err := r.db.
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Find(&state.Admins).Error; err != nil {
		return nil, err
	}
	return &state, nil
}

// AddMember inserts the participant row and the system message in one
// transaction. The unique participant index resolves add races.
func (r *GroupRepository) AddMember(conversationID, userID uuid.UUID, sysMsg *model.Message) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Participant{}).
			Where("conversation_id = ? AND user_id = ?", conversationID, userID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return apperr.ErrAlreadyMember
		}
		participant := model.Participant{ConversationID: conversationID, UserID: userID}
		if err := tx.Create(&participant).Error; err != nil {
			return err
		}
		if err := tx.Create(sysMsg).Error; err != nil {
			return err
		}
		return tx.Model(&model.Conversation{}).
			Where("id = ?", conversationID).
			Update("updated_at", gorm.Expr("NOW()")).Error
	})
}

// RemoveMember deletes the participant and any admin row for the target
// and records the system message, one transaction. The owner check runs
// against the current row, not the caller's snapshot: removing the
// owner requires a successor (newOwnerID) chosen by the caller.
func (r *GroupRepository) RemoveMember(conversationID, targetID uuid.UUID, newOwnerID *uuid.UUID, sysMsg *model.Message) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var conv model.Conversation
		if err := tx.Where("id = ?", conversationID).First(&conv).Error; err != nil {
			return err
		}
		if conv.OwnerID != nil && *conv.OwnerID == targetID && newOwnerID == nil {
			return apperr.ErrCannotRemoveOwner
		}

		res := tx.Where("conversation_id = ? AND user_id = ?", conversationID, targetID).
			Delete(&model.Participant{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.ErrNotFound
		}
		if err := tx.Where("conversation_id = ? AND user_id = ?", conversationID, targetID).
			Delete(&model.GroupAdmin{}).Error; err != nil {
			return err
		}

		if newOwnerID != nil {
			if err := tx.Model(&model.Conversation{}).
				Where("id = ?", conversationID).
				Update("owner_id", *newOwnerID).Error; err != nil {
				return err
			}
			successor := model.GroupAdmin{ConversationID: conversationID, UserID: *newOwnerID}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&successor).Error; err != nil {
				return err
			}
		}

		if err := tx.Create(sysMsg).Error; err != nil {
			return err
		}
		return tx.Model(&model.Conversation{}).
			Where("id = ?", conversationID).
			Update("updated_at", gorm.Expr("NOW()")).Error
	})
}

// Promote inserts an admin row for an existing participant.
func (r *GroupRepository) Promote(conversationID, userID uuid.UUID) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Participant{}).
			Where("conversation_id = ? AND user_id = ?", conversationID, userID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return apperr.ErrNotParticipant
		}
		if err := tx.Model(&model.GroupAdmin{}).
			Where("conversation_id = ? AND user_id = ?", conversationID, userID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return apperr.ErrAlreadyAdmin
		}
		admin := model.GroupAdmin{ConversationID: conversationID, UserID: userID}
		return tx.Create(&admin).Error
	})
}

// Demote deletes the target's admin row.
func (r *GroupRepository) Demote(conversationID, userID uuid.UUID) error {
	res := r.db.
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Delete(&model.GroupAdmin{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.ErrNotAdmin
	}
	return nil
}
