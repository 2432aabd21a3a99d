package repository

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/converseapp/converse/internal/model"
)

// UserRepository handles database operations for User
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user
func (r *UserRepository) Create(user *model.User) error {
	return r.db.Create(user).Error
}

// FindByID finds a user by UUID
func (r *UserRepository) FindByID(id uuid.UUID) (*model.User, error) {
	var user model.User
	err := r.db.Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CountByIDs returns how many of the given ids exist. Used to validate
// group participant lists in one query.
func (r *UserRepository) CountByIDs(ids []uuid.UUID) (int64, error) {
	var count int64
	err := r.db.Model(&model.User{}).
		Where("id IN ?", ids).
		Count(&count).Error
	return count, err
}

// UpdateOnlineStatus sets a user's online status and last seen time
func (r *UserRepository) UpdateOnlineStatus(id uuid.UUID, isOnline bool) error {
	updates := map[string]interface{}{
		"is_online": isOnline,
	}
	if !isOnline {
		updates["last_seen"] = time.Now()
	}
	return r.db.Model(&model.User{}).
		Where("id = ?", id).
		Updates(updates).Error
}
