package model

import (
	"time"

	"github.com/google/uuid"
)

// User is the minimal account record the messaging core needs: identity
// resolution happens upstream, this row exists so participant lists can
// be validated and previews can show names/avatars.
type User struct {
	ID       uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name     string    `json:"name" gorm:"size:100;not null"`
	Email    string    `json:"email" gorm:"uniqueIndex;not null;size:255"`
	Password string    `json:"-" gorm:"size:255"`
	Avatar   string    `json:"avatar" gorm:"size:500;default:''"`

	IsOnline  bool       `json:"is_online" gorm:"default:false"`
	LastSeen  *time.Time `json:"last_seen"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
