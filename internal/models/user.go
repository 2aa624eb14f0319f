package models

import "time"

// User represents an account in the system.
// Users are deactivated rather than deleted by self-service.
type User struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Username  string     `gorm:"uniqueIndex;size:150;not null" json:"username"`
	Email     string     `gorm:"size:255" json:"email"`
	Password  string     `gorm:"size:255;not null" json:"-"` // Hashed, never exposed in JSON
	IsActive  bool       `gorm:"not null;default:true" json:"is_active"`
	IsAdmin   bool       `gorm:"not null;default:false" json:"is_admin"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

// GetUserID implements the Ownable interface: a user owns itself.
func (u *User) GetUserID() uint {
	return u.ID
}
