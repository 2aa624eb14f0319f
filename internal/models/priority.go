package models

import (
	"time"

	"gorm.io/gorm"
)

// Priority ranks tasks. Implements the Ownable interface.
type Priority struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at"`
	Deleted   bool           `gorm:"-" json:"deleted"`

	UserID uint `gorm:"index;not null" json:"created_by"`
	User   User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`

	Name string `gorm:"size:100;not null" json:"name"`
}

// GetUserID implements the Ownable interface for authorization.
func (p *Priority) GetUserID() uint {
	return p.UserID
}

// AfterFind derives the deleted flag from the tombstone.
func (p *Priority) AfterFind(*gorm.DB) error {
	p.Deleted = p.DeletedAt.Valid
	return nil
}
