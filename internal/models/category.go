package models

import (
	"time"

	"gorm.io/gorm"
)

// Category groups tasks. Implements the Ownable interface.
type Category struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at"`
	Deleted   bool           `gorm:"-" json:"deleted"`

	// UserID is the owner of this category
	UserID uint `gorm:"index;not null" json:"created_by"`
	User   User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`

	Name        string `gorm:"size:100;not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`
}

// GetUserID implements the Ownable interface for authorization.
func (c *Category) GetUserID() uint {
	return c.UserID
}

// AfterFind derives the deleted flag from the tombstone.
func (c *Category) AfterFind(*gorm.DB) error {
	c.Deleted = c.DeletedAt.Valid
	return nil
}
