package models

import "time"

// Token is the server-side record of an issued bearer token.
// Deleting the row revokes the token.
type Token struct {
	ID         uint       `gorm:"primaryKey" json:"-"`
	Key        string     `gorm:"uniqueIndex;size:64;not null" json:"-"`
	UserID     uint       `gorm:"index;not null" json:"-"`
	User       User       `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `gorm:"index;not null" json:"expires_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// TableName keeps tokens in their own namespace.
func (Token) TableName() string { return "auth_tokens" }

// Expired reports whether the token is past its expiry at now.
func (t *Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
