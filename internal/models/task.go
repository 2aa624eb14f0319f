package models

import (
	"time"

	"gorm.io/gorm"
)

// TaskStatus represents the workflow state of a task.
// Any transition is allowed; completion is tracked by Task.Completed.
type TaskStatus string

const (
	TaskStatusNew        TaskStatus = "new"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
)

// TaskStatuses lists the accepted status values.
var TaskStatuses = []string{
	string(TaskStatusNew),
	string(TaskStatusInProgress),
	string(TaskStatusCompleted),
}

// TitleMaxLength bounds Task.Title, Category.Name and Priority.Name.
const TitleMaxLength = 100

// Task represents a unit of work owned by a user.
// Implements the Ownable interface for ownership-based authorization.
type Task struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at"`
	Deleted   bool           `gorm:"-" json:"deleted"`

	// UserID is the creator and owner of this task
	UserID uint `gorm:"index;not null" json:"created_by"`
	User   User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`

	Title       string     `gorm:"size:100;not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	Status      TaskStatus `gorm:"size:25;not null;default:'new'" json:"status"`

	// Completed drives CompletedAt: set iff Completed is true.
	Completed   bool       `gorm:"not null;default:false" json:"completed"`
	CompletedAt *time.Time `json:"completed_at"`

	CategoryID *uint     `gorm:"index" json:"category"`
	Category   *Category `gorm:"foreignKey:CategoryID;constraint:OnDelete:SET NULL" json:"-"`
	PriorityID *uint     `gorm:"index" json:"priority"`
	Priority   *Priority `gorm:"foreignKey:PriorityID;constraint:OnDelete:SET NULL" json:"-"`
}

// GetUserID implements the Ownable interface for authorization.
func (t *Task) GetUserID() uint {
	return t.UserID
}

// AfterFind derives the deleted flag from the tombstone.
func (t *Task) AfterFind(*gorm.DB) error {
	t.Deleted = t.DeletedAt.Valid
	return nil
}

// SyncCompletedAt enforces the completed/completed_at invariant.
// A completed task without a timestamp is stamped with now; an open task
// never keeps one.
func (t *Task) SyncCompletedAt(now time.Time) {
	if !t.Completed {
		t.CompletedAt = nil
		return
	}
	if t.CompletedAt == nil {
		stamp := now
		t.CompletedAt = &stamp
	}
}
