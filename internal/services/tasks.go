package services

import (
	"context"
	"fmt"
	"time"

	"github.com/diewo77/go-tasks/gate"
	"github.com/diewo77/go-tasks/internal/models"
	"github.com/diewo77/go-tasks/internal/policy"
	"github.com/diewo77/go-tasks/validation"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var taskFields = listFields{
	search: []string{"title", "description", "status"},
	order:  []string{"created_at", "status"},
}

// CreateTaskRequest is the body accepted when creating a task.
type CreateTaskRequest struct {
	Title       string     `json:"title" validate:"required,max=100"`
	Description string     `json:"description"`
	Status      string     `json:"status" validate:"omitempty,oneof=new in_progress completed"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at"`
	Category    *uint      `json:"category"`
	Priority    *uint      `json:"priority"`
}

// UpdateTaskRequest is a partial task update: nil fields are left untouched.
type UpdateTaskRequest struct {
	Title       *string    `json:"title" validate:"omitempty,max=100"`
	Description *string    `json:"description"`
	Status      *string    `json:"status" validate:"omitempty,oneof=new in_progress completed"`
	Completed   *bool      `json:"completed"`
	CompletedAt *time.Time `json:"completed_at"`
	Category    OptionalID `json:"category"`
	Priority    OptionalID `json:"priority"`
}

type TaskService struct {
	db   *gorm.DB
	gate *policy.Gate
	now  func() time.Time
}

func NewTaskService(db *gorm.DB, g *policy.Gate) *TaskService {
	return &TaskService{db: db, gate: g, now: time.Now}
}

// List returns the tasks visible to user.
func (s *TaskService) List(ctx context.Context, user *models.User, opts ListOptions) ([]models.Task, error) {
	if err := gateErr(s.gate.Authorize(ctx, user, gate.ActionList, policy.ResourceTask, nil)); err != nil {
		return nil, err
	}
	if err := checkIncludeDeleted(user, opts.IncludeDeleted); err != nil {
		return nil, err
	}

	q := visible(s.db.WithContext(ctx), user, opts.IncludeDeleted)
	if opts.Status != "" {
		v := validation.Violations{}
		validation.OneOf("status", opts.Status, models.TaskStatuses, v)
		if err := v.Err(); err != nil {
			return nil, err
		}
		q = q.Where("status = ?", opts.Status)
	}
	if opts.CategoryID != nil {
		q = q.Where("category_id = ?", *opts.CategoryID)
	}
	if opts.PriorityID != nil {
		q = q.Where("priority_id = ?", *opts.PriorityID)
	}
	q, err := applyList(q, opts, taskFields)
	if err != nil {
		return nil, err
	}

	tasks := []models.Task{}
	if err := q.Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// Get returns one task.
func (s *TaskService) Get(ctx context.Context, user *models.User, id uint, includeDeleted bool) (*models.Task, error) {
	if err := requireUser(user); err != nil {
		return nil, err
	}
	if err := checkIncludeDeleted(user, includeDeleted); err != nil {
		return nil, err
	}
	task, err := findVisible[models.Task](ctx, s.db, user, id, includeDeleted)
	if err != nil {
		return nil, err
	}
	if err := gateErr(s.gate.Authorize(ctx, user, gate.ActionView, policy.ResourceTask, task)); err != nil {
		return nil, err
	}
	return task, nil
}

// Create stores a new task owned by user.
func (s *TaskService) Create(ctx context.Context, user *models.User, req CreateTaskRequest) (*models.Task, error) {
	if err := gateErr(s.gate.Authorize(ctx, user, gate.ActionCreate, policy.ResourceTask, nil)); err != nil {
		return nil, err
	}
	v := validation.Violations{}
	validation.Struct(req, v)
	if _, ok := v["title"]; !ok {
		validation.Required("title", req.Title, v)
	}
	s.checkRefs(ctx, user, req.Category, req.Priority, v)
	if err := v.Err(); err != nil {
		return nil, err
	}

	task := models.Task{
		UserID:      user.ID,
		Title:       req.Title,
		Description: req.Description,
		Status:      models.TaskStatus(req.Status),
		Completed:   req.Completed,
		CompletedAt: req.CompletedAt,
		CategoryID:  req.Category,
		PriorityID:  req.Priority,
	}
	if task.Status == "" {
		task.Status = models.TaskStatusNew
	}
	task.SyncCompletedAt(s.now())

	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&task).Error; err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return &task, nil
}

// Update applies a partial update to a task.
func (s *TaskService) Update(ctx context.Context, user *models.User, id uint, req UpdateTaskRequest) (*models.Task, error) {
	if err := requireUser(user); err != nil {
		return nil, err
	}
	task, err := findVisible[models.Task](ctx, s.db, user, id, false)
	if err != nil {
		return nil, err
	}
	if err := gateErr(s.gate.Authorize(ctx, user, gate.ActionUpdate, policy.ResourceTask, task)); err != nil {
		return nil, err
	}

	v := validation.Violations{}
	validation.Struct(req, v)
	if req.Title != nil {
		if _, ok := v["title"]; !ok {
			validation.Required("title", *req.Title, v)
		}
	}
	var category, priority *uint
	if req.Category.Set {
		category = req.Category.ID
	}
	if req.Priority.Set {
		priority = req.Priority.ID
	}
	s.checkRefs(ctx, user, category, priority, v)
	if err := v.Err(); err != nil {
		return nil, err
	}

	if req.Title != nil {
		task.Title = *req.Title
	}
	if req.Description != nil {
		task.Description = *req.Description
	}
	if req.Status != nil {
		task.Status = models.TaskStatus(*req.Status)
	}
	if req.Completed != nil {
		task.Completed = *req.Completed
	}
	if req.CompletedAt != nil {
		task.CompletedAt = req.CompletedAt
	}
	if req.Category.Set {
		task.CategoryID = req.Category.ID
	}
	if req.Priority.Set {
		task.PriorityID = req.Priority.ID
	}
	task.SyncCompletedAt(s.now())

	if err := s.db.WithContext(ctx).Omit(clause.Associations).Save(task).Error; err != nil {
		return nil, fmt.Errorf("update task %d: %w", id, err)
	}
	return task, nil
}

// Delete removes a task. Admins delete it for good; everyone else leaves a
// soft-deleted row behind.
func (s *TaskService) Delete(ctx context.Context, user *models.User, id uint, includeDeleted bool) error {
	if err := requireUser(user); err != nil {
		return err
	}
	if err := checkIncludeDeleted(user, includeDeleted); err != nil {
		return err
	}
	task, err := findVisible[models.Task](ctx, s.db, user, id, includeDeleted)
	if err != nil {
		return err
	}
	if err := gateErr(s.gate.Authorize(ctx, user, gate.ActionDelete, policy.ResourceTask, task)); err != nil {
		return err
	}

	q := s.db.WithContext(ctx)
	if user.IsAdmin {
		q = q.Unscoped()
	}
	if err := q.Delete(&models.Task{}, task.ID).Error; err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	return nil
}

// checkRefs records a violation for every category or priority reference that
// does not point at a live record visible to user.
func (s *TaskService) checkRefs(ctx context.Context, user *models.User, category, priority *uint, v validation.Violations) {
	if category != nil {
		if _, err := findVisible[models.Category](ctx, s.db, user, *category, false); err != nil {
			v["category"] = "does_not_exist"
		}
	}
	if priority != nil {
		if _, err := findVisible[models.Priority](ctx, s.db, user, *priority, false); err != nil {
			v["priority"] = "does_not_exist"
		}
	}
}
