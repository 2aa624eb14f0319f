package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/diewo77/go-tasks/gate"
	"github.com/diewo77/go-tasks/internal/models"
	"github.com/diewo77/go-tasks/internal/policy"
	"github.com/diewo77/go-tasks/validation"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var priorityFields = listFields{
	search: []string{"name"},
	order:  []string{"created_at", "name"},
}

type CreatePriorityRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type UpdatePriorityRequest struct {
	Name *string `json:"name" validate:"omitempty,max=100"`
}

type PriorityService struct {
	db   *gorm.DB
	gate *policy.Gate
}

func NewPriorityService(db *gorm.DB, g *policy.Gate) *PriorityService {
	return &PriorityService{db: db, gate: g}
}

func (s *PriorityService) List(ctx context.Context, user *models.User, opts ListOptions) ([]models.Priority, error) {
	if err := gateErr(s.gate.Authorize(ctx, user, gate.ActionList, policy.ResourcePriority, nil)); err != nil {
		return nil, err
	}
	if err := checkIncludeDeleted(user, opts.IncludeDeleted); err != nil {
		return nil, err
	}
	q, err := applyList(visible(s.db.WithContext(ctx), user, opts.IncludeDeleted), opts, priorityFields)
	if err != nil {
		return nil, err
	}
	priorities := []models.Priority{}
	if err := q.Find(&priorities).Error; err != nil {
		return nil, fmt.Errorf("list priorities: %w", err)
	}
	return priorities, nil
}

func (s *PriorityService) Get(ctx context.Context, user *models.User, id uint, includeDeleted bool) (*models.Priority, error) {
	if err := requireUser(user); err != nil {
		return nil, err
	}
	if err := checkIncludeDeleted(user, includeDeleted); err != nil {
		return nil, err
	}
	p, err := findVisible[models.Priority](ctx, s.db, user, id, includeDeleted)
	if err != nil {
		return nil, err
	}
	if err := gateErr(s.gate.Authorize(ctx, user, gate.ActionView, policy.ResourcePriority, p)); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PriorityService) Create(ctx context.Context, user *models.User, req CreatePriorityRequest) (*models.Priority, error) {
	if err := gateErr(s.gate.Authorize(ctx, user, gate.ActionCreate, policy.ResourcePriority, nil)); err != nil {
		return nil, err
	}
	req.Name = strings.TrimSpace(req.Name)
	v := validation.Violations{}
	validation.Struct(req, v)
	if v.Empty() {
		if err := uniqueName[models.Priority](ctx, s.db, user.ID, 0, req.Name); err != nil {
			return nil, err
		}
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	p := models.Priority{UserID: user.ID, Name: req.Name}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, validation.Single("name", "already_exists")
		}
		return nil, fmt.Errorf("create priority: %w", err)
	}
	return &p, nil
}

func (s *PriorityService) Update(ctx context.Context, user *models.User, id uint, req UpdatePriorityRequest) (*models.Priority, error) {
	if err := requireUser(user); err != nil {
		return nil, err
	}
	p, err := findVisible[models.Priority](ctx, s.db, user, id, false)
	if err != nil {
		return nil, err
	}
	if err := gateErr(s.gate.Authorize(ctx, user, gate.ActionUpdate, policy.ResourcePriority, p)); err != nil {
		return nil, err
	}
	if req.Name == nil {
		return p, nil
	}

	name := strings.TrimSpace(*req.Name)
	v := validation.Violations{}
	validation.Required("name", name, v)
	validation.MaxLength("name", name, models.TitleMaxLength, v)
	if err := v.Err(); err != nil {
		return nil, err
	}
	if err := uniqueName[models.Priority](ctx, s.db, p.UserID, p.ID, name); err != nil {
		return nil, err
	}

	p.Name = name
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Save(p).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, validation.Single("name", "already_exists")
		}
		return nil, fmt.Errorf("update priority %d: %w", id, err)
	}
	return p, nil
}

// Delete removes a priority. An admin delete is permanent and clears the
// priority from every task referencing it.
func (s *PriorityService) Delete(ctx context.Context, user *models.User, id uint, includeDeleted bool) error {
	if err := requireUser(user); err != nil {
		return err
	}
	if err := checkIncludeDeleted(user, includeDeleted); err != nil {
		return err
	}
	p, err := findVisible[models.Priority](ctx, s.db, user, id, includeDeleted)
	if err != nil {
		return err
	}
	if err := gateErr(s.gate.Authorize(ctx, user, gate.ActionDelete, policy.ResourcePriority, p)); err != nil {
		return err
	}
	if !user.IsAdmin {
		if err := s.db.WithContext(ctx).Delete(&models.Priority{}, p.ID).Error; err != nil {
			return fmt.Errorf("delete priority %d: %w", id, err)
		}
		return nil
	}
	return hardDelete[models.Priority](ctx, s.db, p.ID, "priority_id")
}
