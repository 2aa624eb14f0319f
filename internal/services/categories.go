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

var categoryFields = listFields{
	search: []string{"name", "description"},
	order:  []string{"created_at", "name"},
}

type CreateCategoryRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description"`
}

type UpdateCategoryRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=100"`
	Description *string `json:"description"`
}

type CategoryService struct {
	db   *gorm.DB
	gate *policy.Gate
}

func NewCategoryService(db *gorm.DB, g *policy.Gate) *CategoryService {
	return &CategoryService{db: db, gate: g}
}

func (s *CategoryService) List(ctx context.Context, user *models.User, opts ListOptions) ([]models.Category, error) {
	if err := gateErr(s.gate.Authorize(ctx, user, gate.ActionList, policy.ResourceCategory, nil)); err != nil {
		return nil, err
	}
	if err := checkIncludeDeleted(user, opts.IncludeDeleted); err != nil {
		return nil, err
	}
	q, err := applyList(visible(s.db.WithContext(ctx), user, opts.IncludeDeleted), opts, categoryFields)
	if err != nil {
		return nil, err
	}
	categories := []models.Category{}
	if err := q.Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

func (s *CategoryService) Get(ctx context.Context, user *models.User, id uint, includeDeleted bool) (*models.Category, error) {
	if err := requireUser(user); err != nil {
		return nil, err
	}
	if err := checkIncludeDeleted(user, includeDeleted); err != nil {
		return nil, err
	}
	c, err := findVisible[models.Category](ctx, s.db, user, id, includeDeleted)
	if err != nil {
		return nil, err
	}
	if err := gateErr(s.gate.Authorize(ctx, user, gate.ActionView, policy.ResourceCategory, c)); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CategoryService) Create(ctx context.Context, user *models.User, req CreateCategoryRequest) (*models.Category, error) {
	if err := gateErr(s.gate.Authorize(ctx, user, gate.ActionCreate, policy.ResourceCategory, nil)); err != nil {
		return nil, err
	}
	req.Name = strings.TrimSpace(req.Name)
	v := validation.Violations{}
	validation.Struct(req, v)
	if v.Empty() {
		if err := uniqueName[models.Category](ctx, s.db, user.ID, 0, req.Name); err != nil {
			return nil, err
		}
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	c := models.Category{UserID: user.ID, Name: req.Name, Description: req.Description}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, validation.Single("name", "already_exists")
		}
		return nil, fmt.Errorf("create category: %w", err)
	}
	return &c, nil
}

func (s *CategoryService) Update(ctx context.Context, user *models.User, id uint, req UpdateCategoryRequest) (*models.Category, error) {
	if err := requireUser(user); err != nil {
		return nil, err
	}
	c, err := findVisible[models.Category](ctx, s.db, user, id, false)
	if err != nil {
		return nil, err
	}
	if err := gateErr(s.gate.Authorize(ctx, user, gate.ActionUpdate, policy.ResourceCategory, c)); err != nil {
		return nil, err
	}

	v := validation.Violations{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		req.Name = &name
		validation.Required("name", name, v)
	}
	validation.Struct(req, v)
	if req.Name != nil && v.Empty() {
		if err := uniqueName[models.Category](ctx, s.db, c.UserID, c.ID, *req.Name); err != nil {
			return nil, err
		}
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	if req.Name != nil {
		c.Name = *req.Name
	}
	if req.Description != nil {
		c.Description = *req.Description
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Save(c).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, validation.Single("name", "already_exists")
		}
		return nil, fmt.Errorf("update category %d: %w", id, err)
	}
	return c, nil
}

// Delete removes a category. An admin delete is permanent and clears the
// category from every task referencing it.
func (s *CategoryService) Delete(ctx context.Context, user *models.User, id uint, includeDeleted bool) error {
	if err := requireUser(user); err != nil {
		return err
	}
	if err := checkIncludeDeleted(user, includeDeleted); err != nil {
		return err
	}
	c, err := findVisible[models.Category](ctx, s.db, user, id, includeDeleted)
	if err != nil {
		return err
	}
	if err := gateErr(s.gate.Authorize(ctx, user, gate.ActionDelete, policy.ResourceCategory, c)); err != nil {
		return err
	}
	if !user.IsAdmin {
		if err := s.db.WithContext(ctx).Delete(&models.Category{}, c.ID).Error; err != nil {
			return fmt.Errorf("delete category %d: %w", id, err)
		}
		return nil
	}
	return hardDelete[models.Category](ctx, s.db, c.ID, "category_id")
}
