package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/diewo77/go-tasks/gate"
	"github.com/diewo77/go-tasks/internal/models"
	"github.com/diewo77/go-tasks/internal/policy"
	"gorm.io/gorm"
)

// AdminUpdateUserRequest is a partial account update performed by an admin.
type AdminUpdateUserRequest struct {
	UpdateProfileRequest
	IsActive *bool `json:"is_active"`
	IsAdmin  *bool `json:"is_admin"`
}

// ListUsers returns every account, optionally filtered by a case-insensitive
// match on username or email. Admin only.
func (s *AccountService) ListUsers(ctx context.Context, admin *models.User, search string) ([]models.User, error) {
	if err := gateErr(s.gate.Authorize(ctx, admin, gate.ActionList, policy.ResourceUser, nil)); err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx).Order("id")
	if term := strings.TrimSpace(search); term != "" {
		pattern := containsPattern(term)
		q = q.Where(likeClause("username")+" OR "+likeClause("email"), pattern, pattern)
	}
	users := []models.User{}
	if err := q.Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// GetUser returns one account. Admin only.
func (s *AccountService) GetUser(ctx context.Context, admin *models.User, id uint) (*models.User, error) {
	target, err := s.adminTarget(ctx, admin, id)
	if err != nil {
		return nil, err
	}
	if err := gateErr(s.gate.Authorize(ctx, admin, gate.ActionView, policy.ResourceUser, target)); err != nil {
		return nil, err
	}
	return target, nil
}

// UpdateUser applies a partial update to any account, including the active
// and admin flags. Admin only.
func (s *AccountService) UpdateUser(ctx context.Context, admin *models.User, id uint, req AdminUpdateUserRequest) (*models.User, error) {
	target, err := s.adminTarget(ctx, admin, id)
	if err != nil {
		return nil, err
	}
	if err := gateErr(s.gate.Authorize(ctx, admin, gate.ActionUpdate, policy.ResourceUser, target)); err != nil {
		return nil, err
	}
	return s.applyUserUpdate(ctx, target, req.UpdateProfileRequest, req.IsActive, req.IsAdmin)
}

// DeleteUser removes an account together with its tasks, categories,
// priorities and tokens. Admin only.
func (s *AccountService) DeleteUser(ctx context.Context, admin *models.User, id uint) error {
	target, err := s.adminTarget(ctx, admin, id)
	if err != nil {
		return err
	}
	if err := gateErr(s.gate.Authorize(ctx, admin, gate.ActionDelete, policy.ResourceUser, target)); err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Tasks of other users may still point at this user's categories and priorities.
		refs := []struct {
			column string
			model  any
		}{
			{"category_id", &models.Category{}},
			{"priority_id", &models.Priority{}},
		}
		for _, ref := range refs {
			owned := tx.Unscoped().Model(ref.model).Select("id").Where("user_id = ?", target.ID)
			err := tx.Unscoped().Model(&models.Task{}).
				Where(ref.column+" IN (?)", owned).
				Update(ref.column, nil).Error
			if err != nil {
				return err
			}
		}
		for _, m := range []any{&models.Task{}, &models.Category{}, &models.Priority{}, &models.Token{}} {
			if err := tx.Unscoped().Where("user_id = ?", target.ID).Delete(m).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&models.User{}, target.ID).Error
	})
	if err != nil {
		return fmt.Errorf("delete user %d: %w", id, err)
	}
	return nil
}

// adminTarget checks that actor is an admin and loads the user with id.
// Non-admins are refused before the lookup so they cannot probe for ids.
func (s *AccountService) adminTarget(ctx context.Context, actor *models.User, id uint) (*models.User, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	if !actor.IsAdmin {
		return nil, ErrForbidden
	}
	return s.findUser(ctx, id)
}
