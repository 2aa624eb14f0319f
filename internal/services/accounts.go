package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/diewo77/go-tasks/auth"
	"github.com/diewo77/go-tasks/gate"
	"github.com/diewo77/go-tasks/internal/logger"
	"github.com/diewo77/go-tasks/internal/models"
	"github.com/diewo77/go-tasks/internal/policy"
	"github.com/diewo77/go-tasks/validation"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RegisterRequest struct {
	Username string `json:"username" validate:"required,max=150"`
	Email    string `json:"email" validate:"omitempty,email,max=255"`
	Password string `json:"password" validate:"required"`
}

type UpdateProfileRequest struct {
	Username *string `json:"username" validate:"omitempty,max=150"`
	Email    *string `json:"email" validate:"omitempty,email,max=255"`
	Password *string `json:"password"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type ResetPasswordRequest struct {
	UserID      uint   `json:"user_id"`
	NewPassword string `json:"new_password"`
}

// LoginResult is a freshly issued bearer token.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AccountService handles registration, login and self-service account actions.
type AccountService struct {
	db     *gorm.DB
	gate   *policy.Gate
	issuer *auth.Issuer
	now    func() time.Time
}

func NewAccountService(db *gorm.DB, g *policy.Gate, issuer *auth.Issuer) *AccountService {
	return &AccountService{db: db, gate: g, issuer: issuer, now: time.Now}
}

// maxPasswordBytes is the longest input bcrypt accepts.
const maxPasswordBytes = 72

func hashPassword(pw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", validation.Single("password", "too_long")
	}
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func checkPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// usernameTaken reports whether another user already has username.
func (s *AccountService) usernameTaken(ctx context.Context, username string, exceptID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("username = ? AND id <> ?", username, exceptID).
		Count(&count).Error
	return count > 0, err
}

// Register creates an account. It is open to anonymous callers.
func (s *AccountService) Register(ctx context.Context, actor *models.User, req RegisterRequest) (*models.User, error) {
	if err := gateErr(s.gate.Authorize(ctx, actor, gate.ActionCreate, policy.ResourceUser, nil)); err != nil {
		return nil, err
	}
	req.Username = strings.TrimSpace(req.Username)
	v := validation.Violations{}
	validation.Struct(req, v)
	validation.MaxBytes("password", req.Password, maxPasswordBytes, v)
	if err := v.Err(); err != nil {
		return nil, err
	}
	taken, err := s.usernameTaken(ctx, req.Username, 0)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, validation.Single("username", "already_exists")
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	u := models.User{Username: req.Username, Email: req.Email, Password: hash, IsActive: true}
	if err := s.db.WithContext(ctx).Create(&u).Error; err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &u, nil
}

// CreateAdmin creates an active administrator, or promotes and resets the
// password of an existing user with the same username.
func (s *AccountService) CreateAdmin(ctx context.Context, username, email, password string) (*models.User, error) {
	v := validation.Violations{}
	validation.Required("username", username, v)
	validation.Required("password", password, v)
	validation.MaxBytes("password", password, maxPasswordBytes, v)
	if err := v.Err(); err != nil {
		return nil, err
	}
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}

	var u models.User
	err = s.db.WithContext(ctx).Where("username = ?", username).First(&u).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		u = models.User{Username: username, Email: email, Password: hash, IsActive: true, IsAdmin: true}
		if err := s.db.WithContext(ctx).Create(&u).Error; err != nil {
			return nil, fmt.Errorf("create admin: %w", err)
		}
		return &u, nil
	case err != nil:
		return nil, err
	}

	u.Password = hash
	u.IsActive = true
	u.IsAdmin = true
	if email != "" {
		u.Email = email
	}
	if err := s.db.WithContext(ctx).Save(&u).Error; err != nil {
		return nil, fmt.Errorf("promote %s: %w", username, err)
	}
	return &u, nil
}

// Login checks credentials and issues a bearer token.
func (s *AccountService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	var u models.User
	err := s.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive || !checkPassword(u.Password, password) {
		return nil, ErrInvalidCredentials
	}

	raw, claims, err := s.issuer.Issue(u.ID)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	now := s.now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tok := models.Token{Key: claims.TokenID, UserID: u.ID, ExpiresAt: claims.ExpiresAt}
		if err := tx.Omit(clause.Associations).Create(&tok).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).Where("id = ?", u.ID).Update("last_login", now).Error
	})
	if err != nil {
		return nil, fmt.Errorf("store token: %w", err)
	}
	return &LoginResult{Token: raw, ExpiresAt: claims.ExpiresAt}, nil
}

// VerifyToken reports whether tokenID is a stored, unexpired token of the
// active user uid. It records the use on success.
func (s *AccountService) VerifyToken(ctx context.Context, uid uint, tokenID string) bool {
	now := s.now()
	var tok models.Token
	err := s.db.WithContext(ctx).
		Joins("JOIN users ON users.id = auth_tokens.user_id AND users.is_active = ?", true).
		Where("auth_tokens.key = ? AND auth_tokens.user_id = ?", tokenID, uid).
		First(&tok).Error
	if err != nil || tok.Expired(now) {
		return false
	}
	if err := s.db.WithContext(ctx).Model(&models.Token{}).Where("id = ?", tok.ID).Update("last_used_at", now).Error; err != nil {
		logger.Warn("record token use", "token_id", tok.ID, "error", err)
	}
	return true
}

// Principal loads the active user behind an authenticated request.
func (s *AccountService) Principal(ctx context.Context, uid uint) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).Where("id = ? AND is_active = ?", uid, true).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Profile returns the principal's own account.
func (s *AccountService) Profile(ctx context.Context, user *models.User) (*models.User, error) {
	if err := gateErr(s.gate.Authorize(ctx, user, gate.ActionView, policy.ResourceUser, user)); err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateProfile applies a partial update to the principal's account. A new
// password is hashed and revokes every token of the user.
func (s *AccountService) UpdateProfile(ctx context.Context, user *models.User, req UpdateProfileRequest) (*models.User, error) {
	if err := gateErr(s.gate.Authorize(ctx, user, gate.ActionUpdate, policy.ResourceUser, user)); err != nil {
		return nil, err
	}
	return s.applyUserUpdate(ctx, user, req, nil, nil)
}

// Deactivate marks the principal inactive and revokes their tokens.
func (s *AccountService) Deactivate(ctx context.Context, user *models.User) error {
	if err := gateErr(s.gate.Authorize(ctx, user, gate.ActionUpdate, policy.ResourceUser, user)); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).Where("id = ?", user.ID).Update("is_active", false).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ?", user.ID).Delete(&models.Token{}).Error
	})
}

// ChangePassword replaces the principal's password after checking the old
// one and revokes all their tokens.
func (s *AccountService) ChangePassword(ctx context.Context, user *models.User, req ChangePasswordRequest) error {
	if err := gateErr(s.gate.Authorize(ctx, user, gate.ActionUpdate, policy.ResourceUser, user)); err != nil {
		return err
	}
	v := validation.Violations{}
	validation.Required("old_password", req.OldPassword, v)
	validation.Required("new_password", req.NewPassword, v)
	validation.MaxBytes("new_password", req.NewPassword, maxPasswordBytes, v)
	if err := v.Err(); err != nil {
		return err
	}
	if !checkPassword(user.Password, req.OldPassword) {
		return validation.Single("old_password", "incorrect")
	}
	return s.setPassword(ctx, user, req.NewPassword)
}

// ResetPassword lets an admin set a new password for any user.
func (s *AccountService) ResetPassword(ctx context.Context, admin *models.User, req ResetPasswordRequest) error {
	if err := requireUser(admin); err != nil {
		return err
	}
	if !admin.IsAdmin {
		return ErrForbidden
	}
	v := validation.Violations{}
	if req.UserID == 0 {
		v["user_id"] = "required"
	}
	validation.Required("new_password", req.NewPassword, v)
	validation.MaxBytes("new_password", req.NewPassword, maxPasswordBytes, v)
	if err := v.Err(); err != nil {
		return err
	}
	target, err := s.findUser(ctx, req.UserID)
	if err != nil {
		return err
	}
	if err := gateErr(s.gate.Authorize(ctx, admin, gate.ActionUpdate, policy.ResourceUser, target)); err != nil {
		return err
	}
	return s.setPassword(ctx, target, req.NewPassword)
}

// Logout revokes every token of the principal.
func (s *AccountService) Logout(ctx context.Context, user *models.User) error {
	if err := requireUser(user); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Where("user_id = ?", user.ID).Delete(&models.Token{}).Error
}

// setPassword stores a new hash for target and drops its tokens in one
// transaction.
func (s *AccountService) setPassword(ctx context.Context, target *models.User, password string) error {
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).Where("id = ?", target.ID).Update("password", hash).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ?", target.ID).Delete(&models.Token{}).Error
	})
	if err != nil {
		return fmt.Errorf("set password for user %d: %w", target.ID, err)
	}
	target.Password = hash
	return nil
}

func (s *AccountService) findUser(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).First(&u, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// applyUserUpdate validates and stores a partial account update. isActive and
// isAdmin are only ever set by admins.
func (s *AccountService) applyUserUpdate(ctx context.Context, target *models.User, req UpdateProfileRequest, isActive, isAdmin *bool) (*models.User, error) {
	v := validation.Violations{}
	if req.Username != nil {
		name := strings.TrimSpace(*req.Username)
		req.Username = &name
		validation.Required("username", name, v)
	}
	if req.Password != nil {
		validation.Required("password", *req.Password, v)
		validation.MaxBytes("password", *req.Password, maxPasswordBytes, v)
	}
	validation.Struct(req, v)
	if err := v.Err(); err != nil {
		return nil, err
	}
	if req.Username != nil {
		taken, err := s.usernameTaken(ctx, *req.Username, target.ID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, validation.Single("username", "already_exists")
		}
	}

	updated := *target
	if req.Username != nil {
		updated.Username = *req.Username
	}
	if req.Email != nil {
		updated.Email = *req.Email
	}
	if req.Password != nil {
		hash, err := hashPassword(*req.Password)
		if err != nil {
			return nil, err
		}
		updated.Password = hash
	}
	if isActive != nil {
		updated.IsActive = *isActive
	}
	if isAdmin != nil {
		updated.IsAdmin = *isAdmin
	}
	revoke := req.Password != nil || (isActive != nil && !*isActive)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&updated).Error; err != nil {
			return err
		}
		if revoke {
			return tx.Where("user_id = ?", target.ID).Delete(&models.Token{}).Error
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update user %d: %w", target.ID, err)
	}
	*target = updated
	return target, nil
}
