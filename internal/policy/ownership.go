package policy

import (
	"context"

	"github.com/diewo77/go-tasks/gate"
	"github.com/diewo77/go-tasks/internal/models"
)

// Ownable is an interface for resources that have an owner.
type Ownable interface {
	GetUserID() uint
}

// OwnershipPolicy allows a user to act on the resources they own.
type OwnershipPolicy struct{}

// NewOwnershipPolicy creates a new ownership policy.
func NewOwnershipPolicy() *OwnershipPolicy {
	return &OwnershipPolicy{}
}

// Can checks if the user owns the resource.
// For list/create actions (resource is nil) it returns true: collection
// queries are scoped to the owner and creation forces the owner. Record
// actions without a record are denied.
func (p *OwnershipPolicy) Can(_ context.Context, user *models.User, action gate.Action, resource any) bool {
	if resource == nil {
		return !action.OnRecord()
	}
	ownable, ok := resource.(Ownable)
	if !ok {
		// Resources without an owner are denied.
		return false
	}
	return ownable.GetUserID() == user.ID
}

// SelfPolicy governs user accounts: a user may only act on their own account.
// Listing accounts is denied; creating one is left to guest registration.
type SelfPolicy struct{}

// NewSelfPolicy creates a new self policy.
func NewSelfPolicy() *SelfPolicy {
	return &SelfPolicy{}
}

// Can checks that resource is the user's own account.
func (p *SelfPolicy) Can(_ context.Context, user *models.User, action gate.Action, resource any) bool {
	if resource == nil {
		return action == gate.ActionCreate
	}
	target, ok := resource.(*models.User)
	if !ok || target == nil {
		return false
	}
	return target.ID == user.ID
}

// AdminBypassPolicy wraps another policy and always allows access for admins.
type AdminBypassPolicy struct {
	inner gate.Policy[*models.User]
}

// NewAdminBypassPolicy creates a policy that bypasses inner for admins.
func NewAdminBypassPolicy(inner gate.Policy[*models.User]) *AdminBypassPolicy {
	return &AdminBypassPolicy{inner: inner}
}

// Can checks if user is admin (bypass) or falls back to inner policy.
func (p *AdminBypassPolicy) Can(ctx context.Context, user *models.User, action gate.Action, resource any) bool {
	if user.IsAdmin {
		return true
	}
	return p.inner.Can(ctx, user, action, resource)
}
