package policy_test

import (
	"context"
	"errors"
	"testing"

	"github.com/diewo77/go-tasks/gate"
	"github.com/diewo77/go-tasks/internal/models"
	"github.com/diewo77/go-tasks/internal/policy"
)

// mockNonOwnable is a test resource that does NOT implement Ownable.
type mockNonOwnable struct {
	ID uint
}

var (
	alice = &models.User{ID: 42}
	bob   = &models.User{ID: 99}
	root  = &models.User{ID: 1, IsAdmin: true}
)

func TestOwnershipPolicy_NilResource(t *testing.T) {
	p := policy.NewOwnershipPolicy()
	ctx := context.Background()

	if !p.Can(ctx, alice, gate.ActionList, nil) {
		t.Error("Expected Can to return true for nil resource")
	}
	if !p.Can(ctx, alice, gate.ActionCreate, nil) {
		t.Error("Expected Can to return true for nil resource on create")
	}
	for _, a := range gate.Actions {
		if a.OnRecord() && p.Can(ctx, alice, a, nil) {
			t.Errorf("Expected %s without a record to be denied", a)
		}
	}
}

func TestOwnershipPolicy_OwnerCanAccess(t *testing.T) {
	p := policy.NewOwnershipPolicy()
	ctx := context.Background()
	task := &models.Task{UserID: 42}

	for _, action := range []gate.Action{gate.ActionView, gate.ActionUpdate, gate.ActionDelete} {
		if !p.Can(ctx, alice, action, task) {
			t.Errorf("Expected owner to have %s access", action)
		}
		if p.Can(ctx, bob, action, task) {
			t.Errorf("Expected non-owner to be denied %s", action)
		}
	}
}

func TestOwnershipPolicy_NonOwnableResource(t *testing.T) {
	p := policy.NewOwnershipPolicy()
	if p.Can(context.Background(), alice, gate.ActionView, &mockNonOwnable{ID: 1}) {
		t.Error("Expected non-Ownable resource to be denied")
	}
}

func TestSelfPolicy(t *testing.T) {
	p := policy.NewSelfPolicy()
	ctx := context.Background()

	if !p.Can(ctx, alice, gate.ActionView, &models.User{ID: 42}) {
		t.Error("Expected user to view own account")
	}
	if p.Can(ctx, alice, gate.ActionUpdate, &models.User{ID: 99}) {
		t.Error("Expected user to be denied another account")
	}
	if p.Can(ctx, alice, gate.ActionList, nil) {
		t.Error("Expected non-admin to be denied listing accounts")
	}
	if p.Can(ctx, alice, gate.ActionView, &models.Task{UserID: 42}) {
		t.Error("Expected non-user resource to be denied")
	}
}

func TestAdminBypassPolicy(t *testing.T) {
	p := policy.NewAdminBypassPolicy(policy.NewOwnershipPolicy())
	ctx := context.Background()
	category := &models.Category{UserID: 42}

	if !p.Can(ctx, root, gate.ActionDelete, category) {
		t.Error("Expected admin to bypass ownership check")
	}
	if !p.Can(ctx, alice, gate.ActionView, category) {
		t.Error("Expected owner to have access")
	}
	if p.Can(ctx, bob, gate.ActionView, category) {
		t.Error("Expected non-owner non-admin to be denied")
	}
}

func TestNewGate(t *testing.T) {
	g := policy.NewGate()
	ctx := context.Background()

	tests := []struct {
		name     string
		user     *models.User
		action   gate.Action
		resource string
		target   any
		want     error
	}{
		{"anonymous may register", nil, gate.ActionCreate, policy.ResourceUser, nil, nil},
		{"anonymous may not list tasks", nil, gate.ActionList, policy.ResourceTask, nil, gate.ErrUnauthenticated},
		{"anonymous may not view a user", nil, gate.ActionView, policy.ResourceUser, &models.User{ID: 42}, gate.ErrUnauthenticated},
		{"owner views task", alice, gate.ActionView, policy.ResourceTask, &models.Task{UserID: 42}, nil},
		{"stranger updates priority", bob, gate.ActionUpdate, policy.ResourcePriority, &models.Priority{UserID: 42}, gate.ErrForbidden},
		{"admin deletes category", root, gate.ActionDelete, policy.ResourceCategory, &models.Category{UserID: 42}, nil},
		{"user lists users", alice, gate.ActionList, policy.ResourceUser, nil, gate.ErrForbidden},
		{"admin lists users", root, gate.ActionList, policy.ResourceUser, nil, nil},
		{"user views self", alice, gate.ActionView, policy.ResourceUser, alice, nil},
		{"unknown resource", alice, gate.ActionView, "invoice", nil, gate.ErrNoPolicyDefined},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.Authorize(ctx, tt.user, tt.action, tt.resource, tt.target)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Authorize = %v, want %v", err, tt.want)
			}
		})
	}
}
