// Package policy wires the authorization gate for the task domain.
package policy

import (
	"github.com/diewo77/go-tasks/gate"
	"github.com/diewo77/go-tasks/internal/models"
)

// Resource type names registered on the gate.
const (
	ResourceTask     = "task"
	ResourceCategory = "category"
	ResourcePriority = "priority"
	ResourceUser     = "user"
)

// Gate is the authorization gate keyed by the acting user. A nil user is
// anonymous.
type Gate = gate.Gate[*models.User]

// NewGate returns a gate with the ownership policies registered for tasks,
// categories and priorities and the self policy for users. Admins bypass all
// of them; anonymous users may only register.
func NewGate() *Gate {
	g := gate.NewGate[*models.User]()

	owned := NewAdminBypassPolicy(NewOwnershipPolicy())
	g.Register(ResourceTask, owned)
	g.Register(ResourceCategory, owned)
	g.Register(ResourcePriority, owned)

	g.Register(ResourceUser, NewAdminBypassPolicy(NewSelfPolicy()))
	g.AllowGuest(ResourceUser, gate.ActionCreate)
	return g
}
