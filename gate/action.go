package gate

// Action is an operation a subject attempts on a resource type.
type Action string

// The actions a REST resource exposes: list and create act on the
// collection, the others on one record.
const (
	ActionList   Action = "list"
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Actions lists every action, collection actions first.
var Actions = []Action{ActionList, ActionCreate, ActionView, ActionUpdate, ActionDelete}

// OnRecord reports whether the action targets a single stored record
// rather than the collection.
func (a Action) OnRecord() bool {
	return a == ActionView || a == ActionUpdate || a == ActionDelete
}
