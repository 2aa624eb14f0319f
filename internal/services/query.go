package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/diewo77/go-tasks/internal/models"
	"github.com/diewo77/go-tasks/validation"
	"gorm.io/gorm"
)

// ListOptions narrows and orders a collection query.
// Status, CategoryID and PriorityID only apply to tasks.
type ListOptions struct {
	Status         string
	CategoryID     *uint
	PriorityID     *uint
	Search         string
	Ordering       string
	IncludeDeleted bool
}

// listFields describes the searchable and orderable columns of an entity.
type listFields struct {
	search []string
	order  []string
}

// OptionalID is a nullable foreign key in an update request: Set reports
// whether the field was present, ID is nil when it was an explicit null.
type OptionalID struct {
	Set bool
	ID  *uint
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *OptionalID) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		o.ID = nil
		return nil
	}
	var id uint
	if err := json.Unmarshal(b, &id); err != nil {
		return err
	}
	o.ID = &id
	return nil
}

// SetID returns an OptionalID set to id.
func SetID(id uint) OptionalID { return OptionalID{Set: true, ID: &id} }

// NullID returns an OptionalID set to null.
func NullID() OptionalID { return OptionalID{Set: true} }

// visible scopes a query to the records user may see. Non-admins only see
// their own records; soft-deleted rows are included only when asked.
func visible(db *gorm.DB, user *models.User, includeDeleted bool) *gorm.DB {
	if includeDeleted {
		db = db.Unscoped()
	}
	if !user.IsAdmin {
		db = db.Where("user_id = ?", user.ID)
	}
	return db
}

// checkIncludeDeleted rejects the include-deleted path for non-admins.
func checkIncludeDeleted(user *models.User, includeDeleted bool) error {
	if includeDeleted && !user.IsAdmin {
		return ErrForbidden
	}
	return nil
}

// findVisible loads the record with id among those visible to user.
func findVisible[T any](ctx context.Context, db *gorm.DB, user *models.User, id uint, includeDeleted bool) (*T, error) {
	var rec T
	err := visible(db.WithContext(ctx), user, includeDeleted).First(&rec, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// containsPattern turns a search term into a lower-case LIKE pattern that
// matches it literally. Use it with likeClause.
func containsPattern(term string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(term)) + "%"
}

// likeClause is a case-insensitive LIKE on col for a containsPattern argument.
func likeClause(col string) string {
	return "LOWER(" + col + `) LIKE ? ESCAPE '\'`
}

// applyList adds search and ordering to q.
func applyList(q *gorm.DB, opts ListOptions, fields listFields) (*gorm.DB, error) {
	if s := strings.TrimSpace(opts.Search); s != "" {
		pattern := containsPattern(s)
		conds := make([]string, len(fields.search))
		args := make([]any, len(fields.search))
		for i, col := range fields.search {
			conds[i] = likeClause(col)
			args[i] = pattern
		}
		q = q.Where(strings.Join(conds, " OR "), args...)
	}

	if opts.Ordering == "" {
		return q.Order("id"), nil
	}
	col, desc := strings.CutPrefix(opts.Ordering, "-")
	allowed := false
	for _, f := range fields.order {
		if f == col {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, validation.Single("ordering", "invalid_choice")
	}
	if desc {
		col += " DESC"
	}
	return q.Order(col).Order("id"), nil
}

// requireUser rejects anonymous principals.
func requireUser(user *models.User) error {
	if user == nil {
		return ErrUnauthenticated
	}
	return nil
}

// uniqueName fails with an already_exists violation when owner has another
// live record of type T named name, ignoring case. exceptID excludes the
// record being updated. The idx_*_owner_name indexes enforce the same rule.
func uniqueName[T any](ctx context.Context, db *gorm.DB, owner, exceptID uint, name string) error {
	var count int64
	err := db.WithContext(ctx).Model(new(T)).
		Where("user_id = ? AND LOWER(name) = ? AND id <> ?", owner, strings.ToLower(name), exceptID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return validation.Single("name", "already_exists")
	}
	return nil
}

// hardDelete permanently removes the T with id and nulls refColumn on every
// task pointing at it, in one transaction.
func hardDelete[T any](ctx context.Context, db *gorm.DB, id uint, refColumn string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Unscoped().Model(&models.Task{}).
			Where(refColumn+" = ?", id).
			Update(refColumn, nil).Error
		if err != nil {
			return err
		}
		return tx.Unscoped().Delete(new(T), id).Error
	})
}
