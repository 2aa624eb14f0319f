// Package handlers exposes the services over JSON HTTP endpoints.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/diewo77/go-tasks/auth"
	"github.com/diewo77/go-tasks/httpx"
	"github.com/diewo77/go-tasks/internal/logger"
	"github.com/diewo77/go-tasks/internal/models"
	"github.com/diewo77/go-tasks/internal/services"
	"github.com/diewo77/go-tasks/validation"
)

// PrincipalLoader resolves the authenticated user id carried by a request.
type PrincipalLoader interface {
	Principal(ctx context.Context, uid uint) (*models.User, error)
}

// currentUser returns the acting user, or nil for anonymous requests.
func currentUser(r *http.Request, users PrincipalLoader) (*models.User, error) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		return nil, nil
	}
	return users.Principal(r.Context(), uid)
}

// writeError translates service errors into JSON error responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if v, ok := validation.AsViolations(err); ok {
		httpx.JSONError(w, http.StatusBadRequest, "validation_error", v)
		return
	}
	switch {
	case errors.Is(err, httpx.ErrInvalidJSON):
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
	case errors.Is(err, services.ErrInvalidCredentials):
		httpx.JSONError(w, http.StatusUnauthorized, "invalid_credentials", nil)
	case errors.Is(err, services.ErrUnauthenticated):
		httpx.JSONError(w, http.StatusUnauthorized, "authentication_required", nil)
	case errors.Is(err, services.ErrForbidden):
		httpx.JSONError(w, http.StatusForbidden, "forbidden", nil)
	case errors.Is(err, services.ErrNotFound):
		httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
	default:
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
	}
}

// pathID parses the {id} path value. Malformed ids cannot match a record.
func pathID(r *http.Request) (uint, error) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, services.ErrNotFound
	}
	return uint(id), nil
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func includeDeleted(r *http.Request) bool {
	return parseBool(r.URL.Query().Get("include_deleted"))
}

// listOptions reads the collection query parameters.
func listOptions(r *http.Request) (services.ListOptions, error) {
	q := r.URL.Query()
	opts := services.ListOptions{
		Status:         strings.TrimSpace(q.Get("status")),
		Search:         q.Get("search"),
		Ordering:       strings.TrimSpace(q.Get("ordering")),
		IncludeDeleted: parseBool(q.Get("include_deleted")),
	}
	v := validation.Violations{}
	opts.CategoryID = optionalID(q.Get("category"), "category", v)
	opts.PriorityID = optionalID(q.Get("priority"), "priority", v)
	return opts, v.Err()
}

func optionalID(raw, field string, v validation.Violations) *uint {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		v[field] = "invalid"
		return nil
	}
	u := uint(id)
	return &u
}
