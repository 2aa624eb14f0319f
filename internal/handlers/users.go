package handlers

import (
	"net/http"

	"github.com/diewo77/go-tasks/httpx"
	"github.com/diewo77/go-tasks/internal/services"
)

// UserHandler serves the self-service account endpoints and the admin user
// management endpoints.
type UserHandler struct {
	accounts *services.AccountService
}

func NewUserHandler(accounts *services.AccountService) *UserHandler {
	return &UserHandler{accounts: accounts}
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r, h.accounts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	profile, err := h.accounts.Profile(r.Context(), user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, profile)
}

func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r, h.accounts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req services.UpdateProfileRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	profile, err := h.accounts.UpdateProfile(r.Context(), user, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, profile)
}

func (h *UserHandler) DeactivateMe(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r, h.accounts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.accounts.Deactivate(r.Context(), user); err != nil {
		writeError(w, r, err)
		return
	}
	httpx.Detail(w, http.StatusOK, "Account deactivated")
}

func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r, h.accounts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req services.ChangePasswordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.accounts.ChangePassword(r.Context(), user, req); err != nil {
		writeError(w, r, err)
		return
	}
	httpx.Detail(w, http.StatusOK, "Password changed. Please login again.")
}

func (h *UserHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r, h.accounts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req services.ResetPasswordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.accounts.ResetPassword(r.Context(), user, req); err != nil {
		writeError(w, r, err)
		return
	}
	httpx.Detail(w, http.StatusOK, "Password reset")
}

// Admin endpoints.

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r, h.accounts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	users, err := h.accounts.ListUsers(r.Context(), user, r.URL.Query().Get("search"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, users)
}

func (h *UserHandler) View(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r, h.accounts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	target, err := h.accounts.GetUser(r.Context(), user, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, target)
}

func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r, h.accounts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req services.AdminUpdateUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	target, err := h.accounts.UpdateUser(r.Context(), user, id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, target)
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r, h.accounts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.accounts.DeleteUser(r.Context(), user, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
