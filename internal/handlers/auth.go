package handlers

import (
	"net/http"

	"github.com/diewo77/go-tasks/httpx"
	"github.com/diewo77/go-tasks/internal/services"
	"github.com/diewo77/go-tasks/validation"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthHandler serves registration, token issuance and logout.
type AuthHandler struct {
	accounts *services.AccountService
}

func NewAuthHandler(accounts *services.AccountService) *AuthHandler {
	return &AuthHandler{accounts: accounts}
}

// Login exchanges a username and password for a bearer token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	v := validation.Violations{}
	validation.Required("username", req.Username, v)
	validation.Required("password", req.Password, v)
	if err := v.Err(); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.accounts.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

// Signup registers a new account.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r, h.accounts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req services.RegisterRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := h.accounts.Register(r.Context(), actor, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, user)
}

// Logout revokes every token of the caller.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r, h.accounts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.accounts.Logout(r.Context(), user); err != nil {
		writeError(w, r, err)
		return
	}
	httpx.Detail(w, http.StatusOK, "Logged out")
}
