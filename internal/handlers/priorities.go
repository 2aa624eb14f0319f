package handlers

import (
	"net/http"

	"github.com/diewo77/go-tasks/httpx"
	"github.com/diewo77/go-tasks/internal/services"
)

type PriorityHandler struct {
	priorities *services.PriorityService
	users      PrincipalLoader
}

func NewPriorityHandler(priorities *services.PriorityService, users PrincipalLoader) *PriorityHandler {
	return &PriorityHandler{priorities: priorities, users: users}
}

func (h *PriorityHandler) List(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r, h.users)
	if err != nil {
		writeError(w, r, err)
		return
	}
	opts, err := listOptions(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	priorities, err := h.priorities.List(r.Context(), user, opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, priorities)
}

func (h *PriorityHandler) View(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r, h.users)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	priority, err := h.priorities.Get(r.Context(), user, id, includeDeleted(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, priority)
}

func (h *PriorityHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r, h.users)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req services.CreatePriorityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	priority, err := h.priorities.Create(r.Context(), user, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, priority)
}

func (h *PriorityHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r, h.users)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req services.UpdatePriorityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	priority, err := h.priorities.Update(r.Context(), user, id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, priority)
}

func (h *PriorityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r, h.users)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.priorities.Delete(r.Context(), user, id, includeDeleted(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
