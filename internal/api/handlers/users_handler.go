package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/datacloud-project/orchestrator/internal/api/middleware"
	"github.com/datacloud-project/orchestrator/internal/api/types"
	"github.com/datacloud-project/orchestrator/internal/repository"
	"github.com/datacloud-project/orchestrator/internal/services"
	appErr "github.com/datacloud-project/orchestrator/pkg/errors"
)

type UsersHandler struct {
	users services.UserService
}

func NewUsersHandler(users services.UserService) *UsersHandler {
	return &UsersHandler{users: users}
}

func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	p, err := parseListParams(r)
	if err != nil {
		types.WriteError(w, err)
		return
	}
	tf, err := parseTimeFilters(r)
	if err != nil {
		types.WriteError(w, err)
		return
	}
	q := repository.UserQuery{
		Sub:           queryString(r, "sub"),
		Issuer:        queryString(r, "issuer"),
		Name:          queryString(r, "name"),
		Username:      queryString(r, "username"),
		Email:         queryString(r, "email"),
		CreatedBefore: tf.CreatedBefore,
		CreatedAfter:  tf.CreatedAfter,
		UpdatedBefore: tf.UpdatedBefore,
		UpdatedAfter:  tf.UpdatedAfter,
	}
	items, total, err := h.users.List(r.Context(), p, q)
	if err != nil {
		types.WriteError(w, err)
		return
	}
	writePaginated(w, r, items, total, p)
}

func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Sub      string `json:"sub"`
		Issuer   string `json:"issuer"`
		Name     string `json:"name"`
		Username string `json:"username"`
		Email    string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		types.WriteError(w, err)
		return
	}
	if req.Sub == "" || req.Issuer == "" {
		types.WriteError(w, appErr.New(appErr.CodeValidation, "sub and issuer are required"))
		return
	}
	user, err := h.users.Create(r.Context(), &services.CreateUserInput{
		Sub:      req.Sub,
		Issuer:   req.Issuer,
		Name:     req.Name,
		Username: req.Username,
		Email:    req.Email,
	})
	if err != nil {
		types.WriteError(w, err)
		return
	}
	types.WriteJSON(w, http.StatusCreated, user)
}

func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := h.resolveID(r)
	if err != nil {
		types.WriteError(w, err)
		return
	}
	user, err := h.users.Get(r.Context(), id)
	if err != nil {
		types.WriteError(w, err)
		return
	}
	types.WriteJSON(w, http.StatusOK, user)
}

// Head answers existence checks without a body.
func (h *UsersHandler) Head(w http.ResponseWriter, r *http.Request) {
	id, err := h.resolveID(r)
	if err != nil {
		w.WriteHeader(appErr.HTTPStatus(err))
		return
	}
	if _, err := h.users.Get(r.Context(), id); err != nil {
		w.WriteHeader(appErr.HTTPStatus(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := h.resolveID(r)
	if err != nil {
		types.WriteError(w, err)
		return
	}
	if err := h.users.Delete(r.Context(), id, rawToken(r)); err != nil {
		types.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UsersHandler) SetSSHKey(w http.ResponseWriter, r *http.Request) {
	id, err := h.resolveID(r)
	if err != nil {
		types.WriteError(w, err)
		return
	}
	var req struct {
		SSHPublicKey  string `json:"ssh_public_key"`
		SSHPrivateKey string `json:"ssh_private_key"`
	}
	if err := decodeJSON(r, &req); err != nil {
		types.WriteError(w, err)
		return
	}
	user, err := h.users.SetSSHKey(r.Context(), id, &services.SSHKeyInput{
		PublicKey:  req.SSHPublicKey,
		PrivateKey: req.SSHPrivateKey,
	}, rawToken(r))
	if err != nil {
		types.WriteError(w, err)
		return
	}
	types.WriteJSON(w, http.StatusOK, user)
}

func (h *UsersHandler) GetSSHKey(w http.ResponseWriter, r *http.Request) {
	id, err := h.resolveID(r)
	if err != nil {
		types.WriteError(w, err)
		return
	}
	pair, err := h.users.GetSSHKey(r.Context(), id, rawToken(r))
	if err != nil {
		types.WriteError(w, err)
		return
	}
	types.WriteJSON(w, http.StatusOK, struct {
		SSHPublicKey  string `json:"ssh_public_key"`
		SSHPrivateKey string `json:"ssh_private_key,omitempty"`
	}{
		SSHPublicKey:  pair.PublicKey,
		SSHPrivateKey: pair.PrivateKey,
	})
}

func (h *UsersHandler) RemoveSSHKey(w http.ResponseWriter, r *http.Request) {
	id, err := h.resolveID(r)
	if err != nil {
		types.WriteError(w, err)
		return
	}
	if err := h.users.RemoveSSHKey(r.Context(), id, rawToken(r)); err != nil {
		types.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// resolveID handles the "me" alias for the caller's own row.
func (h *UsersHandler) resolveID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "id")
	if raw == "me" {
		caller, err := middleware.MustCaller(r.Context())
		if err != nil {
			return uuid.Nil, err
		}
		return caller.ID, nil
	}
	return pathID(r, "id")
}

func rawToken(r *http.Request) string {
	id := middleware.CallerFrom(r.Context())
	if id == nil || id.Info == nil {
		return ""
	}
	return id.Info.RawToken
}
