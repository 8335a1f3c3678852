package handlers

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/mail"
	"strings"

	"github.com/accountd/apiserver/internal/auth"
	"github.com/accountd/apiserver/internal/services"
	"github.com/accountd/apiserver/internal/store"
	"github.com/accountd/apiserver/types"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const maxAvatarBytes = 5 << 20

// UserHandler provides HTTP handlers for user profiles.
type UserHandler struct {
	userService *services.UserService
	avatars     *services.AvatarService
	events      *services.EventPublisher
}

// NewUserHandler constructs a handler with the provided dependencies.
func NewUserHandler(userService *services.UserService, avatars *services.AvatarService, events *services.EventPublisher) *UserHandler {
	return &UserHandler{
		userService: userService,
		avatars:     avatars,
		events:      events,
	}
}

// UserRouter registers user routes on the given router. All routes
// require bearer authentication. Avatar routes are registered only when
// an object-storage backend is configured.
func UserRouter(
	r chi.Router,
	userService *services.UserService,
	avatars *services.AvatarService,
	events *services.EventPublisher,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewUserHandler(userService, avatars, events)

	r.Use(authMiddleware)
	r.Get("/", handler.ListUsers)
	r.Put("/me", handler.UpdateMe)
	r.Delete("/me", handler.DeleteMe)
	if avatars != nil {
		r.Put("/me/avatar", handler.UploadAvatar)
		r.Get("/me/avatar", handler.GetAvatar)
		r.Delete("/me/avatar", handler.DeleteAvatar)
	}
	r.Get("/{userID}", handler.GetUser)
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	user, err := h.userService.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch user")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// UpdateMe applies a partial update to the caller's own profile.
// Only fields present in the request body are touched.
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w, "could not validate credentials")
		return
	}

	var req UpdateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	updated, err := applyUserUpdate(user, req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// A token remains valid for the old email until it expires, so an
	// email change must not collide with another account's login key.
	if updated.Email != user.Email {
		existing, err := h.userService.GetByEmail(r.Context(), updated.Email)
		if err == nil && existing.ID != user.ID {
			writeError(w, http.StatusBadRequest, "email already registered")
			return
		}
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusInternalServerError, "failed to check user")
			return
		}
	}

	persisted, err := h.userService.Update(r.Context(), updated)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicateEmail):
			writeError(w, http.StatusBadRequest, "email already registered")
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "user not found")
		default:
			writeError(w, http.StatusInternalServerError, "failed to update user")
		}
		return
	}

	writeJSON(w, http.StatusOK, persisted)
}

// DeleteMe removes the caller's account. Outstanding tokens for the
// account stop resolving at the auth gate on the next request.
func (h *UserHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w, "could not validate credentials")
		return
	}

	if err := h.userService.Delete(r.Context(), user.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete user")
		return
	}

	_ = h.events.UserDeleted(r.Context(), user)

	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w, "could not validate credentials")
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	body := http.MaxBytesReader(w, r.Body, maxAvatarBytes)
	data, err := io.ReadAll(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "avatar too large")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "avatar is empty")
		return
	}

	if err := h.avatars.Upload(r.Context(), user.ID.Hex(), bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store avatar")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) GetAvatar(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w, "could not validate credentials")
		return
	}

	object, err := h.avatars.Get(r.Context(), user.ID.Hex())
	if err != nil {
		writeError(w, http.StatusNotFound, "avatar not found")
		return
	}
	defer object.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, object); err != nil {
		// Headers are already out; nothing useful left to send.
		return
	}
}

func (h *UserHandler) DeleteAvatar(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w, "could not validate credentials")
		return
	}

	if err := h.avatars.Delete(r.Context(), user.ID.Hex()); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete avatar")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UpdateUserRequest carries the optional fields of a partial profile
// update. Nil means "leave unchanged".
type UpdateUserRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

// applyUserUpdate merges the provided fields onto a copy of the user,
// re-hashing the password when one is supplied.
func applyUserUpdate(user types.User, req UpdateUserRequest) (types.User, error) {
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return types.User{}, errors.New("name cannot be empty")
		}
		user.Name = name
	}
	if req.Email != nil {
		email := strings.TrimSpace(*req.Email)
		if _, err := mail.ParseAddress(email); err != nil || email == "" {
			return types.User{}, errors.New("invalid email address")
		}
		user.Email = email
	}
	if req.Password != nil {
		if len(*req.Password) < minPasswordLength {
			return types.User{}, errors.New("password must be at least 8 characters")
		}
		hashed, err := auth.HashPassword(*req.Password)
		if err != nil {
			return types.User{}, errors.New("failed to hash password")
		}
		user.PasswordHash = hashed
	}
	return user, nil
}
