package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/accountd/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestListUsers(t *testing.T) {
	env := newTestEnv(t)

	env.register(t, "A", "a@x.com", "password1")
	env.register(t, "B", "b@x.com", "password2")
	token := env.login(t, "a@x.com", "password1")

	resp := env.doJSON(t, http.MethodGet, "/users/", nil, token)
	require.Equal(t, http.StatusOK, resp.Code)

	var users []types.User
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &users))
	assert.Len(t, users, 2)
	assert.False(t, containsPasswordHash(resp.Body.String()))
}

func TestGetUser(t *testing.T) {
	env := newTestEnv(t)

	user := env.register(t, "A", "a@x.com", "password1")
	token := env.login(t, "a@x.com", "password1")

	resp := env.doJSON(t, http.MethodGet, "/users/"+user.ID.Hex(), nil, token)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "a@x.com")
}

func TestGetUser_InvalidID(t *testing.T) {
	env := newTestEnv(t)

	env.register(t, "A", "a@x.com", "password1")
	token := env.login(t, "a@x.com", "password1")

	resp := env.doJSON(t, http.MethodGet, "/users/not-an-object-id", nil, token)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestGetUser_NotFound(t *testing.T) {
	env := newTestEnv(t)

	env.register(t, "A", "a@x.com", "password1")
	token := env.login(t, "a@x.com", "password1")

	resp := env.doJSON(t, http.MethodGet, "/users/"+primitive.NewObjectID().Hex(), nil, token)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestUpdateMe_PartialFields(t *testing.T) {
	env := newTestEnv(t)

	env.register(t, "A", "a@x.com", "password1")
	token := env.login(t, "a@x.com", "password1")

	resp := env.doJSON(t, http.MethodPut, "/users/me", UpdateUserRequest{
		Name: strptr("Alice"),
	}, token)
	require.Equal(t, http.StatusOK, resp.Code)

	var updated types.User
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &updated))
	assert.Equal(t, "Alice", updated.Name)
	// Untouched fields keep their values.
	assert.Equal(t, "a@x.com", updated.Email)
	assert.True(t, updated.IsActive)
}

func TestUpdateMe_PasswordRehash(t *testing.T) {
	env := newTestEnv(t)

	env.register(t, "A", "a@x.com", "password1")
	token := env.login(t, "a@x.com", "password1")

	resp := env.doJSON(t, http.MethodPut, "/users/me", UpdateUserRequest{
		Password: strptr("password2"),
	}, token)
	require.Equal(t, http.StatusOK, resp.Code)

	// Old password stops working, new one logs in.
	old := env.doJSON(t, http.MethodPost, "/auth/login", LoginRequest{
		Email:    "a@x.com",
		Password: "password1",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, old.Code)
	env.login(t, "a@x.com", "password2")
}

func TestUpdateMe_EmailConflict(t *testing.T) {
	env := newTestEnv(t)

	env.register(t, "A", "a@x.com", "password1")
	env.register(t, "B", "b@x.com", "password2")
	token := env.login(t, "a@x.com", "password1")

	resp := env.doJSON(t, http.MethodPut, "/users/me", UpdateUserRequest{
		Email: strptr("b@x.com"),
	}, token)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), "email already registered")
}

func TestUpdateMe_EmailChange(t *testing.T) {
	env := newTestEnv(t)

	env.register(t, "A", "a@x.com", "password1")
	token := env.login(t, "a@x.com", "password1")

	resp := env.doJSON(t, http.MethodPut, "/users/me", UpdateUserRequest{
		Email: strptr("alice@x.com"),
	}, token)
	require.Equal(t, http.StatusOK, resp.Code)

	// The old token's subject no longer resolves; login works with the
	// new email.
	me := env.doJSON(t, http.MethodGet, "/auth/me", nil, token)
	assert.Equal(t, http.StatusUnauthorized, me.Code)
	env.login(t, "alice@x.com", "password1")
}

func TestUpdateMe_Validation(t *testing.T) {
	env := newTestEnv(t)

	env.register(t, "A", "a@x.com", "password1")
	token := env.login(t, "a@x.com", "password1")

	tests := []struct {
		name string
		req  UpdateUserRequest
	}{
		{"empty name", UpdateUserRequest{Name: strptr("   ")}},
		{"malformed email", UpdateUserRequest{Email: strptr("nope")}},
		{"short password", UpdateUserRequest{Password: strptr("short")}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := env.doJSON(t, http.MethodPut, "/users/me", tc.req, token)
			assert.Equal(t, http.StatusBadRequest, resp.Code)
		})
	}
}

func TestDeleteMe(t *testing.T) {
	env := newTestEnv(t)

	user := env.register(t, "A", "a@x.com", "password1")
	token := env.login(t, "a@x.com", "password1")

	resp := env.doJSON(t, http.MethodDelete, "/users/me", nil, token)
	require.Equal(t, http.StatusNoContent, resp.Code)

	_, err := env.repo.GetByID(context.Background(), user.ID)
	assert.Error(t, err)
}

func TestAvatarLifecycle(t *testing.T) {
	env := newTestEnv(t)

	env.register(t, "A", "a@x.com", "password1")
	token := env.login(t, "a@x.com", "password1")

	missing := env.doJSON(t, http.MethodGet, "/users/me/avatar", nil, token)
	assert.Equal(t, http.StatusNotFound, missing.Code)

	upload := httptest.NewRequest(http.MethodPut, "/users/me/avatar", bytes.NewReader([]byte("png-bytes")))
	upload.Header.Set("Content-Type", "image/png")
	upload.Header.Set("Authorization", "Bearer "+token)
	uploaded := httptest.NewRecorder()
	env.router.ServeHTTP(uploaded, upload)
	require.Equal(t, http.StatusNoContent, uploaded.Code)

	fetched := env.doJSON(t, http.MethodGet, "/users/me/avatar", nil, token)
	require.Equal(t, http.StatusOK, fetched.Code)
	assert.Equal(t, "png-bytes", fetched.Body.String())

	deleted := env.doJSON(t, http.MethodDelete, "/users/me/avatar", nil, token)
	require.Equal(t, http.StatusNoContent, deleted.Code)

	gone := env.doJSON(t, http.MethodGet, "/users/me/avatar", nil, token)
	assert.Equal(t, http.StatusNotFound, gone.Code)
}

func TestUserRoutes_RequireAuth(t *testing.T) {
	env := newTestEnv(t)

	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/users/"},
		{http.MethodPut, "/users/me"},
		{http.MethodDelete, "/users/me"},
		{http.MethodGet, "/users/" + primitive.NewObjectID().Hex()},
	} {
		resp := env.doJSON(t, tc.method, tc.path, nil, "")
		assert.Equalf(t, http.StatusUnauthorized, resp.Code, "%s %s", tc.method, tc.path)
	}
}
