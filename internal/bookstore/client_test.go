package bookstore

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookstore-admin/console/internal/gateway"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	caller := gateway.NewClient(gateway.Options{BaseURL: srv.URL + "/api"}).Bind(gateway.NewStaticToken("tok"), nil)
	return New(caller)
}

func TestLoginMapsRejectionToInvalidCredentials(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"These credentials do not match our records."}`))
	})

	_, err := client.Login(context.Background(), Credentials{Email: "a@b.c", Password: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidCredentials))
	assert.True(t, errors.Is(err, gateway.ErrValidation))
}

func TestLoginReturnsTokenAndUser(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/admin/login", r.URL.Path)
		_, _ = w.Write([]byte(`{"token":"abc","user":{"id":1,"name":"Admin","email":"admin@books.test"}}`))
	})

	result, err := client.Login(context.Background(), Credentials{Email: "admin@books.test", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "abc", result.Token)
	assert.Equal(t, "Admin", result.User.Name)
}

func TestGetRoleDecodesPermissionObjects(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/admin/roles/4", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":{"id":4,"name":"Editor","permissions":[{"id":2,"name":"book-edit"},{"id":5,"name":"book-view"}]}}`))
	})

	role, err := client.GetRole(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, "Editor", role.Name)
	assert.Equal(t, IDList{2, 5}, role.Permissions)
}

func TestCreateRoleSendsPayloadWithoutID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/admin/roles", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"name":"Editor","permissions":[2,5]}`, string(body))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":10,"name":"Editor","permissions":[2,5]}`))
	})

	role, err := client.CreateRole(context.Background(), RolePayload{Name: "Editor", Permissions: []int64{2, 5}})
	require.NoError(t, err)
	assert.Equal(t, int64(10), role.ID)
}

func TestUpdateUserOmitsPasswordWhenUnchanged(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/users/3", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusNoContent)
	})

	_, err := client.UpdateUser(context.Background(), 3, UpdateUserRequest{Name: "Ana", Roles: []int64{2}})
	require.NoError(t, err)
	assert.NotContains(t, body, "password")
	assert.NotContains(t, body, "password_confirmation")
	assert.Equal(t, "Ana", body["name"])
}

func TestUpdateUserIncludesPasswordChange(t *testing.T) {
	data, err := json.Marshal(UpdateUserRequest{
		Name:           "Ana",
		Roles:          []int64{2},
		PasswordChange: &PasswordChange{Password: "n3w-secret", PasswordConfirmation: "n3w-secret"},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Ana","roles":[2],"password":"n3w-secret","password_confirmation":"n3w-secret"}`, string(data))
}

func TestCurrentUserRequiresID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	_, err := client.CurrentUser(context.Background())
	assert.ErrorIs(t, err, gateway.ErrMalformed)
}

func TestIDListAcceptsNull(t *testing.T) {
	var role Role
	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"name":"x","permissions":null}`), &role))
	assert.Nil(t, role.Permissions)
}
