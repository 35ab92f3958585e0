package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookstore-admin/console/internal/bookstore"
	"github.com/bookstore-admin/console/internal/gateway"
)

type fakeAuthAPI struct {
	loginResult bookstore.LoginResult
	loginErr    error
	logoutErr   error
	user        bookstore.User
	userErr     error
	block       bool
	logoutCalls int
}

func (f *fakeAuthAPI) Login(ctx context.Context, creds bookstore.Credentials) (bookstore.LoginResult, error) {
	return f.loginResult, f.loginErr
}

func (f *fakeAuthAPI) Logout(ctx context.Context) error {
	f.logoutCalls++
	return f.logoutErr
}

func (f *fakeAuthAPI) CurrentUser(ctx context.Context) (bookstore.User, error) {
	if f.block {
		<-ctx.Done()
		return bookstore.User{}, ctx.Err()
	}
	return f.user, f.userErr
}

type fakeRevoker struct {
	tokens []string
}

func (f *fakeRevoker) Revoke(ctx context.Context, token string) error {
	f.tokens = append(f.tokens, token)
	return nil
}

func TestLoginPersistsTokenAndUser(t *testing.T) {
	storage := &MemoryStorage{}
	store := NewStore(storage, Options{})
	api := &fakeAuthAPI{loginResult: bookstore.LoginResult{Token: "tok", User: bookstore.User{ID: 1, Name: "Admin"}}}

	_, err := store.Login(context.Background(), api, bookstore.Credentials{Email: "admin@books.test", Password: "secret"})
	require.NoError(t, err)

	assert.True(t, store.IsAuthenticated())
	assert.Equal(t, "tok", storage.Token())
	user, ok := store.User()
	require.True(t, ok)
	assert.Equal(t, "Admin", user.Name)
}

func TestLoginFailureLeavesSessionEmpty(t *testing.T) {
	storage := &MemoryStorage{}
	store := NewStore(storage, Options{})
	api := &fakeAuthAPI{loginErr: bookstore.ErrInvalidCredentials}

	_, err := store.Login(context.Background(), api, bookstore.Credentials{Email: "x@y.z", Password: "bad"})
	assert.ErrorIs(t, err, bookstore.ErrInvalidCredentials)
	assert.False(t, store.IsAuthenticated())
	assert.Empty(t, storage.Token())
}

func TestLogoutClearsEvenWhenBackendFails(t *testing.T) {
	storage := &MemoryStorage{}
	storage.SetToken("tok")
	revoker := &fakeRevoker{}
	store := NewStore(storage, Options{Revoker: revoker})
	api := &fakeAuthAPI{user: bookstore.User{ID: 1}, logoutErr: gateway.ErrTransport}
	store.Restore(context.Background(), api)
	require.True(t, store.IsAuthenticated())

	err := store.Logout(context.Background(), api)
	assert.ErrorIs(t, err, gateway.ErrTransport)
	assert.False(t, store.IsAuthenticated())
	assert.Empty(t, storage.Token())
	assert.Equal(t, []string{"tok"}, revoker.tokens)
}

func TestLogoutSuccessSkipsRevoker(t *testing.T) {
	storage := &MemoryStorage{}
	storage.SetToken("tok")
	revoker := &fakeRevoker{}
	store := NewStore(storage, Options{Revoker: revoker})
	api := &fakeAuthAPI{}

	require.NoError(t, store.Logout(context.Background(), api))
	assert.Equal(t, 1, api.logoutCalls)
	assert.Empty(t, storage.Token())
	assert.Empty(t, revoker.tokens)
}

func TestRestoreWithoutTokenStaysEmpty(t *testing.T) {
	store := NewStore(&MemoryStorage{}, Options{})
	store.Restore(context.Background(), &fakeAuthAPI{userErr: errors.New("must not be called")})
	assert.False(t, store.IsLoading())
	assert.False(t, store.IsAuthenticated())
}

func TestRestoreDiscardsTokenOnFailure(t *testing.T) {
	storage := &MemoryStorage{}
	storage.SetToken("stale")
	store := NewStore(storage, Options{})
	store.Restore(context.Background(), &fakeAuthAPI{userErr: gateway.ErrTransport})

	assert.False(t, store.IsLoading())
	assert.False(t, store.IsAuthenticated())
	assert.Empty(t, storage.Token())
}

func TestRestoreDoesNotHang(t *testing.T) {
	storage := &MemoryStorage{}
	storage.SetToken("tok")
	store := NewStore(storage, Options{RestoreTimeout: 20 * time.Millisecond})

	done := make(chan struct{})
	go func() {
		store.Restore(context.Background(), &fakeAuthAPI{block: true})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("restore did not resolve")
	}
	assert.False(t, store.IsAuthenticated())
	assert.Empty(t, storage.Token())
}

func TestUnauthorizedResponseClearsStoreAndRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/admin/user":
			_, _ = w.Write([]byte(`{"id":1,"name":"Admin"}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	storage := &MemoryStorage{}
	storage.SetToken("tok")
	store := NewStore(storage, Options{})
	redirects := 0
	api := bookstore.New(gateway.NewClient(gateway.Options{BaseURL: srv.URL}).Bind(store, func() { redirects++ }))

	store.Restore(context.Background(), api)
	require.True(t, store.IsAuthenticated())

	_, err := api.ListRoles(context.Background())
	assert.ErrorIs(t, err, gateway.ErrUnauthorized)
	assert.False(t, store.IsAuthenticated())
	assert.Empty(t, storage.Token())
	assert.Equal(t, 1, redirects)
}

func TestFingerprintHidesToken(t *testing.T) {
	storage := &MemoryStorage{}
	store := NewStore(storage, Options{})
	assert.Empty(t, store.Fingerprint())
	storage.SetToken("secret-token")
	fp := store.Fingerprint()
	assert.Len(t, fp, 16)
	assert.NotContains(t, fp, "secret")
}
