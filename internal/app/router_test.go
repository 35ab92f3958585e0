package app_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookstore-admin/console/internal/app"
	"github.com/bookstore-admin/console/internal/auth"
	"github.com/bookstore-admin/console/internal/gateway"
	"github.com/bookstore-admin/console/internal/observability"
	"github.com/bookstore-admin/console/internal/rbac"
	"github.com/bookstore-admin/console/internal/roles"
	"github.com/bookstore-admin/console/internal/shared"
	"github.com/bookstore-admin/console/internal/users"
	"github.com/bookstore-admin/console/internal/view"
	_ "github.com/bookstore-admin/console/testing"
)

var csrfPattern = regexp.MustCompile(`name="csrf_token" value="([^"]+)"`)

type fakeAPI struct {
	rolesUnauthorized atomic.Bool
	userCalls         atomic.Int32

	mu          sync.Mutex
	createdRole map[string]any
	createdUser map[string]any
	updatedUser map[string]any
}

func (f *fakeAPI) record(r *http.Request, target *map[string]any) map[string]any {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.mu.Lock()
	*target = body
	f.mu.Unlock()
	return body
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	authorized := r.Header.Get("Authorization") == "Bearer tok-1"
	switch {
	case r.URL.Path == "/admin/login":
		writeJSON(w, http.StatusOK, map[string]any{
			"token": "tok-1",
			"user":  map[string]any{"id": 7, "name": "Ada", "email": "ada@books.test"},
		})
	case !authorized:
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Unauthenticated."})
	case r.URL.Path == "/admin/user":
		f.userCalls.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{"id": 7, "name": "Ada", "email": "ada@books.test"})
	case r.URL.Path == "/admin/dashboard/stats":
		writeJSON(w, http.StatusInternalServerError, map[string]any{})
	case r.URL.Path == "/admin/permissions":
		writeJSON(w, http.StatusOK, map[string]any{"data": []map[string]any{
			{"id": 1, "name": "books-view"},
			{"id": 2, "name": "books-edit"},
			{"id": 3, "name": "orders-view"},
		}})
	case r.URL.Path == "/admin/roles" && r.Method == http.MethodGet:
		if f.rolesUnauthorized.Load() {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Token expired."})
			return
		}
		writeJSON(w, http.StatusOK, []map[string]any{{"id": 1, "name": "Admin", "permissions": []int{1, 2, 3}}})
	case r.URL.Path == "/admin/roles/1" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"id": 1, "name": "Admin", "permissions": []int{1, 3}}})
	case r.URL.Path == "/roles":
		writeJSON(w, http.StatusOK, map[string]any{"data": []map[string]any{{"id": 1, "name": "Admin"}, {"id": 2, "name": "Editor"}}})
	case r.URL.Path == "/users" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, []map[string]any{
			{"id": 5, "name": "Sam", "email": "sam@books.test", "roles": []int{2}},
			{"id": 7, "name": "Ada", "email": "ada@books.test", "roles": []int{1}},
		})
	case r.URL.Path == "/users" && r.Method == http.MethodPost:
		body := f.record(r, &f.createdUser)
		writeJSON(w, http.StatusCreated, map[string]any{"data": map[string]any{"id": 11, "name": body["name"], "email": body["email"], "roles": body["roles"]}})
	case r.URL.Path == "/users/5" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"id": 5, "name": "Sam", "email": "sam@books.test", "roles": []map[string]any{{"id": 2, "name": "Editor"}}}})
	case r.URL.Path == "/users/5" && r.Method == http.MethodPut:
		body := f.record(r, &f.updatedUser)
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"id": 5, "name": body["name"], "email": body["email"], "roles": body["roles"]}})
	case r.URL.Path == "/admin/roles" && r.Method == http.MethodPost:
		body := f.record(r, &f.createdRole)
		writeJSON(w, http.StatusCreated, map[string]any{"data": map[string]any{"id": 10, "name": body["name"], "permissions": body["permissions"]}})
	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type recordingAudit struct {
	mu      sync.Mutex
	actions []string
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, log.Action)
	return nil
}

func (a *recordingAudit) Actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.actions...)
}

type console struct {
	t      *testing.T
	api    *fakeAPI
	audit  *recordingAudit
	server *httptest.Server
	client *http.Client
}

func newConsole(t *testing.T) *console {
	t.Helper()
	api := &fakeAPI{}
	backend := httptest.NewServer(api)
	t.Cleanup(backend.Close)

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg := &app.Config{
		AppEnv:                "test",
		AppRequestTimeout:     5 * time.Second,
		SessionRestoreTimeout: time.Second,
		RateLimit:             1000,
		LoginRateLimit:        100,
	}
	templates, err := view.NewEngine()
	require.NoError(t, err)

	sessions := shared.NewSessionManager(redisClient, "console_session", "secret", time.Hour, false)
	csrf := shared.NewCSRFManager("csrf-secret")
	locks := shared.NewFormLocks(redisClient, time.Second)
	metrics := observability.NewMetrics()
	audit := &recordingAudit{}
	logger := app.NewLogger(&app.Config{LogLevel: "error"})

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Templates:          templates,
		SessionManager:     sessions,
		CSRFManager:        csrf,
		API:                gateway.NewClient(gateway.Options{BaseURL: backend.URL, Observer: metrics}),
		Metrics:            metrics,
		AuthHandler:        auth.NewHandler(logger, templates, sessions, csrf, audit),
		DashboardHandler:   app.NewDashboardHandler(logger, templates, csrf),
		PermissionsHandler: rbac.NewPermissionsHandler(logger, templates, csrf),
		RolesHandler:       roles.NewHandler(logger, templates, csrf, locks, audit),
		UsersHandler:       users.NewHandler(logger, templates, csrf, locks, audit),
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &console{
		t:      t,
		api:    api,
		audit:  audit,
		server: server,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (c *console) get(path string) (*http.Response, string) {
	c.t.Helper()
	res, err := c.client.Get(c.server.URL + path)
	require.NoError(c.t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(c.t, err)
	return res, string(body)
}

func (c *console) post(path string, form url.Values) (*http.Response, string) {
	c.t.Helper()
	res, err := c.client.PostForm(c.server.URL+path, form)
	require.NoError(c.t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(c.t, err)
	return res, string(body)
}

func (c *console) csrfFrom(path string) string {
	c.t.Helper()
	_, body := c.get(path)
	match := csrfPattern.FindStringSubmatch(body)
	require.Len(c.t, match, 2, "no csrf token on %s", path)
	return match[1]
}

func (c *console) login() {
	c.t.Helper()
	token := c.csrfFrom("/auth/login")
	res, _ := c.post("/auth/login", url.Values{
		"csrf_token": {token},
		"email":      {"ada@books.test"},
		"password":   {"secret"},
	})
	require.Equal(c.t, http.StatusSeeOther, res.StatusCode)
}

func TestHealthAndStaticBypassSession(t *testing.T) {
	c := newConsole(t)

	res, body := c.get("/healthz")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, body)
	assert.Empty(t, res.Cookies())

	res, _ = c.get("/static/css/app.css")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "public, max-age=3600", res.Header.Get("Cache-Control"))
}

func TestProtectedPageRedirectsToLogin(t *testing.T) {
	c := newConsole(t)

	res, _ := c.get("/roles")

	assert.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.Equal(t, "/auth/login?next=%2Froles", res.Header.Get("Location"))
}

func TestPostWithoutCSRFIsRejected(t *testing.T) {
	c := newConsole(t)
	c.get("/auth/login")

	res, _ := c.post("/auth/login", url.Values{"email": {"ada@books.test"}, "password": {"secret"}})

	assert.Equal(t, http.StatusForbidden, res.StatusCode)
}

func TestLoginThenDashboardShowsNotice(t *testing.T) {
	c := newConsole(t)
	c.login()

	res, body := c.get("/")

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, "Welcome back, Ada")
	assert.Contains(t, body, "Dashboard figures are unavailable right now.")
	assert.Contains(t, c.audit.Actions(), "auth.login")
}

func TestUnauthorizedResponseClearsSessionAndRedirects(t *testing.T) {
	c := newConsole(t)
	c.login()
	c.api.rolesUnauthorized.Store(true)

	res, body := c.get("/roles")

	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.Equal(t, "/auth/login?next=%2Froles", res.Header.Get("Location"))
	assert.NotContains(t, body, "<table")

	calls := c.api.userCalls.Load()
	res, _ = c.get("/roles")
	assert.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.Equal(t, calls, c.api.userCalls.Load(), "cleared session must not be restored again")
}

func TestCreateRoleEndToEnd(t *testing.T) {
	c := newConsole(t)
	c.login()
	token := c.csrfFrom("/roles/new")

	res, _ := c.post("/roles", url.Values{
		"csrf_token":  {token},
		"name":        {"Editors"},
		"permissions": {"1", "2"},
	})

	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.Equal(t, "/roles", res.Header.Get("Location"))
	c.api.mu.Lock()
	assert.Equal(t, "Editors", c.api.createdRole["name"])
	assert.Equal(t, []any{float64(1), float64(2)}, c.api.createdRole["permissions"])
	c.api.mu.Unlock()
	assert.Contains(t, c.audit.Actions(), "role.create")

	res, body := c.get("/roles")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, "Role created")
}

func TestCreateRoleValidationRendersErrors(t *testing.T) {
	c := newConsole(t)
	c.login()
	token := c.csrfFrom("/roles/new")

	res, body := c.post("/roles", url.Values{"csrf_token": {token}, "name": {"  "}})

	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
	assert.Contains(t, body, roles.MsgNameRequired)
	assert.Contains(t, body, roles.MsgPermissionsRequired)
	c.api.mu.Lock()
	assert.Nil(t, c.api.createdRole)
	c.api.mu.Unlock()
}

func TestPermissionsPageGroupsCatalog(t *testing.T) {
	c := newConsole(t)
	c.login()

	res, body := c.get("/permissions")

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, "Books")
	assert.Contains(t, body, "Orders")
	assert.Less(t, strings.Index(body, "books-view"), strings.Index(body, "orders-view"))
}

func TestEditRoleShowsLoadedRole(t *testing.T) {
	c := newConsole(t)
	c.login()

	res, body := c.get("/roles/1/edit")

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, `value="Admin"`)
	assert.Contains(t, body, `action="/roles/1"`)
}

func TestEditRoleLoadFailureOffersRetry(t *testing.T) {
	c := newConsole(t)
	c.login()

	res, body := c.get("/roles/404/edit")

	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Contains(t, body, `href="/roles/404/edit"`)
	assert.NotContains(t, body, `name="permissions"`)
	assert.NotContains(t, body, `action="/roles/404"`)
}

func TestUsersListResolvesRoleNames(t *testing.T) {
	c := newConsole(t)
	c.login()

	res, body := c.get("/users")

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, "sam@books.test")
	assert.Contains(t, body, "Editor")
	assert.Less(t, strings.Index(body, "ada@books.test"), strings.Index(body, "sam@books.test"))
}

func TestCreateUserEndToEnd(t *testing.T) {
	c := newConsole(t)
	c.login()
	token := c.csrfFrom("/users/new")

	res, _ := c.post("/users", url.Values{
		"csrf_token":            {token},
		"name":                  {"Jane Doe"},
		"email":                 {"jane@books.test"},
		"password":              {"s3cret-pass"},
		"password_confirmation": {"s3cret-pass"},
		"roles":                 {"2"},
	})

	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.Equal(t, "/users", res.Header.Get("Location"))
	c.api.mu.Lock()
	assert.Equal(t, "jane@books.test", c.api.createdUser["email"])
	assert.Equal(t, "s3cret-pass", c.api.createdUser["password_confirmation"])
	assert.Equal(t, []any{float64(2)}, c.api.createdUser["roles"])
	c.api.mu.Unlock()
	assert.Contains(t, c.audit.Actions(), "user.create")
}

func TestUpdateUserOmitsBlankPassword(t *testing.T) {
	c := newConsole(t)
	c.login()

	res, body := c.get("/users/5/edit")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, `value="Sam"`)
	match := csrfPattern.FindStringSubmatch(body)
	require.Len(t, match, 2)

	res, _ = c.post("/users/5", url.Values{
		"csrf_token":            {match[1]},
		"name":                  {"Sam Reed"},
		"email":                 {"sam@books.test"},
		"password":              {""},
		"password_confirmation": {""},
		"roles":                 {"1"},
	})

	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	c.api.mu.Lock()
	assert.Equal(t, "Sam Reed", c.api.updatedUser["name"])
	assert.NotContains(t, c.api.updatedUser, "password")
	assert.NotContains(t, c.api.updatedUser, "password_confirmation")
	assert.Equal(t, []any{float64(1)}, c.api.updatedUser["roles"])
	c.api.mu.Unlock()
	assert.Contains(t, c.audit.Actions(), "user.update")
}

func TestEditUserLoadFailureOffersRetry(t *testing.T) {
	c := newConsole(t)
	c.login()

	res, body := c.get("/users/404/edit")

	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Contains(t, body, `href="/users/404/edit"`)
	assert.NotContains(t, body, `name="password"`)
}
